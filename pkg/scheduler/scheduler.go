// Package scheduler 基于 gocron/v2 的定时任务调度. 每个任务以单例模式运行，
// 上一次尚未结束时本次触发会被跳过并重新排期.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobStatus 任务状态.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled"
	StatusRunning   JobStatus = "running"
	StatusError     JobStatus = "error"
)

// JobInfo 任务信息，供管理接口展示.
type JobInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Schedule    string    `json:"schedule"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	Runs        int       `json:"runs"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Task 任务函数，返回的错误只记录在 JobInfo 与日志中.
type Task func(ctx context.Context) error

// Scheduler 封装 gocron.Scheduler 并记录每个任务的运行状态.
type Scheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job
	infos     map[string]*JobInfo
	ids       map[uuid.UUID]string
	mu        sync.RWMutex
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler 创建调度器，时区固定为 UTC.
func NewScheduler(logger zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		infos:     make(map[string]*JobInfo),
		ids:       make(map[uuid.UUID]string),
		logger:    logger.With().Str("component", "scheduler").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// AddInterval 添加固定间隔任务.
func (s *Scheduler) AddInterval(name string, every time.Duration, task Task) error {
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	return s.add(name, every.String(), gocron.DurationJob(every), task)
}

// AddCron 添加 cron 表达式任务（5 段，不含秒）.
func (s *Scheduler) AddCron(name, cronExpr string, task Task) error {
	return s.add(name, cronExpr, gocron.CronJob(cronExpr, false), task)
}

func (s *Scheduler) add(name, schedule string, def gocron.JobDefinition, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job with name %s already exists", name)
	}

	j, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(func(ctx context.Context) { s.run(ctx, name, task) }, s.ctx),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	s.jobs[name] = j
	s.ids[j.ID()] = name
	s.infos[name] = &JobInfo{
		ID:        j.ID().String(),
		Name:      name,
		Schedule:  schedule,
		Status:    StatusScheduled,
		CreatedAt: time.Now().UTC(),
	}

	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("job added")

	return nil
}

// run 执行任务并记录结果，panic 视为失败.
func (s *Scheduler) run(ctx context.Context, name string, task Task) {
	start := time.Now().UTC()
	s.update(name, func(info *JobInfo) {
		info.Status = StatusRunning
		info.LastRun = start
		info.Runs++
	})

	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in job: %v", r)
			}
		}()

		err = task(ctx)
	}()

	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("job failed")
		s.update(name, func(info *JobInfo) {
			info.Status = StatusError
			info.Error = err.Error()
		})

		return
	}

	s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
	s.update(name, func(info *JobInfo) {
		info.Status = StatusScheduled
		info.Error = ""
		info.LastSuccess = time.Now().UTC()
	})
}

func (s *Scheduler) update(name string, fn func(*JobInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.infos[name]; ok {
		fn(info)
	}
}

// RunNow 立即触发一次任务，不影响原有排期.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("job with name %s does not exist", name)
	}

	return j.RunNow()
}

// Start 启动调度器.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("starting scheduler")
	s.scheduler.Start()
}

// Shutdown 取消任务上下文并等待运行中的任务结束.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.scheduler.Shutdown()
}

// StopJobs 停止全部任务的后续调度.
func (s *Scheduler) StopJobs() error {
	return s.scheduler.StopJobs()
}

// RemoveJob 按 id 删除任务.
func (s *Scheduler) RemoveJob(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name, ok := s.ids[id]; ok {
		delete(s.jobs, name)
		delete(s.infos, name)
		delete(s.ids, id)
	}

	return s.scheduler.RemoveJob(id)
}

// JobsWaitingInQueue 等待执行的任务数.
func (s *Scheduler) JobsWaitingInQueue() int {
	return s.scheduler.JobsWaitingInQueue()
}

// GetJobInfos 返回按名称排序的任务信息.
func (s *Scheduler) GetJobInfos() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.infos))

	for name, info := range s.infos {
		cp := *info
		if next, err := s.jobs[name].NextRun(); err == nil {
			cp.NextRun = next
		}

		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}
