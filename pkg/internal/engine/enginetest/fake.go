// Package enginetest 提供确定性的内存摄取引擎.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/internal/model"
)

// Fake 内存摄取引擎. 作业 id 依次为 job-1、job-2…，新作业处于 PENDING.
type Fake struct {
	mu sync.Mutex

	seq    int
	jobs   map[string]engine.JobReport
	starts []model.ObjectRef
	resync int

	// StartErr 非空时 StartJob 返回它
	StartErr error
	// StatusErr 按作业 id 注入 GetJobStatus 错误
	StatusErr map[string]error
	// ResyncErr 非空时 StartResync 返回它
	ResyncErr error
}

var _ engine.IngestionEngine = (*Fake)(nil)

// NewFake 创建空引擎.
func NewFake() *Fake {
	return &Fake{
		jobs:      make(map[string]engine.JobReport),
		StatusErr: make(map[string]error),
	}
}

func (f *Fake) StartJob(_ context.Context, ref model.ObjectRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StartErr != nil {
		return "", f.StartErr
	}

	f.seq++
	id := fmt.Sprintf("job-%d", f.seq)
	f.jobs[id] = engine.JobReport{JobID: id, State: engine.JobPending}
	f.starts = append(f.starts, ref)

	return id, nil
}

func (f *Fake) GetJobStatus(_ context.Context, jobID string) (engine.JobReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.StatusErr[jobID]; err != nil {
		return engine.JobReport{}, err
	}

	rep, ok := f.jobs[jobID]
	if !ok {
		return engine.JobReport{}, engine.ErrJobNotFound
	}

	return rep, nil
}

func (f *Fake) StartResync(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resync++

	return f.ResyncErr
}

// SetState 推进作业状态.
func (f *Fake) SetState(jobID string, state engine.JobState, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs[jobID] = engine.JobReport{JobID: jobID, State: state, Reason: reason}
}

// SetStatusErr 为作业注入查询错误，nil 清除.
func (f *Fake) SetStatusErr(jobID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		delete(f.StatusErr, jobID)
		return
	}

	f.StatusErr[jobID] = err
}

// SetStartErr 设置 StartJob 错误.
func (f *Fake) SetStartErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.StartErr = err
}

// Starts 返回 StartJob 收到的对象引用.
func (f *Fake) Starts() []model.ObjectRef {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]model.ObjectRef(nil), f.starts...)
}

// ResyncCalls StartResync 被调用次数.
func (f *Fake) ResyncCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.resync
}
