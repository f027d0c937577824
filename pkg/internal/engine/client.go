package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/resilience"
)

const maxErrorBody = 512

// Client 通过 HTTP 作业 API 访问摄取引擎.
//
//	POST {base}/v1/data-sources/{ds}/jobs    -> 202 {"jobId": "..."}
//	GET  {base}/v1/jobs/{id}                  -> 200 {"jobId", "status", "failureReason"|"failureReasons"}
//	POST {base}/v1/data-sources/{ds}/resync  -> 202, 409 表示已有重同步在运行
type Client struct {
	cfg     configs.EngineConfig
	http    *http.Client
	limiter *rate.Limiter
	exec    *resilience.Executor
	logger  zerolog.Logger
}

var _ IngestionEngine = (*Client)(nil)

// NewClient 创建引擎客户端. 每次调用都受 cfg.Timeout 约束，并经过出站限流与重试熔断.
func NewClient(cfg configs.EngineConfig, logger zerolog.Logger) *Client {
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		exec:    resilience.NewExecutor(cfg.Retry, logger),
		logger:  logger,
	}
}

type startJobRequest struct {
	Bucket       string `json:"bucket"`
	Key          string `json:"key"`
	Version      string `json:"version,omitempty"`
	OwnerID      string `json:"ownerId"`
	DocumentID   string `json:"documentId"`
	DocumentType string `json:"documentType"`
}

type startJobResponse struct {
	JobID string `json:"jobId"`
}

type jobStatusResponse struct {
	JobID          string   `json:"jobId"`
	Status         string   `json:"status"`
	FailureReason  string   `json:"failureReason"`
	FailureReasons []string `json:"failureReasons"`
}

// StartJob 提交单个对象的摄取作业.
func (c *Client) StartJob(ctx context.Context, ref model.ObjectRef) (string, error) {
	body, err := sonic.Marshal(startJobRequest{
		Bucket:       ref.Bucket,
		Key:          ref.Key,
		Version:      ref.Version,
		OwnerID:      ref.OwnerID,
		DocumentID:   ref.DocumentID,
		DocumentType: string(ref.Type),
	})
	if err != nil {
		return "", fmt.Errorf("encode start job: %w", err)
	}

	var out startJobResponse

	path := "/v1/data-sources/" + url.PathEscape(c.cfg.DataSourceID) + "/jobs"
	if err := c.do(ctx, "start_job", http.MethodPost, path, body, &out); err != nil {
		return "", err
	}

	if out.JobID == "" {
		return "", fmt.Errorf("engine start_job: empty job id: %w", ErrUnavailable)
	}

	return out.JobID, nil
}

// GetJobStatus 查询作业状态.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (JobReport, error) {
	var out jobStatusResponse
	if err := c.do(ctx, "get_job", http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, &out); err != nil {
		return JobReport{}, err
	}

	reason := out.FailureReason
	if reason == "" && len(out.FailureReasons) > 0 {
		reason = strings.Join(out.FailureReasons, "; ")
	}

	return JobReport{JobID: jobID, State: NormalizeJobState(out.Status), Reason: reason}, nil
}

// StartResync 对数据源发起全量重同步.
func (c *Client) StartResync(ctx context.Context) error {
	path := "/v1/data-sources/" + url.PathEscape(c.cfg.DataSourceID) + "/resync"
	return c.do(ctx, "start_resync", http.MethodPost, path, []byte("{}"), nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	return c.exec.Execute(ctx, "engine."+op, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		return c.roundTrip(ctx, op, method, path, body, out)
	}, classify)
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("engine %s: build request: %w", op, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("engine %s: %w: %w", op, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("engine %s: read body: %w: %w", op, ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && op == "get_job":
		return fmt.Errorf("engine %s: %w", op, ErrJobNotFound)
	case resp.StatusCode == http.StatusConflict && op == "start_resync":
		return ErrAlreadyRunning
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet := string(data)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}

		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: snippet}
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("engine %s: decode response: %w", op, err)
	}

	return nil
}

// classify 网络错误与 5xx 可重试并计入熔断；业务性错误（404/409/4xx）既不重试也不计入.
func classify(err error) resilience.Classification {
	if errors.Is(err, context.Canceled) {
		return resilience.Classification{}
	}

	var netErr net.Error
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return resilience.Classification{Retryable: true, RecordFailure: true}
	}

	return resilience.Classification{}
}

// IsTransient 错误是否应留到下一轮再试（含熔断打开）.
func IsTransient(err error) bool {
	return err != nil && (errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		resilience.IsCircuitOpen(err))
}
