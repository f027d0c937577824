// Package service 实现文档流水线的各个组件：摄取触发、状态对账、内容分析、
// 语料重同步、状态查询与级联删除.
//
// 组件之间不共享进程内状态，协调全部通过元数据库的条件更新完成.
// 每个组件在构造时拿到配置快照，之后不再读取全局配置.
package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/internal/inference"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/sidecar"
	"github.com/yeisme/docpipe/pkg/internal/storage/kv"
	"github.com/yeisme/docpipe/pkg/internal/store"
	"github.com/yeisme/docpipe/pkg/metrics"
	"github.com/yeisme/docpipe/pkg/queue"
	"github.com/yeisme/docpipe/pkg/rule"
)

var (
	// ErrMalformedKey 对象键不是 {ownerId}/{documentId}/{filename}.
	ErrMalformedKey = errors.New("malformed object key")
	// ErrNotTerminal 文档仍在处理中，不能重新处理.
	ErrNotTerminal = errors.New("document is not in a terminal state")
	// ErrInvalidFilter 列表过滤条件非法.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Deps 组件依赖. 可选依赖为 nil 时对应的尽力而为步骤被跳过.
type Deps struct {
	Documents *store.DocumentStore
	Deletions *store.DeletionStore
	Engine    engine.IngestionEngine
	Inference inference.InferenceEngine
	Objects   sidecar.ObjectStore
	Publisher queue.Publisher
	KV        kv.KVStore

	Pipeline      configs.PipelineConfig
	Events        configs.EventsConfig
	EngineTimeout time.Duration
	Inferencing   configs.InferenceConfig

	Logger zerolog.Logger
	// Now 时钟，默认 UTC 当前时间
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}

	return time.Now().UTC()
}

func (d Deps) sidecars() *sidecar.Manager {
	if d.Objects == nil {
		return nil
	}

	return sidecar.NewManager(d.Objects).WithClock(d.now)
}

// ObjectKey 解析后的对象键.
type ObjectKey struct {
	OwnerID    string
	DocumentID string
	FileName   string
}

// ParseObjectKey 解析 {ownerId}/{documentId}/{filename}.
func ParseObjectKey(key string) (ObjectKey, error) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 {
		return ObjectKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}

	// owner 与文档 id 与 HTTP 层使用同一条标识规则，超长段落无法入库
	for _, seg := range parts[:2] {
		if err := rule.ValidateVar(seg, rule.TagIdentifier); err != nil {
			return ObjectKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
		}
	}

	if p := parts[2]; p == "" || p == "." || p == ".." {
		return ObjectKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}

	if strings.HasSuffix(parts[2], "/") {
		return ObjectKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}

	return ObjectKey{OwnerID: parts[0], DocumentID: parts[1], FileName: path.Base(parts[2])}, nil
}

// withTimeout d<=0 时不加超时.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}

// transitioner 按状态机逐步推进记录，并在每步成功后做尽力而为的通知.
type transitioner struct {
	docs     *store.DocumentStore
	sidecars *sidecar.Manager
	pub      queue.Publisher
	events   configs.EventsConfig
	writeLog bool
	logger   zerolog.Logger
}

func newTransitioner(d Deps, logger zerolog.Logger) *transitioner {
	return &transitioner{
		docs:     d.Documents,
		sidecars: d.sidecars(),
		pub:      d.Publisher,
		events:   d.Events,
		writeLog: d.Pipeline.WriteProcessingSidecar,
		logger:   logger,
	}
}

// advance 把 rec 推进到 to，中间状态不跳过. 返回是否有任何写入.
// 目标不可达（例如已是终态）时不写库.
func (t *transitioner) advance(ctx context.Context, rec *model.DocumentRecord, to model.Status, reason string) (bool, error) {
	if rec.Status == to {
		return false, nil
	}

	steps := model.PathTo(rec.Status, to)
	if steps == nil {
		return false, nil
	}

	changed := false

	for _, step := range steps {
		from := rec.Status

		ok, err := t.docs.Transition(ctx, rec, step, reason)
		if err != nil {
			return changed, err
		}

		if ok {
			changed = true
			t.changed(ctx, rec, from, reason)
		}
	}

	return changed, nil
}

// changed 记录指标、发布事件并追加处理链，失败只记日志.
func (t *transitioner) changed(ctx context.Context, rec *model.DocumentRecord, from model.Status, reason string) {
	metrics.StatusTransitions.WithLabelValues(string(rec.Status)).Inc()

	t.logger.Info().
		Str("owner_id", rec.OwnerID).
		Str("document_id", rec.DocumentID).
		Str("from", string(from)).
		Str("to", string(rec.Status)).
		Str("job_id", rec.JobID()).
		Msg("status changed")

	if t.pub != nil && t.events.PublishStatusChanges && t.events.StatusChangedTopic != "" {
		payload := queue.StatusChangedPayload{
			OwnerID:    rec.OwnerID,
			DocumentID: rec.DocumentID,
			From:       string(from),
			To:         string(rec.Status),
			Reason:     rec.FailureReason,
			Attempt:    rec.Attempt,
			JobID:      rec.JobID(),
		}
		if err := queue.PublishStatusChanged(ctx, t.pub, t.events.StatusChangedTopic, payload); err != nil {
			t.logger.Warn().Err(err).Str("document_id", rec.DocumentID).Msg("publish status change")
		}
	}

	errMsg := ""
	if rec.Status == model.StatusFailed {
		errMsg = rec.FailureReason
	}

	t.appendProcessing(ctx, rec, string(rec.Status), statusDetails(rec, reason), errMsg)
}

func (t *transitioner) appendProcessing(ctx context.Context, rec *model.DocumentRecord, status, details, errMsg string) {
	if t.sidecars == nil || !t.writeLog {
		return
	}

	if err := t.sidecars.AppendProcessing(ctx, rec.Bucket, rec.ObjectKey, status, details, errMsg); err != nil {
		t.logger.Warn().Err(err).Str("key", rec.ObjectKey).Msg("append processing sidecar")
	}
}

func statusDetails(rec *model.DocumentRecord, reason string) string {
	switch rec.Status {
	case model.StatusIngestionStarted:
		return "ingestion job " + rec.JobID() + " started"
	case model.StatusIngesting:
		return "ingestion job " + rec.JobID() + " running"
	case model.StatusReady:
		return "ingestion complete"
	case model.StatusFailed:
		return "ingestion failed: " + reason
	default:
		return string(rec.Status)
	}
}
