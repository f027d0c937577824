// Package sidecar 管理与源文档并排存放的 JSON 旁路文件.
//
// 旁路文件的键是源对象键加固定后缀，例如 o1/d1/report.pdf.extracted.json.
// 所有写入都是整对象覆盖，追加类操作先读后写，只提供尽力而为的语义.
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/docpipe/pkg/internal/storage/s3"
)

// Kind 旁路文件类型.
type Kind string

const (
	KindMetadata   Kind = "metadata"
	KindExtracted  Kind = "extracted"
	KindProcessing Kind = "processing"
	KindInsights   Kind = "insights"
	KindAudit      Kind = "audit"
)

// Kinds 全部旁路类型，删除时按此顺序逐个处理.
var Kinds = []Kind{KindMetadata, KindExtracted, KindProcessing, KindInsights, KindAudit}

// Suffix 返回类型对应的键后缀.
func (k Kind) Suffix() string {
	return "." + string(k) + ".json"
}

// Key 计算源对象的旁路文件键.
func Key(objectKey string, kind Kind) string {
	return objectKey + kind.Suffix()
}

// IsSidecarKey 判断对象键是否是旁路文件.
func IsSidecarKey(key string) bool {
	for _, k := range Kinds {
		if strings.HasSuffix(key, k.Suffix()) {
			return true
		}
	}

	return false
}

// ObjectStore 旁路文件与源文档依赖的对象存储操作，s3.Client 实现了它.
// 不存在的对象返回 s3.ErrObjectNotFound.
type ObjectStore interface {
	Read(ctx context.Context, bucket, key string, limit int64) ([]byte, error)
	PutJSON(ctx context.Context, bucket, key string, body []byte) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Remove(ctx context.Context, bucket string, keys []string) (int, error)
	SetTags(ctx context.Context, bucket, key string, tags map[string]string) error
}

// ProcessingEntry 处理链上的一步.
type ProcessingEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// ProcessingError 处理链上记录的错误.
type ProcessingError struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// Processing .processing.json 的内容.
type Processing struct {
	StatusChain   []ProcessingEntry `json:"statusChain"`
	CurrentStatus string            `json:"currentStatus"`
	Errors        []ProcessingError `json:"errors"`
}

// AuditEvent 审计事件.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	UserID    string            `json:"userId"`
	Details   map[string]string `json:"details,omitempty"`
}

// Audit .audit.json 的内容.
type Audit struct {
	Events []AuditEvent `json:"events"`
}

// Extracted .extracted.json 的内容，由内容分析写入.
type Extracted struct {
	DocumentID          string         `json:"documentId"`
	DocumentType        string         `json:"documentType"`
	ExtractionTimestamp time.Time      `json:"extractionTimestamp"`
	ModelID             string         `json:"modelId"`
	Confidence          float64        `json:"confidence"`
	Data                map[string]any `json:"data"`
}

// Metadata .metadata.json 的内容，触发器在首次看到对象时写入.
type Metadata struct {
	OwnerID      string            `json:"ownerId"`
	DocumentID   string            `json:"documentId"`
	DocumentType string            `json:"documentType"`
	FileName     string            `json:"fileName"`
	ContentType  string            `json:"contentType,omitempty"`
	Size         int64             `json:"size"`
	Version      string            `json:"version,omitempty"`
	UserMetadata map[string]string `json:"userMetadata,omitempty"`
	UploadedAt   time.Time         `json:"uploadedAt"`
}

// Manager 读写某个桶中的旁路文件.
type Manager struct {
	store ObjectStore
	now   func() time.Time
}

// NewManager 创建旁路文件管理器.
func NewManager(store ObjectStore) *Manager {
	return &Manager{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock 替换时钟（测试使用）.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Write 覆盖写入一个旁路文件，返回其键.
func (m *Manager) Write(ctx context.Context, bucket, objectKey string, kind Kind, v any) (string, error) {
	body, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s sidecar: %w", kind, err)
	}

	key := Key(objectKey, kind)
	if err := m.store.PutJSON(ctx, bucket, key, body); err != nil {
		return "", err
	}

	return key, nil
}

// Read 读取旁路文件到 v，不存在时返回 false.
func (m *Manager) Read(ctx context.Context, bucket, objectKey string, kind Kind, v any) (bool, error) {
	body, err := m.store.Read(ctx, bucket, Key(objectKey, kind), 0)
	if errors.Is(err, s3.ErrObjectNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if err := sonic.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("decode %s sidecar: %w", kind, err)
	}

	return true, nil
}

// AppendProcessing 在处理链上追加一步，errMsg 非空时同时记录错误.
func (m *Manager) AppendProcessing(ctx context.Context, bucket, objectKey, status, details, errMsg string) error {
	var p Processing
	if _, err := m.Read(ctx, bucket, objectKey, KindProcessing, &p); err != nil {
		return err
	}

	now := m.now()
	p.StatusChain = append(p.StatusChain, ProcessingEntry{Status: status, Timestamp: now, Details: details})
	p.CurrentStatus = status

	if errMsg != "" {
		p.Errors = append(p.Errors, ProcessingError{Timestamp: now, Error: errMsg})
	}

	_, err := m.Write(ctx, bucket, objectKey, KindProcessing, p)

	return err
}

// AppendAudit 追加审计事件.
func (m *Manager) AppendAudit(ctx context.Context, bucket, objectKey, action, userID string, details map[string]string) error {
	var a Audit
	if _, err := m.Read(ctx, bucket, objectKey, KindAudit, &a); err != nil {
		return err
	}

	a.Events = append(a.Events, AuditEvent{Timestamp: m.now(), Action: action, UserID: userID, Details: details})

	_, err := m.Write(ctx, bucket, objectKey, KindAudit, a)

	return err
}

// Keys 返回源对象全部旁路文件的键.
func Keys(objectKey string) []string {
	keys := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		keys = append(keys, Key(objectKey, k))
	}

	return keys
}
