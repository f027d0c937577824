// Package inference 调用外部推理引擎（OpenAI 兼容接口）从源文档中抽取结构化数据.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/yeisme/docpipe/pkg/cache"
	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/resilience"
)

// ErrEmptyDocument 源对象为空.
var ErrEmptyDocument = errors.New("inference: document is empty")

const maxTokens = 4096

// Insights 一次推理的结果.
type Insights struct {
	ModelID    string         `json:"modelId"`
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data"`
	Parsed     bool           `json:"parsed"`
}

// InferenceEngine 外部推理引擎.
type InferenceEngine interface {
	Infer(ctx context.Context, ref model.ObjectRef, modelID string) (Insights, error)
}

// ObjectReader 读取源对象前缀.
type ObjectReader interface {
	Read(ctx context.Context, bucket, key string, limit int64) ([]byte, error)
}

// LLMEngine 基于 langchaingo 的推理实现，结果按对象版本缓存.
type LLMEngine struct {
	llm     llms.Model
	objects ObjectReader
	cfg     configs.InferenceConfig
	cache   *cache.Cache
	exec    *resilience.Executor
	logger  zerolog.Logger
}

var _ InferenceEngine = (*LLMEngine)(nil)

// NewOpenAIModel 按配置创建 OpenAI 兼容客户端. 本地服务不需要鉴权时 token 用 "none".
func NewOpenAIModel(cfg configs.InferenceConfig) (llms.Model, error) {
	token := cfg.Token
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithModel(cfg.ModelID),
	)
	if err != nil {
		return nil, fmt.Errorf("create inference client: %w", err)
	}

	return client, nil
}

// NewLLMEngine 创建推理引擎. c 为 nil 时不缓存.
func NewLLMEngine(llm llms.Model, objects ObjectReader, cfg configs.InferenceConfig, c *cache.Cache, logger zerolog.Logger) *LLMEngine {
	return &LLMEngine{
		llm:     llm,
		objects: objects,
		cfg:     cfg,
		cache:   c,
		exec:    resilience.NewExecutor(cfg.Retry, logger),
		logger:  logger,
	}
}

// CacheKey 同一对象版本、类型与模型得到同一键.
func CacheKey(ref model.ObjectRef, modelID string) string {
	d := xxhash.New()
	for _, p := range []string{ref.Bucket, ref.Key, ref.Version, string(ref.Type), modelID} {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}

	return "infer." + strconv.FormatUint(d.Sum64(), 16)
}

// Infer 读取对象前缀，按文档类型构造提示词并调用模型. 调用受 cfg.Timeout 约束.
// 模型输出无法解析时不算错误，返回低置信度结果.
func (e *LLMEngine) Infer(ctx context.Context, ref model.ObjectRef, modelID string) (Insights, error) {
	if modelID == "" {
		modelID = e.cfg.ModelID
	}

	key := CacheKey(ref, modelID)

	if e.cache != nil && ref.Version != "" {
		if cached, ok, err := cache.Get[Insights](ctx, e.cache, key); err == nil && ok {
			e.logger.Debug().Str("key", ref.Key).Msg("inference cache hit")
			return cached, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	limit := e.cfg.MaxReadBytes
	if IsPDF(ref.Key) && e.cfg.MaxPDFBytes > 0 {
		// PDF 只有完整读入才能解析
		limit = e.cfg.MaxPDFBytes
	}

	raw, err := e.objects.Read(ctx, ref.Bucket, ref.Key, limit)
	if err != nil {
		return Insights{}, fmt.Errorf("read source %s: %w", ref.Key, err)
	}

	if len(raw) == 0 {
		return Insights{}, ErrEmptyDocument
	}

	text, err := SourceText(ref.Key, raw)
	if err != nil {
		return Insights{}, err
	}

	if text == "" {
		return Insights{}, ErrEmptyDocument
	}
	if truncated := Truncate(text, e.cfg.MaxChars); len(truncated) < len(text) {
		e.logger.Warn().Str("key", ref.Key).Int("max_chars", e.cfg.MaxChars).Msg("document text truncated")
		text = truncated
	}

	prompt := BuildPrompt(ref.Type, text)

	var out string

	err = e.exec.Execute(ctx, "inference.generate", func(ctx context.Context) error {
		var gerr error

		out, gerr = llms.GenerateFromSinglePrompt(ctx, e.llm, prompt,
			llms.WithModel(modelID),
			llms.WithTemperature(e.cfg.Temperature),
			llms.WithMaxTokens(maxTokens),
		)

		return gerr
	}, classify)
	if err != nil {
		return Insights{}, fmt.Errorf("generate: %w", err)
	}

	data, parsed := ParseExtraction(out)

	ins := Insights{ModelID: modelID, Data: data, Parsed: parsed, Confidence: ConfidenceRaw}
	if parsed {
		ins.Confidence = ConfidenceParsed
	}

	if e.cache != nil && parsed && ref.Version != "" {
		if err := cache.Set(ctx, e.cache, key, ins, e.cfg.CacheTTL); err != nil {
			e.logger.Warn().Err(err).Msg("cache inference result")
		}
	}

	return ins, nil
}

// classify 整体超时或取消后不再重试，其余错误重试并计入熔断.
func classify(err error) resilience.Classification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Classification{RecordFailure: true}
	}

	return resilience.Classification{Retryable: true, RecordFailure: true}
}
