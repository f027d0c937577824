package inference

import (
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

const (
	// ConfidenceParsed 模型输出成功解析为 JSON.
	ConfidenceParsed = 0.85
	// ConfidenceRaw 解析失败，只保留原始输出.
	ConfidenceRaw = 0.5

	binaryPlaceholder = "[binary document content, text extraction unavailable]"
)

// ParseExtraction 取第一个 '{' 到最后一个 '}' 之间的内容解析为对象.
// 失败时返回带 raw_response 与 error 字段的对象以及 false.
func ParseExtraction(out string) (map[string]any, bool) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")

	if start == -1 || end <= start {
		return map[string]any{"raw_response": out, "error": "No JSON found"}, false
	}

	var data map[string]any
	if err := sonic.UnmarshalString(out[start:end+1], &data); err != nil || data == nil {
		return map[string]any{"raw_response": out, "error": "Invalid JSON"}, false
	}

	return data, true
}

// DecodeText 把对象前缀解码为文本，非 UTF-8 内容用占位符代替.
func DecodeText(b []byte) string {
	// 截断可能切开多字节字符，去掉尾部不完整的部分
	for i := 0; i < utf8.UTFMax && len(b) > 0 && !utf8.Valid(b); i++ {
		b = b[:len(b)-1]
	}

	if !utf8.Valid(b) {
		return binaryPlaceholder
	}

	return string(b)
}

// Truncate 按字符数截断.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}

	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}

	return s
}
