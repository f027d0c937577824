package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Status 文档在一次处理尝试内的生命周期状态.
type Status string

const (
	StatusUploaded         Status = "UPLOADED"
	StatusIngestionStarted Status = "INGESTION_STARTED"
	StatusIngesting        Status = "INGESTING"
	StatusReady            Status = "READY"
	StatusFailed           Status = "FAILED"
)

// 失败原因.
const (
	ReasonTimeout       = "TIMEOUT"
	ReasonEngineFailure = "ENGINE_FAILURE"
)

// MaxFailureReasonBytes failure_reason 列宽.
const MaxFailureReasonBytes = 255

// TruncateReason 把失败原因截断到列宽以内，只在 rune 边界处截断.
func TruncateReason(reason string) string {
	if len(reason) <= MaxFailureReasonBytes {
		return reason
	}

	cut := MaxFailureReasonBytes
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}

	return reason[:cut]
}

// AllStatuses 按生命周期顺序列出全部状态.
var AllStatuses = []Status{
	StatusUploaded,
	StatusIngestionStarted,
	StatusIngesting,
	StatusReady,
	StatusFailed,
}

// transitions 合法迁移：key 为目标状态，value 为允许的前驱.
// INGESTING -> INGESTING 允许重复写入.
var transitions = map[Status][]Status{
	StatusIngestionStarted: {StatusUploaded},
	StatusIngesting:        {StatusIngestionStarted, StatusIngesting},
	StatusReady:            {StatusIngesting},
	StatusFailed:           {StatusIngestionStarted, StatusIngesting},
}

// Rank 返回偏序中的层级，READY 与 FAILED 同级.
func (s Status) Rank() int {
	switch s {
	case StatusUploaded:
		return 1
	case StatusIngestionStarted:
		return 2
	case StatusIngesting:
		return 3
	case StatusReady, StatusFailed:
		return 4
	default:
		return 0
	}
}

// IsTerminal 是否为一次尝试的终态.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Valid 是否为已知状态.
func (s Status) Valid() bool {
	return s.Rank() > 0
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus 解析状态，大小写不敏感.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}

	return s, nil
}

// Predecessors 返回可以迁移到 to 的状态集合.
func Predecessors(to Status) []Status {
	return transitions[to]
}

// CanTransition 判断 from -> to 是否合法. 新尝试的重置不走这里.
func CanTransition(from, to Status) bool {
	for _, p := range transitions[to] {
		if p == from {
			return true
		}
	}

	return false
}

// PathTo 返回从 from 依次经过的状态直到 to（不含 from），不可达时返回 nil.
// 例如 INGESTION_STARTED -> READY 需要先经过 INGESTING.
func PathTo(from, to Status) []Status {
	if CanTransition(from, to) {
		return []Status{to}
	}

	if from == StatusIngestionStarted && to == StatusReady {
		return []Status{StatusIngesting, StatusReady}
	}

	return nil
}
