package model

import (
	"strings"
	"time"
)

// DocumentType 上传时设定的文档分类.
type DocumentType string

const (
	DocumentTypeIEP           DocumentType = "iep"
	DocumentTypeABAReport     DocumentType = "aba_report"
	DocumentTypeMedicalRecord DocumentType = "medical_record"
	DocumentTypeOther         DocumentType = "other"
)

// NormalizeDocumentType 未知分类归为 other.
func NormalizeDocumentType(v string) DocumentType {
	switch t := DocumentType(strings.ToLower(strings.TrimSpace(v))); t {
	case DocumentTypeIEP, DocumentTypeABAReport, DocumentTypeMedicalRecord:
		return t
	default:
		return DocumentTypeOther
	}
}

// DocumentRecord 每个文档一条，状态的唯一可信来源.
type DocumentRecord struct {
	// (owner_id, document_id) 全局唯一且不可变
	OwnerID      string       `gorm:"primaryKey;size:128;index:idx_owner_status,priority:1;index:idx_owner_type,priority:1" json:"ownerId"`
	DocumentID   string       `gorm:"primaryKey;size:128"                                                                   json:"documentId"`
	DocumentType DocumentType `gorm:"size:32;not null;default:other;index:idx_owner_type,priority:2"                        json:"documentType"`
	Status       Status       `gorm:"size:32;not null;index:idx_owner_status,priority:2;index:idx_status_job"               json:"status"`

	// 每次尝试最多设置一次
	ExternalJobID *string `gorm:"size:255" json:"externalJobId,omitempty"`
	SidecarRef    string  `gorm:"size:1024" json:"sidecarRef,omitempty"`
	FailureReason string  `gorm:"size:255" json:"failureReason,omitempty"`

	Attempt       int    `gorm:"not null;default:1" json:"attempt"`
	Bucket        string `gorm:"size:255"           json:"bucket"`
	ObjectKey     string `gorm:"size:1024"          json:"objectKey"`
	FileName      string `gorm:"size:512"           json:"fileName"`
	ObjectVersion string `gorm:"size:255"           json:"objectVersion,omitempty"`
	ContentType   string `gorm:"size:255"           json:"contentType,omitempty"`
	Size          int64  `json:"size"`

	// 注册外部任务时的认领租约
	ClaimToken   string     `gorm:"size:64" json:"-"`
	ClaimedAt    *time.Time `json:"-"`
	JobStartedAt *time.Time `json:"jobStartedAt,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TableName 表名.
func (DocumentRecord) TableName() string {
	return "documents"
}

// JobID 返回外部任务 id，未设置时为空串.
func (r *DocumentRecord) JobID() string {
	if r.ExternalJobID == nil {
		return ""
	}

	return *r.ExternalJobID
}

// HasJob 是否已注册外部任务.
func (r *DocumentRecord) HasJob() bool {
	return r.JobID() != ""
}

// Ref 返回源对象引用.
func (r *DocumentRecord) Ref() ObjectRef {
	return ObjectRef{
		Bucket:     r.Bucket,
		Key:        r.ObjectKey,
		Version:    r.ObjectVersion,
		OwnerID:    r.OwnerID,
		DocumentID: r.DocumentID,
		Type:       r.DocumentType,
	}
}

// ObjectRef 指向对象存储中的一个源文档.
type ObjectRef struct {
	Bucket     string       `json:"bucket"`
	Key        string       `json:"key"`
	Version    string       `json:"version,omitempty"`
	OwnerID    string       `json:"ownerId"`
	DocumentID string       `json:"documentId"`
	Type       DocumentType `json:"documentType"`
}
