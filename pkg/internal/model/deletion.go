package model

import "time"

// DeletionStatus 级联删除任务状态.
type DeletionStatus string

const (
	DeletionPending   DeletionStatus = "PENDING"
	DeletionPartial   DeletionStatus = "PARTIAL"
	DeletionCompleted DeletionStatus = "COMPLETED"
)

// StepStatus 单个资源类别的删除状态.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepSucceeded StepStatus = "SUCCEEDED"
	StepFailed    StepStatus = "FAILED"
)

// Resource 删除涉及的资源类别.
type Resource string

const (
	ResourceSidecars Resource = "sidecars"
	ResourceObjects  Resource = "objects"
	ResourceRecords  Resource = "records"
)

// DeletionResources 执行顺序；记录最后删除，失败时仍能按记录重试.
var DeletionResources = []Resource{ResourceSidecars, ResourceObjects, ResourceRecords}

// DeletionJob 持久化的级联删除任务，DocumentID 为空表示删除整个 owner.
type DeletionJob struct {
	ID         string         `gorm:"primaryKey;size:26"        json:"deletionId"`
	OwnerID    string         `gorm:"size:128;not null;index"   json:"ownerId"`
	DocumentID string         `gorm:"size:128"                  json:"documentId,omitempty"`
	Status     DeletionStatus `gorm:"size:16;not null;index"    json:"status"`
	Attempts   int            `gorm:"not null;default:0"        json:"attempts"`
	Steps      []DeletionStep `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"steps"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// TableName 表名.
func (DeletionJob) TableName() string {
	return "deletion_jobs"
}

// Step 返回指定资源的步骤.
func (j *DeletionJob) Step(r Resource) *DeletionStep {
	for i := range j.Steps {
		if j.Steps[i].Resource == r {
			return &j.Steps[i]
		}
	}

	return nil
}

// Prefix 返回需要清理的对象键前缀.
func (j *DeletionJob) Prefix() string {
	if j.DocumentID == "" {
		return j.OwnerID + "/"
	}

	return j.OwnerID + "/" + j.DocumentID + "/"
}

// DeletionStep 一个资源类别的执行结果，SUCCEEDED 之后不再重跑.
type DeletionStep struct {
	ID        uint       `gorm:"primaryKey"                                json:"-"`
	JobID     string     `gorm:"size:26;not null;uniqueIndex:idx_job_resource" json:"-"`
	Resource  Resource   `gorm:"size:16;not null;uniqueIndex:idx_job_resource" json:"resource"`
	Status    StepStatus `gorm:"size:16;not null"                          json:"status"`
	Count     int        `json:"count"`
	Error     string     `gorm:"type:text"                                 json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TableName 表名.
func (DeletionStep) TableName() string {
	return "deletion_steps"
}

// Models 返回需要迁移的全部模型.
func Models() []any {
	return []any{&DocumentRecord{}, &DeletionJob{}, &DeletionStep{}}
}
