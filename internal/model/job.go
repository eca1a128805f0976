package model

import "time"

// Ingestion job states. Transitions are monotonic forward:
// pending -> processing -> completed, or processing -> failed.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// IngestionJob is the ORM model for the ingestion_jobs table. One row
// tracks the embedding status of one submitted document.
type IngestionJob struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID      string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"jobId"`
	DocumentID string     `gorm:"type:varchar(64);not null;index" json:"documentId"`
	OwnerID    string     `gorm:"type:varchar(64);not null;index" json:"ownerId"`
	FileName   string     `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName string     `gorm:"type:varchar(512);not null" json:"objectName"`
	Namespace  string     `gorm:"type:varchar(64);not null" json:"namespace"`
	Status     string     `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	ChunkCount int        `gorm:"not null;default:0" json:"chunkCount"`
	Error      string     `gorm:"type:varchar(1024)" json:"error,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	StartedAt  *time.Time `gorm:"default:null" json:"startedAt,omitempty"`
	FinishedAt *time.Time `gorm:"default:null" json:"finishedAt,omitempty"`
}

// TableName sets the table name for the IngestionJob model.
func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// Terminal reports whether the job has reached a final state.
func (j *IngestionJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
