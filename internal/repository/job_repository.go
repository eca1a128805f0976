// Package repository persists ingestion state in MySQL and tracks
// transient coordination state in Redis.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"docuquery-go/internal/model"
)

// JobRepository stores ingestion job rows and the Redis coordination
// keys around them: the per-document submission lock and the consumer
// attempt counter.
type JobRepository interface {
	Create(job *model.IngestionJob) error
	GetByJobID(jobID string) (*model.IngestionJob, error)
	GetByDocumentID(documentID string) (*model.IngestionJob, error)
	FindActiveByDocument(documentID string) (*model.IngestionJob, error)
	MarkProcessing(jobID string) error
	MarkCompleted(jobID string, chunkCount int) error
	MarkFailed(jobID string, errMsg string) error

	AcquireSubmitLock(ctx context.Context, documentID string, ttl time.Duration) (bool, error)
	ReleaseSubmitLock(ctx context.Context, documentID string) error
	IncrAttempts(ctx context.Context, documentID string) (int64, error)
	ClearAttempts(ctx context.Context, documentID string) error
}

type jobRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewJobRepository creates a JobRepository backed by GORM and Redis.
func NewJobRepository(db *gorm.DB, redisClient *redis.Client) JobRepository {
	return &jobRepository{db: db, redisClient: redisClient}
}

func submitLockKey(documentID string) string {
	return "ingest:lock:" + documentID
}

func attemptsKey(documentID string) string {
	return "ingest:attempts:" + documentID
}

func (r *jobRepository) Create(job *model.IngestionJob) error {
	return r.db.Create(job).Error
}

func (r *jobRepository) GetByJobID(jobID string) (*model.IngestionJob, error) {
	var job model.IngestionJob
	err := r.db.Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetByDocumentID returns the most recent job for a document.
func (r *jobRepository) GetByDocumentID(documentID string) (*model.IngestionJob, error) {
	var job model.IngestionJob
	err := r.db.Where("document_id = ?", documentID).Order("id DESC").First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindActiveByDocument returns a pending or processing job for the
// document, or ErrJobNotFound when every job is terminal.
func (r *jobRepository) FindActiveByDocument(documentID string) (*model.IngestionJob, error) {
	var job model.IngestionJob
	err := r.db.
		Where("document_id = ? AND status IN ?", documentID, []string{model.JobStatusPending, model.JobStatusProcessing}).
		Order("id DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing moves a pending job to processing and stamps the start
// time. The status guard keeps a redelivered message from resurrecting
// a terminal job.
func (r *jobRepository) MarkProcessing(jobID string) error {
	now := time.Now()
	return r.db.Model(&model.IngestionJob{}).
		Where("job_id = ? AND status = ?", jobID, model.JobStatusPending).
		Updates(map[string]any{"status": model.JobStatusProcessing, "started_at": &now}).Error
}

func (r *jobRepository) MarkCompleted(jobID string, chunkCount int) error {
	now := time.Now()
	return r.db.Model(&model.IngestionJob{}).
		Where("job_id = ? AND status = ?", jobID, model.JobStatusProcessing).
		Updates(map[string]any{
			"status":      model.JobStatusCompleted,
			"chunk_count": chunkCount,
			"finished_at": &now,
		}).Error
}

func (r *jobRepository) MarkFailed(jobID string, errMsg string) error {
	now := time.Now()
	return r.db.Model(&model.IngestionJob{}).
		Where("job_id = ? AND status IN ?", jobID, []string{model.JobStatusPending, model.JobStatusProcessing}).
		Updates(map[string]any{
			"status":      model.JobStatusFailed,
			"error":       errMsg,
			"finished_at": &now,
		}).Error
}

// AcquireSubmitLock takes the per-document submission lock with SET NX.
// A false return means another submission for the same document is in
// flight and the caller should coalesce onto it.
func (r *jobRepository) AcquireSubmitLock(ctx context.Context, documentID string, ttl time.Duration) (bool, error) {
	ok, err := r.redisClient.SetNX(ctx, submitLockKey(documentID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire submit lock: %w", err)
	}
	return ok, nil
}

func (r *jobRepository) ReleaseSubmitLock(ctx context.Context, documentID string) error {
	return r.redisClient.Del(ctx, submitLockKey(documentID)).Err()
}

// IncrAttempts bumps the delivery counter for a document and returns
// the new value. The key expires on its own so a stuck counter cannot
// block re-ingestion forever.
func (r *jobRepository) IncrAttempts(ctx context.Context, documentID string) (int64, error) {
	key := attemptsKey(documentID)
	attempts, err := r.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	if attempts == 1 {
		_ = r.redisClient.Expire(ctx, key, 24*time.Hour).Err()
	}
	return attempts, nil
}

func (r *jobRepository) ClearAttempts(ctx context.Context, documentID string) error {
	return r.redisClient.Del(ctx, attemptsKey(documentID)).Err()
}
