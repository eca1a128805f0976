// Package service implements the ingestion and question-answering use
// cases on top of the pipeline, repositories and vector store.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"docuquery-go/internal/extractor"
	"docuquery-go/internal/model"
	"docuquery-go/internal/repository"
	"docuquery-go/pkg/log"
	"docuquery-go/pkg/tasks"
)

// submitLockTTL bounds how long a crashed consumer can block
// re-submission of the same document.
const submitLockTTL = 30 * time.Minute

// TaskPublisher enqueues ingestion tasks for background processing.
type TaskPublisher interface {
	Publish(ctx context.Context, task tasks.IngestionTask) error
}

// SubmitRequest references a document that the upload service has
// already placed in object storage.
type SubmitRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	ObjectName string `json:"object_name" binding:"required"`
	FileName   string `json:"filename" binding:"required"`
	Namespace  string `json:"namespace"`
}

// IngestionService accepts ingestion submissions and reports job status.
type IngestionService interface {
	// Submit records a pending job for the referenced document and
	// enqueues the ingestion task. Submitting a document that already
	// has an active job returns that job and ErrJobAlreadyActive.
	Submit(ctx context.Context, ownerID string, req SubmitRequest) (*model.IngestionJob, error)
	// Status returns the latest job for the document, owner-scoped.
	Status(ctx context.Context, ownerID, documentID string) (*model.IngestionJob, error)
}

type ingestionService struct {
	jobs      repository.JobRepository
	publisher TaskPublisher
}

// NewIngestionService wires the submission flow.
func NewIngestionService(jobs repository.JobRepository, publisher TaskPublisher) IngestionService {
	return &ingestionService{jobs: jobs, publisher: publisher}
}

func (s *ingestionService) Submit(ctx context.Context, ownerID string, req SubmitRequest) (*model.IngestionJob, error) {
	if extractor.DetectType(req.FileName) == "" {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedFileType, filepath.Ext(req.FileName))
	}

	if job, err := s.jobs.FindActiveByDocument(req.DocumentID); err == nil {
		log.Infof("[IngestionService] document %s already has active job %s", req.DocumentID, job.JobID)
		return job, model.ErrJobAlreadyActive
	} else if !errors.Is(err, model.ErrJobNotFound) {
		return nil, err
	}

	// The lock closes the race between two submissions that both saw no
	// active job.
	acquired, err := s.jobs.AcquireSubmitLock(ctx, req.DocumentID, submitLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		if job, err := s.jobs.GetByDocumentID(req.DocumentID); err == nil && !job.Terminal() {
			return job, model.ErrJobAlreadyActive
		}
		return nil, model.ErrJobAlreadyActive
	}

	namespace := req.Namespace
	if namespace == "" {
		namespace = newNamespace()
	}

	job := &model.IngestionJob{
		JobID:      uuid.New().String(),
		DocumentID: req.DocumentID,
		OwnerID:    ownerID,
		FileName:   req.FileName,
		ObjectName: req.ObjectName,
		Namespace:  namespace,
		Status:     model.JobStatusPending,
	}
	if err := s.jobs.Create(job); err != nil {
		_ = s.jobs.ReleaseSubmitLock(ctx, req.DocumentID)
		return nil, fmt.Errorf("create job record: %w", err)
	}

	task := tasks.IngestionTask{
		JobID:      job.JobID,
		DocumentID: job.DocumentID,
		OwnerID:    job.OwnerID,
		FileName:   job.FileName,
		ObjectName: job.ObjectName,
		Namespace:  job.Namespace,
	}
	if err := s.publisher.Publish(ctx, task); err != nil {
		_ = s.jobs.MarkFailed(job.JobID, "enqueue failed: "+err.Error())
		_ = s.jobs.ReleaseSubmitLock(ctx, req.DocumentID)
		return nil, fmt.Errorf("enqueue ingestion task: %w", err)
	}

	log.Infof("[IngestionService] job %s submitted, document: %s, namespace: %s", job.JobID, job.DocumentID, job.Namespace)
	return job, nil
}

func (s *ingestionService) Status(ctx context.Context, ownerID, documentID string) (*model.IngestionJob, error) {
	job, err := s.jobs.GetByDocumentID(documentID)
	if err != nil {
		return nil, err
	}
	// Owner scoping: someone else's document looks like no document.
	if job.OwnerID != ownerID {
		return nil, model.ErrJobNotFound
	}
	return job, nil
}

// newNamespace mints a fresh namespace label.
func newNamespace() string {
	return "ns-" + uuid.New().String()[:8]
}
