package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuquery-go/internal/model"
	"docuquery-go/pkg/tasks"
)

type fakeJobRepo struct {
	created    []*model.IngestionJob
	active     *model.IngestionJob
	latest     *model.IngestionJob
	lockTaken  bool
	lockDenied bool
	released   []string
	failed     map[string]string
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{failed: map[string]string{}}
}

func (f *fakeJobRepo) Create(job *model.IngestionJob) error {
	f.created = append(f.created, job)
	return nil
}

func (f *fakeJobRepo) GetByJobID(string) (*model.IngestionJob, error) {
	return nil, model.ErrJobNotFound
}

func (f *fakeJobRepo) GetByDocumentID(string) (*model.IngestionJob, error) {
	if f.latest == nil {
		return nil, model.ErrJobNotFound
	}
	return f.latest, nil
}

func (f *fakeJobRepo) FindActiveByDocument(string) (*model.IngestionJob, error) {
	if f.active == nil {
		return nil, model.ErrJobNotFound
	}
	return f.active, nil
}

func (f *fakeJobRepo) MarkProcessing(string) error { return nil }

func (f *fakeJobRepo) MarkCompleted(string, int) error { return nil }

func (f *fakeJobRepo) MarkFailed(jobID string, errMsg string) error {
	f.failed[jobID] = errMsg
	return nil
}

func (f *fakeJobRepo) AcquireSubmitLock(context.Context, string, time.Duration) (bool, error) {
	if f.lockDenied {
		return false, nil
	}
	f.lockTaken = true
	return true, nil
}

func (f *fakeJobRepo) ReleaseSubmitLock(_ context.Context, documentID string) error {
	f.released = append(f.released, documentID)
	return nil
}

func (f *fakeJobRepo) IncrAttempts(context.Context, string) (int64, error) { return 1, nil }

func (f *fakeJobRepo) ClearAttempts(context.Context, string) error { return nil }

type fakePublisher struct {
	published []tasks.IngestionTask
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, task tasks.IngestionTask) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, task)
	return nil
}

func submitRequest() SubmitRequest {
	return SubmitRequest{
		DocumentID: "doc-1",
		ObjectName: "documents/doc-1/policy.pdf",
		FileName:   "policy.pdf",
	}
}

func TestSubmitCreatesJobAndPublishesTask(t *testing.T) {
	jobs := newFakeJobRepo()
	publisher := &fakePublisher{}
	svc := NewIngestionService(jobs, publisher)

	job, err := svc.Submit(context.Background(), "user-1", submitRequest())
	require.NoError(t, err)

	assert.Equal(t, "doc-1", job.DocumentID)
	assert.Equal(t, "user-1", job.OwnerID)
	assert.Equal(t, "documents/doc-1/policy.pdf", job.ObjectName)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.NotEmpty(t, job.JobID)
	assert.True(t, len(job.Namespace) > 3 && job.Namespace[:3] == "ns-")

	require.Len(t, jobs.created, 1)
	require.Len(t, publisher.published, 1)
	task := publisher.published[0]
	assert.Equal(t, job.JobID, task.JobID)
	assert.Equal(t, job.DocumentID, task.DocumentID)
	assert.Equal(t, job.ObjectName, task.ObjectName)
	assert.Equal(t, job.Namespace, task.Namespace)
}

func TestSubmitHonorsCallerNamespace(t *testing.T) {
	jobs := newFakeJobRepo()
	svc := NewIngestionService(jobs, &fakePublisher{})

	req := submitRequest()
	req.Namespace = "ns-batch42"
	job, err := svc.Submit(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, "ns-batch42", job.Namespace)
}

func TestSubmitRejectsUnsupportedType(t *testing.T) {
	jobs := newFakeJobRepo()
	svc := NewIngestionService(jobs, &fakePublisher{})

	req := submitRequest()
	req.FileName = "notes.txt"
	_, err := svc.Submit(context.Background(), "user-1", req)
	require.ErrorIs(t, err, model.ErrUnsupportedFileType)
	assert.Empty(t, jobs.created, "no job is recorded for a rejected type")
}

func TestSubmitCoalescesOntoActiveJob(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.active = &model.IngestionJob{JobID: "existing", Status: model.JobStatusProcessing}
	publisher := &fakePublisher{}
	svc := NewIngestionService(jobs, publisher)

	job, err := svc.Submit(context.Background(), "user-1", submitRequest())
	require.ErrorIs(t, err, model.ErrJobAlreadyActive)
	require.NotNil(t, job)
	assert.Equal(t, "existing", job.JobID)
	assert.Empty(t, publisher.published, "no duplicate task is enqueued")
}

func TestSubmitLockContention(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.lockDenied = true
	jobs.latest = &model.IngestionJob{JobID: "racing", Status: model.JobStatusPending}
	svc := NewIngestionService(jobs, &fakePublisher{})

	job, err := svc.Submit(context.Background(), "user-1", submitRequest())
	require.ErrorIs(t, err, model.ErrJobAlreadyActive)
	require.NotNil(t, job)
	assert.Equal(t, "racing", job.JobID)
}

func TestSubmitPublishFailureFailsJobAndReleasesLock(t *testing.T) {
	jobs := newFakeJobRepo()
	publisher := &fakePublisher{err: errors.New("broker down")}
	svc := NewIngestionService(jobs, publisher)

	_, err := svc.Submit(context.Background(), "user-1", submitRequest())
	require.Error(t, err)

	require.Len(t, jobs.created, 1)
	assert.Contains(t, jobs.failed, jobs.created[0].JobID)
	assert.NotEmpty(t, jobs.released)
}

func TestStatusIsOwnerScoped(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.latest = &model.IngestionJob{JobID: "j", DocumentID: "d", OwnerID: "user-1", Status: model.JobStatusCompleted}
	svc := NewIngestionService(jobs, &fakePublisher{})

	job, err := svc.Status(context.Background(), "user-1", "d")
	require.NoError(t, err)
	assert.Equal(t, "j", job.JobID)

	_, err = svc.Status(context.Background(), "user-2", "d")
	require.ErrorIs(t, err, model.ErrJobNotFound)
}
