// Package kafka carries ingestion tasks between the API and the
// background pipeline.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"docuquery-go/internal/config"
	"docuquery-go/internal/model"
	"docuquery-go/internal/repository"
	"docuquery-go/pkg/log"
	"docuquery-go/pkg/tasks"
)

// TaskProcessor runs one ingestion task end to end. It decouples the
// consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestionTask) error
}

// Producer publishes ingestion tasks.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Kafka producer for the ingestion topic.
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish enqueues one ingestion task, keyed by document id so retries
// of the same document stay ordered within a partition.
func (p *Producer) Publish(ctx context.Context, task tasks.IngestionTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer pulls ingestion tasks and drives the pipeline with manual
// offset commits. A committed offset means the task is settled: either
// done, or failed for good.
type Consumer struct {
	reader      *kafka.Reader
	processor   TaskProcessor
	jobs        repository.JobRepository
	maxAttempts int64
	taskTimeout time.Duration
}

// NewConsumer creates a consumer for the ingestion topic. taskTimeout
// bounds one processing attempt; zero means no bound.
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, jobs repository.JobRepository, maxAttempts int, taskTimeout time.Duration) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  []string{cfg.Brokers},
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		processor:   processor,
		jobs:        jobs,
		maxAttempts: int64(maxAttempts),
		taskTimeout: taskTimeout,
	}
}

// Run consumes until ctx is cancelled.
//
// Failure handling: a fatal error (bad input, wrong file type, empty
// text) fails the job immediately and commits. A transient error leaves
// the offset uncommitted so Kafka redelivers, with a Redis counter
// capping redelivery at maxAttempts before the job is failed and the
// offset committed.
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("[Consumer] listening on topic '%s'", c.reader.Config().Topic)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Errorf("[Consumer] fetch message failed: %v", err)
			break
		}

		var task tasks.IngestionTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("[Consumer] unparseable message at offset %d: %v", m.Offset, err)
			c.commit(ctx, m)
			continue
		}

		log.Infof("[Consumer] processing task, job: %s, document: %s, offset: %d", task.JobID, task.DocumentID, m.Offset)
		if err := c.process(ctx, task); err != nil {
			c.handleFailure(ctx, m, task, err)
			continue
		}

		_ = c.jobs.ClearAttempts(ctx, task.DocumentID)
		_ = c.jobs.ReleaseSubmitLock(ctx, task.DocumentID)
		c.commit(ctx, m)
		log.Infof("[Consumer] task done, job: %s", task.JobID)
	}
	return c.reader.Close()
}

func (c *Consumer) process(ctx context.Context, task tasks.IngestionTask) error {
	if c.taskTimeout > 0 {
		taskCtx, cancel := context.WithTimeout(ctx, c.taskTimeout)
		defer cancel()
		return c.processor.Process(taskCtx, task)
	}
	return c.processor.Process(ctx, task)
}

func (c *Consumer) handleFailure(ctx context.Context, m kafka.Message, task tasks.IngestionTask, procErr error) {
	if model.IsFatalIngestionError(procErr) {
		log.Errorf("[Consumer] fatal task failure, job: %s: %v", task.JobID, procErr)
		c.settleFailed(ctx, m, task, procErr)
		return
	}

	attempts, err := c.jobs.IncrAttempts(ctx, task.DocumentID)
	if err != nil {
		// With Redis down the safe move is to let Kafka redeliver.
		log.Errorf("[Consumer] attempt counter unavailable, leaving offset uncommitted: %v", err)
		return
	}
	if attempts >= c.maxAttempts {
		log.Errorf("[Consumer] task failed %d times, giving up, job: %s: %v", attempts, task.JobID, procErr)
		c.settleFailed(ctx, m, task, procErr)
		return
	}
	log.Warnf("[Consumer] transient task failure (attempt %d/%d), job: %s: %v", attempts, c.maxAttempts, task.JobID, procErr)
}

// settleFailed marks the job failed and commits the offset so the task
// is never redelivered.
func (c *Consumer) settleFailed(ctx context.Context, m kafka.Message, task tasks.IngestionTask, procErr error) {
	if err := c.jobs.MarkFailed(task.JobID, procErr.Error()); err != nil {
		log.Errorf("[Consumer] mark job failed errored, job: %s: %v", task.JobID, err)
	}
	_ = c.jobs.ClearAttempts(ctx, task.DocumentID)
	_ = c.jobs.ReleaseSubmitLock(ctx, task.DocumentID)
	c.commit(ctx, m)
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("[Consumer] commit offset failed: %v", err)
	}
}
