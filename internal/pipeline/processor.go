// Package pipeline runs the document ingestion pipeline: fetch,
// extract, chunk, embed, index.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"docuquery-go/internal/chunker"
	"docuquery-go/internal/extractor"
	"docuquery-go/internal/model"
	"docuquery-go/internal/repository"
	"docuquery-go/internal/vectorstore"
	"docuquery-go/pkg/log"
	"docuquery-go/pkg/storage"
	"docuquery-go/pkg/tasks"
)

// Embedder is the embedding contract the pipeline needs: a fallback
// batch call for ingestion and a pinned call for follow-up batches of
// the same document.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, string, error)
	EmbedWith(ctx context.Context, backend string, texts []string) ([][]float32, error)
	Dimensions() int
}

// Processor executes ingestion tasks. One task, one document, processed
// sequentially chunk batch by chunk batch.
type Processor struct {
	fetcher    storage.ObjectFetcher
	extractors *extractor.Registry
	splitter   *chunker.Splitter
	embedder   Embedder
	store      vectorstore.Store
	jobs       repository.JobRepository
	namespaces repository.NamespaceRepository
	batchSize  int
}

// NewProcessor wires the pipeline.
func NewProcessor(
	fetcher storage.ObjectFetcher,
	extractors *extractor.Registry,
	splitter *chunker.Splitter,
	embedder Embedder,
	store vectorstore.Store,
	jobs repository.JobRepository,
	namespaces repository.NamespaceRepository,
	batchSize int,
) *Processor {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Processor{
		fetcher:    fetcher,
		extractors: extractors,
		splitter:   splitter,
		embedder:   embedder,
		store:      store,
		jobs:       jobs,
		namespaces: namespaces,
		batchSize:  batchSize,
	}
}

// Process runs one ingestion task to completion. On failure every
// already-written vector of the document is removed before the error is
// returned, so the index never serves a half-ingested document.
func (p *Processor) Process(ctx context.Context, task tasks.IngestionTask) error {
	if err := p.jobs.MarkProcessing(task.JobID); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	if err := p.run(ctx, task); err != nil {
		if cleanupErr := p.store.DeleteByDocument(ctx, task.Namespace, task.DocumentID); cleanupErr != nil {
			log.Errorf("[Processor] cleanup after failure errored, document: %s: %v", task.DocumentID, cleanupErr)
		}
		return err
	}
	return nil
}

func (p *Processor) run(ctx context.Context, task tasks.IngestionTask) error {
	log.Infof("[Processor] step 1: fetching object, document: %s, object: %s", task.DocumentID, task.ObjectName)
	data, err := p.fetcher.Fetch(ctx, task.ObjectName)
	if err != nil {
		return fmt.Errorf("fetch object: %w", err)
	}

	log.Infof("[Processor] step 2: extracting text, file: %s", task.FileName)
	text, err := p.extractors.Extract(ctx, task.FileName, data)
	if err != nil {
		return err
	}

	log.Infof("[Processor] step 3: chunking text, length: %d", len(text))
	pieces := p.splitter.Split(text)
	if len(pieces) == 0 {
		return fmt.Errorf("%w: %s produced no chunks", model.ErrEmptyDocument, task.FileName)
	}
	log.Infof("[Processor] step 3: produced %d chunks", len(pieces))

	log.Infof("[Processor] step 4: embedding and indexing, batch size: %d", p.batchSize)
	uploadedAt := time.Now()
	backend := ""
	for start := 0; start < len(pieces); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		var vectors [][]float32
		if backend == "" {
			// The first batch picks the backend; later batches are
			// pinned to it so one document never mixes embedding spaces.
			vectors, backend, err = p.embedder.EmbedBatch(ctx, batch)
			if err != nil {
				return err
			}
			if _, err := p.namespaces.GetOrRegister(task.Namespace, backend, p.embedder.Dimensions()); err != nil {
				return err
			}
		} else {
			vectors, err = p.embedder.EmbedWith(ctx, backend, batch)
			if err != nil {
				return err
			}
		}

		docs := make([]model.ChunkDocument, len(batch))
		for i, piece := range batch {
			idx := start + i
			docs[i] = model.ChunkDocument{
				VectorID:       model.VectorRecordID(task.DocumentID, idx),
				Namespace:      task.Namespace,
				OwnerID:        task.OwnerID,
				DocumentID:     task.DocumentID,
				FileName:       task.FileName,
				ChunkIndex:     idx,
				TotalChunks:    len(pieces),
				UploadedAt:     uploadedAt,
				TextContent:    piece,
				ContentPreview: model.Preview(piece),
				Vector:         vectors[i],
				Backend:        backend,
			}
		}
		if err := p.store.Upsert(ctx, docs); err != nil {
			return err
		}
		log.Infof("[Processor] step 4: indexed chunks %d-%d of %d", start, end-1, len(pieces))
	}

	log.Infof("[Processor] step 5: marking job completed, job: %s, chunks: %d", task.JobID, len(pieces))
	if err := p.jobs.MarkCompleted(task.JobID, len(pieces)); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return nil
}
