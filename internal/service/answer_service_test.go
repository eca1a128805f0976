package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuquery-go/internal/model"
	"docuquery-go/internal/vectorstore"
	"docuquery-go/pkg/llm"
)

type fakeNamespaces struct {
	backend string
	err     error
}

func (f *fakeNamespaces) GetOrRegister(namespace, backend string, dims int) (*model.VectorNamespace, error) {
	return &model.VectorNamespace{Namespace: namespace, Backend: backend, Dimensions: dims}, nil
}

func (f *fakeNamespaces) Get(namespace string) (*model.VectorNamespace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.VectorNamespace{Namespace: namespace, Backend: f.backend, Dimensions: 4}, nil
}

type fakeQueryEmbedder struct {
	mu       sync.Mutex
	backends []string
	err      error
}

func (f *fakeQueryEmbedder) EmbedWith(_ context.Context, backend string, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.backends = append(f.backends, backend)
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

type fakeQueryStore struct {
	hits    []vectorstore.Hit
	err     error
	filters []vectorstore.Filter
}

func (f *fakeQueryStore) EnsureIndex(context.Context) error { return nil }

func (f *fakeQueryStore) Upsert(context.Context, []model.ChunkDocument) error { return nil }

func (f *fakeQueryStore) DeleteByDocument(context.Context, string, string) error { return nil }

func (f *fakeQueryStore) Query(_ context.Context, _ []float32, filter vectorstore.Filter, _ int) ([]vectorstore.Hit, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeLLM struct {
	answer    string
	failTimes int
	calls     int
	prompts   [][]llm.Message
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, messages)
	if f.calls <= f.failTimes {
		return "", errors.New("upstream busy")
	}
	return f.answer, nil
}

func (f *fakeLLM) StreamChatMessages(context.Context, []llm.Message, llm.MessageWriter) error {
	return nil
}

func newTestAnswerService(ns *fakeNamespaces, emb *fakeQueryEmbedder, store vectorstore.Store, client *fakeLLM) AnswerService {
	return NewAnswerService(ns, emb, store, client, 5, 8000, 3)
}

func someHits() []vectorstore.Hit {
	return []vectorstore.Hit{
		{DocumentID: "doc-1", FileName: "policy.pdf", ChunkIndex: 3, Text: "The grace period is thirty days.", Score: 0.92},
		{DocumentID: "doc-1", FileName: "policy.pdf", ChunkIndex: 1, Text: "Premiums are due monthly.", Score: 0.81},
	}
}

func TestAskAnswersFromRetrievedContext(t *testing.T) {
	ns := &fakeNamespaces{backend: "openai"}
	emb := &fakeQueryEmbedder{}
	store := &fakeQueryStore{hits: someHits()}
	client := &fakeLLM{answer: "The grace period for premium payment is thirty days."}

	svc := newTestAnswerService(ns, emb, store, client)
	answers := svc.Ask(context.Background(), "user-1", "ns-abc", []string{"What is the grace period?"})

	require.Len(t, answers, 1)
	a := answers[0]
	assert.Empty(t, a.Error)
	assert.Equal(t, "The grace period for premium payment is thirty days.", a.Answer)
	require.Len(t, a.SourcePassages, 2)
	assert.Equal(t, 0.92, a.SourcePassages[0].Score)

	// The question was embedded with the namespace's registered backend
	// and the query was owner-scoped.
	assert.Equal(t, []string{"openai"}, emb.backends)
	require.Len(t, store.filters, 1)
	assert.Equal(t, "user-1", store.filters[0].OwnerID)
	assert.Equal(t, "ns-abc", store.filters[0].Namespace)

	// Retrieved chunk text made it into the prompt.
	require.Len(t, client.prompts, 1)
	user := client.prompts[0][1].Content
	assert.Contains(t, user, "The grace period is thirty days.")
	assert.Contains(t, user, "What is the grace period?")
}

func TestAskDeclinesWithoutHits(t *testing.T) {
	ns := &fakeNamespaces{backend: "openai"}
	emb := &fakeQueryEmbedder{}
	store := &fakeQueryStore{}
	client := &fakeLLM{answer: "should not be called"}

	svc := newTestAnswerService(ns, emb, store, client)
	answers := svc.Ask(context.Background(), "user-1", "ns-abc", []string{"Anything?"})

	require.Len(t, answers, 1)
	assert.Equal(t, declineAnswer, answers[0].Answer)
	assert.Empty(t, answers[0].Error)
	assert.Zero(t, client.calls, "no hits means no LLM call")
}

func TestAskRetriesSynthesis(t *testing.T) {
	ns := &fakeNamespaces{backend: "openai"}
	emb := &fakeQueryEmbedder{}
	store := &fakeQueryStore{hits: someHits()}
	client := &fakeLLM{answer: "recovered answer", failTimes: 2}

	svc := newTestAnswerService(ns, emb, store, client)
	answers := svc.Ask(context.Background(), "user-1", "ns-abc", []string{"q"})

	require.Len(t, answers, 1)
	assert.Equal(t, "recovered answer", answers[0].Answer)
	assert.Equal(t, 3, client.calls)
}

func TestAskSynthesisExhaustionKeepsPassages(t *testing.T) {
	ns := &fakeNamespaces{backend: "openai"}
	emb := &fakeQueryEmbedder{}
	store := &fakeQueryStore{hits: someHits()}
	client := &fakeLLM{failTimes: 10}

	svc := newTestAnswerService(ns, emb, store, client)
	answers := svc.Ask(context.Background(), "user-1", "ns-abc", []string{"q"})

	require.Len(t, answers, 1)
	a := answers[0]
	assert.Empty(t, a.Answer)
	assert.Contains(t, a.Error, model.ErrAnswerGenerationFailed.Error())
	assert.Len(t, a.SourcePassages, 2, "retrieved passages survive a synthesis failure")
}

func TestAskIsolatesPerQuestionFailures(t *testing.T) {
	ns := &fakeNamespaces{backend: "openai"}
	emb := &fakeQueryEmbedder{}
	// First query errors, later ones succeed.
	store := &failOnceStore{hits: someHits()}
	client := &fakeLLM{answer: "fine"}

	svc := newTestAnswerService(ns, emb, store, client)
	answers := svc.Ask(context.Background(), "user-1", "ns-abc", []string{"q1", "q2"})

	require.Len(t, answers, 2)
	failed, ok := 0, 0
	for _, a := range answers {
		if a.Error != "" {
			failed++
		} else {
			ok++
			assert.Equal(t, "fine", a.Answer)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, ok)
}

func TestAskUnknownNamespace(t *testing.T) {
	ns := &fakeNamespaces{err: errors.New("namespace ns-zzz is not registered")}
	emb := &fakeQueryEmbedder{}
	store := &fakeQueryStore{}
	client := &fakeLLM{}

	svc := newTestAnswerService(ns, emb, store, client)
	answers := svc.Ask(context.Background(), "user-1", "ns-zzz", []string{"q"})

	require.Len(t, answers, 1)
	assert.Contains(t, answers[0].Error, model.ErrRetrievalUnavailable.Error())
	assert.Zero(t, client.calls)
}

func TestContextBudgetDropsLowestScoredFirst(t *testing.T) {
	ns := &fakeNamespaces{backend: "openai"}
	emb := &fakeQueryEmbedder{}
	big := strings.Repeat("a", 300)
	store := &fakeQueryStore{hits: []vectorstore.Hit{
		{ChunkIndex: 0, Text: "HIGH " + big, Score: 0.9},
		{ChunkIndex: 1, Text: "MID " + big, Score: 0.8},
		{ChunkIndex: 2, Text: "LOW " + big, Score: 0.7},
	}}
	client := &fakeLLM{answer: "ok"}

	// Budget fits roughly two passages.
	svc := NewAnswerService(ns, emb, store, client, 5, 700, 1)
	svc.Ask(context.Background(), "user-1", "ns-abc", []string{"q"})

	require.Len(t, client.prompts, 1)
	user := client.prompts[0][1].Content
	assert.Contains(t, user, "HIGH")
	assert.Contains(t, user, "MID")
	assert.NotContains(t, user, "LOW")
}

// failOnceStore fails the first Query call and serves hits afterwards.
type failOnceStore struct {
	mu     sync.Mutex
	hits   []vectorstore.Hit
	failed bool
}

func (f *failOnceStore) EnsureIndex(context.Context) error { return nil }

func (f *failOnceStore) Upsert(context.Context, []model.ChunkDocument) error { return nil }

func (f *failOnceStore) DeleteByDocument(context.Context, string, string) error { return nil }

func (f *failOnceStore) Query(context.Context, []float32, vectorstore.Filter, int) ([]vectorstore.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.failed {
		f.failed = true
		return nil, model.ErrRetrievalUnavailable
	}
	return f.hits, nil
}
