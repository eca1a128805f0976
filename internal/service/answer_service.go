package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"docuquery-go/internal/model"
	"docuquery-go/internal/repository"
	"docuquery-go/internal/retry"
	"docuquery-go/internal/vectorstore"
	"docuquery-go/pkg/llm"
	"docuquery-go/pkg/log"
)

// declineAnswer is returned verbatim when retrieval finds nothing
// usable for the question.
const declineAnswer = "No relevant information found in the document."

const systemPrompt = `You are an expert insurance policy analyst. Your job is to provide ACCURATE and SPECIFIC answers based ONLY on the provided context.

Requirements:
1. Extract EXACT information from the provided context that directly answers the user's question.
2. Provide SPECIFIC details with exact numbers, dates, amounts, and conditions.
3. Be PRECISE. Avoid vague or generic statements.
4. Search thoroughly. Relevant information may be mentioned in passing or in different sections.
5. Write clean, direct answers without unnecessary formatting.
6. Do NOT mention chunk numbers or section references in your answer.
7. If the context does not contain the answer, reply exactly: "` + declineAnswer + `"

Answer quality standards:
- Start with a direct answer to the question.
- Include specific numbers, dates, and amounts when available.
- If information is incomplete, state what is missing.
- Focus only on the information that directly answers the question.`

// QueryEmbedder embeds question text with a pinned backend.
type QueryEmbedder interface {
	EmbedWith(ctx context.Context, backend string, texts []string) ([][]float32, error)
}

// AnswerService answers questions against an ingested namespace.
type AnswerService interface {
	// Ask answers each question independently. A failure on one
	// question is reported in its slot and never affects the others.
	Ask(ctx context.Context, ownerID, namespace string, questions []string) []model.QuestionAnswer
	// AskStream answers one question with the response streamed chunk
	// by chunk into writer.
	AskStream(ctx context.Context, ownerID, namespace, question string, writer llm.MessageWriter) error
}

type answerService struct {
	namespaces      repository.NamespaceRepository
	embedder        QueryEmbedder
	store           vectorstore.Store
	llmClient       llm.Client
	topK            int
	maxContextChars int
	llmPolicy       retry.Policy
}

// NewAnswerService wires the retrieval and synthesis flow.
func NewAnswerService(
	namespaces repository.NamespaceRepository,
	embedder QueryEmbedder,
	store vectorstore.Store,
	llmClient llm.Client,
	topK int,
	maxContextChars int,
	llmMaxRetries int,
) AnswerService {
	if topK <= 0 {
		topK = 5
	}
	if maxContextChars <= 0 {
		maxContextChars = 8000
	}
	policy := retry.DefaultPolicy
	if llmMaxRetries > 0 {
		policy.MaxAttempts = llmMaxRetries
	}
	return &answerService{
		namespaces:      namespaces,
		embedder:        embedder,
		store:           store,
		llmClient:       llmClient,
		topK:            topK,
		maxContextChars: maxContextChars,
		llmPolicy:       policy,
	}
}

func (s *answerService) Ask(ctx context.Context, ownerID, namespace string, questions []string) []model.QuestionAnswer {
	answers := make([]model.QuestionAnswer, len(questions))

	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		go func(i int, question string) {
			defer wg.Done()
			answers[i] = s.answerOne(ctx, ownerID, namespace, question)
		}(i, q)
	}
	wg.Wait()
	return answers
}

func (s *answerService) answerOne(ctx context.Context, ownerID, namespace, question string) model.QuestionAnswer {
	result := model.QuestionAnswer{Question: question}

	passages, err := s.retrieve(ctx, ownerID, namespace, question)
	if err != nil {
		log.Errorf("[AnswerService] retrieval failed, question: %q: %v", question, err)
		result.Error = err.Error()
		return result
	}
	result.SourcePassages = passages

	if len(passages) == 0 {
		result.Answer = declineAnswer
		return result
	}

	answer, err := s.synthesize(ctx, question, passages)
	if err != nil {
		log.Errorf("[AnswerService] synthesis failed, question: %q: %v", question, err)
		// Passages stay in the result so the caller still sees what was
		// retrieved.
		result.Error = fmt.Errorf("%w: %v", model.ErrAnswerGenerationFailed, err).Error()
		return result
	}
	result.Answer = answer
	return result
}

func (s *answerService) AskStream(ctx context.Context, ownerID, namespace, question string, writer llm.MessageWriter) error {
	passages, err := s.retrieve(ctx, ownerID, namespace, question)
	if err != nil {
		return err
	}
	if len(passages) == 0 {
		return writer.WriteMessage(websocket.TextMessage, []byte(declineAnswer))
	}
	return s.llmClient.StreamChatMessages(ctx, s.buildMessages(question, passages), writer)
}

// retrieve embeds the question with the namespace's registered backend
// and runs an owner-scoped similarity query.
func (s *answerService) retrieve(ctx context.Context, ownerID, namespace, question string) ([]model.SourcePassage, error) {
	ns, err := s.namespaces.Get(namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRetrievalUnavailable, err)
	}

	log.Infof("[AnswerService] step 1: embedding question, backend: %s", ns.Backend)
	vectors, err := s.embedder.EmbedWith(ctx, ns.Backend, []string{question})
	if err != nil {
		return nil, err
	}

	log.Infof("[AnswerService] step 2: querying vector store, namespace: %s, k: %d", namespace, s.topK)
	hits, err := s.store.Query(ctx, vectors[0], vectorstore.Filter{
		Namespace: namespace,
		OwnerID:   ownerID,
	}, s.topK)
	if err != nil {
		return nil, err
	}

	passages := make([]model.SourcePassage, len(hits))
	for i, h := range hits {
		passages[i] = model.SourcePassage{
			DocumentID: h.DocumentID,
			FileName:   h.FileName,
			ChunkIndex: h.ChunkIndex,
			Content:    h.Text,
			Score:      h.Score,
		}
	}
	return passages, nil
}

func (s *answerService) synthesize(ctx context.Context, question string, passages []model.SourcePassage) (string, error) {
	messages := s.buildMessages(question, passages)

	var answer string
	err := retry.Do(ctx, s.llmPolicy, func(error) bool { return true }, func() error {
		var completeErr error
		answer, completeErr = s.llmClient.Complete(ctx, messages)
		return completeErr
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

// buildMessages assembles the prompt. Passages arrive ordered by score
// descending; the character budget drops the lowest-scoring passages
// first.
func (s *answerService) buildMessages(question string, passages []model.SourcePassage) []llm.Message {
	var contextBuilder strings.Builder
	used := 0
	for i, p := range passages {
		entry := fmt.Sprintf("Chunk %d (similarity: %.3f):\n%s\n\n", i+1, p.Score, p.Content)
		if used+len(entry) > s.maxContextChars && used > 0 {
			break
		}
		contextBuilder.WriteString(entry)
		used += len(entry)
	}

	userPrompt := fmt.Sprintf("Context:\n%s\nQuestion:\n%s", contextBuilder.String(), question)
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
}
