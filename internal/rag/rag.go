package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"script-rag/internal/config"
	"script-rag/internal/helper"
	"script-rag/internal/models"
)

// Store is the slice of the vector database the pipeline reads from.
type Store interface {
	Search(ctx context.Context, vector []float32, topK int) ([]models.SearchResult, error)
}

// Embedder turns a query into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a grounded answer from retrieved passages.
type Generator interface {
	Answer(ctx context.Context, question string, passages []string, history []models.ChatTurn) (string, error)
}

// RAG wires retrieval and generation together and owns the in-memory
// conversation history. One instance serves one chat session; nothing
// here is safe for concurrent use.
type RAG struct {
	store    Store
	embedder Embedder
	llm      Generator
	cfg      config.RAGConfig
	history  []models.ChatTurn
}

func NewRAG(store Store, embedder Embedder, llm Generator, cfg *config.RAGConfig) *RAG {
	return &RAG{store: store, embedder: embedder, llm: llm, cfg: *cfg}
}

// Retrieve embeds the question, searches the vector store and reranks
// the hits with the keyword overlap signal. Results come back best
// first; an empty slice means nothing cleared the score threshold.
func (r *RAG) Retrieve(ctx context.Context, question string) ([]models.SearchResult, error) {
	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	results, err := r.store.Search(ctx, vector, r.cfg.TopK)
	if err != nil {
		return nil, err
	}
	rankHybrid(question, results, r.cfg.VectorWeight, r.cfg.KeywordWeight)
	log.Debug().Int("hits", len(results)).Str("question", question).Msg("retrieval done")
	return results, nil
}

// Response is one answered question with the passages it was grounded
// on, in rank order.
type Response struct {
	Question string
	Answer   string
	Sources  []models.SearchResult
}

// Ask runs the full retrieve-then-generate round. When retrieval comes
// back empty the canned no-context reply is returned without calling
// the model, and the exchange is not recorded in the history.
func (r *RAG) Ask(ctx context.Context, question string) (*Response, error) {
	results, err := r.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		log.Info().Str("question", question).Msg("no passages retrieved")
		return &Response{Question: question, Answer: models.NoContextAnswer}, nil
	}

	passages := make([]string, len(results))
	for i, res := range results {
		passages[i] = res.Text
	}
	answer, err := r.llm.Answer(ctx, question, passages, r.history)
	if err != nil {
		return nil, err
	}

	r.history = append(r.history,
		models.ChatTurn{Role: models.RoleUser, Content: question},
		models.ChatTurn{Role: models.RoleAssistant, Content: answer},
	)
	return &Response{Question: question, Answer: answer, Sources: results}, nil
}

// History returns a copy of the conversation so far.
func (r *RAG) History() []models.ChatTurn {
	out := make([]models.ChatTurn, len(r.history))
	copy(out, r.history)
	return out
}

// ClearHistory forgets the conversation.
func (r *RAG) ClearHistory() {
	r.history = nil
}

// Records pairs chunks with their vectors and stamps the upload
// metadata, producing the points to store. Each record gets a fresh
// random UUID so re-uploading the same document never overwrites
// existing points.
func Records(chunks []models.Chunk, vectors [][]float32, sourceFile string) ([]models.StoredRecord, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%d chunks but %d vectors: %w", len(chunks), len(vectors), models.ErrStore)
	}

	uploadTime := time.Now().Format(time.RFC3339)
	records := make([]models.StoredRecord, len(chunks))
	for i, chunk := range chunks {
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, fmt.Errorf("record id: %v: %w", err, models.ErrStore)
		}
		records[i] = models.StoredRecord{
			ID:     id,
			Vector: vectors[i],
			Text:   chunk.Text,
			Metadata: map[string]any{
				"text_length": len([]rune(chunk.Text)),
				"chunk_index": chunk.Index,
				"source_file": sourceFile,
				"upload_time": uploadTime,
			},
		}
	}
	return records, nil
}
