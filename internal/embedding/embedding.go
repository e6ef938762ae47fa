package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"script-rag/internal/config"
	"script-rag/internal/models"
)

// Embedder turns text into fixed-length vectors using a pre-trained
// sentence-embedding model. The backend client is created lazily on
// first use, exactly once; Close releases it at shutdown. Construct
// one in main and pass it down, it is not a package-level singleton.
type Embedder struct {
	cfg config.EmbeddingConfig

	once   sync.Once
	impl   *embeddings.EmbedderImpl
	err    error
	closed bool
}

// New builds an Embedder from the embedding config section. No model
// connection is made until the first Embed call.
func New(cfg *config.EmbeddingConfig) *Embedder {
	return &Embedder{cfg: *cfg}
}

func (e *Embedder) init() {
	log.Debug().
		Str("backend", e.cfg.Backend).
		Str("base_url", e.cfg.BaseURL).
		Str("model", e.cfg.Model).
		Msg("initializing embedding model")

	client, err := e.newClient()
	if err != nil {
		e.err = fmt.Errorf("init %s backend: %v: %w", e.cfg.Backend, err, models.ErrEmbedding)
		return
	}
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		e.err = fmt.Errorf("create embedder: %v: %w", err, models.ErrEmbedding)
		return
	}
	e.impl = embedder
	log.Info().Str("model", e.cfg.Model).Int("dim", e.cfg.VectorDim).Msg("embedding model ready")
}

func (e *Embedder) newClient() (embeddings.EmbedderClient, error) {
	switch e.cfg.Backend {
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(e.cfg.BaseURL),
			ollama.WithModel(e.cfg.Model),
		)
	case "openai":
		return openai.New(
			openai.WithBaseURL(e.cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(e.cfg.APIKey, "Bearer ")),
			openai.WithModel(e.cfg.Model),
			openai.WithEmbeddingModel(e.cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unknown backend %q", e.cfg.Backend)
	}
}

func (e *Embedder) client() (*embeddings.EmbedderImpl, error) {
	if e.closed {
		return nil, fmt.Errorf("embedder is closed: %w", models.ErrEmbedding)
	}
	e.once.Do(e.init)
	return e.impl, e.err
}

// EmbedDocuments embeds a batch of chunk texts, one vector per input,
// in input order. Identical text yields identical vectors for a fixed
// model version.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed: %w", models.ErrEmbedding)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("text %d is empty: %w", i, models.ErrEmbedding)
		}
	}
	impl, err := e.client()
	if err != nil {
		return nil, err
	}

	vectors, err := impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d documents: %v: %w", len(texts), err, models.ErrEmbedding)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedded %d documents but got %d vectors: %w", len(texts), len(vectors), models.ErrEmbedding)
	}
	for i, vec := range vectors {
		if err := e.Validate(vec); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
	}
	log.Debug().Int("count", len(vectors)).Msg("documents embedded")
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("query text is empty: %w", models.ErrEmbedding)
	}
	impl, err := e.client()
	if err != nil {
		return nil, err
	}

	vector, err := impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %v: %w", err, models.ErrEmbedding)
	}
	if err := e.Validate(vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// Dimension is the fixed output size every produced vector must have.
func (e *Embedder) Dimension() int {
	return e.cfg.VectorDim
}

// Validate checks a vector for the expected dimension and finite values.
func (e *Embedder) Validate(vec []float32) error {
	if len(vec) != e.cfg.VectorDim {
		return fmt.Errorf("vector has dimension %d, expected %d: %w", len(vec), e.cfg.VectorDim, models.ErrEmbedding)
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("vector contains non-finite values: %w", models.ErrEmbedding)
		}
	}
	return nil
}

// Close releases the model reference. The Embedder must not be used
// afterwards.
func (e *Embedder) Close() {
	if e.impl != nil {
		log.Debug().Str("model", e.cfg.Model).Msg("embedding model released")
	}
	e.closed = true
	e.impl = nil
}
