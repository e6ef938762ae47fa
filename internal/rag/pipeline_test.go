package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"script-rag/internal/config"
	"script-rag/internal/embedding"
	"script-rag/internal/parser"
	"script-rag/internal/qdrant"
)

// pipeVector derives a deterministic vector from text, so the same
// passage always embeds identically whether it arrives as a document
// chunk or as a query.
func pipeVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		h := fnv.New32a()
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		vec[i] = float32(h.Sum32()%1000) / 1000
	}
	return vec
}

func pipeCosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type pipePoint struct {
	id      string
	vector  []float32
	payload map[string]any
}

// pipelineBackend serves both remote halves of the pipeline from one
// endpoint: the OpenAI embeddings API and the Qdrant REST API.
type pipelineBackend struct {
	dim int

	mu      sync.Mutex
	created bool
	points  []pipePoint
}

func (b *pipelineBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	send := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.URL.Path == "/embeddings" && r.Method == http.MethodPost:
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, text := range req.Input {
			data[i] = item{Object: "embedding", Embedding: pipeVector(text, b.dim), Index: i}
		}
		send(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 0, "total_tokens": 0},
		})

	case r.URL.Path == "/collections/pipe_test" && r.Method == http.MethodGet:
		if !b.created {
			http.Error(w, `{"status":{"error":"Collection not found"}}`, http.StatusNotFound)
			return
		}
		send(map[string]any{"result": map[string]any{
			"status":       "green",
			"points_count": len(b.points),
			"config": map[string]any{"params": map[string]any{"vectors": map[string]any{
				"size":     b.dim,
				"distance": "Cosine",
			}}},
		}})

	case r.URL.Path == "/collections/pipe_test" && r.Method == http.MethodPut:
		b.created = true
		send(map[string]any{"result": true})

	case r.URL.Path == "/collections/pipe_test/points" && r.Method == http.MethodPut:
		var req struct {
			Points []struct {
				ID      any            `json:"id"`
				Vector  []float32      `json:"vector"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, p := range req.Points {
			b.points = append(b.points, pipePoint{
				id:      fmt.Sprint(p.ID),
				vector:  p.Vector,
				payload: p.Payload,
			})
		}
		send(map[string]any{"result": map[string]any{"status": "completed"}})

	case r.URL.Path == "/collections/pipe_test/points/search" && r.Method == http.MethodPost:
		var req struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type hit struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		}
		hits := make([]hit, 0, len(b.points))
		for _, p := range b.points {
			hits = append(hits, hit{ID: p.id, Score: pipeCosine(req.Vector, p.vector), Payload: p.payload})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if req.Limit > 0 && len(hits) > req.Limit {
			hits = hits[:req.Limit]
		}
		send(map[string]any{"result": hits})

	default:
		http.NotFound(w, r)
	}
}

// The full round trip: split a document, embed the chunks, upload them,
// then ask with one chunk's exact text and expect that chunk back as
// the top source.
func TestPipeline_UploadThenAsk(t *testing.T) {
	backend := &pipelineBackend{dim: 8}
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)
	ctx := context.Background()

	// Four sentences of 14 runes each; chunk size 15 makes every
	// sentence its own chunk, so queries can hit a chunk verbatim.
	sentences := []string{
		"李雷清晨在教室里安静地读书。",
		"韩梅梅在操场上跑步锻炼身体。",
		"老师在办公室里批改学生作业。",
		"傍晚大家一起在食堂吃饭聊天。",
	}
	var doc string
	for _, s := range sentences {
		doc += s
	}
	path := filepath.Join(t.TempDir(), "script.txt")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}

	ragCfg := &config.RAGConfig{
		ChunkSize:     15,
		ChunkOverlap:  5,
		Splitter:      "sentence",
		TopK:          5,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
	}

	chunks, err := parser.NewProcessor(ragCfg).Process(path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(chunks) != len(sentences) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(sentences))
	}
	for i, c := range chunks {
		if c.Text != sentences[i] {
			t.Fatalf("chunk %d = %q, want %q", i, c.Text, sentences[i])
		}
	}

	embedder := embedding.New(&config.EmbeddingConfig{
		Backend:   "openai",
		BaseURL:   ts.URL,
		APIKey:    "test-key",
		Model:     "test-embedding",
		VectorDim: 8,
	})
	defer embedder.Close()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedDocuments: %v", err)
	}

	store := qdrant.New(&config.QdrantConfig{
		URL:         ts.URL,
		APIKey:      "test-key",
		Collection:  "pipe_test",
		TimeoutSecs: 5,
	}, 8, 0)
	if err := store.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	records, err := Records(chunks, vectors, filepath.Base(path))
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	n, err := store.Upload(ctx, records)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if n != len(sentences) {
		t.Fatalf("uploaded = %d, want %d", n, len(sentences))
	}

	info, err := store.Info(ctx)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.PointsCount != len(sentences) {
		t.Errorf("PointsCount = %d, want %d", info.PointsCount, len(sentences))
	}

	gen := &fakeGenerator{answer: "他在批改作业。"}
	session := NewRAG(store, embedder, gen, ragCfg)

	question := sentences[2]
	resp, err := session.Ask(ctx, question)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Answer != "他在批改作业。" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) == 0 {
		t.Fatal("no sources returned")
	}
	// Identical text embeds to the identical vector, so the matching
	// chunk scores 1.0 on both signals and must rank first.
	if resp.Sources[0].Text != question {
		t.Errorf("top source = %q, want %q", resp.Sources[0].Text, question)
	}
	if math.Abs(resp.Sources[0].Score-1.0) > 1e-6 {
		t.Errorf("top score = %f, want 1.0", resp.Sources[0].Score)
	}
	if gen.lastPassages[0] != question {
		t.Errorf("top passage sent to the model = %q", gen.lastPassages[0])
	}
	if srcFile := resp.Sources[0].Metadata["source_file"]; srcFile != "script.txt" {
		t.Errorf("source_file = %v, want script.txt", srcFile)
	}
	if len(session.History()) != 2 {
		t.Errorf("history has %d turns, want 2", len(session.History()))
	}
}
