package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"script-rag/internal/config"
	"script-rag/internal/models"
)

// uploadBatchSize is how many points go into one upsert request.
const uploadBatchSize = 100

// scrollPageSize is the page size used when draining a collection.
const scrollPageSize = 10000

// Client is a REST client for a hosted Qdrant instance. It covers the
// small slice of the API this project needs: collection lifecycle,
// batched upserts, vector search and scroll. All write requests use
// wait=true so counts reported to the caller reflect indexed points.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	dim        int
	threshold  float64
	http       *http.Client
}

// New builds a Client for one collection. dim is the expected vector
// dimension, enforced before any point leaves the process; threshold
// is the minimum similarity score for search hits (0 disables it).
func New(cfg *config.QdrantConfig, dim int, threshold float64) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dim:        dim,
		threshold:  threshold,
		http:       &http.Client{Timeout: cfg.Timeout()},
	}
}

// Collection is the name of the collection this client operates on.
func (c *Client) Collection() string {
	return c.collection
}

// Ping verifies the endpoint is reachable and the API key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/collections", nil, nil); err != nil {
		return fmt.Errorf("qdrant ping: %v: %w", err, models.ErrStore)
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance if it
// does not exist yet. An existing collection is left untouched.
func (c *Client) EnsureCollection(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil, nil)
	if err == nil {
		return nil
	}
	var se *statusError
	if !errors.As(err, &se) || se.code != http.StatusNotFound {
		return fmt.Errorf("qdrant check collection %s: %v: %w", c.collection, err, models.ErrStore)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.dim,
			"distance": "Cosine",
		},
	}
	if err := c.do(ctx, http.MethodPut, "/collections/"+c.collection, body, nil); err != nil {
		return fmt.Errorf("qdrant create collection %s: %v: %w", c.collection, err, models.ErrStore)
	}
	log.Info().Str("collection", c.collection).Int("dim", c.dim).Msg("collection created")
	return nil
}

// Upload upserts records in batches and returns how many points were
// written. On a failed batch it returns the count written so far along
// with the error; earlier batches stay in the collection.
func (c *Client) Upload(ctx context.Context, records []models.StoredRecord) (int, error) {
	for i, r := range records {
		if len(r.Vector) != c.dim {
			return 0, fmt.Errorf("record %d has vector dimension %d, expected %d: %w",
				i, len(r.Vector), c.dim, models.ErrStore)
		}
	}

	uploaded := 0
	for start := 0; start < len(records); start += uploadBatchSize {
		end := start + uploadBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		points := make([]map[string]any, len(batch))
		for i, r := range batch {
			payload := map[string]any{"text": r.Text}
			for k, v := range r.Metadata {
				payload[k] = v
			}
			points[i] = map[string]any{
				"id":      r.ID,
				"vector":  r.Vector,
				"payload": payload,
			}
		}
		body := map[string]any{"points": points}
		path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
		if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
			return uploaded, fmt.Errorf("qdrant upload batch %d-%d: %v: %w", start, end, err, models.ErrStore)
		}
		uploaded += len(batch)
		log.Debug().Int("uploaded", uploaded).Int("total", len(records)).Msg("batch upserted")
	}
	return uploaded, nil
}

// Search runs a vector similarity query and returns up to topK hits,
// best first. Hits below the score threshold are dropped server-side.
// The vector score is copied into both Score and VectorScore; rerankers
// overwrite Score later.
func (c *Client) Search(ctx context.Context, vector []float32, topK int) ([]models.SearchResult, error) {
	if len(vector) != c.dim {
		return nil, fmt.Errorf("query vector has dimension %d, expected %d: %w",
			len(vector), c.dim, models.ErrStore)
	}
	if topK <= 0 {
		topK = 5
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if c.threshold > 0 {
		body["score_threshold"] = c.threshold
	}

	var out struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("qdrant search: %v: %w", err, models.ErrStore)
	}

	results := make([]models.SearchResult, 0, len(out.Result))
	for _, r := range out.Result {
		res := models.SearchResult{
			ID:          fmt.Sprint(r.ID),
			Score:       r.Score,
			VectorScore: r.Score,
			Metadata:    map[string]any{},
		}
		for k, v := range r.Payload {
			if k == "text" {
				if s, ok := v.(string); ok {
					res.Text = s
				}
				continue
			}
			res.Metadata[k] = v
		}
		results = append(results, res)
	}
	return results, nil
}

// Info reports collection statistics.
func (c *Client) Info(ctx context.Context) (*models.CollectionInfo, error) {
	var out struct {
		Result struct {
			Status      string `json:"status"`
			PointsCount int    `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil, &out); err != nil {
		return nil, fmt.Errorf("qdrant collection info: %v: %w", err, models.ErrStore)
	}
	return &models.CollectionInfo{
		Name:        c.collection,
		PointsCount: out.Result.PointsCount,
		VectorSize:  out.Result.Config.Params.Vectors.Size,
		Distance:    out.Result.Config.Params.Vectors.Distance,
		Status:      out.Result.Status,
	}, nil
}

// Scroll pages through stored points without vectors and returns up to
// limit records with their payloads.
func (c *Client) Scroll(ctx context.Context, limit int) ([]models.StoredRecord, error) {
	if limit <= 0 {
		limit = scrollPageSize
	}
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}

	var out struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", c.collection)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("qdrant scroll: %v: %w", err, models.ErrStore)
	}

	records := make([]models.StoredRecord, 0, len(out.Result.Points))
	for _, p := range out.Result.Points {
		rec := models.StoredRecord{
			ID:       fmt.Sprint(p.ID),
			Metadata: map[string]any{},
		}
		for k, v := range p.Payload {
			if k == "text" {
				if s, ok := v.(string); ok {
					rec.Text = s
				}
				continue
			}
			rec.Metadata[k] = v
		}
		records = append(records, rec)
	}
	return records, nil
}

// Clear deletes every point in the collection and returns how many were
// removed. The collection itself survives, so a re-upload needs no
// EnsureCollection round trip.
func (c *Client) Clear(ctx context.Context) (int, error) {
	records, err := c.Scroll(ctx, scrollPageSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	body := map[string]any{"points": ids}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return 0, fmt.Errorf("qdrant clear: %v: %w", err, models.ErrStore)
	}
	log.Info().Int("deleted", len(ids)).Str("collection", c.collection).Msg("collection cleared")
	return len(ids), nil
}

// DeleteCollection drops the whole collection.
func (c *Client) DeleteCollection(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/collections/"+c.collection, nil, nil); err != nil {
		return fmt.Errorf("qdrant delete collection %s: %v: %w", c.collection, err, models.ErrStore)
	}
	return nil
}

// statusError is a non-2xx response from Qdrant.
type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("%s: %s", e.status, e.body)
	}
	return e.status
}

// do sends one request and decodes the response envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			code:   resp.StatusCode,
			status: resp.Status,
			body:   strings.TrimSpace(string(data)),
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %v", err)
		}
	}
	return nil
}
