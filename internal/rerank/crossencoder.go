package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// CrossEncoderConfig configures the HTTP re-ranker
type CrossEncoderConfig struct {
	Endpoint          string        // Server base URL (default: http://localhost:8081)
	Model             string        // Optional model name sent with each request
	Timeout           time.Duration // HTTP client timeout (default: 30s)
	RequestsPerSecond float64       // 0 disables pacing
}

// CrossEncoder scores documents with a remote cross-encoder model
type CrossEncoder struct {
	endpoint string
	model    string
	client   *http.Client
	limiter  *rate.Limiter
}

// rerankRequest matches the llama.cpp /v1/rerank request
type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

// rerankResponse matches the llama.cpp /v1/rerank response
type rerankResponse struct {
	Model   string `json:"model"`
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

// NewCrossEncoder creates a cross-encoder client
func NewCrossEncoder(cfg CrossEncoderConfig) *CrossEncoder {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "http://localhost:8081"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ce := &CrossEncoder{
		endpoint: endpoint,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		ce.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return ce
}

// Name returns "cross-encoder"
func (c *CrossEncoder) Name() string { return "cross-encoder" }

// Score sends all documents in one request
func (c *CrossEncoder) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rerank rate limit: %w", err)
		}
	}

	body, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank returned status %d: %s", resp.StatusCode, string(b))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	scores := make([]float64, len(documents))
	seen := make([]bool, len(documents))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("rerank result index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing document %d", i)
		}
	}
	return scores, nil
}

// Close releases idle connections
func (c *CrossEncoder) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
