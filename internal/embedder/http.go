package embedder

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

// ProviderConfig configures a remote provider
type ProviderConfig struct {
	APIKey            string
	Model             string        // Default model for the provider when empty
	BaseURL           string        // API root, overridable for proxies and tests
	Timeout           time.Duration // Per-request HTTP timeout (default: 30s)
	RequestsPerSecond float64       // Client-side pacing, 0 disables
	Retry             RetryConfig
}

// wireFormat adapts the shared request path to one provider's API
type wireFormat interface {
	endpoint(baseURL, model, apiKey string) string
	authorize(req *http.Request, apiKey string)
	encode(texts []string, model string) ([]byte, error)
	decode(body io.Reader, n int) (vectors [][]float32, model string, err error)
}

// HTTPProvider implements Embedder over a remote embeddings API
type HTTPProvider struct {
	name      string
	model     string
	dimension int
	apiKey    string
	baseURL   string
	wire      wireFormat
	retry     RetryConfig

	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *Cache
}

func newHTTPProvider(name string, dimension int, defaultModel, defaultURL string, wire wireFormat, cfg ProviderConfig, cache *Cache) *HTTPProvider {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &HTTPProvider{
		name:       name,
		model:      model,
		dimension:  dimension,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		wire:       wire,
		retry:      cfg.Retry.withDefaults(),
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p
}

func (p *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	if p.cache != nil {
		if emb, ok := p.cache.Get(p.cacheKey(req.Text, req.Model)); ok {
			return emb, nil
		}
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

// GenerateBatch embeds up to MaxBatchSize texts in one request. Cached
// texts are not sent.
func (p *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	var missing []int
	for i, text := range req.Texts {
		if p.cache != nil {
			if emb, ok := p.cache.Get(p.cacheKey(text, model)); ok {
				embeddings[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = req.Texts[i]
		}

		fetched, err := retryWithBackoff(ctx, p.retry, func() ([]*Embedding, error) {
			return p.callAPI(ctx, texts, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, p.name, err)
		}

		for j, i := range missing {
			emb := fetched[j]
			emb.Hash = p.cacheKey(req.Texts[i], model)
			if p.cache != nil {
				p.cache.Set(emb.Hash, emb)
			}
			embeddings[i] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	body, err := p.wire.encode(texts, model)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.wire.endpoint(p.baseURL, model, p.apiKey), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.wire.authorize(req, p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, body: string(bodyBytes)}
	}

	vectors, respModel, err := p.wire.decode(resp.Body, len(texts))
	if err != nil {
		return nil, err
	}
	if respModel == "" {
		respModel = model
	}

	embeddings := make([]*Embedding, len(vectors))
	for i, v := range vectors {
		embeddings[i] = &Embedding{
			Vector:    v,
			Dimension: len(v),
			Provider:  p.name,
			Model:     respModel,
		}
		if err := embeddings[i].check(); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	return embeddings, nil
}

// cacheKey scopes the content hash by model so switching models never
// serves stale vectors.
func (p *HTTPProvider) cacheKey(text, model string) string {
	if model == "" {
		model = p.model
	}
	return CacheKey(p.name, model, text)
}

func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

func (p *HTTPProvider) Provider() string {
	return p.name
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// openAIWire is the /v1/embeddings format shared by OpenAI and Jina
type openAIWire struct{}

func (openAIWire) endpoint(baseURL, _, _ string) string {
	return baseURL + "/v1/embeddings"
}

func (openAIWire) authorize(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

func (openAIWire) encode(texts []string, model string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"input": texts,
		"model": model,
	})
}

func (openAIWire) decode(body io.Reader, n int) ([][]float32, string, error) {
	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) != n {
		return nil, "", fmt.Errorf("expected %d embeddings, got %d", n, len(apiResp.Data))
	}

	// Entries may arrive out of order; index is authoritative
	vectors := make([][]float32, n)
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= n || vectors[d.Index] != nil {
			return nil, "", fmt.Errorf("invalid embedding index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, apiResp.Model, nil
}

// geminiWire is the Generative Language batchEmbedContents format
type geminiWire struct{}

func (geminiWire) endpoint(baseURL, model, _ string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:batchEmbedContents", baseURL, model)
}

func (geminiWire) authorize(req *http.Request, apiKey string) {
	req.Header.Set("x-goog-api-key", apiKey)
}

func (geminiWire) encode(texts []string, model string) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Parts []part `json:"parts"`
	}
	type request struct {
		Model   string  `json:"model"`
		Content content `json:"content"`
	}

	reqs := make([]request, len(texts))
	for i, t := range texts {
		reqs[i] = request{Model: "models/" + model, Content: content{Parts: []part{{Text: t}}}}
	}
	return json.Marshal(map[string]interface{}{"requests": reqs})
}

func (geminiWire) decode(body io.Reader, n int) ([][]float32, string, error) {
	var apiResp struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Embeddings) != n {
		return nil, "", fmt.Errorf("expected %d embeddings, got %d", n, len(apiResp.Embeddings))
	}

	vectors := make([][]float32, n)
	for i, e := range apiResp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, "", nil
}
