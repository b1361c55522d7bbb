package embed

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// OllamaConfig configures a local Ollama server backend.
type OllamaConfig struct {
	Endpoint          string // e.g. http://localhost:11434
	Model             string // e.g. nomic-embed-text
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Ollama embeds text through the /api/embed endpoint of an Ollama server.
type Ollama struct {
	endpoint string
	model    string
	client   *http.Client
	limiter  *rate.Limiter
	retry    retryPolicy
	logger   zerolog.Logger
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func NewOllama(cfg OllamaConfig, logger zerolog.Logger) *Ollama {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &Ollama{
		endpoint: endpoint,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
		limiter:  newLimiter(cfg.RequestsPerSecond),
		retry:    defaultRetryPolicy,
		logger:   logger.With().Str("backend", "ollama").Logger(),
	}
}

func (o *Ollama) Name() string {
	return "ollama/" + o.model
}

// Probe checks that the server answers and has the configured model pulled.
func (o *Ollama) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := doWithRetry(ctx, o.client, retryPolicy{}, o.logger, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/api/tags", nil)
	})
	if err != nil {
		return fmt.Errorf("ollama: %w", err)
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return fmt.Errorf("ollama: failed to parse tags: %w", err)
	}
	for _, m := range tags.Models {
		// "model" matches "model:latest"
		if m.Name == o.model || m.Name == o.model+":latest" {
			return nil
		}
	}
	return fmt.Errorf("ollama: model %q is not available on %s", o.model, o.endpoint)
}

func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ollama: rate limiter: %w", err)
	}

	payload, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	body, err := doWithRetry(ctx, o.client, o.retry, o.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/embed", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	var resp ollamaEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ollama: failed to parse response: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// newLimiter returns an unlimited limiter when rps is zero.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
