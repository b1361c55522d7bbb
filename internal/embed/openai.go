package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/karelholub/article-recommender/internal/metrics"
)

// OpenAIConfig configures the OpenAI embeddings backend. BaseURL may point at
// any OpenAI compatible server.
type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Dimensions        int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// OpenAI calls the embeddings endpoint behind a rate limiter and a circuit
// breaker. The breaker opens after repeated failures so that a dead backend
// fails ingests fast instead of stalling each one for the full timeout.
type OpenAI struct {
	client  openai.Client
	model   string
	dims    int
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[][]float64]
	logger  zerolog.Logger
}

func NewOpenAI(cfg OpenAIConfig, logger zerolog.Logger) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(2),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}

	e := &OpenAI{
		client:  openai.NewClient(opts...),
		model:   model,
		dims:    cfg.Dimensions,
		limiter: newLimiter(cfg.RequestsPerSecond),
		logger:  logger.With().Str("backend", "openai").Logger(),
	}
	e.breaker = gobreaker.NewCircuitBreaker[[][]float64](gobreaker.Settings{
		Name:        "openai-embeddings",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			metrics.EmbeddingBreakerState.WithLabelValues("openai").Set(float64(to))
		},
	})
	return e
}

func (e *OpenAI) Name() string {
	return "openai/" + e.model
}

func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("openai: rate limiter: %w", err)
	}

	start := time.Now()
	vectors, err := e.breaker.Execute(func() ([][]float64, error) {
		return e.call(ctx, texts)
	})
	metrics.RecordEmbeddingRequest("openai", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return vectors, nil
}

func (e *OpenAI) call(ctx context.Context, texts []string) ([][]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.dims > 0 {
		params.Dimensions = openai.Int(int64(e.dims))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to call embeddings API: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}
