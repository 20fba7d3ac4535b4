// Package adapter talks to an OpenAI-compatible embedding endpoint.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"knowledge-organization/backend/internal/resilience"
	apperrors "knowledge-organization/backend/pkg/errors"
	"knowledge-organization/backend/pkg/logger"
)

// maxInputsPerRequest caps one embeddings call.
const maxInputsPerRequest = 256

// Embedder generates vectors for ingestion records that arrive without one.
type Embedder struct {
	client  *openai.Client
	model   string
	backoff resilience.Backoff
	mu      sync.RWMutex // Protects model field for concurrent access
	logger  *zap.Logger
}

// NewEmbedder creates an embedder for baseURL, which is the server root
// without the /v1 suffix.
func NewEmbedder(baseURL, apiKey, modelID string) *Embedder {
	// Self-hosted gateways accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"

	return &Embedder{
		client:  openai.NewClientWithConfig(config),
		model:   modelID,
		backoff: resilience.DefaultBackoff(),
		logger:  logger.Get(),
	}
}

// SetModel updates the model used by this embedder
func (e *Embedder) SetModel(model string) {
	if model != "" {
		e.mu.Lock()
		e.model = model
		e.mu.Unlock()
		e.logger.Debug("Embedding model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (e *Embedder) GetModel() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxInputsPerRequest {
		end := min(start+maxInputsPerRequest, len(texts))
		vecs, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) embedChunk(ctx context.Context, texts []string) ([][]float64, error) {
	model := e.GetModel()
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	}

	resp, err := resilience.Retry(ctx, e.backoff, isRetryable, func(ctx context.Context) (openai.EmbeddingResponse, error) {
		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			e.logger.Warn("Embedding request failed",
				zap.String("model", model),
				zap.Int("inputs", len(texts)),
				zap.Error(err))
		}
		return resp, err
	})
	if err != nil {
		return nil, apperrors.NewCollaborator("embedding", isRetryable(err), fmt.Errorf("failed to create embeddings: %w", err))
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewCollaborator("embedding", false,
			fmt.Errorf("embedding result size mismatch: got %d want %d", len(resp.Data), len(texts)))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float64, len(data))
	for i, d := range data {
		v := make([]float64, len(d.Embedding))
		for k, x := range d.Embedding {
			v[k] = float64(x)
		}
		out[i] = v
	}

	e.logger.Debug("Embeddings generated",
		zap.String("model", model),
		zap.Int("inputs", len(texts)))
	return out, nil
}

// isRetryable retries rate limiting, server errors and transport failures.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
