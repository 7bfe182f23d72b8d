// Package embedding provides pluggable text embedding providers for the
// journal's semantic search. Providers are pure (text in, vector out) and
// safe to share across threads; a nil provider means the feature is
// disabled, never an error.
package embedding

import (
	"context"
	"math"
	"os"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Provider generates embedding vectors from text.
type Provider interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance is 1 - CosineSimilarity; lower is closer.
func CosineDistance(a, b Vector) float64 {
	return 1 - CosineSimilarity(a, b)
}

// New builds a provider from configured settings, wrapped in the
// process-wide cache. Returns nil when provider is empty, which disables
// embeddings. The openai provider reads its key from OPENAI_API_KEY.
func New(provider, model, baseURL string) Provider {
	var inner Provider
	switch provider {
	case "ollama":
		if model == "" {
			model = "nomic-embed-text"
		}
		inner = NewOllama(baseURL, model)
	case "openai":
		inner = NewOpenAI(baseURL, os.Getenv("OPENAI_API_KEY"), model, 0)
	default:
		return nil
	}

	cached, err := NewCached(inner)
	if err != nil {
		return inner
	}
	return cached
}
