package services

import "context"

// Embedder produces vectors for chunk text. The OpenAI client satisfies this;
// tests substitute a deterministic fake.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	ModelID() string
	Dim() int
}
