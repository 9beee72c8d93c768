package embedding

import "context"

// Embedder converts text into vector embeddings for memory storage.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// NoopEmbedder returns no vectors. Used when no embedding backend is
// configured; memory entries are then stored without embeddings and
// search falls back to full-text matching only.
type NoopEmbedder struct{}

func NewNoopEmbedder() *NoopEmbedder {
	return &NoopEmbedder{}
}

func (e *NoopEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	return nil, nil
}

func (e *NoopEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	return make([][]float64, len(texts)), nil
}
