package embedding

import (
	"context"
	"math"
	"unicode/utf16"
)

type hashClient struct {
	model      string
	dimensions int
}

// NewHashClient returns a deterministic pseudo-embedding. It needs no network
// and is meant for local runs and tests, not for semantic quality.
func NewHashClient(model string, dimensions int) Client {
	if model == "" {
		model = "hash-v1"
	}
	return &hashClient{model: model, dimensions: dimensions}
}

func (c *hashClient) Model() string   { return c.model }
func (c *hashClient) Dimensions() int { return c.dimensions }

// CreateEmbedding maps text to sin(h+i)*0.1 where h is a 32-bit rolling hash
// over the UTF-16 code units of text.
func (c *hashClient) CreateEmbedding(ctx context.Context, text string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := float64(stringHash(text))
	vec := make([]float32, c.dimensions)
	for i := range vec {
		vec[i] = float32(math.Sin(h+float64(i)) * 0.1)
	}
	return &Result{Vector: vec, Model: c.model, Dimension: len(vec)}, nil
}

// stringHash is hash = hash*31 + unit on int32 with wraparound, then absolute value.
func stringHash(text string) int64 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(text)) {
		hash = (hash << 5) - hash + int32(unit)
	}
	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return h
}
