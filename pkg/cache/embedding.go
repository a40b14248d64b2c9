package cache

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/soundprediction/go-reliquary/pkg/utils"
)

// EmbeddingCache stores query vectors keyed by model and text, so repeated
// questions skip the embedding provider entirely. Vectors are encoded as
// little-endian float32 words, a quarter the size of their JSON form.
type EmbeddingCache struct {
	inner Cache
	model string
	ttl   time.Duration
}

// NewEmbeddingCache wraps a Cache. The model name is part of every key:
// switching models never serves stale vectors.
func NewEmbeddingCache(inner Cache, model string, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbeddingCache{inner: inner, model: model, ttl: ttl}
}

// Vector returns the cached embedding for text, or ErrKeyNotFound.
func (c *EmbeddingCache) Vector(text string) ([]float32, error) {
	data, err := c.inner.Get(c.key(text))
	if err != nil {
		return nil, err
	}
	return decodeVector(data)
}

// StoreVector caches the embedding for text.
func (c *EmbeddingCache) StoreVector(text string, vec []float32) error {
	return c.inner.Set(c.key(text), encodeVector(vec), c.ttl)
}

// Close closes the underlying cache.
func (c *EmbeddingCache) Close() error {
	return c.inner.Close()
}

func (c *EmbeddingCache) key(text string) string {
	return "emb:" + c.model + ":" + utils.HashText(text)
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("corrupt embedding entry: %d bytes", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
