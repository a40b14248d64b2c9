package embedder

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker decorates a Client with a circuit breaker so a failing embedding
// provider sheds load fast instead of stalling every query on timeouts.
// While the breaker is open, calls fail immediately with
// gobreaker.ErrOpenState.
type Breaker struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps the client. The breaker trips after five consecutive
// failures and probes again after the timeout.
func NewBreaker(inner Client, name string, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Embed forwards through the breaker.
func (b *Breaker) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

// EmbedSingle forwards through the breaker.
func (b *Breaker) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.EmbedSingle(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// Dimensions reports the wrapped client's dimensions.
func (b *Breaker) Dimensions() int {
	return b.inner.Dimensions()
}

// Close closes the wrapped client.
func (b *Breaker) Close() error {
	return b.inner.Close()
}
