package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker decorates a Client with a circuit breaker. A provider outage trips
// it after five consecutive failures; answer generation then degrades
// immediately instead of queueing timeouts.
type Breaker struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps the client.
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
			logger.Warn("llm breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Chat forwards through the breaker.
func (b *Breaker) Chat(ctx context.Context, messages []Message) (*Response, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Chat(ctx, messages)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

// ChatWithStructuredOutput forwards through the breaker.
func (b *Breaker) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema any) (json.RawMessage, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ChatWithStructuredOutput(ctx, messages, schema)
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}

// Close closes the wrapped client.
func (b *Breaker) Close() error {
	return b.inner.Close()
}
