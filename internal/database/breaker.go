package database

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"barchat/internal/logging"
	"barchat/internal/metrics"
	"barchat/internal/models"
)

// BreakerStore wraps a MessageStore with a circuit breaker. A single
// failed append only fails that request; sustained failures open the
// circuit and the gate stops admitting new connections until the store
// recovers.
type BreakerStore struct {
	inner MessageStore
	cb    *gobreaker.CircuitBreaker[*models.Message]
}

func NewBreakerStore(inner MessageStore) *BreakerStore {
	name := "message-store"
	cb := gobreaker.NewCircuitBreaker[*models.Message](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.SetBreakerState(name, to)
		},
	})
	return &BreakerStore{inner: inner, cb: cb}
}

func (b *BreakerStore) AppendMessage(ctx context.Context, roomID, userID, displayName, content string) (*models.Message, error) {
	return b.cb.Execute(func() (*models.Message, error) {
		return b.inner.AppendMessage(ctx, roomID, userID, displayName, content)
	})
}

// Available reports whether the store is currently accepting appends.
func (b *BreakerStore) Available() bool {
	return b.cb.State() != gobreaker.StateOpen
}
