package directory

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"barchat/internal/logging"
	"barchat/internal/metrics"
	"barchat/internal/models"
)

// BreakerLookup wraps a Lookup with a circuit breaker so a stalled or
// failing directory store cannot accumulate pending admissions. While
// the circuit is open the gate fails closed.
type BreakerLookup struct {
	inner Lookup
	cb    *gobreaker.CircuitBreaker[*models.Venue]
}

func NewBreakerLookup(inner Lookup) *BreakerLookup {
	name := "venue-directory"
	cb := gobreaker.NewCircuitBreaker[*models.Venue](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing room is an answer, not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRoomNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.SetBreakerState(name, to)
		},
	})
	return &BreakerLookup{inner: inner, cb: cb}
}

func (b *BreakerLookup) FindRoom(ctx context.Context, roomID string) (*models.Venue, error) {
	return b.cb.Execute(func() (*models.Venue, error) {
		return b.inner.FindRoom(ctx, roomID)
	})
}

// Available reports whether the directory is currently accepting calls.
func (b *BreakerLookup) Available() bool {
	return b.cb.State() != gobreaker.StateOpen
}
