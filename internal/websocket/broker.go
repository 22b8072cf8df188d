package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"barchat/internal/database"
	"barchat/internal/logging"
	"barchat/internal/metrics"
	"barchat/internal/models"
)

// Broker persists each valid inbound message and fans it out to the
// sender's room. Persist happens before publish, under the room's order
// lock, so every member observes one room's messages in persistence
// order.
type Broker struct {
	registry *Registry
	store    database.MessageStore
	timeout  time.Duration
}

func NewBroker(registry *Registry, store database.MessageStore, persistTimeout time.Duration) *Broker {
	return &Broker{
		registry: registry,
		store:    store,
		timeout:  persistTimeout,
	}
}

// HandleInbound processes one frame from an admitted connection.
// Malformed payloads and persistence failures are reported to the
// sender only; the session stays open either way.
func (b *Broker) HandleInbound(c *Client, payload []byte) {
	var frame models.InboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		c.SendError("invalid message")
		return
	}
	if strings.TrimSpace(frame.DisplayName) == "" || strings.TrimSpace(frame.Content) == "" {
		c.SendError("invalid message")
		return
	}

	unlock, ok := b.registry.LockRoom(c.RoomID)
	if !ok {
		// The sender has already been deregistered; drop silently.
		return
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	msg, err := b.store.AppendMessage(ctx, c.RoomID, c.UserID, frame.DisplayName, frame.Content)
	if err != nil {
		logging.Error().Err(err).Str("room_id", c.RoomID).Str("user_id", c.UserID).Msg("failed to persist message")
		c.SendError("message could not be saved")
		return
	}
	metrics.MessagesPersisted.Inc()

	data, err := json.Marshal(models.NewBroadcastFrame(msg))
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal broadcast frame")
		c.SendError("message could not be delivered")
		return
	}

	// A failed send to one peer triggers that peer's own cleanup and is
	// never an error of the sender's request.
	for _, member := range b.registry.MembersOf(c.RoomID) {
		if member.TrySend(data) {
			metrics.BroadcastsDelivered.Inc()
			continue
		}
		metrics.BroadcastsDropped.Inc()
		go member.Close()
	}
}
