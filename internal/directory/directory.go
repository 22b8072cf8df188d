// Package directory resolves room identifiers to venues and their
// reference coordinates. The venue store is owned by the wider bar
// directory backend; this package only reads from it.
package directory

import (
	"context"
	"errors"

	"barchat/internal/models"
)

// ErrRoomNotFound means the room ID does not resolve to a venue. It is
// a definitive answer, not an operational failure.
var ErrRoomNotFound = errors.New("room not found")

// Lookup resolves a room ID to its venue record.
type Lookup interface {
	FindRoom(ctx context.Context, roomID string) (*models.Venue, error)
}
