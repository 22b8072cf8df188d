package database

import (
	"context"

	"barchat/internal/models"
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
}

// MessageStore durably appends chat messages. The store assigns the
// message ID and timestamp; the broker never invents either.
type MessageStore interface {
	AppendMessage(ctx context.Context, roomID, userID, displayName, content string) (*models.Message, error)
}
