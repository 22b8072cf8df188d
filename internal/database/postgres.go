package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"barchat/internal/logging"
	"barchat/internal/models"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Info().Msg("connected to message store")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id::text, username, email, role, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.Role, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, email, role, password_hash, created_at)
		VALUES (gen_random_uuid(), $1, $2, 'user', $3, NOW())
		RETURNING id::text, username, email, role, created_at`

	user := &models.User{PasswordHash: passwordHash}
	err := db.pool.QueryRow(ctx, query, username, email, passwordHash).Scan(
		&user.ID, &user.Username, &user.Email, &user.Role, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// AppendMessage persists a message and returns it with the
// store-assigned ID and timestamp.
func (db *PostgresDB) AppendMessage(ctx context.Context, roomID, userID, displayName, content string) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, room_id, user_id, display_name, content, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NOW())
		RETURNING id::text, created_at`

	msg := &models.Message{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
		Content:     content,
	}
	err := db.pool.QueryRow(ctx, query, roomID, userID, displayName, content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	return msg, nil
}
