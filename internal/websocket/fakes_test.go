package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"barchat/internal/auth"
	"barchat/internal/config"
	"barchat/internal/directory"
	"barchat/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// fakeConn satisfies Conn without a network socket.
type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	return 0, nil, errors.New("fakeConn has nothing to read")
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error               { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error              { return nil }
func (f *fakeConn) SetReadLimit(limit int64)                        {}
func (f *fakeConn) SetPongHandler(h func(string) error)             {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeStore assigns sequential message IDs. Set fail to simulate a
// persistence outage.
type fakeStore struct {
	mu   sync.Mutex
	next int
	fail bool
	seen []*models.Message
}

func (s *fakeStore) AppendMessage(ctx context.Context, roomID, userID, displayName, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store unavailable")
	}
	s.next++
	msg := &models.Message{
		ID:          fmt.Sprintf("m%d", s.next),
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
		Content:     content,
		CreatedAt:   time.Now(),
	}
	s.seen = append(s.seen, msg)
	return msg, nil
}

func (s *fakeStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// fakeVerifier accepts tokens of the form "tok-<userID>".
type fakeVerifier struct{}

func (fakeVerifier) VerifyToken(token string) (*auth.Claims, error) {
	var userID string
	if _, err := fmt.Sscanf(token, "tok-%s", &userID); err != nil {
		return nil, auth.ErrInvalidCredential
	}
	return &auth.Claims{
		Username: "user-" + userID,
		Role:     "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	}, nil
}

// fakeLookup serves venues from a map. Set err to simulate an outage.
type fakeLookup struct {
	venues map[string]*models.Venue
	err    error
}

func (l *fakeLookup) FindRoom(ctx context.Context, roomID string) (*models.Venue, error) {
	if l.err != nil {
		return nil, l.err
	}
	venue, ok := l.venues[roomID]
	if !ok {
		return nil, directory.ErrRoomNotFound
	}
	return venue, nil
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		GeofenceRadiusKm: 0.1,
		AdmitTimeout:     time.Second,
		PersistTimeout:   time.Second,
		SendBuffer:       8,
		MessageRate:      100,
		MessageBurst:     100,
	}
}

func newTestClient(reg *Registry, broker *Broker, roomID, userID string) *Client {
	adm := &Admission{RoomID: roomID, UserID: userID, DisplayName: "user-" + userID}
	return NewClient(&fakeConn{}, reg, broker, adm, testChatConfig())
}
