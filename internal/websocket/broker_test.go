package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"barchat/internal/models"
)

func recvFrame(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected frame: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func decodeBroadcast(t *testing.T, data []byte) models.BroadcastFrame {
	t.Helper()
	var frame models.BroadcastFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("failed to decode broadcast frame: %v", err)
	}
	return frame
}

func inbound(displayName, content string) []byte {
	data, _ := json.Marshal(models.InboundFrame{DisplayName: displayName, Content: content})
	return data
}

func TestBrokerPersistsThenBroadcasts(t *testing.T) {
	reg := NewRegistry()
	store := &fakeStore{}
	broker := NewBroker(reg, store, time.Second)

	sender := newTestClient(reg, broker, "bar-42", "u1")
	receiver := newTestClient(reg, broker, "bar-42", "u2")
	reg.Register("bar-42", sender)
	reg.Register("bar-42", receiver)

	broker.HandleInbound(sender, inbound("alice", "hi"))

	if store.count() != 1 {
		t.Fatalf("store has %d messages, want 1", store.count())
	}

	for _, c := range []*Client{sender, receiver} {
		frame := decodeBroadcast(t, recvFrame(t, c))
		if frame.Type != models.FrameTypeMessage {
			t.Errorf("frame type = %q, want %q", frame.Type, models.FrameTypeMessage)
		}
		if frame.Data.MessageID != "m1" {
			t.Errorf("messageId = %q, want m1", frame.Data.MessageID)
		}
		if frame.Data.UserID != "u1" || frame.Data.DisplayName != "alice" || frame.Data.Content != "hi" {
			t.Errorf("unexpected frame data: %+v", frame.Data)
		}
		if _, err := time.Parse(time.RFC3339, frame.Data.Timestamp); err != nil {
			t.Errorf("timestamp %q is not RFC3339: %v", frame.Data.Timestamp, err)
		}
	}
}

func TestBrokerBroadcastOrderMatchesPersistenceOrder(t *testing.T) {
	reg := NewRegistry()
	store := &fakeStore{}
	broker := NewBroker(reg, store, time.Second)

	s1 := newTestClient(reg, broker, "bar-42", "u1")
	s2 := newTestClient(reg, broker, "bar-42", "u2")
	observer := newTestClient(reg, broker, "bar-42", "u3")
	for _, c := range []*Client{s1, s2, observer} {
		reg.Register("bar-42", c)
	}

	broker.HandleInbound(s1, inbound("alice", "first"))
	broker.HandleInbound(s2, inbound("bob", "second"))

	first := decodeBroadcast(t, recvFrame(t, observer))
	second := decodeBroadcast(t, recvFrame(t, observer))

	if first.Data.MessageID != "m1" || second.Data.MessageID != "m2" {
		t.Errorf("observer saw %q then %q, want m1 then m2", first.Data.MessageID, second.Data.MessageID)
	}
	if first.Data.Content != "first" || second.Data.Content != "second" {
		t.Errorf("observer saw %q then %q out of order", first.Data.Content, second.Data.Content)
	}
}

func TestBrokerRejectsMalformedPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("{nope")},
		{"empty content", inbound("alice", "")},
		{"blank content", inbound("alice", "   ")},
		{"empty display name", inbound("", "hi")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			store := &fakeStore{}
			broker := NewBroker(reg, store, time.Second)

			sender := newTestClient(reg, broker, "bar-42", "u1")
			receiver := newTestClient(reg, broker, "bar-42", "u2")
			reg.Register("bar-42", sender)
			reg.Register("bar-42", receiver)

			broker.HandleInbound(sender, tt.payload)

			if store.count() != 0 {
				t.Errorf("store has %d messages, want 0", store.count())
			}

			var errFrame models.ErrorFrame
			if err := json.Unmarshal(recvFrame(t, sender), &errFrame); err != nil {
				t.Fatalf("sender frame is not an error frame: %v", err)
			}
			if errFrame.Type != models.FrameTypeError {
				t.Errorf("frame type = %q, want %q", errFrame.Type, models.FrameTypeError)
			}
			assertNoFrame(t, receiver)

			// The session survives a bad payload.
			if len(reg.MembersOf("bar-42")) != 2 {
				t.Error("sender was deregistered for a malformed payload")
			}
		})
	}
}

func TestBrokerStoreFailureNotifiesSenderOnly(t *testing.T) {
	reg := NewRegistry()
	store := &fakeStore{}
	store.setFail(true)
	broker := NewBroker(reg, store, time.Second)

	sender := newTestClient(reg, broker, "bar-42", "u1")
	receiver := newTestClient(reg, broker, "bar-42", "u2")
	reg.Register("bar-42", sender)
	reg.Register("bar-42", receiver)

	broker.HandleInbound(sender, inbound("alice", "hi"))

	var errFrame models.ErrorFrame
	if err := json.Unmarshal(recvFrame(t, sender), &errFrame); err != nil {
		t.Fatalf("sender frame is not an error frame: %v", err)
	}
	if errFrame.Type != models.FrameTypeError {
		t.Errorf("frame type = %q, want %q", errFrame.Type, models.FrameTypeError)
	}
	assertNoFrame(t, receiver)

	// Transient store failure is not fatal to the session.
	if len(reg.MembersOf("bar-42")) != 2 {
		t.Error("a member was deregistered after a store failure")
	}

	// The store recovering makes the next message flow end to end.
	store.setFail(false)
	broker.HandleInbound(sender, inbound("alice", "again"))
	frame := decodeBroadcast(t, recvFrame(t, receiver))
	if frame.Data.Content != "again" {
		t.Errorf("content = %q, want %q", frame.Data.Content, "again")
	}
}

func TestBrokerSlowPeerDoesNotAbortFanout(t *testing.T) {
	reg := NewRegistry()
	store := &fakeStore{}
	broker := NewBroker(reg, store, time.Second)

	cfg := testChatConfig()
	cfg.SendBuffer = 1

	sender := newTestClient(reg, broker, "bar-42", "u1")
	healthy := newTestClient(reg, broker, "bar-42", "u2")
	slow := NewClient(&fakeConn{}, reg, broker, &Admission{RoomID: "bar-42", UserID: "u3", DisplayName: "carol"}, cfg)
	for _, c := range []*Client{sender, healthy, slow} {
		reg.Register("bar-42", c)
	}

	// Fill the slow peer's queue so the next delivery cannot be queued.
	if !slow.TrySend([]byte("backlog")) {
		t.Fatal("failed to fill slow peer's queue")
	}

	broker.HandleInbound(sender, inbound("alice", "hi"))

	frame := decodeBroadcast(t, recvFrame(t, healthy))
	if frame.Data.Content != "hi" {
		t.Errorf("healthy peer got %q, want %q", frame.Data.Content, "hi")
	}

	// The sender sees its own echo, not an error.
	echo := decodeBroadcast(t, recvFrame(t, sender))
	if echo.Type != models.FrameTypeMessage {
		t.Errorf("sender got frame type %q, want %q", echo.Type, models.FrameTypeMessage)
	}

	// The slow peer is cleaned up through its own lifecycle.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(reg.MembersOf("bar-42")) == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("slow peer was not deregistered")
}

func TestBrokerDropsMessageFromDepartedSender(t *testing.T) {
	reg := NewRegistry()
	store := &fakeStore{}
	broker := NewBroker(reg, store, time.Second)

	sender := newTestClient(reg, broker, "bar-42", "u1")
	reg.Register("bar-42", sender)
	reg.Deregister("bar-42", sender)

	broker.HandleInbound(sender, inbound("alice", "ghost"))

	if store.count() != 0 {
		t.Errorf("store has %d messages from a departed sender, want 0", store.count())
	}
}
