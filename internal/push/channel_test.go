package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abin98anto/skillforge-client/internal/models"
)

var upgrader = websocket.Upgrader{}

func newTestServer(t *testing.T, handle func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDialJoinAndReceive(t *testing.T) {
	received := make(chan Event, 1)

	server, wsURL := newTestServer(t, func(conn *websocket.Conn) {
		// First frame must be the user-room join.
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read join: %v", err)
			return
		}
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Errorf("decode join: %v", err)
			return
		}
		received <- event

		// Then push a new-message event back.
		data, _ := json.Marshal(models.ChatMessage{
			ID:             "m1",
			ConversationID: "c1",
			SenderID:       "t1",
			ReceiverID:     "u1",
			Body:           "hello",
			Kind:           models.KindText,
			CreatedAt:      time.Now().UTC(),
		})
		out, _ := json.Marshal(Event{Type: EventNewMessage, Data: data})
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			t.Errorf("write event: %v", err)
		}

		// Hold the connection open until the client hangs up.
		_, _, _ = conn.ReadMessage()
	})
	defer server.Close()

	channel, err := Dial(context.Background(), wsURL, "tok-1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer channel.Close()

	if err := channel.JoinUserRoom("u1"); err != nil {
		t.Fatalf("JoinUserRoom: %v", err)
	}

	select {
	case join := <-received:
		if join.Type != EventJoinUserRoom {
			t.Fatalf("expected join event, got %q", join.Type)
		}
		var payload joinRoomPayload
		if err := json.Unmarshal(join.Data, &payload); err != nil {
			t.Fatalf("decode join payload: %v", err)
		}
		if payload.Room != "user:u1" {
			t.Fatalf("expected room user:u1, got %q", payload.Room)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the join event")
	}

	select {
	case event := <-channel.Events():
		if event.Type != EventNewMessage {
			t.Fatalf("expected new-message, got %q", event.Type)
		}
		message, err := event.NewMessage()
		if err != nil {
			t.Fatalf("NewMessage: %v", err)
		}
		if message.ID != "m1" || message.Body != "hello" {
			t.Fatalf("unexpected message: %+v", message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the pushed event")
	}
}

func TestEventsChannelClosesOnDisconnect(t *testing.T) {
	server, wsURL := newTestServer(t, func(conn *websocket.Conn) {
		// Drop the connection immediately.
	})
	defer server.Close()

	channel, err := Dial(context.Background(), wsURL, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer channel.Close()

	select {
	case _, ok := <-channel.Events():
		if ok {
			t.Fatal("expected closed events channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}
}

func TestEmitAfterCloseReturnsError(t *testing.T) {
	server, wsURL := newTestServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})
	defer server.Close()

	channel, err := Dial(context.Background(), wsURL, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := channel.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := channel.JoinUserRoom("u1"); err != ErrChannelClosed {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}
