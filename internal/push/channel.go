package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/abin98anto/skillforge-client/internal/models"
)

var ErrChannelClosed = errors.New("push channel closed")

const (
	sendBufferSize  = 32
	eventBufferSize = 64
)

// Channel is an explicitly constructed push-channel connection. It is created
// by Dial, handed to whoever consumes it, and closed when the authenticated
// session ends. It is not a package-level singleton; two widgets sharing a
// session share the one Channel their owner injects.
type Channel struct {
	conn   *websocket.Conn
	send   chan []byte
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the backend's websocket endpoint, authenticating with the
// bearer token, and starts the read/write pumps. The context bounds the
// handshake only.
func Dial(ctx context.Context, wsURL, token string) (*Channel, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial push channel: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial push channel: %w", err)
	}

	c := &Channel{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()

	return c, nil
}

// Events delivers server-emitted events in arrival order. The channel is
// closed when the connection drops or Close is called.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// JoinUserRoom subscribes the connection to the user-scoped room, which is
// where per-user fan-out (new messages, invites, receipts) is delivered.
func (c *Channel) JoinUserRoom(userID string) error {
	return c.emit(EventJoinUserRoom, joinRoomPayload{Room: "user:" + userID})
}

// JoinConversationRoom subscribes to a conversation-scoped room.
func (c *Channel) JoinConversationRoom(conversationID string) error {
	return c.emit(EventJoinConversationRoom, joinRoomPayload{Room: "conversation:" + conversationID})
}

// MarkRead notifies the counterpart over the channel that the given messages
// were read. The REST mark-read call remains the authoritative write; this is
// the live receipt.
func (c *Channel) MarkRead(conversationID string, messageIDs []string) error {
	return c.emit(EventMarkRead, markReadPayload{
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
	})
}

// SendMessage emits a message over the channel. The protocol supports it for
// clients that publish proactively instead of waiting on server fan-out; this
// SDK's engine persists over REST and does not call it.
func (c *Channel) SendMessage(message models.ChatMessage) error {
	return c.emit(EventSendMessage, message)
}

// Close tears the connection down. Safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) emit(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	encoded, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- encoded:
		return nil
	case <-c.done:
		return ErrChannelClosed
	}
}

func (c *Channel) readPump() {
	defer func() {
		_ = c.Close()
		close(c.events)
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Printf("push: dropping malformed event: %v", err)
			continue
		}

		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) writePump() {
	for {
		select {
		case payload := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
