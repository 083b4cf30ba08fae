// Package push is the client end of the SkillForge real-time channel. The
// backend fans events out per user room; the client joins its room after
// dialing and receives typed events until the connection closes.
package push

import (
	"encoding/json"

	"github.com/abin98anto/skillforge-client/internal/models"
)

// Server-emitted event types.
const (
	EventNewMessage  = "new-message"
	EventReadReceipt = "read-receipt"
	EventCallInvite  = "call-invite"
)

// Client-emitted event types.
const (
	EventJoinUserRoom         = "join-user-room"
	EventJoinConversationRoom = "join-conversation-room"
	EventSendMessage          = "send-message"
	EventMarkRead             = "mark-read"
)

// Event is the wire envelope: a type tag plus a type-specific payload.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage decodes the payload of a new-message event.
func (e Event) NewMessage() (*models.ChatMessage, error) {
	var message models.ChatMessage
	if err := json.Unmarshal(e.Data, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// ReadReceipt is the payload of a read-receipt event: the counterpart has
// read the listed messages.
type ReadReceipt struct {
	ConversationID string   `json:"conversation_id"`
	ReaderID       string   `json:"reader_id"`
	MessageIDs     []string `json:"message_ids"`
}

func (e Event) ReadReceipt() (*ReadReceipt, error) {
	var receipt ReadReceipt
	if err := json.Unmarshal(e.Data, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// CallInvite decodes the payload of a call-invite event.
func (e Event) CallInvite() (*models.CallInvite, error) {
	var invite models.CallInvite
	if err := json.Unmarshal(e.Data, &invite); err != nil {
		return nil, err
	}
	return &invite, nil
}

type joinRoomPayload struct {
	Room string `json:"room"`
}

type markReadPayload struct {
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids"`
}
