package models

import "time"

// Message content kinds understood by the chat widget.
const (
	KindText      = "text"
	KindVideoCall = "video-call"
)

// Conversation pairs one learner with one instructor for one course.
// The backend guarantees at most one conversation per
// (learner, instructor, course) triple; the client assumes it.
type Conversation struct {
	ID           string    `json:"id"`
	LearnerID    string    `json:"learner_id"`
	InstructorID string    `json:"instructor_id"`
	CourseID     string    `json:"course_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OtherParticipant resolves the counterpart of userID in the conversation.
// The second return is false when userID is not a participant.
func (c *Conversation) OtherParticipant(userID string) (string, bool) {
	switch userID {
	case c.LearnerID:
		return c.InstructorID, true
	case c.InstructorID:
		return c.LearnerID, true
	default:
		return "", false
	}
}

// ChatMessage is a single message in a conversation. ID is assigned by the
// backend and is empty only on an optimistic, not-yet-persisted copy.
// ClientRef is a client-generated correlation id used to reconcile the
// optimistic copy with the persisted one.
type ChatMessage struct {
	ID             string    `json:"id"`
	ClientRef      string    `json:"client_ref,omitempty"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Body           string    `json:"body"`
	Kind           string    `json:"kind"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationSummary is the list-view projection: the conversation plus the
// cached last message and the server-computed unread count for the requesting
// user. UnreadCount is authoritative only at fetch time.
type ConversationSummary struct {
	Conversation
	LastMessage *ChatMessage `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}

// CallInvite is the transient payload behind a video-call message: the room
// to join and the two participants. It is never persisted client-side.
type CallInvite struct {
	RoomID         string    `json:"room_id"`
	ConversationID string    `json:"conversation_id"`
	CallerID       string    `json:"caller_id"`
	CalleeID       string    `json:"callee_id"`
	SentAt         time.Time `json:"sent_at"`
}

// FormatChatTimestamp renders a timestamp in the backend's wire format.
func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
