package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/abin98anto/skillforge-client/internal/models"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// ListConversations fetches the conversation list for the authenticated user,
// each entry carrying the cached last message and the server-computed unread
// count.
func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var body struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/conversations", nil, &body); err != nil {
		return nil, err
	}
	return body.Conversations, nil
}

// CreateConversation creates (or returns the existing) conversation between
// the authenticated learner and an instructor, scoped to a course.
func (c *Client) CreateConversation(ctx context.Context, instructorID, courseID string) (*models.Conversation, error) {
	payload := map[string]string{
		"instructor_id": instructorID,
		"course_id":     courseID,
	}
	var body struct {
		Conversation *models.Conversation `json:"conversation"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/conversations", payload, &body); err != nil {
		return nil, err
	}
	return body.Conversation, nil
}

// ListMessages fetches one page of a conversation's log, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) ([]models.ChatMessage, models.PaginationMeta, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	path := fmt.Sprintf("/api/v1/conversations/%s/messages?page=%d&limit=%d",
		url.PathEscape(conversationID), page, limit)

	var body struct {
		Messages   []models.ChatMessage  `json:"messages"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, models.PaginationMeta{}, err
	}
	return body.Messages, body.Pagination, nil
}

// ConversationLog fetches the full message log of a conversation, walking
// pages oldest-first until the backend reports no more.
func (c *Client) ConversationLog(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	var log []models.ChatMessage
	for page := 1; ; page++ {
		messages, meta, err := c.ListMessages(ctx, conversationID, page, maxPageLimit)
		if err != nil {
			return nil, err
		}
		log = append(log, messages...)
		if len(messages) == 0 || meta.TotalPages == 0 || page >= meta.TotalPages {
			return log, nil
		}
	}
}

// SendMessage persists a message. The backend assigns the id and timestamp;
// clientRef lets the caller correlate its optimistic copy with the result.
func (c *Client) SendMessage(ctx context.Context, conversationID, receiverID, bodyText, kind, clientRef string) (*models.ChatMessage, error) {
	payload := map[string]string{
		"receiver_id": receiverID,
		"body":        bodyText,
		"kind":        kind,
		"client_ref":  clientRef,
	}
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages"

	var body struct {
		Message *models.ChatMessage `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &body); err != nil {
		return nil, err
	}
	return body.Message, nil
}

// MarkRead flags the given messages as read by the authenticated user.
// An empty id list is a no-op.
func (c *Client) MarkRead(ctx context.Context, conversationID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	payload := map[string][]string{"message_ids": messageIDs}
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.doJSON(ctx, http.MethodPost, path, payload, nil)
}

// UnreadCount fetches the authoritative unread count for one conversation.
func (c *Client) UnreadCount(ctx context.Context, conversationID string) (int, error) {
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/unread"

	var body struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &body); err != nil {
		return 0, err
	}
	return body.UnreadCount, nil
}

// UnreadCounts fetches the authoritative unread count for every conversation
// of the authenticated user, keyed by conversation id.
func (c *Client) UnreadCounts(ctx context.Context) (map[string]int, error) {
	var body struct {
		Counts map[string]int `json:"counts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/conversations/unread", nil, &body); err != nil {
		return nil, err
	}
	return body.Counts, nil
}

// ClearUnread zeroes the server-side unread counter for a conversation
// without naming individual messages.
func (c *Client) ClearUnread(ctx context.Context, conversationID string) error {
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/unread"
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// Me fetches the authenticated account.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var body struct {
		User *models.User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &body); err != nil {
		return nil, err
	}
	return body.User, nil
}
