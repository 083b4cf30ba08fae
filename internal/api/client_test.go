package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abin98anto/skillforge-client/internal/models"
)

func TestListConversationsDecodesSummaries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/conversations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("expected bearer token, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"conversations": []models.ConversationSummary{
				{
					Conversation: models.Conversation{ID: "c1", LearnerID: "u1", InstructorID: "t1", CourseID: "crs1"},
					LastMessage: &models.ChatMessage{
						ID:             "m9",
						ConversationID: "c1",
						SenderID:       "t1",
						Body:           "See you tomorrow",
						Kind:           models.KindText,
						CreatedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
					},
					UnreadCount: 2,
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok-1")
	conversations, err := client.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(conversations) != 1 || conversations[0].UnreadCount != 2 {
		t.Fatalf("unexpected result: %+v", conversations)
	}
	if conversations[0].LastMessage == nil || conversations[0].LastMessage.ID != "m9" {
		t.Fatalf("expected cached last message, got %+v", conversations[0].LastMessage)
	}
}

func TestSendMessagePostsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/conversations/c1/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["receiver_id"] != "t1" || payload["body"] != "hello" || payload["kind"] != models.KindText {
			t.Errorf("unexpected payload: %+v", payload)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": models.ChatMessage{
				ID:             "m1",
				ClientRef:      payload["client_ref"],
				ConversationID: "c1",
				SenderID:       "u1",
				ReceiverID:     "t1",
				Body:           "hello",
				Kind:           models.KindText,
				CreatedAt:      time.Now().UTC(),
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok-1")
	message, err := client.SendMessage(context.Background(), "c1", "t1", "hello", models.KindText, "ref-1")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if message.ID != "m1" || message.ClientRef != "ref-1" {
		t.Fatalf("unexpected message: %+v", message)
	}
}

func TestErrorEnvelopeBecomesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Conversation not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok-1")
	_, _, err := client.ListMessages(context.Background(), "missing", 1, 10)
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "Conversation not found" {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected errors.Is(err, ErrNotFound)")
	}
}

func TestMarkReadSkipsEmptyBatch(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok-1")
	if err := client.MarkRead(context.Background(), "c1", nil); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if called {
		t.Fatal("expected no request for an empty id batch")
	}
}

func TestVerifyPaymentForwardsConfirmation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/payments/verify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var confirmation PaymentConfirmation
		if err := json.NewDecoder(r.Body).Decode(&confirmation); err != nil {
			t.Errorf("decode confirmation: %v", err)
		}
		if confirmation.OrderID != "ord-1" || confirmation.Signature != "sig" {
			t.Errorf("unexpected confirmation: %+v", confirmation)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "captured"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok-1")
	err := client.VerifyPayment(context.Background(), PaymentConfirmation{
		OrderID:   "ord-1",
		PaymentID: "pay-1",
		Signature: "sig",
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
}
