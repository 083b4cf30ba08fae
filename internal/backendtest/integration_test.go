package backendtest_test

import (
	"context"
	"testing"
	"time"

	"github.com/abin98anto/skillforge-client/internal/api"
	"github.com/abin98anto/skillforge-client/internal/backendtest"
	"github.com/abin98anto/skillforge-client/internal/chatsync"
	"github.com/abin98anto/skillforge-client/internal/models"
	"github.com/abin98anto/skillforge-client/internal/push"
)

const testSecret = "integration-secret"

func startServer(t *testing.T) *backendtest.Server {
	t.Helper()
	server := backendtest.NewServer(testSecret)
	if err := server.Start(); err != nil {
		t.Fatalf("start fake backend: %v", err)
	}
	t.Cleanup(func() { _ = server.Shutdown() })

	server.SeedUser(models.User{ID: "u1", Name: "Asha", Role: "learner"})
	server.SeedUser(models.User{ID: "t1", Name: "Menon", Role: "tutor"})
	server.SeedConversation(models.Conversation{
		ID:           "c1",
		LearnerID:    "u1",
		InstructorID: "t1",
		CourseID:     "crs-go",
	})
	return server
}

func startClientEngine(t *testing.T, server *backendtest.Server, userID, role string) (*chatsync.Engine, *api.Client) {
	t.Helper()
	token, err := server.Token(userID, role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	client := api.NewClient(server.URL(), token)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	channel, err := push.Dial(ctx, server.WSURL(), token)
	if err != nil {
		t.Fatalf("dial push channel: %v", err)
	}
	t.Cleanup(func() { _ = channel.Close() })

	engine := chatsync.NewEngine(userID, client, channel, chatsync.Options{
		InviteTimeout:    5 * time.Second,
		VideoCallBaseURL: "https://meet.skillforge.test",
	})
	go engine.Run(ctx)
	return engine, client
}

func waitForView(t *testing.T, engine *chatsync.Engine, what string, cond func(chatsync.View) bool) chatsync.View {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var last chatsync.View
	for time.Now().Before(deadline) {
		view, err := engine.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if cond(view) {
			return view
		}
		last = view
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last view: %+v", what, last)
	return chatsync.View{}
}

func TestMessageFlowAcrossRealWire(t *testing.T) {
	server := startServer(t)

	learner, _ := startClientEngine(t, server, "u1", "learner")
	tutor, _ := startClientEngine(t, server, "t1", "tutor")

	waitForView(t, learner, "learner conversation list", func(v chatsync.View) bool {
		return len(v.Conversations) == 1
	})
	waitForView(t, tutor, "tutor conversation list", func(v chatsync.View) bool {
		return len(v.Conversations) == 1
	})

	// Tutor sends while the learner's widget is collapsed.
	if err := tutor.SendMessage("c1", "welcome to the course"); err != nil {
		t.Fatalf("tutor SendMessage: %v", err)
	}

	view := waitForView(t, learner, "learner unread badge", func(v chatsync.View) bool {
		return v.TotalUnread == 1
	})
	if view.Conversations[0].LastMessage == nil || view.Conversations[0].LastMessage.Body != "welcome to the course" {
		t.Fatalf("learner missing cached last message: %+v", view.Conversations[0].LastMessage)
	}

	// Learner opens the conversation: log loads, mark-read runs, badge drops.
	if err := learner.OpenConversation("c1"); err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	waitForView(t, learner, "learner log read", func(v chatsync.View) bool {
		return len(v.Log) == 1 && v.Log[0].IsRead && v.TotalUnread == 0
	})

	// The tutor's copy of the message turns read via the receipt.
	waitForView(t, tutor, "tutor read receipt", func(v chatsync.View) bool {
		last := v.Conversations[0].LastMessage
		return last != nil && last.IsRead
	})
}

func TestReplyReachesOpenConversation(t *testing.T) {
	server := startServer(t)

	learner, _ := startClientEngine(t, server, "u1", "learner")
	tutor, _ := startClientEngine(t, server, "t1", "tutor")

	waitForView(t, learner, "learner list", func(v chatsync.View) bool { return len(v.Conversations) == 1 })
	waitForView(t, tutor, "tutor list", func(v chatsync.View) bool { return len(v.Conversations) == 1 })

	if err := learner.OpenConversation("c1"); err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	if err := learner.SendMessage("c1", "question about lesson 3"); err != nil {
		t.Fatalf("learner SendMessage: %v", err)
	}

	waitForView(t, learner, "own message in log", func(v chatsync.View) bool {
		return len(v.Log) == 1 && v.Log[0].SenderID == "u1"
	})

	// Tutor sees the unread badge, then opens and replies.
	waitForView(t, tutor, "tutor badge", func(v chatsync.View) bool { return v.TotalUnread == 1 })
	if err := tutor.OpenConversation("c1"); err != nil {
		t.Fatalf("tutor OpenConversation: %v", err)
	}
	if err := tutor.SendMessage("c1", "answered in the forum"); err != nil {
		t.Fatalf("tutor SendMessage: %v", err)
	}

	// The reply lands in the learner's open log already marked read, and the
	// badge never moves.
	view := waitForView(t, learner, "reply read in open log", func(v chatsync.View) bool {
		return len(v.Log) == 2 && v.Log[1].IsRead
	})
	if view.TotalUnread != 0 {
		t.Fatalf("open conversation must not accrue unread, got %d", view.TotalUnread)
	}
	if view.Log[1].ReceiverID != "u1" {
		t.Fatalf("tutor reply must target the learner, got %q", view.Log[1].ReceiverID)
	}
}

func TestCallInviteOverWire(t *testing.T) {
	server := startServer(t)
	learner, _ := startClientEngine(t, server, "u1", "learner")

	waitForView(t, learner, "learner list", func(v chatsync.View) bool { return len(v.Conversations) == 1 })

	server.PushInvite(models.CallInvite{
		RoomID:         "room-42",
		ConversationID: "c1",
		CallerID:       "t1",
		CalleeID:       "u1",
		SentAt:         time.Now().UTC(),
	})

	waitForView(t, learner, "invite prompt", func(v chatsync.View) bool {
		return v.Invite != nil && v.Invite.RoomID == "room-42"
	})

	joinURL, err := learner.AcceptInvite()
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if joinURL != "https://meet.skillforge.test/room/room-42?callee=u1&caller=t1" {
		t.Fatalf("unexpected join URL: %s", joinURL)
	}
}

func TestPaymentVerificationAgainstFakeBackend(t *testing.T) {
	server := startServer(t)
	_, client := startClientEngine(t, server, "u1", "learner")

	order, err := client.CreateSubscriptionOrder(context.Background(), "plan-pro")
	if err != nil {
		t.Fatalf("CreateSubscriptionOrder: %v", err)
	}
	if order.OrderID == "" {
		t.Fatal("expected a server-issued order id")
	}

	err = client.VerifyPayment(context.Background(), api.PaymentConfirmation{
		OrderID:   order.OrderID,
		PaymentID: "pay-1",
		Signature: "sig",
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	// A tampered confirmation is rejected as a business failure.
	err = client.VerifyPayment(context.Background(), api.PaymentConfirmation{
		OrderID: "order-unknown",
	})
	if err == nil {
		t.Fatal("expected rejection for unknown order")
	}
}
