// Package backendtest is an in-process fake of the SkillForge backend for
// integration tests: the REST surface the client consumes plus a websocket
// hub that fans push events out per user room. State lives in maps and is
// seeded by tests; nothing here is a product backend.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/abin98anto/skillforge-client/internal/models"
	"github.com/abin98anto/skillforge-client/internal/push"
	"github.com/abin98anto/skillforge-client/internal/session"
)

type Server struct {
	app       *fiber.App
	hub       *hub
	jwtSecret string
	addr      string

	mu            sync.Mutex
	users         map[string]models.User
	conversations map[string]*models.Conversation
	messages      map[string][]models.ChatMessage
	orders        map[string]string
	nextMessageID int
	nextOrderID   int
}

func NewServer(jwtSecret string) *Server {
	s := &Server{
		app:           fiber.New(fiber.Config{DisableStartupMessage: true}),
		hub:           newHub(),
		jwtSecret:     jwtSecret,
		users:         make(map[string]models.User),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.ChatMessage),
		orders:        make(map[string]string),
	}
	s.registerRoutes()
	return s
}

// Start binds an ephemeral port and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = listener.Addr().String()

	go func() {
		_ = s.app.Listener(listener)
	}()

	return s.waitForHealth()
}

func (s *Server) waitForHealth() error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(s.URL() + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("fake backend never became healthy at %s", s.addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) URL() string   { return "http://" + s.addr }
func (s *Server) WSURL() string { return "ws://" + s.addr + "/api/v1/ws" }

// Token issues a signed bearer token for a seeded user.
func (s *Server) Token(userID, role string) (string, error) {
	return session.GenerateToken(userID, role, s.jwtSecret, time.Hour)
}

// SeedUser registers an account.
func (s *Server) SeedUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// SeedConversation registers a conversation between a learner and an
// instructor.
func (s *Server) SeedConversation(conversation models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := conversation
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
		copied.UpdatedAt = copied.CreatedAt
	}
	s.conversations[copied.ID] = &copied
}

// PushInvite emits a call-invite event to the callee's user room, the way
// the real backend relays a caller's invitation.
func (s *Server) PushInvite(invite models.CallInvite) {
	s.hub.emit("user:"+invite.CalleeID, push.EventCallInvite, invite)
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api")

	auth := api.Group("/auth")
	auth.Get("/me", s.authRequired, s.handleMe)

	v1 := api.Group("/v1", s.authRequired)

	conversations := v1.Group("/conversations")
	conversations.Get("", s.handleListConversations)
	conversations.Post("", s.handleCreateConversation)
	conversations.Get("/unread", s.handleUnreadCounts)
	conversations.Get("/:id/messages", s.handleListMessages)
	conversations.Post("/:id/messages", s.handleSendMessage)
	conversations.Post("/:id/read", s.handleMarkRead)
	conversations.Get("/:id/unread", s.handleUnreadCount)
	conversations.Delete("/:id/unread", s.handleClearUnread)

	payments := v1.Group("/payments")
	payments.Post("/orders", s.handleCreateOrder)
	payments.Post("/verify", s.handleVerifyPayment)

	api.Use("/v1/ws", s.wsAuth)
	api.Get("/v1/ws", websocket.New(s.handleWebSocket))
}

func (s *Server) authRequired(c *fiber.Ctx) error {
	claims, err := s.parseClaims(c.Get("Authorization"), c.Query("token"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (s *Server) wsAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}
	claims, err := s.parseClaims(c.Get("Authorization"), c.Query("token"))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	c.Locals("user_id", claims.UserID)
	return c.Next()
}

func (s *Server) parseClaims(authHeader, queryToken string) (*session.Claims, error) {
	token := strings.TrimSpace(queryToken)
	if token == "" {
		header := strings.TrimSpace(authHeader)
		parts := strings.Split(header, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return nil, fmt.Errorf("missing token")
	}
	return session.ValidateToken(token, s.jwtSecret)
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	s.mu.Lock()
	user, ok := s.users[userID]
	s.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	return c.JSON(fiber.Map{"user": user})
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]models.ConversationSummary, 0)
	for _, conversation := range s.conversations {
		if conversation.LearnerID != userID && conversation.InstructorID != userID {
			continue
		}
		summaries = append(summaries, s.summarizeLocked(conversation, userID))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	return c.JSON(fiber.Map{"conversations": summaries})
}

func (s *Server) summarizeLocked(conversation *models.Conversation, userID string) models.ConversationSummary {
	summary := models.ConversationSummary{Conversation: *conversation}
	log := s.messages[conversation.ID]
	if len(log) > 0 {
		last := log[len(log)-1]
		summary.LastMessage = &last
	}
	for _, message := range log {
		if message.ReceiverID == userID && !message.IsRead {
			summary.UnreadCount++
		}
	}
	return summary
}

func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req struct {
		InstructorID string `json:"instructor_id"`
		CourseID     string `json:"course_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.InstructorID == "" || req.InstructorID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// One conversation per (learner, instructor, course) triple.
	for _, conversation := range s.conversations {
		if conversation.LearnerID == userID &&
			conversation.InstructorID == req.InstructorID &&
			conversation.CourseID == req.CourseID {
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
		}
	}

	now := time.Now().UTC()
	conversation := &models.Conversation{
		ID:           fmt.Sprintf("conv-%d", len(s.conversations)+1),
		LearnerID:    userID,
		InstructorID: req.InstructorID,
		CourseID:     req.CourseID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.conversations[conversation.ID] = conversation
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (s *Server) conversationForParticipant(conversationID, userID string) (*models.Conversation, bool) {
	conversation, ok := s.conversations[conversationID]
	if !ok {
		return nil, false
	}
	if conversation.LearnerID != userID && conversation.InstructorID != userID {
		return nil, false
	}
	return conversation, true
}

func (s *Server) handleListMessages(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	conversationID := c.Params("id")

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page <= 0 || limit <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid pagination"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversationForParticipant(conversationID, userID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	}

	log := s.messages[conversationID]
	total := len(log)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return c.JSON(fiber.Map{
		"messages": log[start:end],
		"pagination": models.PaginationMeta{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	conversationID := c.Params("id")

	var req struct {
		ReceiverID string `json:"receiver_id"`
		Body       string `json:"body"`
		Kind       string `json:"kind"`
		ClientRef  string `json:"client_ref"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Body) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	s.mu.Lock()
	conversation, ok := s.conversationForParticipant(conversationID, userID)
	if !ok {
		s.mu.Unlock()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	}

	kind := req.Kind
	if kind == "" {
		kind = models.KindText
	}
	s.nextMessageID++
	message := models.ChatMessage{
		ID:             fmt.Sprintf("msg-%d", s.nextMessageID),
		ClientRef:      req.ClientRef,
		ConversationID: conversationID,
		SenderID:       userID,
		ReceiverID:     req.ReceiverID,
		Body:           req.Body,
		Kind:           kind,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], message)
	conversation.UpdatedAt = message.CreatedAt
	s.mu.Unlock()

	// Fan out to both participants, the way the production hub delivers.
	s.hub.emit("user:"+message.ReceiverID, push.EventNewMessage, message)
	if message.ReceiverID != userID {
		s.hub.emit("user:"+userID, push.EventNewMessage, message)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (s *Server) handleMarkRead(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	conversationID := c.Params("id")

	var req struct {
		MessageIDs []string `json:"message_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	s.mu.Lock()
	conversation, ok := s.conversationForParticipant(conversationID, userID)
	if !ok {
		s.mu.Unlock()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	}

	ids := make(map[string]struct{}, len(req.MessageIDs))
	for _, id := range req.MessageIDs {
		ids[id] = struct{}{}
	}
	var marked []string
	log := s.messages[conversationID]
	for i := range log {
		if _, wanted := ids[log[i].ID]; wanted && log[i].ReceiverID == userID {
			log[i].IsRead = true
			marked = append(marked, log[i].ID)
		}
	}
	counterpart, _ := conversation.OtherParticipant(userID)
	s.mu.Unlock()

	if len(marked) > 0 && counterpart != "" {
		s.hub.emit("user:"+counterpart, push.EventReadReceipt, push.ReadReceipt{
			ConversationID: conversationID,
			ReaderID:       userID,
			MessageIDs:     marked,
		})
	}

	return c.JSON(fiber.Map{"marked": len(marked)})
}

func (s *Server) unreadCountLocked(conversationID, userID string) int {
	count := 0
	for _, message := range s.messages[conversationID] {
		if message.ReceiverID == userID && !message.IsRead {
			count++
		}
	}
	return count
}

func (s *Server) handleUnreadCount(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	conversationID := c.Params("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversationForParticipant(conversationID, userID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	}
	return c.JSON(fiber.Map{"unread_count": s.unreadCountLocked(conversationID, userID)})
}

func (s *Server) handleUnreadCounts(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	total := 0
	for id, conversation := range s.conversations {
		if conversation.LearnerID != userID && conversation.InstructorID != userID {
			continue
		}
		count := s.unreadCountLocked(id, userID)
		counts[id] = count
		total += count
	}
	return c.JSON(fiber.Map{"counts": counts, "total": total})
}

func (s *Server) handleClearUnread(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	conversationID := c.Params("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversationForParticipant(conversationID, userID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	}
	log := s.messages[conversationID]
	for i := range log {
		if log[i].ReceiverID == userID {
			log[i].IsRead = true
		}
	}
	return c.JSON(fiber.Map{"unread_count": 0})
}

func (s *Server) handleCreateOrder(c *fiber.Ctx) error {
	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.PlanID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	s.mu.Lock()
	s.nextOrderID++
	orderID := fmt.Sprintf("order-%d", s.nextOrderID)
	s.orders[orderID] = req.PlanID
	s.mu.Unlock()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order": fiber.Map{
			"order_id": orderID,
			"amount":   4999,
			"currency": "INR",
		},
	})
}

func (s *Server) handleVerifyPayment(c *fiber.Ctx) error {
	var req struct {
		OrderID   string `json:"order_id"`
		PaymentID string `json:"payment_id"`
		Signature string `json:"signature"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	s.mu.Lock()
	_, known := s.orders[req.OrderID]
	s.mu.Unlock()
	if !known || req.Signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Verification failed"})
	}
	return c.JSON(fiber.Map{"status": "captured"})
}

func (s *Server) handleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	client := s.hub.newClient(conn, userID)

	go client.writePump()
	defer func() {
		s.hub.drop(client)
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var event push.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}

		switch event.Type {
		case push.EventJoinUserRoom, push.EventJoinConversationRoom:
			var join struct {
				Room string `json:"room"`
			}
			if err := json.Unmarshal(event.Data, &join); err != nil || join.Room == "" {
				continue
			}
			s.hub.join(client, join.Room)
		case push.EventMarkRead:
			s.relayReadReceipt(userID, event.Data)
		case push.EventSendMessage:
			// Proactive client publish; this backend persists over REST only.
		}
	}
}

func (s *Server) relayReadReceipt(userID string, data json.RawMessage) {
	var req struct {
		ConversationID string   `json:"conversation_id"`
		MessageIDs     []string `json:"message_ids"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	s.mu.Lock()
	conversation, ok := s.conversationForParticipant(req.ConversationID, userID)
	var counterpart string
	if ok {
		counterpart, _ = conversation.OtherParticipant(userID)
	}
	s.mu.Unlock()
	if counterpart == "" {
		return
	}

	s.hub.emit("user:"+counterpart, push.EventReadReceipt, push.ReadReceipt{
		ConversationID: req.ConversationID,
		ReaderID:       userID,
		MessageIDs:     req.MessageIDs,
	})
}
