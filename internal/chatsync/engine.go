package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abin98anto/skillforge-client/internal/models"
	"github.com/abin98anto/skillforge-client/internal/push"
)

var (
	ErrEngineStopped  = errors.New("chat engine stopped")
	ErrNoPendingCall  = errors.New("no pending call invite")
	ErrEmptyMessage   = errors.New("empty message body")
	ErrNotParticipant = errors.New("current user is not a participant")
)

// Backend is the slice of the REST client the engine drives.
type Backend interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	ConversationLog(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, conversationID, receiverID, body, kind, clientRef string) (*models.ChatMessage, error)
	MarkRead(ctx context.Context, conversationID string, messageIDs []string) error
	UnreadCount(ctx context.Context, conversationID string) (int, error)
	UnreadCounts(ctx context.Context) (map[string]int, error)
}

// Pusher is the slice of the push channel the engine drives. The connection
// itself is constructed by the caller and injected; the engine never owns a
// process-wide singleton.
type Pusher interface {
	JoinUserRoom(userID string) error
	JoinConversationRoom(conversationID string) error
	MarkRead(conversationID string, messageIDs []string) error
	Events() <-chan push.Event
}

type Options struct {
	// InviteTimeout bounds how long a call-invite prompt stays up.
	InviteTimeout time.Duration
	// PollInterval is the authoritative unread-count poll cadence while the
	// widget is collapsed. Zero disables polling.
	PollInterval time.Duration
	// VideoCallBaseURL is the origin join URLs are built on.
	VideoCallBaseURL string
	// Notify receives short user-facing failure messages, suitable for a
	// toast. Nil means failures are only logged.
	Notify func(message string)
	Logger *log.Logger
}

const defaultInviteTimeout = 30 * time.Second

// Engine synchronizes the chat widget state. One goroutine (Run) owns the
// state and consumes a single event queue; public methods post commands onto
// the queue, REST effects run off-loop and post their completions back.
type Engine struct {
	backend Backend
	channel Pusher
	opts    Options
	logger  *log.Logger

	state  *state
	events chan event
	done   chan struct{}

	inviteTimer *time.Timer
}

func NewEngine(userID string, backend Backend, channel Pusher, opts Options) *Engine {
	if opts.InviteTimeout <= 0 {
		opts.InviteTimeout = defaultInviteTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		backend: backend,
		channel: channel,
		opts:    opts,
		logger:  logger,
		state:   newState(userID),
		events:  make(chan event, 64),
		done:    make(chan struct{}),
	}
}

// event is anything the run loop consumes: UI commands, REST completions,
// push deliveries, timer expiries.
type event interface{ isEvent() }

type (
	cmdExpand   struct{}
	cmdCollapse struct{}
	cmdOpen     struct{ conversationID string }
	cmdClose    struct{}
	cmdSend     struct {
		conversationID string
		body           string
		kind           string
	}
	cmdAcceptInvite struct{ reply chan acceptResult }
	cmdDecline      struct{}
	cmdSnapshot     struct{ reply chan View }

	evConversations struct {
		summaries []models.ConversationSummary
		err       error
	}
	evLog struct {
		conversationID string
		messages       []models.ChatMessage
		err            error
	}
	evMarkReadDone struct {
		conversationID string
		messageIDs     []string
		err            error
	}
	evUnreadCount struct {
		conversationID string
		count          int
		err            error
	}
	evUnreadCounts struct {
		counts map[string]int
		err    error
	}
	evSendResult struct {
		conversationID string
		message        *models.ChatMessage
		err            error
	}
	evPush          struct{ event push.Event }
	evInviteTimeout struct{ roomID string }
)

func (cmdExpand) isEvent()       {}
func (cmdCollapse) isEvent()     {}
func (cmdOpen) isEvent()         {}
func (cmdClose) isEvent()        {}
func (cmdSend) isEvent()         {}
func (cmdAcceptInvite) isEvent() {}
func (cmdDecline) isEvent()      {}
func (cmdSnapshot) isEvent()     {}

func (evConversations) isEvent() {}
func (evLog) isEvent()           {}
func (evMarkReadDone) isEvent()  {}
func (evUnreadCount) isEvent()   {}
func (evUnreadCounts) isEvent()  {}
func (evSendResult) isEvent()    {}
func (evPush) isEvent()          {}
func (evInviteTimeout) isEvent() {}

type acceptResult struct {
	joinURL string
	err     error
}

// Run joins the user room, loads the conversation list, then serves the
// queue until ctx is cancelled. It must be called exactly once.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	defer e.stopInviteTimer()

	if err := e.channel.JoinUserRoom(e.state.userID); err != nil {
		e.logger.Printf("chatsync: join user room: %v", err)
	}
	e.loadConversations(ctx)

	var ticker *time.Ticker
	var tick <-chan time.Time
	if e.opts.PollInterval > 0 {
		ticker = time.NewTicker(e.opts.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	pushEvents := e.channel.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			e.dispatch(ctx, ev)
		case pushEv, ok := <-pushEvents:
			if !ok {
				// Connection dropped. No reconnect is scheduled; the poll
				// keeps unread counts honest until the session restarts.
				pushEvents = nil
				continue
			}
			e.dispatch(ctx, evPush{event: pushEv})
		case <-tick:
			if e.state.mode == Collapsed {
				e.pollUnreadCounts(ctx)
			}
		}
	}
}

// post enqueues an event unless the engine has stopped.
func (e *Engine) post(ev event) error {
	select {
	case <-e.done:
		return ErrEngineStopped
	default:
	}
	select {
	case e.events <- ev:
		return nil
	case <-e.done:
		return ErrEngineStopped
	}
}

// Expand opens the widget without selecting a conversation.
func (e *Engine) Expand() error { return e.post(cmdExpand{}) }

// Collapse closes the widget and discards the fetched log.
func (e *Engine) Collapse() error { return e.post(cmdCollapse{}) }

// OpenConversation selects a conversation: its log is fetched, unread
// messages addressed to the current user are marked read, and the local
// counter is zeroed optimistically pending the server's acknowledgement.
func (e *Engine) OpenConversation(conversationID string) error {
	return e.post(cmdOpen{conversationID: conversationID})
}

// CloseConversation deselects the open conversation. The log is retained
// until the widget collapses.
func (e *Engine) CloseConversation() error { return e.post(cmdClose{}) }

// SendMessage persists a text message to the open backend. On failure the
// body is preserved as the conversation's draft so the user can retry.
func (e *Engine) SendMessage(conversationID, body string) error {
	return e.SendMessageKind(conversationID, body, models.KindText)
}

// SendMessageKind sends a message of an explicit kind (text or video-call).
func (e *Engine) SendMessageKind(conversationID, body, kind string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	return e.post(cmdSend{conversationID: conversationID, body: body, kind: kind})
}

// AcceptInvite accepts the pending call invite and returns the join URL.
func (e *Engine) AcceptInvite() (string, error) {
	reply := make(chan acceptResult, 1)
	if err := e.post(cmdAcceptInvite{reply: reply}); err != nil {
		return "", err
	}
	select {
	case result := <-reply:
		return result.joinURL, result.err
	case <-e.done:
		return "", ErrEngineStopped
	}
}

// DeclineInvite dismisses the pending call invite. The caller is not told.
func (e *Engine) DeclineInvite() error { return e.post(cmdDecline{}) }

// Snapshot returns a consistent copy of the current view state.
func (e *Engine) Snapshot() (View, error) {
	reply := make(chan View, 1)
	if err := e.post(cmdSnapshot{reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case view := <-reply:
		return view, nil
	case <-e.done:
		return View{}, ErrEngineStopped
	}
}

func (e *Engine) dispatch(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case cmdExpand:
		e.state.expand()
	case cmdCollapse:
		e.state.collapse()
	case cmdOpen:
		e.handleOpen(ctx, ev.conversationID)
	case cmdClose:
		e.state.closeConversation()
	case cmdSend:
		e.handleSend(ctx, ev)
	case cmdAcceptInvite:
		ev.reply <- e.handleAccept()
	case cmdDecline:
		e.handleDecline()
	case cmdSnapshot:
		ev.reply <- e.state.view()

	case evConversations:
		if ev.err != nil {
			// List left empty; refresh requires reopening the widget.
			e.logger.Printf("chatsync: load conversations: %v", ev.err)
			e.notify("could not load conversations")
			return
		}
		e.state.setConversations(ev.summaries)
	case evLog:
		e.handleLogLoaded(ctx, ev)
	case evMarkReadDone:
		e.handleMarkReadDone(ctx, ev)
	case evUnreadCount:
		if ev.err != nil {
			e.logger.Printf("chatsync: unread count for %s: %v", ev.conversationID, ev.err)
			return
		}
		e.state.setUnreadCount(ev.conversationID, ev.count)
	case evUnreadCounts:
		if ev.err != nil {
			e.logger.Printf("chatsync: poll unread counts: %v", ev.err)
			return
		}
		e.state.setUnreadCounts(ev.counts)
	case evSendResult:
		e.handleSendResult(ev)
	case evPush:
		e.handlePush(ctx, ev.event)
	case evInviteTimeout:
		if e.state.dismissInvite(ev.roomID) {
			e.logger.Printf("chatsync: call invite %s expired", ev.roomID)
		}
	}
}

func (e *Engine) notify(message string) {
	if e.opts.Notify != nil {
		e.opts.Notify(message)
	}
}

func (e *Engine) handleOpen(ctx context.Context, conversationID string) {
	e.state.openConversation(conversationID)
	if err := e.channel.JoinConversationRoom(conversationID); err != nil {
		e.logger.Printf("chatsync: join conversation room: %v", err)
	}

	go func() {
		messages, err := e.backend.ConversationLog(ctx, conversationID)
		_ = e.post(evLog{conversationID: conversationID, messages: messages, err: err})
	}()
}

func (e *Engine) handleLogLoaded(ctx context.Context, ev evLog) {
	if ev.err != nil {
		e.logger.Printf("chatsync: load messages for %s: %v", ev.conversationID, ev.err)
		e.notify("could not load messages")
		return
	}

	toMarkRead := e.state.mergeLog(ev.conversationID, ev.messages)
	if len(toMarkRead) > 0 {
		e.markRead(ctx, ev.conversationID, toMarkRead)
	}
}

func (e *Engine) markRead(ctx context.Context, conversationID string, messageIDs []string) {
	go func() {
		err := e.backend.MarkRead(ctx, conversationID, messageIDs)
		_ = e.post(evMarkReadDone{conversationID: conversationID, messageIDs: messageIDs, err: err})
	}()
}

func (e *Engine) handleMarkReadDone(ctx context.Context, ev evMarkReadDone) {
	if ev.err != nil {
		// The counter was zeroed optimistically; the server may disagree.
		// Re-fetch the authoritative count and let it win.
		e.logger.Printf("chatsync: mark read for %s: %v", ev.conversationID, ev.err)
		go func() {
			count, err := e.backend.UnreadCount(ctx, ev.conversationID)
			_ = e.post(evUnreadCount{conversationID: ev.conversationID, count: count, err: err})
		}()
		return
	}

	e.state.markReadApplied(ev.conversationID, ev.messageIDs)
	if err := e.channel.MarkRead(ev.conversationID, ev.messageIDs); err != nil {
		e.logger.Printf("chatsync: send read receipt: %v", err)
	}
}

func (e *Engine) handleSend(ctx context.Context, cmd cmdSend) {
	// Preserve the body as the draft first: it survives a failed send.
	e.state.drafts[cmd.conversationID] = cmd.body

	receiverID, ok := e.state.resolveReceiver(cmd.conversationID)
	if !ok {
		e.logger.Printf("chatsync: send to %s: %v", cmd.conversationID, ErrNotParticipant)
		return
	}

	kind := cmd.kind
	if kind == "" {
		kind = models.KindText
	}
	clientRef := uuid.NewString()

	go func() {
		message, err := e.backend.SendMessage(ctx, cmd.conversationID, receiverID, cmd.body, kind, clientRef)
		_ = e.post(evSendResult{conversationID: cmd.conversationID, message: message, err: err})
	}()
}

func (e *Engine) handleSendResult(ev evSendResult) {
	if ev.err != nil {
		// Draft stays; the user retries by hand. No automatic retry.
		e.logger.Printf("chatsync: send message to %s: %v", ev.conversationID, ev.err)
		e.notify("message not sent")
		return
	}
	if ev.message != nil {
		e.state.recordSent(*ev.message)
	}
}

func (e *Engine) handlePush(ctx context.Context, pushEv push.Event) {
	switch pushEv.Type {
	case push.EventNewMessage:
		message, err := pushEv.NewMessage()
		if err != nil {
			e.logger.Printf("chatsync: decode new-message: %v", err)
			return
		}
		e.receiveMessage(ctx, *message)
	case push.EventReadReceipt:
		receipt, err := pushEv.ReadReceipt()
		if err != nil {
			e.logger.Printf("chatsync: decode read-receipt: %v", err)
			return
		}
		e.state.applyReadReceipt(receipt.ConversationID, receipt.MessageIDs)
	case push.EventCallInvite:
		invite, err := pushEv.CallInvite()
		if err != nil {
			e.logger.Printf("chatsync: decode call-invite: %v", err)
			return
		}
		e.receiveInvite(*invite)
	default:
		e.logger.Printf("chatsync: ignoring push event %q", pushEv.Type)
	}
}

func (e *Engine) receiveMessage(ctx context.Context, message models.ChatMessage) {
	result := e.state.applyPushMessage(message)
	switch {
	case result.Rejected:
		e.logger.Printf("chatsync: rejecting push message without id in %s", message.ConversationID)
		return
	case result.Duplicate:
		return
	}

	if result.UnknownConversation {
		// A conversation we have never listed; re-fetch so the list view
		// picks it up with server-computed counts.
		e.loadConversations(ctx)
	}
	if result.NeedMarkRead {
		e.markRead(ctx, message.ConversationID, []string{message.ID})
	}
}

func (e *Engine) receiveInvite(invite models.CallInvite) {
	now := time.Now()
	if !e.state.armInvite(invite, now, now.Add(e.opts.InviteTimeout)) {
		return
	}

	e.stopInviteTimer()
	roomID := invite.RoomID
	e.inviteTimer = time.AfterFunc(e.opts.InviteTimeout, func() {
		_ = e.post(evInviteTimeout{roomID: roomID})
	})
}

func (e *Engine) handleAccept() acceptResult {
	invite := e.state.invite
	if invite == nil {
		return acceptResult{err: ErrNoPendingCall}
	}
	e.state.dismissInvite(invite.RoomID)
	e.stopInviteTimer()
	return acceptResult{joinURL: BuildJoinURL(e.opts.VideoCallBaseURL, *invite)}
}

func (e *Engine) handleDecline() {
	if e.state.invite == nil {
		return
	}
	// Dismiss locally only; the caller is never told the offer lapsed.
	e.state.dismissInvite(e.state.invite.RoomID)
	e.stopInviteTimer()
}

func (e *Engine) stopInviteTimer() {
	if e.inviteTimer != nil {
		e.inviteTimer.Stop()
		e.inviteTimer = nil
	}
}

func (e *Engine) loadConversations(ctx context.Context) {
	go func() {
		summaries, err := e.backend.ListConversations(ctx)
		_ = e.post(evConversations{summaries: summaries, err: err})
	}()
}

func (e *Engine) pollUnreadCounts(ctx context.Context) {
	go func() {
		counts, err := e.backend.UnreadCounts(ctx)
		_ = e.post(evUnreadCounts{counts: counts, err: err})
	}()
}

// BuildJoinURL constructs the video-room URL an accepted invite navigates
// to: the room id plus both participant identifiers.
func BuildJoinURL(baseURL string, invite models.CallInvite) string {
	query := url.Values{}
	query.Set("caller", invite.CallerID)
	query.Set("callee", invite.CalleeID)
	return fmt.Sprintf("%s/room/%s?%s",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(invite.RoomID),
		query.Encode(),
	)
}
