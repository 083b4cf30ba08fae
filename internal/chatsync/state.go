// Package chatsync keeps the chat widget's view of the world - conversation
// list, unread badges, the open message log - consistent with the backend.
// All logic lives in a reducer over plain state so it is testable without any
// UI framework or live connection; the Engine drives the reducer from a
// single event queue fed by REST completions and push events.
package chatsync

import (
	"sort"
	"time"

	"github.com/abin98anto/skillforge-client/internal/models"
)

// WidgetMode is the coarse widget state. A conversation can only be open
// while the widget is expanded.
type WidgetMode int

const (
	Collapsed WidgetMode = iota
	Expanded
)

// state is the reducer's single source of truth. Only the engine goroutine
// touches it; external readers get copies via View.
type state struct {
	userID string

	mode       WidgetMode
	openConvID string

	summaries map[string]*models.ConversationSummary
	unread    map[string]int

	// log holds the fetched message log for logConvID. It survives
	// CloseConversation and is dropped when the widget collapses.
	log       []models.ChatMessage
	logConvID string

	// seen records every message id ever observed, the sole dedup key.
	seen map[string]struct{}

	drafts map[string]string

	invite         *models.CallInvite
	inviteArmedAt  time.Time
	inviteDeadline time.Time
}

func newState(userID string) *state {
	return &state{
		userID:    userID,
		mode:      Collapsed,
		summaries: make(map[string]*models.ConversationSummary),
		unread:    make(map[string]int),
		seen:      make(map[string]struct{}),
		drafts:    make(map[string]string),
	}
}

func (s *state) totalUnread() int {
	total := 0
	for _, n := range s.unread {
		total += n
	}
	return total
}

func (s *state) summary(conversationID string) *models.ConversationSummary {
	return s.summaries[conversationID]
}

// setConversations replaces the list with a fresh fetch. The server-computed
// unread counts are authoritative and overwrite local counters.
func (s *state) setConversations(summaries []models.ConversationSummary) {
	s.summaries = make(map[string]*models.ConversationSummary, len(summaries))
	s.unread = make(map[string]int, len(summaries))
	for i := range summaries {
		summary := summaries[i]
		s.summaries[summary.ID] = &summary
		if summary.UnreadCount > 0 {
			s.unread[summary.ID] = summary.UnreadCount
		}
		if summary.LastMessage != nil && summary.LastMessage.ID != "" {
			s.seen[summary.LastMessage.ID] = struct{}{}
		}
	}
}

// pushResult tells the engine which effects a push message requires.
type pushResult struct {
	Rejected            bool // no id: not a trustable message
	Duplicate           bool
	NeedMarkRead        bool // open conversation, addressed to us
	UnknownConversation bool // summary missing, list re-fetch needed
}

// applyPushMessage folds one push-delivered message into view state.
// Deduplication is by server-assigned id only.
func (s *state) applyPushMessage(message models.ChatMessage) pushResult {
	if message.ID == "" {
		return pushResult{Rejected: true}
	}
	if _, dup := s.seen[message.ID]; dup {
		return pushResult{Duplicate: true}
	}
	s.seen[message.ID] = struct{}{}

	var result pushResult

	summary := s.summary(message.ConversationID)
	if summary == nil {
		result.UnknownConversation = true
	} else {
		copied := message
		summary.LastMessage = &copied
		summary.UpdatedAt = message.CreatedAt
	}

	open := s.openConvID == message.ConversationID

	if open {
		s.log = append(s.log, message)
	}

	if message.ReceiverID == s.userID {
		if open {
			result.NeedMarkRead = true
		} else {
			s.unread[message.ConversationID]++
			if summary != nil {
				summary.UnreadCount = s.unread[message.ConversationID]
			}
		}
	}

	return result
}

// openConversation selects the conversation and optimistically zeroes its
// unread counter; the engine reconciles against the server afterwards.
func (s *state) openConversation(conversationID string) {
	s.mode = Expanded
	s.openConvID = conversationID
	if s.logConvID != conversationID {
		s.log = nil
		s.logConvID = conversationID
	}
	s.zeroUnread(conversationID)
}

func (s *state) zeroUnread(conversationID string) {
	delete(s.unread, conversationID)
	if summary := s.summary(conversationID); summary != nil {
		summary.UnreadCount = 0
	}
}

// mergeLog folds a fetched message page into the open log by id, so a fetch
// racing a push delivery cannot double-insert or clobber either side.
// Returns the ids of fetched messages addressed to us and still unread.
func (s *state) mergeLog(conversationID string, messages []models.ChatMessage) []string {
	if s.logConvID != conversationID {
		// Fetch resolved after the user moved on; its result is stale.
		return nil
	}

	present := make(map[string]struct{}, len(s.log))
	for _, message := range s.log {
		present[message.ID] = struct{}{}
	}

	var toMarkRead []string
	for _, message := range messages {
		if message.ID == "" {
			continue
		}
		if message.ReceiverID == s.userID && !message.IsRead {
			toMarkRead = append(toMarkRead, message.ID)
		}
		// Dedup against the log itself: a message observed earlier over push
		// may be globally seen yet still missing from a freshly fetched log.
		if _, dup := present[message.ID]; dup {
			continue
		}
		present[message.ID] = struct{}{}
		s.seen[message.ID] = struct{}{}
		s.log = append(s.log, message)
	}

	sort.SliceStable(s.log, func(i, j int) bool {
		return s.log[i].CreatedAt.Before(s.log[j].CreatedAt)
	})

	return toMarkRead
}

// markReadApplied records the server's acknowledgement of a mark-read batch.
func (s *state) markReadApplied(conversationID string, messageIDs []string) {
	s.zeroUnread(conversationID)

	ids := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}
	if s.logConvID == conversationID {
		for i := range s.log {
			if _, ok := ids[s.log[i].ID]; ok {
				s.log[i].IsRead = true
			}
		}
	}
	if summary := s.summary(conversationID); summary != nil && summary.LastMessage != nil {
		if _, ok := ids[summary.LastMessage.ID]; ok {
			summary.LastMessage.IsRead = true
		}
	}
}

// setUnreadCount overwrites one local counter with the server's value.
func (s *state) setUnreadCount(conversationID string, count int) {
	if count <= 0 {
		s.zeroUnread(conversationID)
		return
	}
	s.unread[conversationID] = count
	if summary := s.summary(conversationID); summary != nil {
		summary.UnreadCount = count
	}
}

// setUnreadCounts overwrites every local counter with an authoritative poll.
// Conversations absent from the poll are zeroed.
func (s *state) setUnreadCounts(counts map[string]int) {
	s.unread = make(map[string]int, len(counts))
	for id, summary := range s.summaries {
		summary.UnreadCount = counts[id]
		if counts[id] > 0 {
			s.unread[id] = counts[id]
		}
	}
	for id, count := range counts {
		if _, known := s.summaries[id]; !known && count > 0 {
			s.unread[id] = count
		}
	}
}

// applyReadReceipt marks our own sent messages read once the counterpart
// reports reading them.
func (s *state) applyReadReceipt(conversationID string, messageIDs []string) {
	ids := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}
	if s.logConvID == conversationID {
		for i := range s.log {
			if _, ok := ids[s.log[i].ID]; ok && s.log[i].SenderID == s.userID {
				s.log[i].IsRead = true
			}
		}
	}
	if summary := s.summary(conversationID); summary != nil && summary.LastMessage != nil {
		if _, ok := ids[summary.LastMessage.ID]; ok && summary.LastMessage.SenderID == s.userID {
			summary.LastMessage.IsRead = true
		}
	}
}

// recordSent folds a successfully persisted outgoing message in and clears
// the draft.
func (s *state) recordSent(message models.ChatMessage) {
	if message.ID != "" {
		if _, dup := s.seen[message.ID]; !dup {
			s.seen[message.ID] = struct{}{}
			if s.logConvID == message.ConversationID {
				s.log = append(s.log, message)
			}
		}
	}
	if summary := s.summary(message.ConversationID); summary != nil {
		copied := message
		summary.LastMessage = &copied
		summary.UpdatedAt = message.CreatedAt
	}
	delete(s.drafts, message.ConversationID)
}

func (s *state) closeConversation() {
	s.openConvID = ""
}

func (s *state) collapse() {
	s.mode = Collapsed
	s.openConvID = ""
	s.log = nil
	s.logConvID = ""
}

func (s *state) expand() {
	s.mode = Expanded
}

// resolveReceiver computes "the other participant" for an outgoing message.
func (s *state) resolveReceiver(conversationID string) (string, bool) {
	summary := s.summary(conversationID)
	if summary == nil {
		return "", false
	}
	return summary.OtherParticipant(s.userID)
}

// armInvite accepts an inbound invite addressed to us. A newer invite
// replaces a pending one.
func (s *state) armInvite(invite models.CallInvite, now, deadline time.Time) bool {
	if invite.CalleeID != s.userID {
		return false
	}
	copied := invite
	s.invite = &copied
	s.inviteArmedAt = now
	s.inviteDeadline = deadline
	return true
}

// dismissInvite clears the prompt if it still refers to the given room.
func (s *state) dismissInvite(roomID string) bool {
	if s.invite == nil || s.invite.RoomID != roomID {
		return false
	}
	s.invite = nil
	return true
}

// View is an immutable snapshot for renderers. Conversations are ordered by
// last activity, newest first.
type View struct {
	Mode               WidgetMode
	OpenConversationID string
	Placeholder        bool
	Conversations      []models.ConversationSummary
	TotalUnread        int
	Log                []models.ChatMessage
	Drafts             map[string]string
	Invite             *models.CallInvite
}

func (s *state) view() View {
	conversations := make([]models.ConversationSummary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		copied := *summary
		if summary.LastMessage != nil {
			last := *summary.LastMessage
			copied.LastMessage = &last
		}
		copied.UnreadCount = s.unread[summary.ID]
		conversations = append(conversations, copied)
	}
	sort.Slice(conversations, func(i, j int) bool {
		if !conversations[i].UpdatedAt.Equal(conversations[j].UpdatedAt) {
			return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
		}
		return conversations[i].ID < conversations[j].ID
	})

	drafts := make(map[string]string, len(s.drafts))
	for id, text := range s.drafts {
		drafts[id] = text
	}

	var invite *models.CallInvite
	if s.invite != nil {
		copied := *s.invite
		invite = &copied
	}

	return View{
		Mode:               s.mode,
		OpenConversationID: s.openConvID,
		Placeholder:        len(s.summaries) == 0,
		Conversations:      conversations,
		TotalUnread:        s.totalUnread(),
		Log:                append([]models.ChatMessage(nil), s.log...),
		Drafts:             drafts,
		Invite:             invite,
	}
}
