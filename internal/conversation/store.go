// Package conversation keeps the contact list and the message list of the
// open conversation in step with the messaging API. Sends are shown
// immediately as pending messages and rolled back if the API rejects
// them.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	errs "github.com/alexjbarnes/relaydeck/internal/errors"
	"github.com/alexjbarnes/relaydeck/internal/metrics"
	"github.com/alexjbarnes/relaydeck/internal/notice"
	"github.com/alexjbarnes/relaydeck/upstream"
)

// tempIDPrefix marks client-generated ids of messages still in flight.
const tempIDPrefix = "tmp-"

// MessageAPI is the subset of the upstream client the store needs.
//
//go:generate mockgen -source=store.go -destination=mock_api_test.go -package=conversation
type MessageAPI interface {
	ListConversations(ctx context.Context, req upstream.ListConversationsRequest) ([]upstream.ConversationSummary, error)
	FetchMessages(ctx context.Context, req upstream.FetchMessagesRequest) ([]upstream.RawMessage, error)
	SendMessage(ctx context.Context, req upstream.SendMessageRequest) (*upstream.SentMessage, error)
}

// SessionSource supplies the messaging session for each API call.
type SessionSource interface {
	Session() upstream.Session
}

// Notifier surfaces transient failures to the operator.
type Notifier interface {
	Post(level notice.Level, msg string)
}

// Config controls paging and timing.
type Config struct {
	PageSize       int
	ResyncInterval time.Duration
	RefetchDelay   time.Duration
}

// Store is the single owner of the contact list and the active message
// list. While a conversation is open its messages are refetched every
// ResyncInterval; opening another conversation or closing the store
// stops that loop, so at most one resync loop is ever running.
type Store struct {
	api     MessageAPI
	session SessionSource
	notices Notifier
	cfg     Config
	logger  *slog.Logger

	mu            sync.Mutex
	conversations []Conversation
	active        *Conversation
	messages      []Message
	stopResync    context.CancelFunc
	refetch       *time.Timer
	closed        bool

	// sendGen counts confirmed sends. confirmedGen maps each confirmed
	// message id to the sendGen it was confirmed at, until a fetch that
	// started after the confirmation has replaced the list.
	sendGen      uint64
	confirmedGen map[string]uint64
}

// NewStore creates an empty store.
func NewStore(api MessageAPI, session SessionSource, notices Notifier, cfg Config, logger *slog.Logger) *Store {
	return &Store{
		api:     api,
		session: session,
		notices: notices,
		cfg:     cfg,
		logger:  logger,
	}
}

// ListConversations fetches one page of conversations in API order and
// replaces the contact list with it. The open conversation always reads
// as having no unread messages, whatever the API reports.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	sess := s.session.Session()

	summaries, err := s.api.ListConversations(ctx, upstream.ListConversationsRequest{
		SessionCredentials: sess.Credentials,
		PageSize:           s.cfg.PageSize,
		AsOf:               time.Now().UnixMilli(),
		MailboxID:          sess.MailboxID,
	})
	if err != nil {
		s.requestFailed("Failed to load conversations", err)
		return nil, err
	}

	convs := make([]Conversation, 0, len(summaries))
	for _, sum := range summaries {
		convs = append(convs, fromSummary(sum, sess.SelfID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		for i := range convs {
			if convs[i].ID == s.active.ID {
				convs[i].Unread = 0
			}
		}
	}
	s.conversations = convs

	return slices.Clone(convs), nil
}

// Conversations returns the contact list from the last successful
// ListConversations.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.conversations)
}

// Conversation looks up a loaded conversation by id.
func (s *Store) Conversation(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return Conversation{}, false
}

// Filter returns the loaded conversations whose name or last message
// contains query, ignoring case. An empty query returns all of them.
func (s *Store) Filter(query string) []Conversation {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	defer s.mu.Unlock()

	if query == "" {
		return slices.Clone(s.conversations)
	}

	var out []Conversation
	for _, c := range s.conversations {
		if strings.Contains(strings.ToLower(c.Name), query) ||
			strings.Contains(strings.ToLower(c.LastMessage), query) {
			out = append(out, c)
		}
	}
	return out
}

// Active returns the open conversation.
func (s *Store) Active() (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Conversation{}, false
	}
	return *s.active, true
}

// Messages returns the message list of the open conversation.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// OpenConversation makes conv the active conversation, clears the
// message list, zeroes its unread counter, fetches its messages and
// starts the resync loop. The loop outlives ctx and runs until another
// conversation is opened or the store is closed.
func (s *Store) OpenConversation(ctx context.Context, conv Conversation) error {
	conv.Unread = 0

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errs.ErrNoActiveConversation
	}

	s.stopTimersLocked()
	s.active = &conv
	s.messages = nil
	s.confirmedGen = nil
	for i := range s.conversations {
		if s.conversations[i].ID == conv.ID {
			s.conversations[i].Unread = 0
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopResync = cancel
	s.mu.Unlock()

	s.logger.Debug("conversation opened", slog.String("conversation_id", conv.ID))

	go s.resyncLoop(loopCtx, conv.ID)

	return s.FetchMessages(ctx, conv.ID)
}

// FetchMessages replaces the message list of conversationID with the
// API's history, ordered by timestamp. Messages still pending are kept,
// as are messages confirmed after the fetch started that its history
// does not yet include. The result is discarded if another conversation
// was opened while the fetch was in flight.
func (s *Store) FetchMessages(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if s.active == nil || s.active.ID != conversationID {
		s.mu.Unlock()
		return errs.ErrNoActiveConversation
	}
	counterparty := s.active.Counterparty.Name
	startGen := s.sendGen
	s.mu.Unlock()

	sess := s.session.Session()

	raw, err := s.api.FetchMessages(ctx, upstream.FetchMessagesRequest{
		ConversationID:     conversationID,
		SessionCredentials: sess.Credentials,
		SelfID:             sess.SelfID,
	})
	if err != nil {
		metrics.MessageFetchTotal.WithLabelValues("error").Inc()
		s.requestFailed("Failed to load messages", err)
		return err
	}
	metrics.MessageFetchTotal.WithLabelValues("ok").Inc()

	fetched := make([]Message, 0, len(raw))
	for _, r := range raw {
		fetched = append(fetched, parseMessage(r, counterparty))
	}
	sortMessages(fetched, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.ID != conversationID {
		s.logger.Debug("discarding messages for conversation no longer open",
			slog.String("conversation_id", conversationID),
		)
		return nil
	}

	returned := make(map[string]bool, len(fetched))
	for _, m := range fetched {
		returned[m.ID] = true
	}

	for _, m := range s.messages {
		if m.Pending || (s.confirmedGen[m.ID] > startGen && !returned[m.ID]) {
			fetched = append(fetched, m)
		}
	}
	s.messages = fetched

	for id, gen := range s.confirmedGen {
		if gen <= startGen || returned[id] {
			delete(s.confirmedGen, id)
		}
	}

	return nil
}

// SendMessage shows text as a pending message at once, then sends it.
// On success the pending entry is replaced by the confirmed message and
// a refetch is scheduled after RefetchDelay. On failure the pending
// entry is removed and an error wrapping ErrSendFailure is returned.
// Failed sends are never retried.
func (s *Store) SendMessage(ctx context.Context, conversationID, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, errs.ErrEmptyMessage
	}

	tempID := tempIDPrefix + uuid.NewString()
	pending := Message{
		ID:        tempID,
		Text:      text,
		Origin:    OriginSelf,
		Timestamp: time.Now(),
		Pending:   true,
	}

	s.mu.Lock()
	if s.active == nil || (conversationID != "" && s.active.ID != conversationID) {
		s.mu.Unlock()
		return Message{}, errs.ErrNoActiveConversation
	}
	conversationID = s.active.ID
	s.messages = append(s.messages, pending)
	s.mu.Unlock()

	sess := s.session.Session()

	sent, err := s.api.SendMessage(ctx, upstream.SendMessageRequest{
		SessionCredentials: sess.Credentials,
		Text:               text,
		TargetID:           conversationID,
		SelfID:             sess.SelfID,
	})
	if err != nil {
		s.mu.Lock()
		s.removeLocked(tempID)
		s.mu.Unlock()

		metrics.MessagesSentTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("message send failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		if !errors.Is(err, errs.ErrAuthRequired) {
			s.notices.Post(notice.Error, "Failed to send message")
		}
		return Message{}, fmt.Errorf("%w: %w", errs.ErrSendFailure, err)
	}

	confirmed := Message{
		ID:        sent.ID,
		Text:      sent.Text,
		Origin:    OriginSelf,
		Timestamp: sent.CreatedAt.Time,
	}
	if confirmed.ID == "" {
		confirmed.ID = tempID
	}
	if confirmed.Text == "" {
		confirmed.Text = text
	}
	if confirmed.Timestamp.IsZero() {
		confirmed.Timestamp = pending.Timestamp
	}

	metrics.MessagesSentTotal.WithLabelValues("confirmed").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].Unread = 0
			s.conversations[i].LastMessage = confirmed.Text
		}
	}

	if s.active == nil || s.active.ID != conversationID {
		return confirmed, nil
	}

	s.confirmLocked(tempID, confirmed)
	s.sendGen++
	if s.confirmedGen == nil {
		s.confirmedGen = make(map[string]uint64)
	}
	s.confirmedGen[confirmed.ID] = s.sendGen
	s.scheduleRefetchLocked(ctx, conversationID)

	return confirmed, nil
}

// Close stops the resync loop and any scheduled refetch. The store
// keeps its last lists but no longer opens conversations.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimersLocked()
}

func (s *Store) resyncLoop(ctx context.Context, conversationID string) {
	ticker := time.NewTicker(s.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.FetchMessages(ctx, conversationID); err != nil && ctx.Err() == nil {
				s.logger.Debug("message resync failed",
					slog.String("conversation_id", conversationID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// scheduleRefetchLocked replaces any pending refetch with one that runs
// after RefetchDelay.
func (s *Store) scheduleRefetchLocked(ctx context.Context, conversationID string) {
	if s.refetch != nil {
		s.refetch.Stop()
	}

	ctx = context.WithoutCancel(ctx)
	s.refetch = time.AfterFunc(s.cfg.RefetchDelay, func() {
		if err := s.FetchMessages(ctx, conversationID); err != nil {
			s.logger.Debug("post-send refetch failed",
				slog.String("conversation_id", conversationID),
				slog.String("error", err.Error()),
			)
		}
	})
}

func (s *Store) stopTimersLocked() {
	if s.stopResync != nil {
		s.stopResync()
		s.stopResync = nil
	}
	if s.refetch != nil {
		s.refetch.Stop()
		s.refetch = nil
	}
}

// confirmLocked swaps the pending message tempID for confirmed. If a
// fetch already delivered the confirmed id, the pending copy is dropped
// instead so the message is never shown twice.
func (s *Store) confirmLocked(tempID string, confirmed Message) {
	if confirmed.ID != tempID && slices.ContainsFunc(s.messages, func(m Message) bool { return m.ID == confirmed.ID }) {
		s.removeLocked(tempID)
		return
	}

	for i := range s.messages {
		if s.messages[i].ID == tempID {
			s.messages[i] = confirmed
			return
		}
	}

	s.messages = append(s.messages, confirmed)
}

func (s *Store) removeLocked(id string) {
	s.messages = slices.DeleteFunc(s.messages, func(m Message) bool { return m.ID == id })
}

func (s *Store) requestFailed(msg string, err error) {
	s.logger.Warn(strings.ToLower(msg), slog.String("error", err.Error()))
	if errors.Is(err, errs.ErrAuthRequired) {
		return
	}
	s.notices.Post(notice.Error, msg)
}

// sortMessages orders messages by timestamp, oldest first. Messages
// without a timestamp sort as if sent at now; ties keep API order.
func sortMessages(msgs []Message, now time.Time) {
	key := func(m Message) time.Time {
		if m.Timestamp.IsZero() {
			return now
		}
		return m.Timestamp
	}
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return key(a).Compare(key(b))
	})
}
