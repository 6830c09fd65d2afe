// Package inbox aggregates conversations and messages into the shapes the
// list and detail views render. It is a read-only layer: all writes go
// through the conversation and message services.
package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
	"github.com/bizlinkhq/bizlink-server/internal/cache"
	"github.com/bizlinkhq/bizlink-server/internal/conversation"
	"github.com/bizlinkhq/bizlink-server/internal/message"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

// ConversationReader is the conversation store subset the inbox reads from.
type ConversationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	GetByCustomer(ctx context.Context, customerID uuid.UUID) (*conversation.Conversation, error)
	ListByManager(ctx context.Context, managerID uuid.UUID, limit, skip int) ([]*conversation.Conversation, error)
	CountByManager(ctx context.Context, managerID uuid.UUID) (int, error)
}

// MessageReader is the message store subset the inbox reads from.
type MessageReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*message.Message, error)
	ListWindow(ctx context.Context, conversationID uuid.UUID, limit int) ([]*message.Message, error)
	ListBefore(ctx context.Context, conversationID uuid.UUID, before *message.Message, limit int) ([]*message.Message, error)
	LastMessages(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]*message.Message, error)
}

// Service assembles list and detail views.
type Service struct {
	conversations ConversationReader
	messages      MessageReader
	cache         *cache.Cache
	logger        *logging.Logger

	listPageSize    int
	messagePageSize int
}

func NewService(conversations ConversationReader, messages MessageReader, c *cache.Cache, logger *logging.Logger, listPageSize, messagePageSize int) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if listPageSize <= 0 {
		listPageSize = 20
	}
	if messagePageSize <= 0 {
		messagePageSize = 30
	}
	return &Service{
		conversations:   conversations,
		messages:        messages,
		cache:           c,
		logger:          logger,
		listPageSize:    listPageSize,
		messagePageSize: messagePageSize,
	}
}

// MessagePreview is the trimmed last-message shape embedded in list rows.
// Attachments, reactions, reply snapshots and per-viewer delivery detail
// stay out of the list payload; it renders on every app open.
type MessagePreview struct {
	ID         uuid.UUID          `json:"id"`
	AuthorType message.AuthorType `json:"authorType"`
	Snippet    string             `json:"snippet"`
	HasMedia   bool               `json:"hasMedia"`
	CreatedAt  time.Time          `json:"createdAt"`
}

func previewOf(m *message.Message) *MessagePreview {
	if m == nil {
		return nil
	}
	return &MessagePreview{
		ID:         m.ID,
		AuthorType: m.AuthorType,
		Snippet:    m.Snippet(),
		HasMedia:   m.HasMedia(),
		CreatedAt:  m.CreatedAt,
	}
}

// Summary is one row of the manager's list view.
type Summary struct {
	Conversation *conversation.Conversation `json:"conversation"`
	LastMessage  *MessagePreview            `json:"lastMessage,omitempty"`
}

// ListResult is a page of the list view.
type ListResult struct {
	Conversations []Summary `json:"conversations"`
	Total         int       `json:"total"`
	HasMore       bool      `json:"hasMore"`
}

// DetailResult is a conversation plus a chronological message window.
type DetailResult struct {
	Conversation *conversation.Conversation `json:"conversation"`
	Messages     []*message.Message         `json:"messages"`
	HasMore      bool                       `json:"hasMore"`
}

// OlderResult is one cursor page of history.
type OlderResult struct {
	Messages []*message.Message `json:"messages"`
	HasMore  bool               `json:"hasMore"`
}

// ListForManager returns a page of the manager's conversations, most
// recently active first, each carrying its latest message. Only the
// default first page is cached: any other page has no stable invalidation
// key, and the first page is where nearly all reads land.
func (s *Service) ListForManager(ctx context.Context, managerID uuid.UUID, skip, limit int) (*ListResult, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > s.listPageSize {
		limit = s.listPageSize
	}

	cacheable := skip == 0 && limit == s.listPageSize
	key := cache.ManagerConversationsKey(managerID)
	if cacheable {
		var cached ListResult
		if s.cache.Get(ctx, key, &cached) {
			return &cached, nil
		}
	}

	conversations, err := s.conversations.ListByManager(ctx, managerID, limit, skip)
	if err != nil {
		return nil, err
	}
	total, err := s.conversations.CountByManager(ctx, managerID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(conversations))
	for i, c := range conversations {
		ids[i] = c.ID
	}
	last, err := s.messages.LastMessages(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &ListResult{
		Conversations: make([]Summary, len(conversations)),
		Total:         total,
		HasMore:       skip+len(conversations) < total,
	}
	for i, c := range conversations {
		result.Conversations[i] = Summary{Conversation: c, LastMessage: previewOf(last[c.ID])}
	}

	if cacheable {
		s.cache.Set(ctx, key, result)
	}
	return result, nil
}

// Detail returns a conversation and its most recent messages in
// chronological order. Only the default-size window is cached.
func (s *Service) Detail(ctx context.Context, conversationID uuid.UUID, limit int) (*DetailResult, error) {
	if limit <= 0 || limit > s.messagePageSize {
		limit = s.messagePageSize
	}

	cacheable := limit == s.messagePageSize
	key := cache.ConversationDetailKey(conversationID)
	if cacheable {
		var cached DetailResult
		if s.cache.Get(ctx, key, &cached) {
			return &cached, nil
		}
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListWindow(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}

	result := &DetailResult{
		Conversation: conv,
		Messages:     messages,
		HasMore:      len(messages) == limit,
	}
	if cacheable {
		s.cache.Set(ctx, key, result)
	}
	return result, nil
}

// ForCustomer returns the customer's single conversation with its initial
// message window.
func (s *Service) ForCustomer(ctx context.Context, customerID uuid.UUID) (*DetailResult, error) {
	key := cache.CustomerConversationKey(customerID)
	var cached DetailResult
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	conv, err := s.conversations.GetByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListWindow(ctx, conv.ID, s.messagePageSize)
	if err != nil {
		return nil, err
	}

	result := &DetailResult{
		Conversation: conv,
		Messages:     messages,
		HasMore:      len(messages) == s.messagePageSize,
	}
	s.cache.Set(ctx, key, result)
	return result, nil
}

// Older pages backwards through history relative to a message the client
// already holds. Never cached: every page has a distinct cursor.
func (s *Service) Older(ctx context.Context, conversationID, beforeMessageID uuid.UUID, limit int) (*OlderResult, error) {
	if limit <= 0 || limit > s.messagePageSize {
		limit = s.messagePageSize
	}

	before, err := s.messages.GetByID(ctx, beforeMessageID)
	if err != nil {
		return nil, err
	}
	if before.ConversationID != conversationID {
		return nil, fmt.Errorf("inbox: cursor %s is not in conversation %s: %w",
			beforeMessageID, conversationID, apperrors.ErrValidation)
	}

	messages, err := s.messages.ListBefore(ctx, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	return &OlderResult{
		Messages: messages,
		// A short page means the oldest message has been reached. A full
		// page is ambiguous, so the client asks once more and gets an
		// empty page back.
		HasMore: len(messages) == limit,
	}, nil
}
