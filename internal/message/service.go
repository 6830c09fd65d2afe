package message

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
	"github.com/bizlinkhq/bizlink-server/internal/cache"
	"github.com/bizlinkhq/bizlink-server/internal/conversation"
	"github.com/bizlinkhq/bizlink-server/internal/notify"
	"github.com/bizlinkhq/bizlink-server/internal/observability/metrics"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

const maxEmojiBytes = 32

// Conversations is what the message service needs from the conversation
// service: validation reads plus the side effects of a created message.
type Conversations interface {
	Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	IncrementUnread(ctx context.Context, id uuid.UUID, p conversation.Participant) error
	UpdateLastMessageSnapshot(ctx context.Context, id uuid.UUID, snippet string, at time.Time) error
}

// AutoResponder produces the bot's next reply for a customer turn.
// Returns false when the bot stays silent.
type AutoResponder interface {
	Respond(ctx context.Context, conv *conversation.Conversation, text string) (string, bool)
}

// Service owns message creation, edits, deletes and reactions, and runs
// the synchronization side effects of each write: conversation counters,
// snapshot, cache invalidation, notification and the auto-reply turn.
type Service struct {
	store         *Store
	conversations Conversations
	cache         *cache.Cache
	notifier      notify.Notifier
	metrics       *metrics.ChatMetrics
	responder     AutoResponder
	logger        *logging.Logger
}

func NewService(
	store *Store,
	conversations Conversations,
	c *cache.Cache,
	notifier notify.Notifier,
	m *metrics.ChatMetrics,
	logger *logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:         store,
		conversations: conversations,
		cache:         c,
		notifier:      notifier,
		metrics:       m,
		logger:        logger,
	}
}

// SetResponder wires the auto-reply engine. Optional; without it customer
// messages simply never trigger a bot turn.
func (s *Service) SetResponder(r AutoResponder) {
	s.responder = r
}

// AttachmentInput is the free-form attachment shape accepted from callers.
type AttachmentInput struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url"`
	Preview  string `json:"preview"`
}

// ReplyRef is the caller-supplied quote reference. The snapshot is frozen
// from it at send time; if MessageID does not resolve, the quote is kept
// with a nulled reference rather than blocking the send.
type ReplyRef struct {
	MessageID  string `json:"messageId"`
	AuthorType string `json:"authorType"`
	AuthorName string `json:"authorName"`
	Content    string `json:"content"`
	HasMedia   bool   `json:"hasMedia"`
}

// CreateInput describes a message to append.
type CreateInput struct {
	ConversationID uuid.UUID
	AuthorType     AuthorType
	AuthorID       *uuid.UUID
	Content        string
	Attachments    []AttachmentInput
	ReplyTo        *ReplyRef
}

// Create appends a message and runs the conversation side effects. The
// author's own delivery state starts at read, the other side's at sent.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Message, error) {
	if _, err := ParseAuthorType(string(input.AuthorType)); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	attachments := normalizeAttachments(input.Attachments)
	if content == "" && len(attachments) == 0 {
		return nil, fmt.Errorf("message: empty content and no attachments: %w", apperrors.ErrValidation)
	}

	conv, err := s.conversations.Get(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		AuthorType:     input.AuthorType,
		AuthorID:       input.AuthorID,
		Content:        content,
		Attachments:    attachments,
		Status:         DeliverySent,
		ReplyTo:        s.buildReplySnapshot(ctx, input.ReplyTo),
		CreatedAt:      now,
	}
	self := input.AuthorType.Participant()
	if self == conversation.ParticipantManager {
		msg.Delivery.Manager = ViewerState{Status: DeliveryRead, UpdatedAt: now}
		msg.Delivery.Customer = ViewerState{Status: DeliverySent, UpdatedAt: now}
	} else {
		msg.Delivery.Manager = ViewerState{Status: DeliverySent, UpdatedAt: now}
		msg.Delivery.Customer = ViewerState{Status: DeliveryRead, UpdatedAt: now}
	}

	if err := s.store.Insert(ctx, msg); err != nil {
		return nil, err
	}
	s.metrics.ObserveMessageCreated(string(input.AuthorType))

	recipient := self.Other()
	// System messages belong to neither side; a freshly ensured conversation
	// must come back with zero unread counters.
	if input.AuthorType != AuthorSystem {
		if err := s.conversations.IncrementUnread(ctx, conv.ID, recipient); err != nil {
			return nil, err
		}
	}
	if err := s.conversations.UpdateLastMessageSnapshot(ctx, conv.ID, msg.Snippet(), now); err != nil {
		return nil, err
	}

	s.invalidate(ctx, conv)
	s.notifyParticipant(ctx, conv, recipient, "message.created", msg)

	if input.AuthorType == AuthorCustomer && conv.AutoChatEnabled && s.responder != nil {
		s.runBotTurn(ctx, conv, content)
	}
	return msg, nil
}

// AnnounceSystem writes a system message into the conversation. Implements
// conversation.Announcer for the ensure-time welcome message.
func (s *Service) AnnounceSystem(ctx context.Context, conversationID uuid.UUID, content string) error {
	_, err := s.Create(ctx, CreateInput{
		ConversationID: conversationID,
		AuthorType:     AuthorSystem,
		Content:        content,
	})
	return err
}

// runBotTurn asks the engine for a reply and appends it as a manager-side
// message. Bot replies re-enter Create, but only customer-authored input
// triggers the engine, so the bot can never answer itself.
func (s *Service) runBotTurn(ctx context.Context, conv *conversation.Conversation, text string) {
	reply, ok := s.responder.Respond(ctx, conv, text)
	if !ok {
		return
	}
	if _, err := s.Create(ctx, CreateInput{
		ConversationID: conv.ID,
		AuthorType:     AuthorManager,
		Content:        reply,
	}); err != nil {
		// The customer's own message is already committed; a failed bot
		// reply must not surface as a send failure.
		s.logger.Error("message: bot reply failed", "conversation_id", conv.ID, "error", err)
	}
}

// EditInput carries the independently updatable message fields.
type EditInput struct {
	Content     *string
	Attachments []AttachmentInput
	HasAttach   bool
}

// Edit replaces content and/or attachments and stamps editedAt. Edits have
// no snapshot or unread side effects; only caches are refreshed.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, input EditInput) (*Message, error) {
	if input.Content == nil && !input.HasAttach {
		return nil, fmt.Errorf("message: edit without fields: %w", apperrors.ErrValidation)
	}
	patch := UpdatePatch{Content: input.Content}
	if input.HasAttach {
		patch.Attachments = normalizeAttachments(input.Attachments)
		patch.HasAttach = true
	}
	msg, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	conv, err := s.conversations.Get(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, conv)
	s.notifyBoth(ctx, conv, "message.updated", msg)
	return msg, nil
}

// Delete hard-removes a message. The conversation's last-message snapshot
// is intentionally not recomputed; the next send overwrites it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	conversationID, err := s.store.Delete(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return uuid.Nil, err
	}
	s.invalidate(ctx, conv)
	s.notifyBoth(ctx, conv, "message.deleted", map[string]string{"id": id.String()})
	return conversationID, nil
}

// ToggleReaction flips the actor's reaction on an emoji. Toggling twice is
// the identity; an entry never survives with both flags false.
func (s *Service) ToggleReaction(ctx context.Context, id uuid.UUID, emoji string, actor conversation.Participant) (*Message, error) {
	if _, err := conversation.ParseParticipant(string(actor)); err != nil {
		return nil, err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiBytes || !utf8.ValidString(emoji) {
		return nil, fmt.Errorf("message: emoji %q: %w", emoji, apperrors.ErrValidation)
	}

	msg, err := s.store.ToggleReaction(ctx, id, emoji, actor)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversations.Get(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	// The customer window caches full messages too, so a toggle staling
	// only the detail key would leave it serving the old reaction set.
	s.invalidate(ctx, conv)
	s.notifyBoth(ctx, conv, "message.reaction", msg)
	return msg, nil
}

// buildReplySnapshot freezes the caller-supplied quote. Resolution only
// validates the reference; all rendered fields come from the caller's copy.
func (s *Service) buildReplySnapshot(ctx context.Context, ref *ReplyRef) *ReplySnapshot {
	if ref == nil {
		return nil
	}
	snap := &ReplySnapshot{
		AuthorType: AuthorType(ref.AuthorType),
		AuthorName: ref.AuthorName,
		Content:    ref.Content,
		HasMedia:   ref.HasMedia,
	}
	id, err := uuid.Parse(ref.MessageID)
	if err != nil {
		return snap
	}
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return snap
	}
	snap.MessageID = &id
	return snap
}

func (s *Service) invalidate(ctx context.Context, conv *conversation.Conversation) {
	s.cache.Delete(ctx,
		cache.ManagerConversationsKey(conv.ManagerID),
		cache.ConversationDetailKey(conv.ID),
		cache.CustomerConversationKey(conv.CustomerID),
	)
}

// notifyParticipant pushes an event to one side unless they muted the
// conversation.
func (s *Service) notifyParticipant(ctx context.Context, conv *conversation.Conversation, p conversation.Participant, event string, payload any) {
	if s.notifier == nil || conv.MutedFor(p) {
		return
	}
	audience := notify.CustomerAudience(conv.CustomerID)
	if p == conversation.ParticipantManager {
		audience = notify.ManagerAudience(conv.ManagerID)
	}
	s.notifier.Notify(ctx, audience, event, payload)
	s.metrics.ObserveNotification(event)
}

func (s *Service) notifyBoth(ctx context.Context, conv *conversation.Conversation, event string, payload any) {
	s.notifyParticipant(ctx, conv, conversation.ParticipantManager, event, payload)
	s.notifyParticipant(ctx, conv, conversation.ParticipantCustomer, event, payload)
}

// normalizeAttachments maps free-form input to the canonical shape. The
// type falls back to the mime prefix, then to "other".
func normalizeAttachments(inputs []AttachmentInput) []Attachment {
	if len(inputs) == 0 {
		return nil
	}
	out := make([]Attachment, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, Attachment{
			Type:     normalizeAttachmentType(in.Type, in.MimeType),
			Name:     in.Name,
			Size:     in.Size,
			MimeType: in.MimeType,
			URL:      in.URL,
			Preview:  in.Preview,
		})
	}
	return out
}

func normalizeAttachmentType(kind, mimeType string) AttachmentType {
	switch AttachmentType(strings.ToLower(strings.TrimSpace(kind))) {
	case AttachmentImage:
		return AttachmentImage
	case AttachmentVideo:
		return AttachmentVideo
	case AttachmentAudio:
		return AttachmentAudio
	case AttachmentFile:
		return AttachmentFile
	case AttachmentOther:
		return AttachmentOther
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return AttachmentImage
	case strings.HasPrefix(mimeType, "video/"):
		return AttachmentVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return AttachmentAudio
	case mimeType != "":
		return AttachmentFile
	}
	return AttachmentOther
}
