package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
	"github.com/bizlinkhq/bizlink-server/internal/cache"
	"github.com/bizlinkhq/bizlink-server/internal/notify"
	"github.com/bizlinkhq/bizlink-server/internal/observability/metrics"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

// MessageSweeper advances per-viewer delivery state on a conversation's
// messages. Implemented by the message store; the sweep and the counter
// reset both live behind this service so callers see one operation.
type MessageSweeper interface {
	MarkDelivered(ctx context.Context, conversationID uuid.UUID, viewer Participant) (int64, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, viewer Participant) (int64, error)
}

// Announcer writes system messages into a conversation's log.
type Announcer interface {
	AnnounceSystem(ctx context.Context, conversationID uuid.UUID, content string) error
}

// EnsureInput carries the metadata refreshed on every ensure call.
type EnsureInput struct {
	ManagerName   string
	CustomerName  string
	CustomerPhone string
}

const welcomeText = "Conversation started. A team member will be with you shortly."

// Service owns conversation lifecycle and delivery-state transitions.
// Cached list and window payloads embed unread counters and per-message
// delivery states, so every transition that lands also drops the
// conversation's cache keys and pushes an event to the other side.
type Service struct {
	store     *Store
	sweeper   MessageSweeper
	announcer Announcer
	cache     *cache.Cache
	notifier  notify.Notifier
	metrics   *metrics.ChatMetrics
	logger    *logging.Logger
}

func NewService(
	store *Store,
	sweeper MessageSweeper,
	c *cache.Cache,
	notifier notify.Notifier,
	m *metrics.ChatMetrics,
	logger *logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:    store,
		sweeper:  sweeper,
		cache:    c,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// SetAnnouncer wires the system-message writer. Set after construction
// because the message service and this service reference each other.
func (s *Service) SetAnnouncer(a Announcer) {
	s.announcer = a
}

// Get fetches a conversation by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return s.store.GetByID(ctx, id)
}

// GetByCustomer fetches the conversation a customer belongs to.
func (s *Service) GetByCustomer(ctx context.Context, customerID uuid.UUID) (*Conversation, error) {
	return s.store.GetByCustomer(ctx, customerID)
}

// Ensure returns the conversation for a (manager, customer) pair, creating
// it on first contact. Idempotent: repeat calls refresh metadata on the
// existing row and never produce a second welcome message.
func (s *Service) Ensure(ctx context.Context, managerID, customerID uuid.UUID, meta EnsureInput) (*Conversation, error) {
	existing, err := s.store.GetByPair(ctx, managerID, customerID)
	if err == nil {
		if refreshErr := s.store.RefreshMetadata(ctx, existing.ID, meta.ManagerName, meta.CustomerName, meta.CustomerPhone); refreshErr != nil {
			return nil, refreshErr
		}
		return s.store.GetByID(ctx, existing.ID)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	conv := &Conversation{
		ManagerID:       managerID,
		CustomerID:      customerID,
		ManagerName:     meta.ManagerName,
		CustomerName:    meta.CustomerName,
		CustomerPhone:   meta.CustomerPhone,
		Status:          StatusOpen,
		AutoChatEnabled: true,
	}
	created, err := s.store.Insert(ctx, conv)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost the insert race; the winner already announced.
		return s.Ensure(ctx, managerID, customerID, meta)
	}

	if s.announcer != nil {
		if err := s.announcer.AnnounceSystem(ctx, conv.ID, welcomeText); err != nil {
			return nil, fmt.Errorf("conversation: announce welcome: %w", err)
		}
	}
	return s.store.GetByID(ctx, conv.ID)
}

// IncrementUnread bumps the named participant's unread counter. Called once
// per created message, targeting the non-author side.
func (s *Service) IncrementUnread(ctx context.Context, id uuid.UUID, p Participant) error {
	if _, err := ParseParticipant(string(p)); err != nil {
		return err
	}
	return s.store.IncrementUnread(ctx, id, p)
}

// MarkDelivered transitions every message authored by the other party that
// the viewer has not seen yet from sent to delivered. Returns the updated
// conversation, or apperrors.ErrNoChange when nothing moved.
func (s *Service) MarkDelivered(ctx context.Context, id uuid.UUID, viewer Participant) (*Conversation, error) {
	if _, err := ParseParticipant(string(viewer)); err != nil {
		return nil, err
	}
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	changed, err := s.sweeper.MarkDelivered(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	if changed == 0 {
		return nil, apperrors.ErrNoChange
	}
	conv, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDeliveryTransition("delivered", changed)
	s.invalidate(ctx, conv)
	s.notifyOther(ctx, conv, viewer, "conversation.delivered")
	return conv, nil
}

// MarkRead transitions eligible messages to read and zeroes the viewer's
// unread counter. ErrNoChange when both the sweep and the counter were
// already settled.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, viewer Participant) (*Conversation, error) {
	if _, err := ParseParticipant(string(viewer)); err != nil {
		return nil, err
	}
	conv, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := s.sweeper.MarkRead(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	if changed == 0 && conv.UnreadFor(viewer) == 0 {
		return nil, apperrors.ErrNoChange
	}
	if err := s.store.ZeroUnread(ctx, id, viewer); err != nil {
		return nil, err
	}
	refreshed, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveDeliveryTransition("read", changed)
	s.invalidate(ctx, refreshed)
	s.notifyOther(ctx, refreshed, viewer, "conversation.read")
	return refreshed, nil
}

// SetMute sets the actor-specific mute flag.
func (s *Service) SetMute(ctx context.Context, id uuid.UUID, actor Participant, muted bool) (*Conversation, error) {
	if _, err := ParseParticipant(string(actor)); err != nil {
		return nil, err
	}
	if err := s.store.SetMute(ctx, id, actor, muted); err != nil {
		return nil, err
	}
	conv, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, conv)
	return conv, nil
}

func (s *Service) invalidate(ctx context.Context, conv *Conversation) {
	s.cache.Delete(ctx,
		cache.ManagerConversationsKey(conv.ManagerID),
		cache.ConversationDetailKey(conv.ID),
		cache.CustomerConversationKey(conv.CustomerID),
	)
}

// notifyOther tells the side whose messages were acknowledged that their
// delivery ticks moved. Muted participants are not pushed to.
func (s *Service) notifyOther(ctx context.Context, conv *Conversation, viewer Participant, event string) {
	other := viewer.Other()
	if s.notifier == nil || conv.MutedFor(other) {
		return
	}
	audience := notify.CustomerAudience(conv.CustomerID)
	if other == ParticipantManager {
		audience = notify.ManagerAudience(conv.ManagerID)
	}
	s.notifier.Notify(ctx, audience, event, conv)
	s.metrics.ObserveNotification(event)
}

// UpdateLastMessageSnapshot unconditionally overwrites the preview fields.
// Called on message creation only; edits and deletes leave the preview
// alone, so a deleted last message keeps its stale snippet until the next
// send overwrites it.
func (s *Service) UpdateLastMessageSnapshot(ctx context.Context, id uuid.UUID, snippet string, at time.Time) error {
	return s.store.UpdateSnapshot(ctx, id, snippet, at)
}

// SaveBooking persists merged bot booking state.
func (s *Service) SaveBooking(ctx context.Context, id uuid.UUID, b BookingData) error {
	return s.store.SaveBooking(ctx, id, b)
}

// IncrementAutoChatCount bumps the bot turn counter, returning the new value.
func (s *Service) IncrementAutoChatCount(ctx context.Context, id uuid.UUID) (int, error) {
	return s.store.IncrementAutoChatCount(ctx, id)
}

// SetAutoChatEnabled turns the auto-reply bot on or off.
func (s *Service) SetAutoChatEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.store.SetAutoChatEnabled(ctx, id, enabled)
}
