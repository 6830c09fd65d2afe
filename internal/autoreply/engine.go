// Package autoreply is the scripted responder that answers on behalf of a
// manager until a turn ceiling or an explicit human handoff. The dialogue
// is a priority-ordered table of {matcher, responder} pairs over booking
// state persisted on the conversation; it is deliberately not a model.
package autoreply

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/bizlinkhq/bizlink-server/internal/conversation"
	"github.com/bizlinkhq/bizlink-server/internal/observability/metrics"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

// DefaultTurnCeiling caps scripted replies per conversation before the
// engine offers a human and goes quiet.
const DefaultTurnCeiling = 10

// ConversationState persists the bot's working memory. All three calls are
// best-effort from the engine's point of view: a failed save degrades the
// bot to stateless replies, it never fails the customer's turn.
type ConversationState interface {
	SaveBooking(ctx context.Context, id uuid.UUID, b conversation.BookingData) error
	IncrementAutoChatCount(ctx context.Context, id uuid.UUID) (int, error)
	SetAutoChatEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// ContactDirectory resolves the manager's contact line for confirmations.
type ContactDirectory interface {
	ManagerContact(ctx context.Context, managerID uuid.UUID) (name, phone string, err error)
}

// Engine evaluates the script against one customer turn.
type Engine struct {
	state    ConversationState
	contacts ContactDirectory
	metrics  *metrics.ChatMetrics
	logger   *logging.Logger

	services []CatalogService
	slots    []TimeSlot
	ceiling  int
	script   []rule
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCatalog replaces the default services and slots.
func WithCatalog(services []CatalogService, slots []TimeSlot) Option {
	return func(e *Engine) {
		e.services = services
		e.slots = slots
	}
}

// WithTurnCeiling overrides the scripted-reply budget.
func WithTurnCeiling(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.ceiling = n
		}
	}
}

// WithContacts wires the manager contact lookup used in confirmations.
func WithContacts(contacts ContactDirectory) Option {
	return func(e *Engine) {
		e.contacts = contacts
	}
}

func NewEngine(state ConversationState, m *metrics.ChatMetrics, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		state:    state,
		metrics:  m,
		logger:   logger,
		services: DefaultServices,
		slots:    DefaultSlots,
		ceiling:  DefaultTurnCeiling,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.script = e.buildScript()
	return e
}

// Respond produces the bot's reply to a customer turn, or ok=false when
// the bot stays silent. The human-handoff intent is honored at any time,
// even past the ceiling; everything else consumes the turn budget.
func (e *Engine) Respond(ctx context.Context, conv *conversation.Conversation, text string) (string, bool) {
	if conv == nil || !conv.AutoChatEnabled {
		return "", false
	}
	rc := &replyContext{
		ctx:     ctx,
		engine:  e,
		conv:    conv,
		booking: conv.Booking,
		text:    strings.ToLower(strings.TrimSpace(text)),
		raw:     strings.TrimSpace(text),
	}

	matched := e.script[len(e.script)-1]
	for _, r := range e.script {
		if r.match(rc) {
			matched = r
			break
		}
	}

	if matched.name == "human_handoff" {
		e.disable(ctx, conv.ID)
		e.metrics.ObserveBotReply(matched.name)
		return matched.respond(rc), true
	}

	count := e.bumpTurnCount(ctx, conv)
	switch {
	case count > e.ceiling:
		return "", false
	case count == e.ceiling:
		e.metrics.ObserveBotReply("ceiling_offer")
		return ceilingOfferText, true
	}

	e.metrics.ObserveBotReply(matched.name)
	return matched.respond(rc), true
}

// bumpTurnCount increments the persisted counter atomically. On failure
// the engine falls back to the in-memory count so the ceiling still
// roughly holds while storage is unhappy.
func (e *Engine) bumpTurnCount(ctx context.Context, conv *conversation.Conversation) int {
	count, err := e.state.IncrementAutoChatCount(ctx, conv.ID)
	if err != nil {
		e.logger.Warn("autoreply: increment turn count failed", "conversation_id", conv.ID, "error", err)
		return conv.AutoChatMessageCount + 1
	}
	return count
}

// saveBooking persists merged booking state, swallowing failures.
func (e *Engine) saveBooking(ctx context.Context, conv *conversation.Conversation, b conversation.BookingData) {
	if err := e.state.SaveBooking(ctx, conv.ID, b); err != nil {
		e.logger.Warn("autoreply: save booking failed", "conversation_id", conv.ID, "error", err)
	}
}

// disable turns the bot off permanently for the conversation.
func (e *Engine) disable(ctx context.Context, id uuid.UUID) {
	if err := e.state.SetAutoChatEnabled(ctx, id, false); err != nil {
		e.logger.Warn("autoreply: disable failed", "conversation_id", id, "error", err)
	}
}

// managerContact renders the contact line for confirmations.
func (e *Engine) managerContact(ctx context.Context, conv *conversation.Conversation) string {
	name := conv.ManagerName
	if e.contacts != nil {
		if n, phone, err := e.contacts.ManagerContact(ctx, conv.ManagerID); err == nil {
			if n != "" {
				name = n
			}
			if phone != "" {
				return name + " (" + phone + ")"
			}
		}
	}
	return name
}
