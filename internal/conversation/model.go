package conversation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusOpen     Status = "open"
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusArchived Status = "archived"
)

// Participant identifies one side of a conversation.
type Participant string

const (
	ParticipantManager  Participant = "manager"
	ParticipantCustomer Participant = "customer"
)

// ParseParticipant validates an actor tag from a request.
func ParseParticipant(s string) (Participant, error) {
	switch Participant(s) {
	case ParticipantManager:
		return ParticipantManager, nil
	case ParticipantCustomer:
		return ParticipantCustomer, nil
	}
	return "", fmt.Errorf("conversation: participant %q: %w", s, apperrors.ErrValidation)
}

// Other returns the opposite side.
func (p Participant) Other() Participant {
	if p == ParticipantManager {
		return ParticipantCustomer
	}
	return ParticipantManager
}

// BookingData is the auto-reply bot's working memory, persisted on the
// conversation so the dialogue survives across turns.
type BookingData struct {
	Service         string `json:"service,omitempty"`
	TimeSlot        string `json:"timeSlot,omitempty"`
	AppointmentDate string `json:"appointmentDate,omitempty"`
	OfferClaimed    bool   `json:"offerClaimed,omitempty"`
	Confirmed       bool   `json:"confirmed,omitempty"`
}

// Merge overlays non-zero fields of other onto b. Booking state accumulates
// across bot turns; it is never replaced wholesale.
func (b BookingData) Merge(other BookingData) BookingData {
	if other.Service != "" {
		b.Service = other.Service
	}
	if other.TimeSlot != "" {
		b.TimeSlot = other.TimeSlot
	}
	if other.AppointmentDate != "" {
		b.AppointmentDate = other.AppointmentDate
	}
	if other.OfferClaimed {
		b.OfferClaimed = true
	}
	if other.Confirmed {
		b.Confirmed = true
	}
	return b
}

// Conversation is the unique message thread between one manager and one
// customer, plus the denormalized state the list view renders from.
type Conversation struct {
	ID         uuid.UUID `json:"id"`
	ManagerID  uuid.UUID `json:"managerId"`
	CustomerID uuid.UUID `json:"customerId"`

	ManagerName   string      `json:"managerName"`
	CustomerName  string      `json:"customerName"`
	CustomerPhone string      `json:"customerPhone"`
	Notes         string      `json:"notes,omitempty"`
	Booking       BookingData `json:"bookingData"`

	Status Status `json:"status"`

	UnreadByManager  int `json:"unreadByManager"`
	UnreadByCustomer int `json:"unreadByCustomer"`

	LastMessageAt      *time.Time `json:"lastMessageAt,omitempty"`
	LastMessageSnippet string     `json:"lastMessageSnippet,omitempty"`

	MutedForManager  bool `json:"mutedForManager"`
	MutedForCustomer bool `json:"mutedForCustomer"`

	AutoChatEnabled      bool `json:"autoChatEnabled"`
	AutoChatMessageCount int  `json:"autoChatMessageCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MutedFor reports whether the given participant muted notifications.
func (c *Conversation) MutedFor(p Participant) bool {
	if p == ParticipantManager {
		return c.MutedForManager
	}
	return c.MutedForCustomer
}

// UnreadFor returns the unread counter for the given participant.
func (c *Conversation) UnreadFor(p Participant) int {
	if p == ParticipantManager {
		return c.UnreadByManager
	}
	return c.UnreadByCustomer
}
