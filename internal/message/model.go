package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
	"github.com/bizlinkhq/bizlink-server/internal/conversation"
)

// AuthorType identifies who wrote a message.
type AuthorType string

const (
	AuthorManager  AuthorType = "manager"
	AuthorCustomer AuthorType = "customer"
	AuthorSystem   AuthorType = "system"
)

// ParseAuthorType validates an author tag from a request.
func ParseAuthorType(s string) (AuthorType, error) {
	switch AuthorType(s) {
	case AuthorManager, AuthorCustomer, AuthorSystem:
		return AuthorType(s), nil
	}
	return "", fmt.Errorf("message: author type %q: %w", s, apperrors.ErrValidation)
}

// Participant maps an author to the conversation side it occupies.
// System messages count as the manager side for delivery purposes.
func (a AuthorType) Participant() conversation.Participant {
	if a == AuthorCustomer {
		return conversation.ParticipantCustomer
	}
	return conversation.ParticipantManager
}

// DeliveryStatus is a message's progress toward a viewer.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

// ViewerState is one participant's view of a message.
type ViewerState struct {
	Status    DeliveryStatus `json:"status"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// DeliveryState is the authoritative per-viewer truth. The coarse
// Message.Status is derived from it on write, never mutated independently.
type DeliveryState struct {
	Manager  ViewerState `json:"manager"`
	Customer ViewerState `json:"customer"`
}

// AttachmentType classifies an attachment for preview rendering.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentAudio AttachmentType = "audio"
	AttachmentFile  AttachmentType = "file"
	AttachmentOther AttachmentType = "other"
)

// Attachment is the canonical attachment shape stored on a message.
type Attachment struct {
	Type     AttachmentType `json:"type"`
	Name     string         `json:"name,omitempty"`
	Size     int64          `json:"size,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
	URL      string         `json:"url,omitempty"`
	Preview  string         `json:"preview,omitempty"`
}

// Reaction aggregates both participants' reaction to one emoji. At most one
// entry per emoji; an entry with both flags false is pruned.
type Reaction struct {
	Emoji           string    `json:"emoji"`
	ManagerReacted  bool      `json:"managerReacted"`
	CustomerReacted bool      `json:"customerReacted"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ReplySnapshot is a frozen copy of the quoted message, taken at send time.
// Edits and deletes of the original never alter the quote; an unresolvable
// reference leaves MessageID nil but keeps the caller-supplied copy.
type ReplySnapshot struct {
	MessageID  *uuid.UUID `json:"messageId"`
	AuthorType AuthorType `json:"authorType"`
	AuthorName string     `json:"authorName"`
	Content    string     `json:"content"`
	HasMedia   bool       `json:"hasMedia"`
}

// Message is one entry in a conversation's ordered log. Ordering key is
// (created_at, id); the id tiebreak keeps pages stable for equal timestamps.
type Message struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID uuid.UUID      `json:"conversationId"`
	AuthorType     AuthorType     `json:"authorType"`
	AuthorID       *uuid.UUID     `json:"authorId,omitempty"`
	Content        string         `json:"content"`
	Attachments    []Attachment   `json:"attachments,omitempty"`
	Status         DeliveryStatus `json:"status"`
	Delivery       DeliveryState  `json:"deliveryState"`
	Reactions      []Reaction     `json:"reactions,omitempty"`
	ReplyTo        *ReplySnapshot `json:"replyTo,omitempty"`
	EditedAt       *time.Time     `json:"editedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// HasMedia reports whether the message carries attachments.
func (m *Message) HasMedia() bool {
	return len(m.Attachments) > 0
}

// Snippet renders the preview text for the conversation list: content when
// present, otherwise a human-readable attachment summary.
func (m *Message) Snippet() string {
	if m.Content != "" {
		return m.Content
	}
	switch n := len(m.Attachments); {
	case n == 0:
		return ""
	case n > 1:
		return fmt.Sprintf("%d attachments", n)
	}
	switch m.Attachments[0].Type {
	case AttachmentImage:
		return "Photo"
	case AttachmentVideo:
		return "Video"
	case AttachmentAudio:
		return "Audio"
	case AttachmentFile:
		return "File"
	default:
		return "Attachment"
	}
}
