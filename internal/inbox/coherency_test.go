package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
	"github.com/bizlinkhq/bizlink-server/internal/conversation"
	"github.com/bizlinkhq/bizlink-server/internal/message"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

// convSource backs a message.Service with a single known conversation.
type convSource struct {
	conv *conversation.Conversation
}

func (s *convSource) Get(_ context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	if s.conv != nil && s.conv.ID == id {
		return s.conv, nil
	}
	return nil, apperrors.ErrNotFound
}

func (s *convSource) IncrementUnread(context.Context, uuid.UUID, conversation.Participant) error {
	return nil
}

func (s *convSource) UpdateLastMessageSnapshot(context.Context, uuid.UUID, string, time.Time) error {
	return nil
}

var editedMessageColumns = []string{
	"id", "conversation_id", "author_type", "author_id", "content", "attachments", "status",
	"delivery_manager_status", "delivery_manager_updated_at",
	"delivery_customer_status", "delivery_customer_updated_at",
	"reactions", "reply_to", "edited_at", "created_at",
}

func editedMessageRow(id, conversationID uuid.UUID, content string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(editedMessageColumns).AddRow(
		id, conversationID, message.AuthorCustomer, (*uuid.UUID)(nil), content, []byte(nil), message.DeliverySent,
		message.DeliverySent, now,
		message.DeliveryRead, now,
		[]byte(nil), []byte(nil), &now, now,
	)
}

// An edit on the write path must never let the read path serve the
// pre-edit content out of the shared cache.
func TestDetail_EditedContentNeverServedStale(t *testing.T) {
	managerID := uuid.New()
	c := conv(managerID)
	m := msg(c.ID, "before edit")

	shared := newTestCache(t)
	convs := &fakeConversations{byID: map[uuid.UUID]*conversation.Conversation{c.ID: c}}
	msgs := &fakeMessages{window: []*message.Message{m}}
	inboxSvc := NewService(convs, msgs, shared, logging.New("error"), 20, 30)

	ctx := context.Background()
	first, err := inboxSvc.Detail(ctx, c.ID, 30)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if first.Messages[0].Content != "before edit" {
		t.Fatalf("seed content = %q", first.Messages[0].Content)
	}

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	msgSvc := message.NewService(message.NewStore(mock), &convSource{conv: c}, shared, nil, nil, logging.New("error"))

	newContent := "after edit"
	mock.ExpectQuery("UPDATE messages SET").
		WithArgs(m.ID, &newContent, pgxmock.AnyArg()).
		WillReturnRows(editedMessageRow(m.ID, c.ID, newContent))
	if _, err := msgSvc.Edit(ctx, m.ID, message.EditInput{Content: &newContent}); err != nil {
		t.Fatalf("edit: %v", err)
	}

	m.Content = newContent
	second, err := inboxSvc.Detail(ctx, c.ID, 30)
	if err != nil {
		t.Fatalf("detail after edit: %v", err)
	}
	if second.Messages[0].Content != "after edit" {
		t.Fatalf("detail served pre-edit content %q from cache", second.Messages[0].Content)
	}
}
