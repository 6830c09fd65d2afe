package message

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
	"github.com/bizlinkhq/bizlink-server/internal/conversation"
)

var messageTestColumns = []string{
	"id", "conversation_id", "author_type", "author_id", "content", "attachments", "status",
	"delivery_manager_status", "delivery_manager_updated_at",
	"delivery_customer_status", "delivery_customer_updated_at",
	"reactions", "reply_to", "edited_at", "created_at",
}

func messageRow(id, conversationID uuid.UUID, content string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(messageTestColumns).AddRow(
		id, conversationID, AuthorCustomer, (*uuid.UUID)(nil), content, []byte(nil), DeliverySent,
		DeliverySent, now,
		DeliveryRead, now,
		[]byte(nil), []byte(nil), (*time.Time)(nil), now,
	)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newStoreWithMock(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return &Store{pool: mock}, mock
}

func TestStoreInsert(t *testing.T) {
	store, mock := newStoreWithMock(t)
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	msg := &Message{
		ConversationID: uuid.New(),
		AuthorType:     AuthorCustomer,
		Content:        "hello",
	}
	if err := store.Insert(context.Background(), msg); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if msg.ID == uuid.Nil {
		t.Error("insert should assign an ID")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("insert should stamp CreatedAt")
	}
}

func TestStoreGetByID_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT .+ FROM messages WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(messageTestColumns))

	if _, err := store.GetByID(context.Background(), id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	store, mock := newStoreWithMock(t)
	id := uuid.New()
	conversationID := uuid.New()
	mock.ExpectQuery("DELETE FROM messages WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"conversation_id"}).AddRow(conversationID))

	got, err := store.Delete(context.Background(), id)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got != conversationID {
		t.Errorf("conversation = %s, want %s", got, conversationID)
	}
}

func TestStoreMarkDelivered_ManagerViewer(t *testing.T) {
	store, mock := newStoreWithMock(t)
	conversationID := uuid.New()
	// The manager acknowledges customer-authored messages only.
	mock.ExpectExec("UPDATE messages").
		WithArgs(conversationID, []string{"customer"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	changed, err := store.MarkDelivered(context.Background(), conversationID, conversation.ParticipantManager)
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if changed != 4 {
		t.Errorf("changed = %d, want 4", changed)
	}
}

func TestStoreMarkRead_CustomerViewer(t *testing.T) {
	store, mock := newStoreWithMock(t)
	conversationID := uuid.New()
	// The customer acknowledges manager and system messages.
	mock.ExpectExec("UPDATE messages").
		WithArgs(conversationID, []string{"manager", "system"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	changed, err := store.MarkRead(context.Background(), conversationID, conversation.ParticipantCustomer)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if changed != 2 {
		t.Errorf("changed = %d, want 2", changed)
	}
}

func TestStoreMark_BadViewer(t *testing.T) {
	store, _ := newStoreWithMock(t)
	if _, err := store.MarkDelivered(context.Background(), uuid.New(), conversation.Participant("x")); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("want ErrValidation, got %v", err)
	}
}

func TestStoreListBefore_Keyset(t *testing.T) {
	store, mock := newStoreWithMock(t)
	conversationID := uuid.New()
	before := &Message{ID: uuid.New(), ConversationID: conversationID, CreatedAt: time.Now()}

	older1 := uuid.New()
	older2 := uuid.New()
	rows := pgxmock.NewRows(messageTestColumns)
	now := time.Now()
	// DESC from the store; the slice comes back chronological.
	rows.AddRow(older2, conversationID, AuthorManager, (*uuid.UUID)(nil), "second", []byte(nil), DeliverySent,
		DeliveryRead, now, DeliverySent, now, []byte(nil), []byte(nil), (*time.Time)(nil), now)
	rows.AddRow(older1, conversationID, AuthorCustomer, (*uuid.UUID)(nil), "first", []byte(nil), DeliverySent,
		DeliverySent, now, DeliveryRead, now, []byte(nil), []byte(nil), (*time.Time)(nil), now.Add(-time.Minute))

	mock.ExpectQuery("SELECT .+ FROM messages").
		WithArgs(conversationID, before.CreatedAt, before.ID, 2).
		WillReturnRows(rows)

	page, err := store.ListBefore(context.Background(), conversationID, before, 2)
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("len = %d, want 2", len(page))
	}
	if page[0].Content != "first" || page[1].Content != "second" {
		t.Errorf("page not chronological: %q then %q", page[0].Content, page[1].Content)
	}
}

func TestToggleReactionFunc(t *testing.T) {
	now := time.Now()

	t.Run("first toggle creates entry", func(t *testing.T) {
		out := toggleReaction(nil, "❤️", conversation.ParticipantManager, now)
		if len(out) != 1 || !out[0].ManagerReacted || out[0].CustomerReacted {
			t.Fatalf("unexpected reactions: %+v", out)
		}
	})

	t.Run("same emoji gets one entry", func(t *testing.T) {
		out := toggleReaction(nil, "❤️", conversation.ParticipantManager, now)
		out = toggleReaction(out, "❤️", conversation.ParticipantCustomer, now)
		if len(out) != 1 {
			t.Fatalf("len = %d, want one entry per emoji", len(out))
		}
		if !out[0].ManagerReacted || !out[0].CustomerReacted {
			t.Errorf("both flags should be set: %+v", out[0])
		}
	})

	t.Run("double toggle is identity", func(t *testing.T) {
		out := toggleReaction(nil, "👍", conversation.ParticipantCustomer, now)
		out = toggleReaction(out, "👍", conversation.ParticipantCustomer, now)
		if len(out) != 0 {
			t.Errorf("entry with both flags false must be pruned: %+v", out)
		}
	})

	t.Run("prune keeps other emojis", func(t *testing.T) {
		out := toggleReaction(nil, "👍", conversation.ParticipantManager, now)
		out = toggleReaction(out, "❤️", conversation.ParticipantCustomer, now)
		out = toggleReaction(out, "👍", conversation.ParticipantManager, now)
		if len(out) != 1 || out[0].Emoji != "❤️" {
			t.Errorf("unexpected reactions after prune: %+v", out)
		}
	})
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"content wins", Message{Content: "hello", Attachments: []Attachment{{Type: AttachmentImage}}}, "hello"},
		{"single photo", Message{Attachments: []Attachment{{Type: AttachmentImage}}}, "Photo"},
		{"single video", Message{Attachments: []Attachment{{Type: AttachmentVideo}}}, "Video"},
		{"single file", Message{Attachments: []Attachment{{Type: AttachmentFile}}}, "File"},
		{"multiple attachments", Message{Attachments: []Attachment{{Type: AttachmentImage}, {Type: AttachmentFile}}}, "2 attachments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Snippet(); got != tt.want {
				t.Errorf("Snippet() = %q, want %q", got, tt.want)
			}
		})
	}
}
