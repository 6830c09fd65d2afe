package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
)

var conversationTestColumns = []string{
	"id", "manager_id", "customer_id", "manager_name", "customer_name",
	"customer_phone", "notes", "booking_data", "status", "unread_by_manager",
	"unread_by_customer", "last_message_at", "last_message_snippet",
	"muted_for_manager", "muted_for_customer", "auto_chat_enabled",
	"auto_chat_message_count", "created_at", "updated_at",
}

func conversationRow(id uuid.UUID) *pgxmock.Rows {
	return conversationRowWithParties(id, uuid.New(), uuid.New())
}

func conversationRowWithParties(id, managerID, customerID uuid.UUID) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(conversationTestColumns).AddRow(
		id, managerID, customerID, "Riverside Salon", "Jordan Lee",
		"+15550123", "", []byte(`{"service":"Haircut & Styling"}`), StatusOpen, 2,
		0, (*time.Time)(nil), "see you soon",
		false, false, true,
		3, now, now,
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

func TestStoreInsert_Created(t *testing.T) {
	store, mock := newStoreWithMock(t)
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "Riverside Salon", "Jordan Lee",
			"+15550123", "", pgxmock.AnyArg(), StatusOpen, true).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))

	created, err := store.Insert(context.Background(), &Conversation{
		ManagerID:       uuid.New(),
		CustomerID:      uuid.New(),
		ManagerName:     "Riverside Salon",
		CustomerName:    "Jordan Lee",
		CustomerPhone:   "+15550123",
		Status:          StatusOpen,
		AutoChatEnabled: true,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
}

func TestStoreInsert_LostRace(t *testing.T) {
	store, mock := newStoreWithMock(t)
	// ON CONFLICT DO NOTHING yields no row for the loser.
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(anyArgs(10)...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	created, err := store.Insert(context.Background(), &Conversation{
		ManagerID:  uuid.New(),
		CustomerID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if created {
		t.Error("created = true, want false on conflict")
	}
}

func TestStoreGetByID(t *testing.T) {
	store, mock := newStoreWithMock(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT .+ FROM conversations WHERE id").
		WithArgs(id).
		WillReturnRows(conversationRow(id))

	c, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.ID != id {
		t.Errorf("id = %s, want %s", c.ID, id)
	}
	if c.Booking.Service != "Haircut & Styling" {
		t.Errorf("booking service = %q, JSONB decode failed", c.Booking.Service)
	}
	if c.UnreadByManager != 2 {
		t.Errorf("unread by manager = %d, want 2", c.UnreadByManager)
	}
}

func TestStoreGetByID_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT .+ FROM conversations WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(conversationTestColumns))

	if _, err := store.GetByID(context.Background(), id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestStoreIncrementUnread(t *testing.T) {
	store, mock := newStoreWithMock(t)
	id := uuid.New()
	// The increment must be pushed into SQL, not read-modify-write.
	mock.ExpectExec("UPDATE conversations SET unread_by_customer = unread_by_customer \\+ 1").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := store.IncrementUnread(context.Background(), id, ParticipantCustomer); err != nil {
		t.Fatalf("increment unread: %v", err)
	}
}

func TestStoreIncrementUnread_BadParticipant(t *testing.T) {
	store, _ := newStoreWithMock(t)
	if err := store.IncrementUnread(context.Background(), uuid.New(), Participant("nobody")); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("want ErrValidation, got %v", err)
	}
}

func TestStoreIncrementAutoChatCount(t *testing.T) {
	store, mock := newStoreWithMock(t)
	id := uuid.New()
	mock.ExpectQuery("UPDATE conversations").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"auto_chat_message_count"}).AddRow(7))

	count, err := store.IncrementAutoChatCount(context.Background(), id)
	if err != nil {
		t.Fatalf("increment auto chat count: %v", err)
	}
	if count != 7 {
		t.Errorf("count = %d, want the value RETURNING produced", count)
	}
}

func TestStoreZeroUnread_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)
	id := uuid.New()
	mock.ExpectExec("UPDATE conversations SET unread_by_manager = 0").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := store.ZeroUnread(context.Background(), id, ParticipantManager); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestStoreListByManager(t *testing.T) {
	store, mock := newStoreWithMock(t)
	managerID := uuid.New()
	mock.ExpectQuery("SELECT .+ FROM conversations").
		WithArgs(managerID, 20, 0).
		WillReturnRows(conversationRow(uuid.New()))

	out, err := store.ListByManager(context.Background(), managerID, 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("len = %d, want 1", len(out))
	}
}
