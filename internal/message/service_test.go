package message

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
	"github.com/bizlinkhq/bizlink-server/internal/cache"
	"github.com/bizlinkhq/bizlink-server/internal/conversation"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

type fakeConversations struct {
	conv       *conversation.Conversation
	increments []conversation.Participant
	snippets   []string
}

func (f *fakeConversations) Get(_ context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	if f.conv == nil || f.conv.ID != id {
		return nil, apperrors.ErrNotFound
	}
	return f.conv, nil
}

func (f *fakeConversations) IncrementUnread(_ context.Context, _ uuid.UUID, p conversation.Participant) error {
	f.increments = append(f.increments, p)
	return nil
}

func (f *fakeConversations) UpdateLastMessageSnapshot(_ context.Context, _ uuid.UUID, snippet string, _ time.Time) error {
	f.snippets = append(f.snippets, snippet)
	return nil
}

type fakeResponder struct {
	reply string
	ok    bool
	seen  []string
}

func (f *fakeResponder) Respond(_ context.Context, _ *conversation.Conversation, text string) (string, bool) {
	f.seen = append(f.seen, text)
	return f.reply, f.ok
}

func testConversation() *conversation.Conversation {
	return &conversation.Conversation{
		ID:              uuid.New(),
		ManagerID:       uuid.New(),
		CustomerID:      uuid.New(),
		ManagerName:     "Riverside Salon",
		CustomerName:    "Jordan Lee",
		Status:          conversation.StatusOpen,
		AutoChatEnabled: false,
	}
}

func newServiceWithMock(t *testing.T, convs *fakeConversations) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	store := &Store{pool: mock}
	return NewService(store, convs, nil, nil, nil, logging.New("error")), mock
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newServiceWithMock(t, &fakeConversations{})

	tests := []struct {
		name  string
		input CreateInput
	}{
		{"unknown author", CreateInput{AuthorType: "bot", Content: "hi"}},
		{"empty message", CreateInput{AuthorType: AuthorCustomer}},
		{"whitespace only", CreateInput{AuthorType: AuthorCustomer, Content: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tt.input); !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreate_CustomerMessage(t *testing.T) {
	conv := testConversation()
	convs := &fakeConversations{conv: conv}
	svc, mock := newServiceWithMock(t, convs)

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	msg, err := svc.Create(context.Background(), CreateInput{
		ConversationID: conv.ID,
		AuthorType:     AuthorCustomer,
		Content:        "  hello there  ",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if msg.Content != "hello there" {
		t.Errorf("content = %q, want trimmed", msg.Content)
	}
	// Author side starts read, recipient side starts sent.
	if msg.Delivery.Customer.Status != DeliveryRead {
		t.Errorf("author viewer state = %s, want read", msg.Delivery.Customer.Status)
	}
	if msg.Delivery.Manager.Status != DeliverySent {
		t.Errorf("recipient viewer state = %s, want sent", msg.Delivery.Manager.Status)
	}
	if msg.Status != DeliverySent {
		t.Errorf("coarse status = %s, want sent", msg.Status)
	}

	if len(convs.increments) != 1 || convs.increments[0] != conversation.ParticipantManager {
		t.Errorf("unread increments = %v, want one for the manager", convs.increments)
	}
	if len(convs.snippets) != 1 || convs.snippets[0] != "hello there" {
		t.Errorf("snapshot snippets = %v", convs.snippets)
	}
}

func TestCreate_AttachmentOnlySnippet(t *testing.T) {
	conv := testConversation()
	convs := &fakeConversations{conv: conv}
	svc, mock := newServiceWithMock(t, convs)

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	_, err := svc.Create(context.Background(), CreateInput{
		ConversationID: conv.ID,
		AuthorType:     AuthorManager,
		Attachments:    []AttachmentInput{{MimeType: "image/png", Name: "photo.png"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(convs.snippets) != 1 || convs.snippets[0] != "Photo" {
		t.Errorf("snippets = %v, want the typed label", convs.snippets)
	}
	if len(convs.increments) != 1 || convs.increments[0] != conversation.ParticipantCustomer {
		t.Errorf("increments = %v, want one for the customer", convs.increments)
	}
}

func TestCreate_BotTurnRunsForCustomerOnly(t *testing.T) {
	conv := testConversation()
	conv.AutoChatEnabled = true
	convs := &fakeConversations{conv: conv}
	svc, mock := newServiceWithMock(t, convs)
	responder := &fakeResponder{reply: "How can I help?", ok: true}
	svc.SetResponder(responder)

	// Customer message plus the bot's manager-side reply.
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if _, err := svc.Create(context.Background(), CreateInput{
		ConversationID: conv.ID,
		AuthorType:     AuthorCustomer,
		Content:        "hi",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(responder.seen) != 1 || responder.seen[0] != "hi" {
		t.Fatalf("responder saw %v, want the customer turn once", responder.seen)
	}
	// Customer's message bumps the manager, the bot reply bumps the customer.
	if len(convs.increments) != 2 {
		t.Fatalf("increments = %v", convs.increments)
	}

	// A manager message must never reach the responder.
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if _, err := svc.Create(context.Background(), CreateInput{
		ConversationID: conv.ID,
		AuthorType:     AuthorManager,
		Content:        "I'll take it from here",
	}); err != nil {
		t.Fatalf("create manager message: %v", err)
	}
	if len(responder.seen) != 1 {
		t.Errorf("responder ran on a manager message")
	}
}

func TestCreate_SilentBotDoesNothing(t *testing.T) {
	conv := testConversation()
	conv.AutoChatEnabled = true
	convs := &fakeConversations{conv: conv}
	svc, mock := newServiceWithMock(t, convs)
	svc.SetResponder(&fakeResponder{ok: false})

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if _, err := svc.Create(context.Background(), CreateInput{
		ConversationID: conv.ID,
		AuthorType:     AuthorCustomer,
		Content:        "hi",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(convs.increments) != 1 {
		t.Errorf("a silent bot turn must not append a message")
	}
}

func TestCreate_SystemMessageKeepsCountersAtZero(t *testing.T) {
	conv := testConversation()
	convs := &fakeConversations{conv: conv}
	svc, mock := newServiceWithMock(t, convs)

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := svc.AnnounceSystem(context.Background(), conv.ID, "Conversation started."); err != nil {
		t.Fatalf("announce: %v", err)
	}
	// The welcome belongs to neither side; a fresh conversation must read
	// back with both unread counters at zero.
	if len(convs.increments) != 0 {
		t.Errorf("increments = %v, want none for a system message", convs.increments)
	}
	if len(convs.snippets) != 1 || convs.snippets[0] != "Conversation started." {
		t.Errorf("snippets = %v, want the welcome preview", convs.snippets)
	}
}

func TestCreate_ReplySnapshotDegradesToNullRef(t *testing.T) {
	conv := testConversation()
	convs := &fakeConversations{conv: conv}
	svc, mock := newServiceWithMock(t, convs)

	missing := uuid.New()
	// The referenced message is gone; the quote survives with a nil ref.
	mock.ExpectQuery("SELECT .+ FROM messages WHERE id").
		WithArgs(missing).
		WillReturnRows(pgxmock.NewRows(messageTestColumns))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	msg, err := svc.Create(context.Background(), CreateInput{
		ConversationID: conv.ID,
		AuthorType:     AuthorManager,
		Content:        "replying",
		ReplyTo: &ReplyRef{
			MessageID:  missing.String(),
			AuthorType: string(AuthorCustomer),
			AuthorName: "Jordan Lee",
			Content:    "original text",
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if msg.ReplyTo == nil {
		t.Fatal("quote dropped entirely")
	}
	if msg.ReplyTo.MessageID != nil {
		t.Error("unresolvable ref should null the message ref")
	}
	if msg.ReplyTo.Content != "original text" {
		t.Errorf("quote content = %q, want the frozen copy", msg.ReplyTo.Content)
	}
}

func TestEdit_RequiresAField(t *testing.T) {
	svc, _ := newServiceWithMock(t, &fakeConversations{})
	if _, err := svc.Edit(context.Background(), uuid.New(), EditInput{}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("want ErrValidation, got %v", err)
	}
}

func TestEdit_NoUnreadOrSnapshotSideEffects(t *testing.T) {
	conv := testConversation()
	convs := &fakeConversations{conv: conv}
	svc, mock := newServiceWithMock(t, convs)

	id := uuid.New()
	content := "edited"
	mock.ExpectQuery("UPDATE messages SET").
		WithArgs(id, &content, pgxmock.AnyArg()).
		WillReturnRows(messageRow(id, conv.ID, content))

	if _, err := svc.Edit(context.Background(), id, EditInput{Content: &content}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if len(convs.increments) != 0 || len(convs.snippets) != 0 {
		t.Error("edit must not touch unread counters or the snapshot")
	}
}

func TestToggleReaction_Validation(t *testing.T) {
	svc, _ := newServiceWithMock(t, &fakeConversations{})

	if _, err := svc.ToggleReaction(context.Background(), uuid.New(), "👍", conversation.Participant("x")); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("bad actor: want ErrValidation, got %v", err)
	}
	if _, err := svc.ToggleReaction(context.Background(), uuid.New(), "", conversation.ParticipantManager); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("empty emoji: want ErrValidation, got %v", err)
	}
}

func TestToggleReaction_DropsAllCachedViews(t *testing.T) {
	conv := testConversation()
	convs := &fakeConversations{conv: conv}

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	mr := miniredis.RunT(t)
	c := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, nil, logging.New("error"))
	svc := NewService(&Store{pool: mock}, convs, c, nil, nil, logging.New("error"))

	ctx := context.Background()
	keys := []string{
		cache.ManagerConversationsKey(conv.ManagerID),
		cache.ConversationDetailKey(conv.ID),
		cache.CustomerConversationKey(conv.CustomerID),
	}
	for _, key := range keys {
		c.Set(ctx, key, map[string]string{"reactions": "old"})
	}

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT reactions FROM messages").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"reactions"}).AddRow([]byte(nil)))
	mock.ExpectExec("UPDATE messages SET reactions").
		WithArgs(id, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT .+ FROM messages WHERE id").
		WithArgs(id).
		WillReturnRows(messageRow(id, conv.ID, "hi"))

	if _, err := svc.ToggleReaction(ctx, id, "👍", conversation.ParticipantManager); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	// The customer window and the manager list cache the message too, so a
	// toggle must stale more than the detail key.
	var out map[string]string
	for _, key := range keys {
		if c.Get(ctx, key, &out) {
			t.Errorf("key %s still cached after a reaction toggle", key)
		}
	}
}

func TestNormalizeAttachmentType(t *testing.T) {
	tests := []struct {
		kind, mime string
		want       AttachmentType
	}{
		{"image", "", AttachmentImage},
		{"VIDEO", "", AttachmentVideo},
		{"", "image/jpeg", AttachmentImage},
		{"", "video/mp4", AttachmentVideo},
		{"", "audio/ogg", AttachmentAudio},
		{"", "application/pdf", AttachmentFile},
		{"", "", AttachmentOther},
		{"bogus", "", AttachmentOther},
	}
	for _, tt := range tests {
		if got := normalizeAttachmentType(tt.kind, tt.mime); got != tt.want {
			t.Errorf("normalizeAttachmentType(%q, %q) = %s, want %s", tt.kind, tt.mime, got, tt.want)
		}
	}
}
