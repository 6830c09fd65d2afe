package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
	"github.com/bizlinkhq/bizlink-server/internal/conversation"
)

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists messages in Postgres. Attachments, reactions and reply
// snapshots live in JSONB columns; per-viewer delivery state is flattened
// into columns so the delivered/read sweeps are single UPDATE statements.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const messageColumns = `
	id, conversation_id, author_type, author_id, content, attachments, status,
	delivery_manager_status, delivery_manager_updated_at,
	delivery_customer_status, delivery_customer_updated_at,
	reactions, reply_to, edited_at, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var attachments, reactions, replyTo []byte
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.AuthorType, &m.AuthorID, &m.Content,
		&attachments, &m.Status,
		&m.Delivery.Manager.Status, &m.Delivery.Manager.UpdatedAt,
		&m.Delivery.Customer.Status, &m.Delivery.Customer.UpdatedAt,
		&reactions, &replyTo, &m.EditedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("message: decode attachments: %w", err)
		}
	}
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
			return nil, fmt.Errorf("message: decode reactions: %w", err)
		}
	}
	if len(replyTo) > 0 {
		var snap ReplySnapshot
		if err := json.Unmarshal(replyTo, &snap); err != nil {
			return nil, fmt.Errorf("message: decode reply snapshot: %w", err)
		}
		m.ReplyTo = &snap
	}
	return &m, nil
}

// Insert appends a message to the conversation log.
func (s *Store) Insert(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return fmt.Errorf("message: marshal attachments: %w", err)
	}
	reactions, err := json.Marshal(m.Reactions)
	if err != nil {
		return fmt.Errorf("message: marshal reactions: %w", err)
	}
	var replyTo []byte
	if m.ReplyTo != nil {
		if replyTo, err = json.Marshal(m.ReplyTo); err != nil {
			return fmt.Errorf("message: marshal reply snapshot: %w", err)
		}
	}
	query := `
		INSERT INTO messages (
			id, conversation_id, author_type, author_id, content, attachments,
			status, delivery_manager_status, delivery_manager_updated_at,
			delivery_customer_status, delivery_customer_updated_at,
			reactions, reply_to, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`
	_, err = s.pool.Exec(ctx, query,
		m.ID, m.ConversationID, m.AuthorType, m.AuthorID, m.Content, attachments,
		m.Status, m.Delivery.Manager.Status, m.Delivery.Manager.UpdatedAt,
		m.Delivery.Customer.Status, m.Delivery.Customer.UpdatedAt,
		reactions, replyTo, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("message: insert: %w", err)
	}
	return nil
}

// GetByID fetches a single message.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message: %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("message: get: %w", err)
	}
	return m, nil
}

// UpdatePatch carries the independently updatable fields of an edit.
// Nil means "leave as is"; content-only and attachment-only edits compose.
type UpdatePatch struct {
	Content     *string
	Attachments []Attachment
	HasAttach   bool
}

// Update applies an edit and stamps edited_at. Returns the updated message.
func (s *Store) Update(ctx context.Context, id uuid.UUID, patch UpdatePatch) (*Message, error) {
	var attachments []byte
	if patch.HasAttach {
		data, err := json.Marshal(patch.Attachments)
		if err != nil {
			return nil, fmt.Errorf("message: marshal attachments: %w", err)
		}
		attachments = data
	}
	query := `
		UPDATE messages SET
			content = COALESCE($2, content),
			attachments = COALESCE($3, attachments),
			edited_at = now()
		WHERE id = $1
		RETURNING` + messageColumns
	row := s.pool.QueryRow(ctx, query, id, patch.Content, attachments)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message: %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("message: update: %w", err)
	}
	return m, nil
}

// Delete hard-removes a message and returns the conversation it belonged
// to so the caller can invalidate caches. No tombstone is kept.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var conversationID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`DELETE FROM messages WHERE id = $1 RETURNING conversation_id`, id).Scan(&conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("message: %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("message: delete: %w", err)
	}
	return conversationID, nil
}

// ToggleReaction flips the actor's flag on the emoji's entry, creating the
// entry on first toggle and pruning it when both flags end up false. The
// row lock serializes concurrent toggles so an emoji never gets two entries.
func (s *Store) ToggleReaction(ctx context.Context, id uuid.UUID, emoji string, actor conversation.Participant) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("message: begin toggle reaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT reactions FROM messages WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message: %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("message: lock reactions: %w", err)
	}

	var reactions []Reaction
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &reactions); err != nil {
			return nil, fmt.Errorf("message: decode reactions: %w", err)
		}
	}
	reactions = toggleReaction(reactions, emoji, actor, time.Now().UTC())

	updated, err := json.Marshal(reactions)
	if err != nil {
		return nil, fmt.Errorf("message: marshal reactions: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE messages SET reactions = $2 WHERE id = $1`, id, updated); err != nil {
		return nil, fmt.Errorf("message: update reactions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("message: commit toggle reaction: %w", err)
	}
	return s.GetByID(ctx, id)
}

func toggleReaction(reactions []Reaction, emoji string, actor conversation.Participant, now time.Time) []Reaction {
	for i := range reactions {
		if reactions[i].Emoji != emoji {
			continue
		}
		if actor == conversation.ParticipantManager {
			reactions[i].ManagerReacted = !reactions[i].ManagerReacted
		} else {
			reactions[i].CustomerReacted = !reactions[i].CustomerReacted
		}
		reactions[i].UpdatedAt = now
		if !reactions[i].ManagerReacted && !reactions[i].CustomerReacted {
			return append(reactions[:i], reactions[i+1:]...)
		}
		return reactions
	}
	entry := Reaction{Emoji: emoji, UpdatedAt: now}
	if actor == conversation.ParticipantManager {
		entry.ManagerReacted = true
	} else {
		entry.CustomerReacted = true
	}
	return append(reactions, entry)
}

// MarkDelivered advances the viewer's state to delivered on every message
// authored by the other side that is still at sent. The coarse status
// column moves in the same statement so it cannot diverge. Transitions are
// monotonic: rows already delivered or read are untouched.
func (s *Store) MarkDelivered(ctx context.Context, conversationID uuid.UUID, viewer conversation.Participant) (int64, error) {
	statusCol, updatedCol, authorFilter, err := viewerColumns(viewer)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		UPDATE messages SET
			%s = 'delivered',
			%s = now(),
			status = CASE WHEN status = 'sent' THEN 'delivered' ELSE status END
		WHERE conversation_id = $1
			AND author_type = ANY($2)
			AND %s = 'sent'
	`, statusCol, updatedCol, statusCol)
	tag, err := s.pool.Exec(ctx, query, conversationID, authorFilter)
	if err != nil {
		return 0, fmt.Errorf("message: mark delivered: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkRead advances the viewer's state to read on every message authored by
// the other side not yet read by the viewer.
func (s *Store) MarkRead(ctx context.Context, conversationID uuid.UUID, viewer conversation.Participant) (int64, error) {
	statusCol, updatedCol, authorFilter, err := viewerColumns(viewer)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		UPDATE messages SET
			%s = 'read',
			%s = now(),
			status = 'read'
		WHERE conversation_id = $1
			AND author_type = ANY($2)
			AND %s IN ('sent', 'delivered')
	`, statusCol, updatedCol, statusCol)
	tag, err := s.pool.Exec(ctx, query, conversationID, authorFilter)
	if err != nil {
		return 0, fmt.Errorf("message: mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// viewerColumns resolves the delivery columns for a viewer and the author
// types whose messages that viewer acknowledges. System messages sit on the
// manager side, so customers acknowledge them too.
func viewerColumns(viewer conversation.Participant) (statusCol, updatedCol string, authors []string, err error) {
	switch viewer {
	case conversation.ParticipantManager:
		return "delivery_manager_status", "delivery_manager_updated_at",
			[]string{string(AuthorCustomer)}, nil
	case conversation.ParticipantCustomer:
		return "delivery_customer_status", "delivery_customer_updated_at",
			[]string{string(AuthorManager), string(AuthorSystem)}, nil
	}
	return "", "", nil, fmt.Errorf("message: viewer %q: %w", viewer, apperrors.ErrValidation)
}

// ListWindow returns the most recent limit messages in chronological order.
func (s *Store) ListWindow(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("message: list window: %w", err)
	}
	defer rows.Close()
	page, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(page)
	return page, nil
}

// ListBefore returns the limit messages immediately preceding the reference
// message, chronological. Keyset on (created_at, id) keeps pages stable
// while new messages are appended concurrently.
func (s *Store) ListBefore(ctx context.Context, conversationID uuid.UUID, before *Message, limit int) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
			AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, conversationID, before.CreatedAt, before.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("message: list before: %w", err)
	}
	defer rows.Close()
	page, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(page)
	return page, nil
}

// LastMessages fetches the single most recent message for each conversation
// in one round trip, for the list view's previews.
func (s *Store) LastMessages(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]*Message, error) {
	if len(conversationIDs) == 0 {
		return map[uuid.UUID]*Message{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (conversation_id)`+messageColumns+`
		FROM messages
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, created_at DESC, id DESC
	`, conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("message: last messages: %w", err)
	}
	defer rows.Close()
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*Message, len(msgs))
	for _, m := range msgs {
		out[m.ConversationID] = m
	}
	return out, nil
}

func collectMessages(rows pgx.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("message: scan row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func reverse(msgs []*Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
