package conversation

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
)

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const conversationColumns = `
	id, manager_id, customer_id, manager_name, customer_name, customer_phone,
	notes, booking_data, status, unread_by_manager, unread_by_customer,
	last_message_at, last_message_snippet, muted_for_manager, muted_for_customer,
	auto_chat_enabled, auto_chat_message_count, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var booking []byte
	err := row.Scan(
		&c.ID, &c.ManagerID, &c.CustomerID, &c.ManagerName, &c.CustomerName,
		&c.CustomerPhone, &c.Notes, &booking, &c.Status, &c.UnreadByManager,
		&c.UnreadByCustomer, &c.LastMessageAt, &c.LastMessageSnippet,
		&c.MutedForManager, &c.MutedForCustomer, &c.AutoChatEnabled,
		&c.AutoChatMessageCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(booking) > 0 {
		if err := json.Unmarshal(booking, &c.Booking); err != nil {
			return nil, fmt.Errorf("conversation: decode booking data: %w", err)
		}
	}
	return &c, nil
}

// Insert creates a conversation for a (manager, customer) pair. The unique
// index on the pair makes this race-safe: a concurrent insert loses the
// conflict and the row is absent from RETURNING, in which case created is
// false and the caller should re-read the existing row.
func (s *Store) Insert(ctx context.Context, c *Conversation) (created bool, err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	booking, err := json.Marshal(c.Booking)
	if err != nil {
		return false, fmt.Errorf("conversation: marshal booking data: %w", err)
	}
	query := `
		INSERT INTO conversations (
			id, manager_id, customer_id, manager_name, customer_name,
			customer_phone, notes, booking_data, status, auto_chat_enabled
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (manager_id, customer_id) DO NOTHING
		RETURNING id
	`
	var id uuid.UUID
	err = s.pool.QueryRow(ctx, query,
		c.ID, c.ManagerID, c.CustomerID, c.ManagerName, c.CustomerName,
		c.CustomerPhone, c.Notes, booking, c.Status, c.AutoChatEnabled,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("conversation: insert: %w", err)
	}
	return true, nil
}

// GetByID fetches a single conversation.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+conversationColumns+` FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation: %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get: %w", err)
	}
	return c, nil
}

// GetByPair fetches the conversation for a (manager, customer) pair.
func (s *Store) GetByPair(ctx context.Context, managerID, customerID uuid.UUID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+conversationColumns+` FROM conversations WHERE manager_id = $1 AND customer_id = $2`,
		managerID, customerID)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation: pair %s/%s: %w", managerID, customerID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get by pair: %w", err)
	}
	return c, nil
}

// GetByCustomer fetches the conversation a customer belongs to.
func (s *Store) GetByCustomer(ctx context.Context, customerID uuid.UUID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+conversationColumns+` FROM conversations WHERE customer_id = $1`, customerID)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation: customer %s: %w", customerID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get by customer: %w", err)
	}
	return c, nil
}

// RefreshMetadata updates display fields on an existing conversation.
// Blank inputs keep the stored value; ensure never erases metadata.
func (s *Store) RefreshMetadata(ctx context.Context, id uuid.UUID, managerName, customerName, customerPhone string) error {
	query := `
		UPDATE conversations SET
			manager_name = COALESCE(NULLIF($2, ''), manager_name),
			customer_name = COALESCE(NULLIF($3, ''), customer_name),
			customer_phone = COALESCE(NULLIF($4, ''), customer_phone),
			updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, managerName, customerName, customerPhone); err != nil {
		return fmt.Errorf("conversation: refresh metadata: %w", err)
	}
	return nil
}

// IncrementUnread atomically bumps a participant's unread counter. The
// increment happens in SQL so concurrent senders never lose updates.
func (s *Store) IncrementUnread(ctx context.Context, id uuid.UUID, p Participant) error {
	column, err := unreadColumn(p)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE conversations SET %s = %s + 1, updated_at = now() WHERE id = $1`, column, column)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("conversation: increment unread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation: %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// ZeroUnread resets a participant's unread counter.
func (s *Store) ZeroUnread(ctx context.Context, id uuid.UUID, p Participant) error {
	column, err := unreadColumn(p)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE conversations SET %s = 0, updated_at = now() WHERE id = $1`, column)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("conversation: zero unread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation: %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func unreadColumn(p Participant) (string, error) {
	switch p {
	case ParticipantManager:
		return "unread_by_manager", nil
	case ParticipantCustomer:
		return "unread_by_customer", nil
	}
	return "", fmt.Errorf("conversation: participant %q: %w", p, apperrors.ErrValidation)
}

// SetMute flips the actor-specific mute flag.
func (s *Store) SetMute(ctx context.Context, id uuid.UUID, p Participant, muted bool) error {
	var column string
	switch p {
	case ParticipantManager:
		column = "muted_for_manager"
	case ParticipantCustomer:
		column = "muted_for_customer"
	default:
		return fmt.Errorf("conversation: participant %q: %w", p, apperrors.ErrValidation)
	}
	query := fmt.Sprintf(`UPDATE conversations SET %s = $2, updated_at = now() WHERE id = $1`, column)
	tag, err := s.pool.Exec(ctx, query, id, muted)
	if err != nil {
		return fmt.Errorf("conversation: set mute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation: %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// UpdateSnapshot overwrites the denormalized last-message preview.
func (s *Store) UpdateSnapshot(ctx context.Context, id uuid.UUID, snippet string, at time.Time) error {
	query := `
		UPDATE conversations SET
			last_message_snippet = $2,
			last_message_at = $3,
			updated_at = $3
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, snippet, at)
	if err != nil {
		return fmt.Errorf("conversation: update snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation: %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// SaveBooking writes the merged booking state.
func (s *Store) SaveBooking(ctx context.Context, id uuid.UUID, b BookingData) error {
	booking, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("conversation: marshal booking data: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET booking_data = $2, updated_at = now() WHERE id = $1`, id, booking)
	if err != nil {
		return fmt.Errorf("conversation: save booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation: %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// IncrementAutoChatCount atomically bumps the bot turn counter and returns
// the new value. The ceiling check keys off the returned count so two
// concurrent bot turns cannot both think they are below the limit.
func (s *Store) IncrementAutoChatCount(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET auto_chat_message_count = auto_chat_message_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING auto_chat_message_count
	`, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("conversation: %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("conversation: increment auto chat count: %w", err)
	}
	return count, nil
}

// SetAutoChatEnabled turns the bot on or off for a conversation.
func (s *Store) SetAutoChatEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET auto_chat_enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("conversation: set auto chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation: %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// ListByManager returns a manager's conversations, most recently active
// first. Offset paging; the list view caps limit at its page size.
func (s *Store) ListByManager(ctx context.Context, managerID uuid.UUID, limit, skip int) ([]*Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+conversationColumns+`
		FROM conversations
		WHERE manager_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, managerID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("conversation: list by manager: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan list row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountByManager returns the total number of conversations for hasMore math.
func (s *Store) CountByManager(ctx context.Context, managerID uuid.UUID) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM conversations WHERE manager_id = $1`, managerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("conversation: count by manager: %w", err)
	}
	return count, nil
}
