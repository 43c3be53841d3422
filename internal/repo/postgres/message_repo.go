package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
)

type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) (*domain.Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageCols = `id, event_id, sender_user_id, scheduled_id, content, message_type,
filter, recipient_ids, sent_at, created_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID, &m.EventID, &m.SenderUserID, &m.ScheduledID, &m.Content, &m.MessageType,
		&m.Filter, &m.RecipientIDs, &m.SentAt, &m.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepository) Create(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	const q = `
		INSERT INTO messages (id, event_id, sender_user_id, scheduled_id, content, message_type, filter, recipient_ids, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING ` + messageCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanMessage(r.pool.QueryRow(ctx, q,
		uuid.New(), m.EventID, m.SenderUserID, m.ScheduledID, m.Content, m.MessageType,
		m.Filter, m.RecipientIDs, m.SentAt.UTC(),
	))
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	const q = `SELECT ` + messageCols + ` FROM messages WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanMessage(r.pool.QueryRow(ctx, q, id))
}

func (r *messageRepository) ListByEvent(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + messageCols + ` FROM messages WHERE event_id=$1 ORDER BY sent_at DESC LIMIT $2 OFFSET $3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, eventID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID, &m.EventID, &m.SenderUserID, &m.ScheduledID, &m.Content, &m.MessageType,
			&m.Filter, &m.RecipientIDs, &m.SentAt, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
