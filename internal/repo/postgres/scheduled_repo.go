package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
)

type ScheduledMessageRepository interface {
	Create(ctx context.Context, m *domain.ScheduledMessage) (*domain.ScheduledMessage, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]domain.ScheduledMessage, error)
	// Update applies an edit guarded by the version counter; returns nil when
	// the message is gone or the version moved underneath the caller.
	Update(ctx context.Context, m *domain.ScheduledMessage, expectedVersion int) (*domain.ScheduledMessage, error)
	// CancelIfScheduled compare-and-swaps scheduled -> cancelled.
	CancelIfScheduled(ctx context.Context, id uuid.UUID) (bool, error)
	// ClaimSent compare-and-swaps scheduled -> sent at the expected version.
	// Exactly one concurrent dispatcher wins the claim.
	ClaimSent(ctx context.Context, id uuid.UUID, expectedVersion int, sentAt time.Time) (bool, error)
	// MarkFailed compare-and-swaps scheduled -> failed.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledMessage, error)
}

type scheduledMessageRepository struct {
	pool *pgxpool.Pool
}

func NewScheduledMessageRepository(pool *pgxpool.Pool) ScheduledMessageRepository {
	return &scheduledMessageRepository{pool: pool}
}

const scheduledCols = `id, event_id, sender_user_id, content, message_type, filter,
target_all_guests, send_at, status, version, modification_count, modified_at,
recipient_count, send_via_sms, send_via_push, sent_at, failure_reason,
created_at, updated_at`

func scanScheduled(row pgx.Row) (*domain.ScheduledMessage, error) {
	var m domain.ScheduledMessage
	err := row.Scan(
		&m.ID, &m.EventID, &m.SenderUserID, &m.Content, &m.MessageType, &m.Filter,
		&m.TargetAllGuests, &m.SendAt, &m.Status, &m.Version, &m.ModificationCount, &m.ModifiedAt,
		&m.RecipientCount, &m.SendViaSMS, &m.SendViaPush, &m.SentAt, &m.FailureReason,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *scheduledMessageRepository) Create(ctx context.Context, m *domain.ScheduledMessage) (*domain.ScheduledMessage, error) {
	const q = `
		INSERT INTO scheduled_messages (
			id, event_id, sender_user_id, content, message_type, filter,
			target_all_guests, send_at, status, version, modification_count,
			recipient_count, send_via_sms, send_via_push
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'scheduled',1,0,$9,$10,$11)
		RETURNING ` + scheduledCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanScheduled(r.pool.QueryRow(ctx, q,
		uuid.New(), m.EventID, m.SenderUserID, m.Content, m.MessageType, m.Filter,
		m.TargetAllGuests, m.SendAt.UTC(), m.RecipientCount, m.SendViaSMS, m.SendViaPush,
	))
}

func (r *scheduledMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	const q = `SELECT ` + scheduledCols + ` FROM scheduled_messages WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanScheduled(r.pool.QueryRow(ctx, q, id))
}

func (r *scheduledMessageRepository) ListByEvent(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]domain.ScheduledMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + scheduledCols + ` FROM scheduled_messages WHERE event_id=$1 ORDER BY send_at DESC LIMIT $2 OFFSET $3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, eventID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ScheduledMessage
	for rows.Next() {
		var m domain.ScheduledMessage
		if err := rows.Scan(
			&m.ID, &m.EventID, &m.SenderUserID, &m.Content, &m.MessageType, &m.Filter,
			&m.TargetAllGuests, &m.SendAt, &m.Status, &m.Version, &m.ModificationCount, &m.ModifiedAt,
			&m.RecipientCount, &m.SendViaSMS, &m.SendViaPush, &m.SentAt, &m.FailureReason,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *scheduledMessageRepository) Update(ctx context.Context, m *domain.ScheduledMessage, expectedVersion int) (*domain.ScheduledMessage, error) {
	const q = `
		UPDATE scheduled_messages SET
			content            = $3,
			message_type       = $4,
			filter             = $5,
			target_all_guests  = $6,
			send_at            = $7,
			recipient_count    = $8,
			send_via_sms       = $9,
			send_via_push      = $10,
			version            = version + 1,
			modification_count = modification_count + 1,
			modified_at        = now(),
			updated_at         = now()
		WHERE id=$1 AND status='scheduled' AND version=$2
		RETURNING ` + scheduledCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanScheduled(r.pool.QueryRow(ctx, q,
		m.ID, expectedVersion, m.Content, m.MessageType, m.Filter,
		m.TargetAllGuests, m.SendAt.UTC(), m.RecipientCount, m.SendViaSMS, m.SendViaPush,
	))
}

func (r *scheduledMessageRepository) CancelIfScheduled(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
		UPDATE scheduled_messages
		SET status='cancelled', version=version+1, updated_at=now()
		WHERE id=$1 AND status='scheduled'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *scheduledMessageRepository) ClaimSent(ctx context.Context, id uuid.UUID, expectedVersion int, sentAt time.Time) (bool, error) {
	const q = `
		UPDATE scheduled_messages
		SET status='sent', sent_at=$3, version=version+1, updated_at=now()
		WHERE id=$1 AND status='scheduled' AND version=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, expectedVersion, sentAt.UTC())
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *scheduledMessageRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	const q = `
		UPDATE scheduled_messages
		SET status='failed', failure_reason=$2, version=version+1, updated_at=now()
		WHERE id=$1 AND status='scheduled'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, reason)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *scheduledMessageRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `
		SELECT ` + scheduledCols + `
		FROM scheduled_messages
		WHERE status='scheduled' AND send_at <= $1
		ORDER BY send_at
		LIMIT $2`
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ScheduledMessage
	for rows.Next() {
		var m domain.ScheduledMessage
		if err := rows.Scan(
			&m.ID, &m.EventID, &m.SenderUserID, &m.Content, &m.MessageType, &m.Filter,
			&m.TargetAllGuests, &m.SendAt, &m.Status, &m.Version, &m.ModificationCount, &m.ModifiedAt,
			&m.RecipientCount, &m.SendViaSMS, &m.SendViaPush, &m.SentAt, &m.FailureReason,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
