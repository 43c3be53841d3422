package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
)

type EventRepository interface {
	Create(ctx context.Context, hostUserID uuid.UUID, title, smsTag, location string, eventDate *time.Time) (*domain.Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	ListByHost(ctx context.Context, hostUserID uuid.UUID) ([]domain.Event, error)
}

type eventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

const eventCols = `id, host_user_id, title, sms_tag, event_date, location, created_at, updated_at`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	err := row.Scan(&e.ID, &e.HostUserID, &e.Title, &e.SMSTag, &e.EventDate, &e.Location, &e.CreatedAt, &e.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *eventRepository) Create(ctx context.Context, hostUserID uuid.UUID, title, smsTag, location string, eventDate *time.Time) (*domain.Event, error) {
	const q = `
		INSERT INTO events (id, host_user_id, title, sms_tag, event_date, location)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING ` + eventCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanEvent(r.pool.QueryRow(ctx, q, uuid.New(), hostUserID, title, smsTag, eventDate, location))
}

func (r *eventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	const q = `SELECT ` + eventCols + ` FROM events WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanEvent(r.pool.QueryRow(ctx, q, id))
}

func (r *eventRepository) ListByHost(ctx context.Context, hostUserID uuid.UUID) ([]domain.Event, error) {
	const q = `SELECT ` + eventCols + ` FROM events WHERE host_user_id=$1 ORDER BY created_at DESC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, hostUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.HostUserID, &e.Title, &e.SMSTag, &e.EventDate, &e.Location, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
