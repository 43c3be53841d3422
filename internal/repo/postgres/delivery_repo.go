package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
)

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.DeliveryRecord) (*domain.DeliveryRecord, error)
	// UpdateStatusByProviderID applies the carrier's delivery callback. Only
	// the pending -> delivered/failed transition is permitted.
	UpdateStatusByProviderID(ctx context.Context, providerID string, status domain.DeliveryStatus, errorMessage string) (*domain.DeliveryRecord, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.DeliveryRecord, error)
	CountByMessage(ctx context.Context, messageID uuid.UUID) (delivered, pending, failed int, err error)
}

type deliveryRepository struct {
	pool *pgxpool.Pool
}

func NewDeliveryRepository(pool *pgxpool.Pool) DeliveryRepository {
	return &deliveryRepository{pool: pool}
}

const deliveryCols = `id, message_id, guest_id, phone, status, provider_id, error_message, created_at, updated_at`

func scanDelivery(row pgx.Row) (*domain.DeliveryRecord, error) {
	var d domain.DeliveryRecord
	err := row.Scan(&d.ID, &d.MessageID, &d.GuestID, &d.Phone, &d.Status, &d.ProviderID, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deliveryRepository) Create(ctx context.Context, d *domain.DeliveryRecord) (*domain.DeliveryRecord, error) {
	const q = `
		INSERT INTO message_deliveries (id, message_id, guest_id, phone, status, provider_id, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (message_id, guest_id) DO NOTHING
		RETURNING ` + deliveryCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanDelivery(r.pool.QueryRow(ctx, q,
		uuid.New(), d.MessageID, d.GuestID, d.Phone, d.Status, d.ProviderID, d.ErrorMessage,
	))
}

func (r *deliveryRepository) UpdateStatusByProviderID(ctx context.Context, providerID string, status domain.DeliveryStatus, errorMessage string) (*domain.DeliveryRecord, error) {
	const q = `
		UPDATE message_deliveries
		SET status=$2, error_message=$3, updated_at=now()
		WHERE provider_id=$1 AND status='pending'
		RETURNING ` + deliveryCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanDelivery(r.pool.QueryRow(ctx, q, providerID, status, errorMessage))
}

func (r *deliveryRepository) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.DeliveryRecord, error) {
	const q = `SELECT ` + deliveryCols + ` FROM message_deliveries WHERE message_id=$1 ORDER BY created_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.DeliveryRecord
	for rows.Next() {
		var d domain.DeliveryRecord
		if err := rows.Scan(&d.ID, &d.MessageID, &d.GuestID, &d.Phone, &d.Status, &d.ProviderID, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, d)
	}
	return records, rows.Err()
}

func (r *deliveryRepository) CountByMessage(ctx context.Context, messageID uuid.UUID) (delivered, pending, failed int, err error) {
	const q = `
		SELECT
			count(*) FILTER (WHERE status='delivered'),
			count(*) FILTER (WHERE status='pending'),
			count(*) FILTER (WHERE status='failed')
		FROM message_deliveries WHERE message_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err = r.pool.QueryRow(ctx, q, messageID).Scan(&delivered, &pending, &failed)
	return delivered, pending, failed, err
}
