package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
)

type GuestRepository interface {
	CreateBatch(ctx context.Context, eventID uuid.UUID, imports []domain.GuestImport) ([]domain.Guest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Guest, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Guest, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Guest, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.GuestPatch) (*domain.Guest, error)
	SoftRemove(ctx context.Context, id uuid.UUID) (bool, error)
	LinkUserByPhone(ctx context.Context, phone string, userID uuid.UUID) ([]uuid.UUID, error)
	FindLinkConflict(ctx context.Context, phone string, userID uuid.UUID) (bool, error)
	MarkA2PNoticeSent(ctx context.Context, guestIDs []uuid.UUID, at time.Time) error
	OptOutByPhone(ctx context.Context, phone string) (int64, error)
	Counts(ctx context.Context, eventID uuid.UUID) (*domain.GuestCounts, error)
}

type guestRepository struct {
	pool *pgxpool.Pool
}

func NewGuestRepository(pool *pgxpool.Pool) GuestRepository {
	return &guestRepository{pool: pool}
}

// Joined against users so DisplayName can fall through to the linked
// account's full name.
const guestCols = `g.id, g.event_id, g.user_id, g.guest_name, g.preferred_name,
COALESCE(u.full_name, ''), g.phone, g.sms_opt_out, g.a2p_notice_sent_at,
g.tags, g.rsvp_status, g.removed_at, g.created_at, g.updated_at`

const guestFrom = ` FROM guests g LEFT JOIN users u ON u.id = g.user_id `

func scanGuest(row pgx.Row) (*domain.Guest, error) {
	var g domain.Guest
	err := row.Scan(
		&g.ID, &g.EventID, &g.UserID, &g.GuestName, &g.PreferredName,
		&g.UserFullName, &g.Phone, &g.SMSOptOut, &g.A2PNoticeSentAt,
		&g.Tags, &g.RSVPStatus, &g.RemovedAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if g.Tags == nil {
		g.Tags = []string{}
	}
	return &g, nil
}

func (r *guestRepository) CreateBatch(ctx context.Context, eventID uuid.UUID, imports []domain.GuestImport) ([]domain.Guest, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO guests (id, event_id, guest_name, preferred_name, phone, tags, rsvp_status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')
		RETURNING id`

	var ids []uuid.UUID
	for _, imp := range imports {
		var phone *string
		if imp.Phone != "" {
			phone = &imp.Phone
		}
		tags := imp.Tags
		if tags == nil {
			tags = []string{}
		}
		var id uuid.UUID
		if err := tx.QueryRow(ctx, q, uuid.New(), eventID, imp.GuestName, imp.PreferredName, phone, tags).Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.ListByIDs(ctx, ids)
}

func (r *guestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Guest, error) {
	const q = `SELECT ` + guestCols + guestFrom + `WHERE g.id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanGuest(r.pool.QueryRow(ctx, q, id))
}

func (r *guestRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Guest, error) {
	const q = `SELECT ` + guestCols + guestFrom + `WHERE g.event_id=$1 AND g.removed_at IS NULL ORDER BY g.created_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGuests(rows)
}

func (r *guestRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Guest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `SELECT ` + guestCols + guestFrom + `WHERE g.id = ANY($1) ORDER BY g.created_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGuests(rows)
}

func collectGuests(rows pgx.Rows) ([]domain.Guest, error) {
	var guests []domain.Guest
	for rows.Next() {
		var g domain.Guest
		if err := rows.Scan(
			&g.ID, &g.EventID, &g.UserID, &g.GuestName, &g.PreferredName,
			&g.UserFullName, &g.Phone, &g.SMSOptOut, &g.A2PNoticeSentAt,
			&g.Tags, &g.RSVPStatus, &g.RemovedAt, &g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if g.Tags == nil {
			g.Tags = []string{}
		}
		guests = append(guests, g)
	}
	return guests, rows.Err()
}

func (r *guestRepository) Update(ctx context.Context, id uuid.UUID, patch domain.GuestPatch) (*domain.Guest, error) {
	const q = `
		UPDATE guests SET
			guest_name     = COALESCE($2, guest_name),
			preferred_name = COALESCE($3, preferred_name),
			phone          = COALESCE($4, phone),
			tags           = COALESCE($5, tags),
			rsvp_status    = COALESCE($6, rsvp_status),
			sms_opt_out    = COALESCE($7, sms_opt_out),
			updated_at     = now()
		WHERE id=$1 AND removed_at IS NULL
		RETURNING id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var tags *[]string
	if patch.Tags != nil {
		tags = patch.Tags
	}
	var rsvp *string
	if patch.RSVPStatus != nil {
		s := string(*patch.RSVPStatus)
		rsvp = &s
	}

	var updated uuid.UUID
	err := r.pool.QueryRow(ctx, q, id,
		patch.GuestName, patch.PreferredName, patch.Phone, tags, rsvp, patch.SMSOptOut,
	).Scan(&updated)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, updated)
}

func (r *guestRepository) SoftRemove(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE guests SET removed_at=now(), updated_at=now() WHERE id=$1 AND removed_at IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// LinkUserByPhone attaches unclaimed guest rows matching the phone to the
// user. Rows already claimed by another account are left alone; callers
// detect those with FindLinkConflict.
func (r *guestRepository) LinkUserByPhone(ctx context.Context, phone string, userID uuid.UUID) ([]uuid.UUID, error) {
	const q = `
		UPDATE guests SET user_id=$2, updated_at=now()
		WHERE phone=$1 AND user_id IS NULL AND removed_at IS NULL
		RETURNING id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, phone, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *guestRepository) FindLinkConflict(ctx context.Context, phone string, userID uuid.UUID) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM guests
			WHERE phone=$1 AND user_id IS NOT NULL AND user_id != $2 AND removed_at IS NULL
		)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, phone, userID).Scan(&exists)
	return exists, err
}

func (r *guestRepository) MarkA2PNoticeSent(ctx context.Context, guestIDs []uuid.UUID, at time.Time) error {
	if len(guestIDs) == 0 {
		return nil
	}
	const q = `UPDATE guests SET a2p_notice_sent_at=$2, updated_at=now() WHERE id = ANY($1) AND a2p_notice_sent_at IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, guestIDs, at)
	return err
}

func (r *guestRepository) OptOutByPhone(ctx context.Context, phone string) (int64, error) {
	const q = `UPDATE guests SET sms_opt_out=true, updated_at=now() WHERE phone=$1 AND removed_at IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, phone)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *guestRepository) Counts(ctx context.Context, eventID uuid.UUID) (*domain.GuestCounts, error) {
	const q = `
		SELECT
			count(*),
			count(*) FILTER (WHERE rsvp_status='attending'),
			count(*) FILTER (WHERE rsvp_status='declined'),
			count(*) FILTER (WHERE rsvp_status='maybe'),
			count(*) FILTER (WHERE rsvp_status='pending'),
			count(*) FILTER (WHERE sms_opt_out)
		FROM guests
		WHERE event_id=$1 AND removed_at IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.GuestCounts
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&c.Total, &c.Attending, &c.Declined, &c.Maybe, &c.Pending, &c.OptedOut)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
