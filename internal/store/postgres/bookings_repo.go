package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"roombooker/backend/internal/domain"
	"roombooker/backend/internal/store"
)

const (
	pgCheckViolation  = "23514"
	pgUniqueViolation = "23505"

	bookingTimeOrderConstraint = "bookings_time_order"
)

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

type overlapRow struct {
	bun.BaseModel `bun:"table:booking_overlaps"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	OrgID      string    `bun:"org_id,notnull"`
	BookingID1 string    `bun:"booking_id1,notnull"`
	BookingID2 string    `bun:"booking_id2,notnull"`
	StartTime  time.Time `bun:"start_time,notnull"`
	EndTime    time.Time `bun:"end_time,notnull"`
	StartTime2 time.Time `bun:"start_time2,notnull"`
	EndTime2   time.Time `bun:"end_time2,notnull"`
	RoomID     string    `bun:"room_id,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func (r *BookingRepo) InOrgTransaction(ctx context.Context, orgID string, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockOrg(ctx, tx, orgID); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

// Writers of one org are serialized so overlap records never interleave.
func lockOrg(ctx context.Context, tx bun.Tx, orgID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", orgID).Exec(ctx)
	return err
}

func (r *BookingRepo) ListOverlaps(ctx context.Context, orgID, bookingID string) ([]domain.OverlapRecord, error) {
	var rows []overlapRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("org_id = ?", orgID).
		Where("booking_id1 = ?", bookingID).
		OrderExpr("start_time ASC, booking_id2 ASC, start_time2 ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.OverlapRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (r bookingTx) GetBooking(ctx context.Context, orgID, bookingID string) (domain.Booking, error) {
	var b domain.Booking
	err := r.tx.NewSelect().
		Model(&b).
		Where("org_id = ?", orgID).
		Where("id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, store.ErrNotFound
		}
		return domain.Booking{}, err
	}
	return b, nil
}

func (r bookingTx) UpsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := b

	_, err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (org_id, id) DO UPDATE").
		Set("room_id = EXCLUDED.room_id").
		Set("room_name = EXCLUDED.room_name").
		Set("event_name = EXCLUDED.event_name").
		Set("requester_name = EXCLUDED.requester_name").
		Set("requester_email = EXCLUDED.requester_email").
		Set("status = EXCLUDED.status").
		Set("event_start_time = EXCLUDED.event_start_time").
		Set("event_end_time = EXCLUDED.event_end_time").
		Set("recurrence_pattern = EXCLUDED.recurrence_pattern").
		Set("recurrence_overrides = EXCLUDED.recurrence_overrides").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("created_at, updated_at").
		Exec(ctx)
	if err != nil {
		return domain.Booking{}, translateWriteError(err)
	}
	return m, nil
}

func (r bookingTx) DeleteBooking(ctx context.Context, orgID, bookingID string) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Booking)(nil)).
		Where("org_id = ?", orgID).
		Where("id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r bookingTx) ListRoomBookings(ctx context.Context, orgID, roomID string) ([]domain.Booking, error) {
	var rows []domain.Booking
	err := r.tx.NewSelect().
		Model(&rows).
		Where("org_id = ?", orgID).
		Where("room_id = ?", roomID).
		Where("status <> ?", domain.BookingStatusDenied).
		OrderExpr("event_start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r bookingTx) ReplaceOverlaps(ctx context.Context, orgID, bookingID string, records []domain.OverlapRecord) error {
	if err := r.DeleteOverlaps(ctx, orgID, bookingID); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	rows, err := overlapRows(orgID, records, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = r.tx.NewInsert().Model(&rows).Exec(ctx)
	return translateWriteError(err)
}

func (r bookingTx) DeleteOverlaps(ctx context.Context, orgID, bookingID string) error {
	_, err := r.tx.NewDelete().
		Model((*overlapRow)(nil)).
		Where("org_id = ?", orgID).
		Where("(booking_id1 = ? OR booking_id2 = ?)", bookingID, bookingID).
		Exec(ctx)
	return err
}

func (r bookingTx) EnqueueMail(ctx context.Context, msgs []domain.MailMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	_, err := r.tx.NewInsert().Model(&msgs).Exec(ctx)
	return translateWriteError(err)
}

// overlapRows stores each record together with its mirror so lookups from
// either booking only need to match booking_id1.
func overlapRows(orgID string, records []domain.OverlapRecord, now time.Time) ([]overlapRow, error) {
	out := make([]overlapRow, 0, 2*len(records))
	for _, rec := range records {
		for _, r := range [...]domain.OverlapRecord{rec, rec.Mirror()} {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			out = append(out, overlapRow{
				ID:         id,
				OrgID:      orgID,
				BookingID1: r.BookingID1,
				BookingID2: r.BookingID2,
				StartTime:  r.StartTime.UTC(),
				EndTime:    r.EndTime.UTC(),
				StartTime2: r.StartTime2.UTC(),
				EndTime2:   r.EndTime2.UTC(),
				RoomID:     r.RoomID,
				CreatedAt:  now,
			})
		}
	}
	return out, nil
}

func (row overlapRow) record() domain.OverlapRecord {
	return domain.OverlapRecord{
		BookingID1: row.BookingID1,
		BookingID2: row.BookingID2,
		StartTime:  row.StartTime,
		EndTime:    row.EndTime,
		StartTime2: row.StartTime2,
		EndTime2:   row.EndTime2,
		RoomID:     row.RoomID,
	}
}

func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgCheckViolation && pgErr.ConstraintName == bookingTimeOrderConstraint:
		return fmt.Errorf("%w: eventEndTime must be after eventStartTime", domain.ErrInvalidInstant)
	case pgErr.Code == pgUniqueViolation:
		return store.ErrConflict
	default:
		return err
	}
}
