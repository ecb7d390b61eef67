package store

import (
	"context"

	"roombooker/backend/internal/domain"
)

// BookingTx is the set of operations available while an org is locked.
type BookingTx interface {
	GetBooking(ctx context.Context, orgID, bookingID string) (domain.Booking, error)
	UpsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	DeleteBooking(ctx context.Context, orgID, bookingID string) error

	// ListRoomBookings returns the org's non-denied bookings in roomID.
	ListRoomBookings(ctx context.Context, orgID, roomID string) ([]domain.Booking, error)

	// ReplaceOverlaps drops every record that references bookingID in either
	// position, then stores records along with their mirrors.
	ReplaceOverlaps(ctx context.Context, orgID, bookingID string, records []domain.OverlapRecord) error
	DeleteOverlaps(ctx context.Context, orgID, bookingID string) error

	EnqueueMail(ctx context.Context, msgs []domain.MailMessage) error
}

type BookingRepository interface {
	InOrgTransaction(ctx context.Context, orgID string, fn func(ctx context.Context, tx BookingTx) error) error
	ListOverlaps(ctx context.Context, orgID, bookingID string) ([]domain.OverlapRecord, error)
}
