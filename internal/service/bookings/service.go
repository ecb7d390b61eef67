package bookings

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"roombooker/backend/internal/domain"
	"roombooker/backend/internal/notify"
	"roombooker/backend/internal/store"
)

const maxIdempotencyKeyLen = 256

type Service struct {
	repo     store.BookingRepository
	detector domain.OverlapDetector
	differ   domain.Differ
	notifier notify.Notifier
	validate *validator.Validate
}

type Option func(*Service)

func WithOverlapDetector(d domain.OverlapDetector) Option {
	return func(s *Service) { s.detector = d }
}

func WithDiffer(d domain.Differ) Option {
	return func(s *Service) { s.differ = d }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(repo store.BookingRepository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SaveInput struct {
	Booking        domain.Booking
	IdempotencyKey string
}

type SaveResult struct {
	Booking  domain.Booking
	Overlaps []domain.OverlapRecord
	Updates  []string
	Created  bool
	// Replayed is set when an idempotency key matched an identical booking
	// and nothing was written.
	Replayed bool
}

// Save creates or replaces a booking, recomputes its overlap records and
// queues the notifications the change calls for, all under the org lock.
func (s *Service) Save(ctx context.Context, in SaveInput) (SaveResult, error) {
	b := in.Booking
	b.OrgID = strings.TrimSpace(b.OrgID)
	b.ID = strings.TrimSpace(b.ID)
	b.RoomID = strings.TrimSpace(b.RoomID)
	b.RequesterEmail = strings.TrimSpace(b.RequesterEmail)
	if b.Status == "" {
		b.Status = domain.BookingStatusPending
	}
	if err := s.checkBooking(b); err != nil {
		return SaveResult{}, err
	}

	keyed := false
	if b.ID == "" {
		key := strings.TrimSpace(in.IdempotencyKey)
		if len(key) > maxIdempotencyKeyLen {
			return SaveResult{}, validationError("idempotency key too long")
		}
		if key != "" {
			b.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("roombooker:save_booking:"+b.OrgID+":"+key)).String()
			keyed = true
		} else {
			id, err := uuid.NewV7()
			if err != nil {
				return SaveResult{}, err
			}
			b.ID = id.String()
		}
	}

	var res SaveResult
	err := s.repo.InOrgTransaction(ctx, b.OrgID, func(ctx context.Context, tx store.BookingTx) error {
		var prev *domain.Booking
		existing, err := tx.GetBooking(ctx, b.OrgID, b.ID)
		switch {
		case err == nil:
			prev = &existing
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		if keyed && prev != nil {
			if !sameDocument(*prev, b) {
				return store.ErrIdempotencyConflict
			}
			overlaps, err := s.overlapsFor(ctx, tx, *prev)
			if err != nil {
				return err
			}
			res = SaveResult{Booking: *prev, Overlaps: overlaps, Updates: []string{}, Replayed: true}
			return nil
		}

		if prev != nil {
			b.CreatedAt = prev.CreatedAt
		}
		saved, err := tx.UpsertBooking(ctx, b)
		if err != nil {
			return err
		}

		overlaps, err := s.overlapsFor(ctx, tx, saved)
		if err != nil {
			return err
		}
		if err := tx.ReplaceOverlaps(ctx, saved.OrgID, saved.ID, overlaps); err != nil {
			return err
		}

		updates := []string{}
		if prev != nil {
			updates = s.differ.GetUpdates(*prev, saved)
		}
		if err := tx.EnqueueMail(ctx, s.notifier.Messages(prev, saved, updates)); err != nil {
			return err
		}

		res = SaveResult{Booking: saved, Overlaps: overlaps, Updates: updates, Created: prev == nil}
		return nil
	})
	if err != nil {
		return SaveResult{}, err
	}
	return res, nil
}

// Denied bookings hold no overlaps.
func (s *Service) overlapsFor(ctx context.Context, tx store.BookingTx, b domain.Booking) ([]domain.OverlapRecord, error) {
	if b.Status == domain.BookingStatusDenied {
		return []domain.OverlapRecord{}, nil
	}
	others, err := tx.ListRoomBookings(ctx, b.OrgID, b.RoomID)
	if err != nil {
		return nil, err
	}
	return s.detector.CalculateOverlaps(b, b.ID, others)
}

func (s *Service) Delete(ctx context.Context, orgID, bookingID string) error {
	orgID = strings.TrimSpace(orgID)
	bookingID = strings.TrimSpace(bookingID)
	if orgID == "" {
		return validationError("orgID is required")
	}
	if bookingID == "" {
		return validationError("id is required")
	}

	return s.repo.InOrgTransaction(ctx, orgID, func(ctx context.Context, tx store.BookingTx) error {
		if err := tx.DeleteBooking(ctx, orgID, bookingID); err != nil {
			return err
		}
		return tx.DeleteOverlaps(ctx, orgID, bookingID)
	})
}

func (s *Service) ListOverlaps(ctx context.Context, orgID, bookingID string) ([]domain.OverlapRecord, error) {
	orgID = strings.TrimSpace(orgID)
	bookingID = strings.TrimSpace(bookingID)
	if orgID == "" {
		return nil, validationError("orgID is required")
	}
	if bookingID == "" {
		return nil, validationError("id is required")
	}
	return s.repo.ListOverlaps(ctx, orgID, bookingID)
}

type PreviewInput struct {
	Booking domain.Booking
	// BookingID defaults to Booking.ID.
	BookingID string
	Others    []domain.Booking
}

// Preview computes overlaps for a booking that has not been stored.
func (s *Service) Preview(in PreviewInput) ([]domain.OverlapRecord, error) {
	id := strings.TrimSpace(in.BookingID)
	if id == "" {
		id = in.Booking.ID
	}
	records, err := s.detector.CalculateOverlaps(in.Booking, id, in.Others)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInstant) {
			return nil, validationError(err.Error())
		}
		return nil, err
	}
	return records, nil
}

func (s *Service) Diff(oldBooking, newBooking domain.Booking) []string {
	return s.differ.GetUpdates(oldBooking, newBooking)
}

func (s *Service) checkBooking(b domain.Booking) error {
	if err := checkStruct(s.validate, b); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return validationError(err.Error())
	}
	return nil
}

// sameDocument compares the caller-controlled fields of two bookings.
func sameDocument(a, b domain.Booking) bool {
	return a.RoomID == b.RoomID &&
		a.RoomName == b.RoomName &&
		a.EventName == b.EventName &&
		a.RequesterName == b.RequesterName &&
		a.RequesterEmail == b.RequesterEmail &&
		a.Status == b.Status &&
		a.EventStartTime.Equal(b.EventStartTime) &&
		a.EventEndTime.Equal(b.EventEndTime) &&
		samePattern(a.RecurrencePattern, b.RecurrencePattern) &&
		sameOverrides(a.RecurrenceOverrides, b.RecurrenceOverrides)
}

func samePattern(a, b *domain.RecurrencePattern) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Frequency.Normalize() != b.Frequency.Normalize() || a.Period != b.Period {
		return false
	}
	if (a.End == nil) != (b.End == nil) || (a.End != nil && !a.End.Equal(*b.End)) {
		return false
	}
	return slices.Equal(a.Weekdays, b.Weekdays)
}

func sameOverrides(a, b domain.Overrides) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}
