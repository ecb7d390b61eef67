package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrInvalidInstant reports a booking or override whose instants are missing
// or whose end does not come after its start.
var ErrInvalidInstant = errors.New("invalid instant")

// BookingStatus is the approval state of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusDenied    BookingStatus = "denied"
)

// Booking is a room reservation document. RecurrencePattern and
// RecurrenceOverrides keep the historical "recurrance" spelling on the wire.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	OrgID               string             `bun:"org_id,pk" json:"orgID" validate:"required"`
	ID                  string             `bun:"id,pk" json:"id"`
	RoomID              string             `bun:"room_id,notnull" json:"roomID" validate:"required"`
	RoomName            string             `bun:"room_name,notnull" json:"roomName"`
	EventName           string             `bun:"event_name,notnull" json:"eventName"`
	RequesterName       string             `bun:"requester_name,notnull" json:"name"`
	RequesterEmail      string             `bun:"requester_email,notnull" json:"email" validate:"omitempty,email"`
	Status              BookingStatus      `bun:"status,notnull" json:"status" validate:"omitempty,oneof=pending confirmed denied"`
	EventStartTime      time.Time          `bun:"event_start_time,notnull" json:"eventStartTime"`
	EventEndTime        time.Time          `bun:"event_end_time,notnull" json:"eventEndTime"`
	RecurrencePattern   *RecurrencePattern `bun:"recurrence_pattern,type:jsonb,nullzero" json:"recurrancePattern,omitempty"`
	RecurrenceOverrides Overrides          `bun:"recurrence_overrides,type:jsonb,nullzero" json:"recurranceOverrides,omitempty"`
	CreatedAt           time.Time          `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt           time.Time          `bun:"updated_at,notnull" json:"updatedAt"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id.String()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		b.UpdatedAt = now
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

// Validate checks the instant invariants of the booking and of every
// override that supplies both times.
func (b Booking) Validate() error {
	if b.EventStartTime.IsZero() || b.EventEndTime.IsZero() {
		return fmt.Errorf("booking %q: %w: event times are required", b.ID, ErrInvalidInstant)
	}
	if !b.EventEndTime.After(b.EventStartTime) {
		return fmt.Errorf("booking %q: %w: eventEndTime must be after eventStartTime", b.ID, ErrInvalidInstant)
	}
	for _, key := range b.RecurrenceOverrides.Keys() {
		ov := b.RecurrenceOverrides[key]
		if ov == nil || ov.EventStartTime == nil || ov.EventEndTime == nil {
			continue
		}
		if !ov.EventEndTime.After(*ov.EventStartTime) {
			return fmt.Errorf("booking %q override %s: %w: eventEndTime must be after eventStartTime", b.ID, key, ErrInvalidInstant)
		}
	}
	return nil
}

// Instance is one concrete occurrence of a booking.
type Instance struct {
	EventStartTime time.Time `json:"eventStartTime"`
	EventEndTime   time.Time `json:"eventEndTime"`
	RoomID         string    `json:"roomID"`
}

// OverlapRecord describes one colliding instance pair. The engine only
// produces the forward record; Mirror gives the reverse one.
type OverlapRecord struct {
	BookingID1 string    `json:"bookingID1"`
	BookingID2 string    `json:"bookingID2"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	StartTime2 time.Time `json:"startTime2"`
	EndTime2   time.Time `json:"endTime2"`
	RoomID     string    `json:"roomID"`
}

func (r OverlapRecord) Mirror() OverlapRecord {
	return OverlapRecord{
		BookingID1: r.BookingID2,
		BookingID2: r.BookingID1,
		StartTime:  r.StartTime2,
		EndTime:    r.EndTime2,
		StartTime2: r.StartTime,
		EndTime2:   r.EndTime,
		RoomID:     r.RoomID,
	}
}

// MailMessage is an outbox entry picked up by the mail delivery extension.
type MailMessage struct {
	bun.BaseModel `bun:"table:mail"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	OrgID     string    `bun:"org_id,notnull"`
	BookingID string    `bun:"booking_id,notnull"`
	To        string    `bun:"recipient,notnull"`
	Subject   string    `bun:"subject,notnull"`
	Text      string    `bun:"body,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (m *MailMessage) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}
