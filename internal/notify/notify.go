// Package notify builds the outbox messages sent when a booking is created,
// approved, denied or changed.
package notify

import (
	"fmt"
	"strings"
	"time"

	"roombooker/backend/internal/domain"
)

const (
	SubjectReceived = "Booking Request Received"
	SubjectApproved = "Booking Request Approved"
	SubjectDenied   = "Booking Request Denied"
	SubjectUpdated  = "Booking Updated"

	DefaultTimeLayout = "Mon Jan 2, 2006 3:04 PM MST"
)

type Notifier struct {
	// OwnerEmail receives "new request" notices. Empty disables them.
	OwnerEmail string
	TimeLayout string
	Location   *time.Location
}

// Messages returns the mail to enqueue for a write that turned prev into
// next. prev is nil when the booking is new.
func (n Notifier) Messages(prev *domain.Booking, next domain.Booking, updates []string) []domain.MailMessage {
	var out []domain.MailMessage
	add := func(to, subject, body string) {
		to = strings.TrimSpace(to)
		if to == "" {
			return
		}
		out = append(out, domain.MailMessage{
			OrgID:     next.OrgID,
			BookingID: next.ID,
			To:        to,
			Subject:   subject,
			Text:      body,
		})
	}

	statusChanged := prev == nil || prev.Status != next.Status

	switch {
	case statusChanged && next.Status == domain.BookingStatusPending:
		if prev == nil {
			add(next.RequesterEmail, SubjectReceived, n.receivedBody(next))
			add(n.OwnerEmail, SubjectReceived, ownerBody)
		}
	case statusChanged && next.Status == domain.BookingStatusConfirmed:
		add(next.RequesterEmail, SubjectApproved, n.approvedBody(next))
	case statusChanged && next.Status == domain.BookingStatusDenied:
		add(next.RequesterEmail, SubjectDenied, n.deniedBody(next))
	case next.Status == domain.BookingStatusConfirmed && len(updates) > 0:
		add(next.RequesterEmail, SubjectUpdated, n.updatedBody(next, updates))
	}

	return out
}

// BookingInfo renders the summary block embedded in notification bodies.
func (n Notifier) BookingInfo(b domain.Booking) string {
	return fmt.Sprintf("\n  Event: %s\n  Room: %s\n  Start Time: %s\n  End Time: %s",
		b.EventName, b.RoomName, n.formatTime(b.EventStartTime), n.formatTime(b.EventEndTime))
}

const ownerBody = "A new booking request is ready for review."

func (n Notifier) receivedBody(b domain.Booking) string {
	return greeting(b) +
		fmt.Sprintf("Thank you, your request for %s has been received and we will be in touch shortly.\n", b.EventName) +
		n.BookingInfo(b) + signature
}

func (n Notifier) approvedBody(b domain.Booking) string {
	return greeting(b) +
		fmt.Sprintf("Your room booking request for %s has been approved!\n", b.EventName) +
		n.BookingInfo(b) + signature
}

func (n Notifier) deniedBody(b domain.Booking) string {
	return greeting(b) +
		fmt.Sprintf("Unfortunately your room booking request for %s has been denied.\n", b.EventName) +
		n.BookingInfo(b) + signature
}

func (n Notifier) updatedBody(b domain.Booking, updates []string) string {
	var sb strings.Builder
	sb.WriteString(greeting(b))
	fmt.Fprintf(&sb, "Your booking for %s has been updated.\n", b.EventName)
	sb.WriteString(n.BookingInfo(b))
	sb.WriteString("\n\nChanges:\n")
	for _, u := range updates {
		sb.WriteString(u)
		sb.WriteString("\n")
	}
	sb.WriteString(strings.TrimPrefix(signature, "\n"))
	return sb.String()
}

const signature = "\n\nBest,\nRoomBooker\n"

func greeting(b domain.Booking) string {
	name := strings.TrimSpace(b.RequesterName)
	if name == "" {
		return "Hello,\n\n"
	}
	return "Dear " + name + ",\n\n"
}

func (n Notifier) formatTime(t time.Time) string {
	layout := n.TimeLayout
	if layout == "" {
		layout = DefaultTimeLayout
	}
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(layout)
}
