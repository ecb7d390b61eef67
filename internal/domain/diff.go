package domain

import (
	"fmt"
	"time"
)

const DefaultDiffTimeLayout = time.RFC3339

const (
	labelEventStartTime = "Event Start Time"
	labelEventEndTime   = "Event End Time"
	labelRoomName       = "Room Name"
	absentValue         = "(none)"
)

// Differ describes how a booking changed between two versions. The zero
// value renders times as RFC 3339 in UTC. Location also resolves override
// keys given as instants.
type Differ struct {
	TimeLayout string
	Location   *time.Location
}

// comparable fields shared by bookings and overrides
type diffFields struct {
	start *time.Time
	end   *time.Time
	room  *string
}

func bookingDiffFields(b Booking) diffFields {
	return diffFields{start: &b.EventStartTime, end: &b.EventEndTime, room: &b.RoomName}
}

func overrideDiffFields(o *Override) diffFields {
	return diffFields{start: o.EventStartTime, end: o.EventEndTime, room: o.RoomName}
}

// GetUpdates lists the differences between oldBooking and newBooking: the
// top-level fields first, then override changes in date order. It returns an
// empty slice when nothing changed.
func (d Differ) GetUpdates(oldBooking, newBooking Booking) []string {
	updates := d.compareFields(bookingDiffFields(oldBooking), bookingDiffFields(newBooking))

	oldOverrides := oldBooking.RecurrenceOverrides.In(d.location())
	newOverrides := newBooking.RecurrenceOverrides.In(d.location())
	for _, key := range unionKeys(oldOverrides, newOverrides) {
		before := oldOverrides.Resolve(key)
		after := newOverrides.Resolve(key)
		date := key.String()

		switch {
		case before.State == OccurrenceScheduled:
			if after.State == OccurrenceCancelled {
				updates = append(updates, fmt.Sprintf("Cancelled occurrence on %s", date))
				continue
			}
			updates = append(updates, fmt.Sprintf("Added occurrence on %s:", date))
			updates = append(updates, d.details(after.Override)...)
		case after.State == OccurrenceScheduled:
			if before.State == OccurrenceCancelled {
				updates = append(updates, fmt.Sprintf("Removed cancellation for %s", date))
				continue
			}
			updates = append(updates, fmt.Sprintf("Removed occurrence on %s", date))
		case before.Override.Equal(after.Override):
			continue
		case before.State == OccurrenceCancelled:
			updates = append(updates, fmt.Sprintf("Updated occurrence on %s (was cancelled):", date))
			updates = append(updates, d.details(after.Override)...)
		case after.State == OccurrenceCancelled:
			updates = append(updates, fmt.Sprintf("Cancelled occurrence on %s (was an override)", date))
		default:
			sub := d.compareFields(overrideDiffFields(before.Override), overrideDiffFields(after.Override))
			if len(sub) == 0 {
				continue
			}
			updates = append(updates, fmt.Sprintf("Updated occurrence on %s:", date))
			for _, line := range sub {
				updates = append(updates, "  - "+line)
			}
		}
	}

	return updates
}

func (d Differ) compareFields(before, after diffFields) []string {
	out := make([]string, 0, 3)
	if !equalTime(before.start, after.start) {
		out = append(out, fmt.Sprintf("%s: %s -> %s", labelEventStartTime, d.formatTime(before.start), d.formatTime(after.start)))
	}
	if !equalTime(before.end, after.end) {
		out = append(out, fmt.Sprintf("%s: %s -> %s", labelEventEndTime, d.formatTime(before.end), d.formatTime(after.end)))
	}
	if !equalString(before.room, after.room) {
		out = append(out, fmt.Sprintf("%s: %s -> %s", labelRoomName, formatString(before.room), formatString(after.room)))
	}
	return out
}

// details lists the fields an override sets, room first.
func (d Differ) details(o *Override) []string {
	var out []string
	if o.RoomName != nil && *o.RoomName != "" {
		out = append(out, fmt.Sprintf("  - %s: %s", labelRoomName, *o.RoomName))
	}
	if o.EventStartTime != nil && !o.EventStartTime.IsZero() {
		out = append(out, fmt.Sprintf("  - %s: %s", labelEventStartTime, d.formatTime(o.EventStartTime)))
	}
	if o.EventEndTime != nil && !o.EventEndTime.IsZero() {
		out = append(out, fmt.Sprintf("  - %s: %s", labelEventEndTime, d.formatTime(o.EventEndTime)))
	}
	return out
}

func (d Differ) formatTime(t *time.Time) string {
	if t == nil {
		return absentValue
	}
	layout := d.TimeLayout
	if layout == "" {
		layout = DefaultDiffTimeLayout
	}
	return t.In(d.location()).Format(layout)
}

func (d Differ) location() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

func formatString(s *string) string {
	if s == nil {
		return absentValue
	}
	return *s
}

func unionKeys(a, b Overrides) []DateKey {
	merged := make(Overrides, len(a)+len(b))
	for k := range a {
		merged[k] = nil
	}
	for k := range b {
		merged[k] = nil
	}
	return merged.Keys()
}

// GetUpdates uses a zero-value Differ.
func GetUpdates(oldBooking, newBooking Booking) []string {
	return Differ{}.GetUpdates(oldBooking, newBooking)
}
