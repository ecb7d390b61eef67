package domain

import "time"

// DefaultHorizonYears bounds overlap expansion for bookings that recur
// without an end.
const DefaultHorizonYears = 2

// OverlapDetector finds colliding instance pairs between a booking and the
// other bookings of its room.
type OverlapDetector struct {
	Expander

	// HorizonYears sizes the window [start, start+HorizonYears). Zero means
	// DefaultHorizonYears.
	HorizonYears int
}

func (d OverlapDetector) horizonYears() int {
	if d.HorizonYears <= 0 {
		return DefaultHorizonYears
	}
	return d.HorizonYears
}

// Window returns the expansion window used for booking b.
func (d OverlapDetector) Window(b Booking) (time.Time, time.Time) {
	start := b.EventStartTime
	return start, start.AddDate(d.horizonYears(), 0, 0)
}

// CalculateOverlaps returns one forward record per colliding pair. Candidates
// are visited in the order given, then booking instances, then candidate
// instances.
func (d OverlapDetector) CalculateOverlaps(b Booking, bookingID string, others []Booking) ([]OverlapRecord, error) {
	windowStart, windowEnd := d.Window(b)

	bookingInstances, err := d.Expand(b, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	out := make([]OverlapRecord, 0)
	for _, other := range others {
		if other.ID == bookingID || other.RoomID != b.RoomID {
			continue
		}

		otherInstances, err := d.Expand(other, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}

		for _, a := range bookingInstances {
			for _, o := range otherInstances {
				if !instancesOverlap(a, o) {
					continue
				}
				if d.Overrides == OverridesApply && a.RoomID != o.RoomID {
					continue
				}
				out = append(out, OverlapRecord{
					BookingID1: bookingID,
					BookingID2: other.ID,
					StartTime:  a.EventStartTime,
					EndTime:    a.EventEndTime,
					StartTime2: o.EventStartTime,
					EndTime2:   o.EventEndTime,
					RoomID:     a.RoomID,
				})
			}
		}
	}

	return out, nil
}

// Touching endpoints do not overlap.
func instancesOverlap(a, b Instance) bool {
	return a.EventStartTime.Before(b.EventEndTime) && b.EventStartTime.Before(a.EventEndTime)
}

// CalculateOverlaps uses a zero-value OverlapDetector.
func CalculateOverlaps(b Booking, bookingID string, others []Booking) ([]OverlapRecord, error) {
	return OverlapDetector{}.CalculateOverlaps(b, bookingID, others)
}
