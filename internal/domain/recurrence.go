package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency names how a booking repeats.
type Frequency string

const (
	FrequencyNever   Frequency = "never"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Normalize lower-cases f and folds the spellings of "no recurrence" into
// FrequencyNever.
func (f Frequency) Normalize() Frequency {
	switch s := strings.ToLower(strings.TrimSpace(string(f))); s {
	case "", "none", "never":
		return FrequencyNever
	default:
		return Frequency(s)
	}
}

// Weekday uses the time.Weekday numbering: Sunday is 0.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

var weekdayLookup = func() map[string]Weekday {
	m := make(map[string]Weekday, 2*len(weekdayNames))
	for i, name := range weekdayNames {
		m[name] = Weekday(i)
		m[name[:3]] = Weekday(i)
	}
	return m
}()

// ParseWeekday resolves a weekday name or three letter abbreviation in any
// letter case.
func ParseWeekday(s string) (Weekday, error) {
	wd, ok := weekdayLookup[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return wd, nil
}

func (w Weekday) String() string {
	if w < Sunday || w > Saturday {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

func (w Weekday) MarshalText() ([]byte, error) {
	if w < Sunday || w > Saturday {
		return nil, fmt.Errorf("invalid weekday %d", int(w))
	}
	return []byte(w.String()), nil
}

func (w *Weekday) UnmarshalText(text []byte) error {
	wd, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*w = wd
	return nil
}

// UnmarshalJSON accepts names as well as the numeric 0-6 form older
// documents carry.
func (w *Weekday) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n < int(Sunday) || n > int(Saturday) {
			return fmt.Errorf("invalid weekday %d", n)
		}
		*w = Weekday(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid weekday %s", data)
	}
	return w.UnmarshalText([]byte(s))
}

var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RecurrencePattern describes how a booking repeats. End bounds the series;
// Weekdays only apply to weekly patterns.
type RecurrencePattern struct {
	Frequency Frequency  `json:"frequency"`
	Period    int        `json:"period,omitempty" validate:"gte=0"`
	End       *time.Time `json:"end,omitempty"`
	Weekdays  []Weekday  `json:"weekday,omitempty"`
}

func (p RecurrencePattern) period() int {
	if p.Period < 1 {
		return 1
	}
	return p.Period
}

func (p RecurrencePattern) byWeekday() []rrule.Weekday {
	seen := make(map[Weekday]struct{}, len(p.Weekdays))
	out := make([]rrule.Weekday, 0, len(p.Weekdays))
	for _, wd := range p.Weekdays {
		if wd < Sunday || wd > Saturday {
			continue
		}
		if _, ok := seen[wd]; ok {
			continue
		}
		seen[wd] = struct{}{}
		out = append(out, rruleWeekdays[wd])
	}
	return out
}

// Expander turns bookings into concrete instances. The zero value truncates
// dates in UTC and applies overrides.
type Expander struct {
	Location  *time.Location
	Overrides OverridePolicy
}

func (e Expander) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

// Expand returns the booking's instances whose occurrence dates fall in
// [windowStart, windowEndExclusive), in date order. Each instance keeps the
// wall-clock hour and minute of the original booking.
func (e Expander) Expand(b Booking, windowStart, windowEndExclusive time.Time) ([]Instance, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	loc := e.location()
	start := b.EventStartTime.In(loc)
	end := b.EventEndTime.In(loc)
	dayOffset := calendarDaysBetween(start, end)

	dates, err := e.GenerateDates(b.RecurrencePattern, b.EventStartTime, windowStart, windowEndExclusive)
	if err != nil {
		return nil, fmt.Errorf("booking %q: %w", b.ID, err)
	}
	overrides := b.RecurrenceOverrides.In(loc)
	out := make([]Instance, 0, len(dates))
	for _, d := range dates {
		inst := Instance{
			EventStartTime: time.Date(d.Year(), d.Month(), d.Day(), start.Hour(), start.Minute(), 0, 0, loc),
			EventEndTime:   time.Date(d.Year(), d.Month(), d.Day()+dayOffset, end.Hour(), end.Minute(), 0, 0, loc),
			RoomID:         b.RoomID,
		}

		if e.Overrides == OverridesIgnore {
			out = append(out, inst)
			continue
		}

		res := overrides.Resolve(DateKeyOf(d))
		switch res.State {
		case OccurrenceCancelled:
			continue
		case OccurrenceOverridden:
			inst = res.Override.apply(inst)
			if !inst.EventStartTime.Before(windowEndExclusive) || !inst.EventEndTime.After(windowStart) {
				continue
			}
		}
		out = append(out, inst)
	}

	return out, nil
}

// GenerateDates returns the midnight-truncated occurrence dates of a pattern
// before any override is considered.
func (e Expander) GenerateDates(p *RecurrencePattern, eventStart, windowStart, windowEndExclusive time.Time) ([]time.Time, error) {
	loc := e.location()

	if p == nil || p.Frequency.Normalize() == FrequencyNever {
		if !eventStart.Before(windowStart) && eventStart.Before(windowEndExclusive) {
			return []time.Time{midnight(eventStart, loc)}, nil
		}
		return nil, nil
	}

	effectiveEnd := windowEndExclusive
	if p.End != nil && p.End.Before(effectiveEnd) {
		effectiveEnd = *p.End
	}

	effectiveStart := eventStart
	if windowStart.After(effectiveStart) {
		effectiveStart = windowStart
	}
	effectiveStart = midnight(effectiveStart, loc)

	if !effectiveStart.Before(effectiveEnd) {
		return nil, nil
	}

	switch p.Frequency.Normalize() {
	case FrequencyDaily:
		return stepDates(rrule.ROption{
			Freq:     rrule.DAILY,
			Interval: p.period(),
			Dtstart:  effectiveStart,
		}, effectiveStart, effectiveEnd)
	case FrequencyWeekly:
		// Every matching weekday in range; period does not space weeks apart.
		days := p.byWeekday()
		if len(days) == 0 {
			return nil, nil
		}
		return stepDates(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Interval:  1,
			Dtstart:   effectiveStart,
			Byweekday: days,
		}, effectiveStart, effectiveEnd)
	case FrequencyMonthly:
		// TODO: pick day-of-month or nth-weekday semantics before generating monthly dates.
		return nil, nil
	default:
		return nil, nil
	}
}

func stepDates(opt rrule.ROption, from, until time.Time) ([]time.Time, error) {
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("recurrence rule: %w", err)
	}
	all := r.Between(from, until, true)
	out := make([]time.Time, 0, len(all))
	for _, d := range all {
		if d.Before(until) {
			out = append(out, d)
		}
	}
	return out, nil
}

func midnight(t time.Time, loc *time.Location) time.Time {
	return DateKeyOf(t.In(loc)).Midnight(loc)
}

func calendarDaysBetween(a, b time.Time) int {
	da := DateKeyOf(a).Midnight(time.UTC)
	db := DateKeyOf(b).Midnight(time.UTC)
	return int(db.Sub(da) / (24 * time.Hour))
}

// Expand uses a zero-value Expander.
func Expand(b Booking, windowStart, windowEndExclusive time.Time) ([]Instance, error) {
	return Expander{}.Expand(b, windowStart, windowEndExclusive)
}
