package domain

import (
	"fmt"
	"sort"
	"time"
)

const dateKeyLayout = "2006-01-02"

// DateKey identifies an occurrence by calendar date. A key parsed from an
// RFC 3339 instant remembers the instant; until In resolves it in a
// location, its Year, Month and Day hold the UTC date.
type DateKey struct {
	Year  int
	Month time.Month
	Day   int

	instant    int64
	hasInstant bool
}

// DateKeyOf returns the calendar date of t in t's own location.
func DateKeyOf(t time.Time) DateKey {
	y, m, d := t.Date()
	return DateKey{Year: y, Month: m, Day: d}
}

// ParseDateKey accepts either YYYY-MM-DD or an RFC 3339 instant.
func ParseDateKey(s string) (DateKey, error) {
	if t, err := time.Parse(dateKeyLayout, s); err == nil {
		return DateKeyOf(t), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return DateKey{}, fmt.Errorf("invalid date key %q", s)
	}
	k := DateKeyOf(t.UTC())
	k.instant = t.UnixNano()
	k.hasInstant = true
	return k, nil
}

// In returns the plain date key of k in loc. Keys given as dates are
// returned unchanged.
func (k DateKey) In(loc *time.Location) DateKey {
	if !k.hasInstant {
		return k
	}
	return DateKeyOf(time.Unix(0, k.instant).In(loc))
}

func (k DateKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

func (k DateKey) Before(other DateKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	if k.Month != other.Month {
		return k.Month < other.Month
	}
	return k.Day < other.Day
}

// Midnight returns the start of the date in loc.
func (k DateKey) Midnight(loc *time.Location) time.Time {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, loc)
}

// MarshalText writes instant keys back as UTC instants so a stored document
// keeps the key it was given.
func (k DateKey) MarshalText() ([]byte, error) {
	if k.hasInstant {
		return []byte(time.Unix(0, k.instant).UTC().Format(time.RFC3339Nano)), nil
	}
	return []byte(k.String()), nil
}

func (k *DateKey) UnmarshalText(text []byte) error {
	parsed, err := ParseDateKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Override replaces fields of a single occurrence. Nil fields keep the
// generated value.
type Override struct {
	RoomID         *string    `json:"roomID,omitempty"`
	RoomName       *string    `json:"roomName,omitempty"`
	EventStartTime *time.Time `json:"eventStartTime,omitempty"`
	EventEndTime   *time.Time `json:"eventEndTime,omitempty"`
}

// Equal compares overrides field by field. Two nil overrides (two
// cancellations) are equal.
func (o *Override) Equal(other *Override) bool {
	if o == nil || other == nil {
		return o == nil && other == nil
	}
	return equalString(o.RoomID, other.RoomID) &&
		equalString(o.RoomName, other.RoomName) &&
		equalTime(o.EventStartTime, other.EventStartTime) &&
		equalTime(o.EventEndTime, other.EventEndTime)
}

// apply overlays o on a generated instance. When only one time is replaced
// and the result would end before it starts, the other time moves with it and
// the generated duration is kept.
func (o *Override) apply(inst Instance) Instance {
	duration := inst.EventEndTime.Sub(inst.EventStartTime)
	switch {
	case o.EventStartTime != nil && o.EventEndTime != nil:
		inst.EventStartTime = *o.EventStartTime
		inst.EventEndTime = *o.EventEndTime
	case o.EventStartTime != nil:
		inst.EventStartTime = *o.EventStartTime
		if !inst.EventEndTime.After(inst.EventStartTime) {
			inst.EventEndTime = inst.EventStartTime.Add(duration)
		}
	case o.EventEndTime != nil:
		inst.EventEndTime = *o.EventEndTime
		if !inst.EventEndTime.After(inst.EventStartTime) {
			inst.EventStartTime = inst.EventEndTime.Add(-duration)
		}
	}
	if o.RoomID != nil && *o.RoomID != "" {
		inst.RoomID = *o.RoomID
	}
	return inst
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Overrides maps occurrence dates to replacements. A nil value is a
// cancellation of that occurrence.
type Overrides map[DateKey]*Override

// Keys returns the dates in ascending order.
func (o Overrides) Keys() []DateKey {
	keys := make([]DateKey, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// In re-keys instant keys to their dates in loc. When an instant and a date
// key land on the same day, the date key wins.
func (o Overrides) In(loc *time.Location) Overrides {
	instants := make([]DateKey, 0)
	for k := range o {
		if k.hasInstant {
			instants = append(instants, k)
		}
	}
	if len(instants) == 0 {
		return o
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].instant < instants[j].instant })

	out := make(Overrides, len(o))
	for _, k := range instants {
		out[k.In(loc)] = o[k]
	}
	for k, v := range o {
		if !k.hasInstant {
			out[k] = v
		}
	}
	return out
}

// OccurrenceState is what the overrides say about one occurrence date.
type OccurrenceState int

const (
	OccurrenceScheduled OccurrenceState = iota
	OccurrenceCancelled
	OccurrenceOverridden
)

// Resolution carries the state of an occurrence and, when overridden, the
// override to apply.
type Resolution struct {
	State    OccurrenceState
	Override *Override
}

// Resolve reports what the overrides say about the occurrence on key. Both
// expansion and diffing go through here.
func (o Overrides) Resolve(key DateKey) Resolution {
	ov, ok := o[key]
	switch {
	case !ok:
		return Resolution{State: OccurrenceScheduled}
	case ov == nil:
		return Resolution{State: OccurrenceCancelled}
	default:
		return Resolution{State: OccurrenceOverridden, Override: ov}
	}
}

// OverridePolicy selects whether expansion honours per-occurrence overrides.
type OverridePolicy int

const (
	// OverridesApply drops cancelled occurrences and substitutes overridden ones.
	OverridesApply OverridePolicy = iota
	// OverridesIgnore expands the bare pattern, matching the legacy calculator
	// where overrides only ever showed up in change descriptions.
	OverridesIgnore
)

// ParseOverridePolicy maps "apply" and "ignore" to a policy.
func ParseOverridePolicy(s string) (OverridePolicy, error) {
	switch s {
	case "", "apply":
		return OverridesApply, nil
	case "ignore":
		return OverridesIgnore, nil
	default:
		return OverridesApply, fmt.Errorf("unknown override policy %q", s)
	}
}

func (p OverridePolicy) String() string {
	if p == OverridesIgnore {
		return "ignore"
	}
	return "apply"
}
