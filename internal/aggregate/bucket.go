// Package aggregate turns an event ledger into fixed-width time slots for
// the attendance report.
package aggregate

import (
	"iter"
	"time"

	"github.com/tho-bre/event-flow/internal/domain"
)

// Width is a supported slot width in minutes.
type Width int

const (
	Width30m Width = 30
	Width1h  Width = 60
	Width3h  Width = 180
)

// Widths lists the supported widths, finest first.
var Widths = []Width{Width30m, Width1h, Width3h}

// ParseWidth accepts the report interval names (30min, 1hour, 3hours) as
// well as minute forms (30m, 60m, 180m).
func ParseWidth(s string) (Width, error) {
	switch s {
	case "30min", "30m", "30":
		return Width30m, nil
	case "1hour", "60m", "60", "1h":
		return Width1h, nil
	case "3hours", "180m", "180", "3h":
		return Width3h, nil
	default:
		return 0, domain.ErrInvalidInterval
	}
}

func (w Width) Valid() bool {
	return w == Width30m || w == Width1h || w == Width3h
}

func (w Width) Duration() time.Duration {
	return time.Duration(w) * time.Minute
}

func (w Width) String() string {
	switch w {
	case Width30m:
		return "30min"
	case Width1h:
		return "1hour"
	case Width3h:
		return "3hours"
	default:
		return "invalid"
	}
}

// layout shows minutes only for sub-hour slots.
func (w Width) layout() string {
	if w < Width1h {
		return "15:04"
	}
	return "15:00"
}

// Bucket is one report slot. Net is entries minus exits inside the slot
// and can be negative.
type Bucket struct {
	Label   string
	Start   time.Time
	End     time.Time
	Entries int
	Exits   int
	Net     int
}

// Buckets slices [start, end] into slots of width w starting at start. The
// last slot is clipped to end. A tap belongs to slot [s, e) except for the
// last slot, which also includes end, so a tap on a shared boundary is
// counted once. Taps outside [start, end] are ignored. Labels are formatted
// in start's location.
//
// The sequence holds no state: every iteration rescans log.
func Buckets(log []domain.Tap, start, end time.Time, w Width) iter.Seq[Bucket] {
	return func(yield func(Bucket) bool) {
		if !w.Valid() || end.Before(start) {
			return
		}
		if start.Equal(end) {
			yield(fill(log, start, end, true, w))
			return
		}
		for s := start; s.Before(end); {
			next := s.Add(w.Duration())
			e, last := next, false
			if !next.Before(end) {
				e, last = end, true
			}
			if !yield(fill(log, s, e, last, w)) {
				return
			}
			s = next
		}
	}
}

func fill(log []domain.Tap, s, e time.Time, closed bool, w Width) Bucket {
	b := Bucket{
		Label: s.Format(w.layout()),
		Start: s,
		End:   e,
	}
	for _, t := range log {
		if t.At.Before(s) || t.At.After(e) {
			continue
		}
		if t.At.Equal(e) && !closed {
			continue
		}
		switch t.Kind {
		case domain.TapEntry:
			b.Entries++
		case domain.TapExit:
			b.Exits++
		}
	}
	b.Net = b.Entries - b.Exits
	return b
}

// Sum adds up the net counts of a bucket sequence.
func Sum(seq iter.Seq[Bucket]) int {
	total := 0
	for b := range seq {
		total += b.Net
	}
	return total
}

// Collect materializes a bucket sequence.
func Collect(seq iter.Seq[Bucket]) []Bucket {
	var out []Bucket
	for b := range seq {
		out = append(out, b)
	}
	return out
}
