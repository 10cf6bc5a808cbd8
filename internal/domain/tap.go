package domain

import "time"

type TapKind string

const (
	TapEntry TapKind = "entry"
	TapExit  TapKind = "exit"
)

// Delta is the contribution of one tap of this kind to the event total.
func (k TapKind) Delta() int {
	if k == TapExit {
		return -1
	}
	return 1
}

func (k TapKind) Valid() bool {
	return k == TapEntry || k == TapExit
}

// Direction is what the scanner operator pressed.
type Direction string

const (
	DirectionIncrement Direction = "increment"
	DirectionDecrement Direction = "decrement"
)

// ParseDirection accepts the operator direction or the tap kind it produces.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case string(DirectionIncrement), string(TapEntry), "+":
		return DirectionIncrement, nil
	case string(DirectionDecrement), string(TapExit), "-":
		return DirectionDecrement, nil
	default:
		return "", ErrInvalidDirection
	}
}

func (d Direction) Kind() TapKind {
	if d == DirectionDecrement {
		return TapExit
	}
	return TapEntry
}

// Tap is one immutable ledger record. Seq is the event version the tap
// produced, so it orders taps by insertion even when At does not.
type Tap struct {
	EventID string
	Seq     int64
	Kind    TapKind
	At      time.Time
}

// NetTotal recomputes the running total from a log.
func NetTotal(log []Tap) int {
	total := 0
	for _, t := range log {
		total += t.Kind.Delta()
	}
	return total
}
