package models

import "time"

type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	}
	return SideNone
}

type Order struct {
	ID       string
	ClientID string
	Pair     string
	Side     Side
	Qty      float64
	Price    float64
	FilledAt time.Time
}

// Position is signed: Size > 0 long, Size < 0 short.
type Position struct {
	Pair       string
	Size       float64
	EntryPrice float64
}

func (p Position) Flat() bool { return p.Size == 0 }
