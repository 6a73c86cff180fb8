package models

import (
	"strings"

	"github.com/pkg/errors"
)

// Mode is the execution context picked for one run.
type Mode string

const (
	ModeOptimize Mode = "optimize"
	ModePaper    Mode = "paper"
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

var ErrUnknownMode = errors.New("unknown mode")

// Flags are the three independent switches of the command line.
type Flags struct {
	Optimize bool
	Paper    bool
	Backtest bool
}

// Count returns how many flags are raised.
func (f Flags) Count() int {
	n := 0
	for _, v := range []bool{f.Optimize, f.Paper, f.Backtest} {
		if v {
			n++
		}
	}
	return n
}

// ResolveMode applies optimize > paper > backtest > live; first match wins.
func ResolveMode(f Flags) Mode {
	switch {
	case f.Optimize:
		return ModeOptimize
	case f.Paper:
		return ModePaper
	case f.Backtest:
		return ModeBacktest
	default:
		return ModeLive
	}
}

// ParseMode accepts the explicit --mode selector. "stub" is kept as an alias
// of paper trading.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "optimize", "hyperopt":
		return ModeOptimize, nil
	case "paper", "stub":
		return ModePaper, nil
	case "backtest":
		return ModeBacktest, nil
	case "live", "trade":
		return ModeLive, nil
	}
	return "", errors.Wrapf(ErrUnknownMode, "%q", s)
}

func (m Mode) String() string { return string(m) }
