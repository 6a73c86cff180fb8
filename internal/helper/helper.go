package helper

import (
	"math"
	"strings"
)

// NormTF maps the spellings users and venues give a timeframe onto the
// "1m".."1d" names the bot works with.
func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "1", "1min":
		return "1m"
	case "5", "5min":
		return "5m"
	case "15", "15min":
		return "15m"
	case "60m", "60", "1hour":
		return "1h"
	case "240m", "4hour":
		return "4h"
	case "1440m", "24h", "1day":
		return "1d"
	default:
		return s
	}
}

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}
