package models

import "time"

// Bar is one OHLCV sample of a fixed timeframe.
type Bar struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series holds aligned OHLCV columns, oldest first.
type Series struct {
	Open   []float64
	Close  []float64
	High   []float64
	Low    []float64
	Volume []float64
}

func (s Series) Len() int { return len(s.Close) }

// Last returns the close of the newest bar, 0 for an empty series.
func (s Series) Last() float64 {
	if len(s.Close) == 0 {
		return 0
	}
	return s.Close[len(s.Close)-1]
}

// SeriesFromBars builds the window of the last n bars. n <= 0 takes all.
func SeriesFromBars(bars []Bar, n int) Series {
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	s := Series{
		Open:   make([]float64, len(bars)),
		Close:  make([]float64, len(bars)),
		High:   make([]float64, len(bars)),
		Low:    make([]float64, len(bars)),
		Volume: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Open[i] = b.Open
		s.Close[i] = b.Close
		s.High[i] = b.High
		s.Low[i] = b.Low
		s.Volume[i] = b.Volume
	}
	return s
}

// TimeframeDuration maps "1m".."1d" to a duration, 0 when unknown.
func TimeframeDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}
