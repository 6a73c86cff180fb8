package strategy

import (
	"context"
	"fmt"

	"algo_bot/internal/hyperopt"
	"algo_bot/internal/models"
	"algo_bot/internal/params"

	"go.uber.org/zap"
)

// DonchianConfig: channel breakout filtered by a trend EMA.
type DonchianConfig struct {
	Period   int     // channel length in bars, e.g. 20
	TrendEma int     // EMA filter, e.g. 50
	Qty      float64 // order size
}

// Donchian goes long when the close breaks above the previous Period highs
// and above the trend EMA, short on the mirrored breakout.
type Donchian struct {
	cfg DonchianConfig
	log *zap.Logger
}

func DonchianDefinition() Definition {
	return Definition{
		Name: "donchian",
		Schema: params.Schema{
			"period":    {Kind: params.KindInt, Default: 20},
			"trend_ema": {Kind: params.KindInt, Default: 50},
			"qty":       {Kind: params.KindFloat, Default: 1.0},
		},
		Space: hyperopt.Space{
			"period":    hyperopt.IntRange(5, 60),
			"trend_ema": hyperopt.IntRange(10, 200),
		},
		New: func(p params.Resolved) Strategy {
			return NewDonchian(DonchianConfig{
				Period:   p.Int("period"),
				TrendEma: p.Int("trend_ema"),
				Qty:      p.Float("qty"),
			})
		},
	}
}

func NewDonchian(cfg DonchianConfig) *Donchian {
	if cfg.Period <= 0 {
		cfg.Period = 20
	}
	if cfg.TrendEma <= 0 {
		cfg.TrendEma = 50
	}
	if cfg.Qty <= 0 {
		cfg.Qty = 1
	}
	return &Donchian{cfg: cfg, log: zap.NewNop()}
}

// WithLogger is used by the runner so signals show up in the run log.
func (s *Donchian) WithLogger(l *zap.Logger) { s.log = l }

func (s *Donchian) Name() string { return "donchian" }

// Lookback covers the channel plus the current bar and gives the EMA two
// periods to settle.
func (s *Donchian) Lookback() int {
	return max(s.cfg.Period+1, 2*s.cfg.TrendEma)
}

func (s *Donchian) OnBar(ctx context.Context, b Bar) {
	n := b.Series.Len()
	if n < s.cfg.Period+1 {
		return
	}
	trend, ok := ema(b.Series.Close, s.cfg.TrendEma)
	if !ok {
		return
	}

	closePx := b.Series.Last()
	dh := maxSlice(b.Series.High[n-1-s.cfg.Period : n-1])
	dl := minSlice(b.Series.Low[n-1-s.cfg.Period : n-1])

	var side models.Side
	switch {
	case closePx > dh && closePx > trend:
		side = models.SideBuy
	case closePx < dl && closePx < trend:
		side = models.SideSell
	default:
		return
	}

	reason := fmt.Sprintf("close=%.5f dh=%.5f dl=%.5f ema=%.5f", closePx, dh, dl, trend)
	if err := b.Orders.Entry(ctx, "donchian", side == models.SideBuy, s.cfg.Qty); err != nil {
		s.log.Warn("donchian entry failed", zap.String("side", string(side)), zap.Error(err))
		return
	}
	b.Session.Set("donchian.last_signal", string(side))
	s.log.Info("donchian breakout", zap.String("side", string(side)), zap.String("reason", reason))
}
