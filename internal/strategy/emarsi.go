package strategy

import (
	"context"

	"algo_bot/internal/hyperopt"
	"algo_bot/internal/params"

	"go.uber.org/zap"
)

type EMARSIConfig struct {
	EMAShort      int
	EMALong       int
	RSIPeriod     int
	RSIOverbought float64
	RSIOSold      float64
	Qty           float64
}

// EMARSI buys pullbacks in an uptrend (short EMA above long, RSI oversold)
// and sells rallies in a downtrend. The trend flipping against an open
// position closes it.
type EMARSI struct {
	cfg EMARSIConfig
	log *zap.Logger
}

func EMARSIDefinition() Definition {
	return Definition{
		Name: "emarsi",
		Schema: params.Schema{
			"ema_short":      {Kind: params.KindInt, Default: 9},
			"ema_long":       {Kind: params.KindInt, Default: 21},
			"rsi_period":     {Kind: params.KindInt, Default: 14},
			"rsi_overbought": {Kind: params.KindFloat, Default: 70.0},
			"rsi_oversold":   {Kind: params.KindFloat, Default: 30.0},
			"qty":            {Kind: params.KindFloat, Default: 1.0},
		},
		Space: hyperopt.Space{
			"ema_short":      hyperopt.IntRange(3, 20),
			"ema_long":       hyperopt.IntRange(21, 80),
			"rsi_period":     hyperopt.IntRange(5, 30),
			"rsi_overbought": hyperopt.QUniform(60, 85, 1),
			"rsi_oversold":   hyperopt.QUniform(15, 40, 1),
		},
		New: func(p params.Resolved) Strategy {
			return NewEMARSI(EMARSIConfig{
				EMAShort:      p.Int("ema_short"),
				EMALong:       p.Int("ema_long"),
				RSIPeriod:     p.Int("rsi_period"),
				RSIOverbought: p.Float("rsi_overbought"),
				RSIOSold:      p.Float("rsi_oversold"),
				Qty:           p.Float("qty"),
			})
		},
	}
}

func NewEMARSI(cfg EMARSIConfig) *EMARSI {
	if cfg.EMAShort <= 0 {
		cfg.EMAShort = 9
	}
	if cfg.EMALong <= cfg.EMAShort {
		cfg.EMALong = cfg.EMAShort * 2
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.RSIOverbought <= 0 {
		cfg.RSIOverbought = 70
	}
	if cfg.RSIOSold <= 0 {
		cfg.RSIOSold = 30
	}
	if cfg.Qty <= 0 {
		cfg.Qty = 1
	}
	return &EMARSI{cfg: cfg, log: zap.NewNop()}
}

func (s *EMARSI) WithLogger(l *zap.Logger) { s.log = l }

func (s *EMARSI) Name() string { return "emarsi" }

func (s *EMARSI) Lookback() int {
	return max(2*s.cfg.EMALong, s.cfg.RSIPeriod*3)
}

func (s *EMARSI) OnBar(ctx context.Context, b Bar) {
	closes := b.Series.Close
	short, ok1 := ema(closes, s.cfg.EMAShort)
	long, ok2 := ema(closes, s.cfg.EMALong)
	r, ok3 := rsi(closes, s.cfg.RSIPeriod)
	if !ok1 || !ok2 || !ok3 {
		return
	}

	pos := b.Orders.Position()
	var err error
	switch {
	case short > long && r < s.cfg.RSIOSold:
		err = b.Orders.Entry(ctx, "emarsi", true, s.cfg.Qty)
	case short < long && r > s.cfg.RSIOverbought:
		err = b.Orders.Entry(ctx, "emarsi", false, s.cfg.Qty)
	case pos.Size > 0 && short < long, pos.Size < 0 && short > long:
		err = b.Orders.Exit(ctx, "emarsi-exit")
	default:
		return
	}
	if err != nil {
		s.log.Warn("emarsi order failed", zap.Error(err))
		return
	}
	b.Session.Set("emarsi.position", b.Orders.Position())
	s.log.Debug("emarsi",
		zap.Float64("ema_short", short),
		zap.Float64("ema_long", long),
		zap.Float64("rsi", r),
		zap.Float64("position", b.Orders.Position().Size),
	)
}
