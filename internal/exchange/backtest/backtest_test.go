package backtest

import (
	"context"
	"testing"
	"time"

	"algo_bot/internal/exchange"
	"algo_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
)

func ramp(prices ...float64) Static {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make(Static, len(prices))
	for i, p := range prices {
		bars[i] = models.Bar{Start: t0.Add(time.Duration(i) * time.Hour), Open: p, High: p, Low: p, Close: p}
	}
	return bars
}

func TestReplayCallsStrategyWithFullWindows(t *testing.T) {
	bt := New(Config{Exchange: models.ExchangeBinance, Pair: "BTCUSDT", Balance: 1000}, ramp(1, 2, 3, 4, 5), zaptest.NewLogger(t))
	bt.SetLookback(3)

	var lasts []float64
	err := bt.OnUpdate(context.Background(), "1h", func(_ context.Context, _ exchange.Orders, s models.Series) {
		if s.Len() != 3 {
			t.Errorf("window len = %d, want 3", s.Len())
		}
		lasts = append(lasts, s.Last())
	})
	if err != nil {
		t.Fatalf("OnUpdate: %v", err)
	}
	if len(lasts) != 3 || lasts[0] != 3 || lasts[2] != 5 {
		t.Fatalf("strategy saw %v, want [3 4 5]", lasts)
	}
	if err := bt.ShowResult(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestReplayAggregatesTrades(t *testing.T) {
	bt := New(Config{Exchange: models.ExchangeBitmex, Pair: "XBTUSD", Balance: 1000}, ramp(10, 12, 11, 9, 10, 13), nil)
	bt.SetLookback(1)

	// flip direction on every bar
	long := true
	err := bt.OnUpdate(context.Background(), "1h", func(ctx context.Context, o exchange.Orders, _ models.Series) {
		if err := o.Entry(ctx, "flip", long, 1); err != nil {
			t.Fatal(err)
		}
		long = !long
	})
	if err != nil {
		t.Fatal(err)
	}
	// +2 +1 -2 -1 +3, last short still open
	r := bt.Report()
	if r.Trades != 5 || r.WinProfit != 6 || r.LoseLoss != 3 {
		t.Fatalf("report = %+v", r)
	}
	pf, err := r.ProfitFactor()
	if err != nil || pf != 2 {
		t.Fatalf("profit factor = %v, %v", pf, err)
	}
}

func TestStrategyPanicBecomesError(t *testing.T) {
	bt := New(Config{Pair: "BTCUSDT", Balance: 1000}, ramp(1, 2), nil)
	bt.SetLookback(1)
	err := bt.OnUpdate(context.Background(), "1h", func(context.Context, exchange.Orders, models.Series) {
		panic("boom")
	})
	if !errors.Is(err, ErrStrategyPanic) {
		t.Fatalf("err = %v, want ErrStrategyPanic", err)
	}
}

func TestTooFewBars(t *testing.T) {
	bt := New(Config{Pair: "BTCUSDT"}, ramp(1, 2), nil)
	if err := bt.OnUpdate(context.Background(), "1h", func(context.Context, exchange.Orders, models.Series) {}); err == nil {
		t.Fatal("replay of 2 bars with lookback 100 succeeded")
	}
}

func TestStopIsIdempotentAndHaltsReplay(t *testing.T) {
	bt := New(Config{Pair: "BTCUSDT"}, ramp(1, 2, 3, 4), nil)
	bt.SetLookback(1)
	calls := 0
	_ = bt.OnUpdate(context.Background(), "1h", func(context.Context, exchange.Orders, models.Series) {
		calls++
		bt.Stop()
		bt.Stop()
	})
	if calls != 1 {
		t.Fatalf("strategy ran %d times after Stop, want 1", calls)
	}
	if err := bt.CancelAll(context.Background()); err != nil {
		t.Fatal(err)
	}
}
