package factory

import (
	"context"
	"testing"
	"time"

	"algo_bot/internal/exchange/backtest"
	"algo_bot/internal/exchange/live"
	"algo_bot/internal/exchange/venue"
	"algo_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
)

func TestBackendPerMode(t *testing.T) {
	f := New(Config{}, zaptest.NewLogger(t))
	ctx := context.Background()
	keys := models.Account{Name: "main", APIKey: "k", APISecret: "s"}

	b, err := f.Backend(ctx, Spec{Mode: models.ModePaper, Exchange: models.ExchangeBitmex, Pair: "XBTUSD"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*live.Paper); !ok || b.Name() != "paper/bitmex" {
		t.Errorf("paper backend = %T %s", b, b.Name())
	}

	b, err = f.Backend(ctx, Spec{Mode: models.ModeBacktest, Exchange: models.ExchangeBinance, Pair: "BTCUSDT"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*backtest.Backtest); !ok {
		t.Errorf("backtest backend = %T", b)
	}

	b, err = f.Backend(ctx, Spec{Mode: models.ModeLive, Exchange: models.ExchangeFtx, Account: keys, Pair: "BTC-PERP", Demo: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*live.Live); !ok || b.Name() != "live/ftx" {
		t.Errorf("live backend = %T %s", b, b.Name())
	}
}

func TestLiveNeedsKeys(t *testing.T) {
	f := New(Config{}, zaptest.NewLogger(t))
	_, err := f.Backend(context.Background(), Spec{Mode: models.ModeLive, Exchange: models.ExchangeBinance, Pair: "BTCUSDT"})
	if !errors.Is(err, venue.ErrNoKeys) {
		t.Fatalf("err = %v, want ErrNoKeys", err)
	}
}

func TestUnknownExchange(t *testing.T) {
	f := New(Config{}, zaptest.NewLogger(t))
	_, err := f.Backend(context.Background(), Spec{Mode: models.ModePaper, Exchange: "kraken"})
	if !errors.Is(err, models.ErrUnknownExchange) {
		t.Fatalf("err = %v, want ErrUnknownExchange", err)
	}
}

func TestBacktestsAreIndependent(t *testing.T) {
	f := New(Config{Balance: 500}, zaptest.NewLogger(t))
	bars := []models.Bar{{Start: time.Unix(0, 0), Close: 1}}
	a := f.Backtest(models.ExchangeBinance, "BTCUSDT", bars)
	b := f.Backtest(models.ExchangeBinance, "BTCUSDT", bars)
	if a == b {
		t.Fatal("Backtest returned a shared instance")
	}
	if bal, _ := a.Balance(context.Background()); bal != 500 {
		t.Errorf("balance = %v, want 500", bal)
	}
}

func TestWindow(t *testing.T) {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f := New(Config{HistoryDays: 10, End: end}, zaptest.NewLogger(t))
	start, got := f.window()
	if !got.Equal(end) || !start.Equal(end.AddDate(0, 0, -10)) {
		t.Fatalf("window = %s..%s", start, got)
	}
}
