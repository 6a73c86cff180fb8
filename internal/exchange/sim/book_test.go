package sim

import (
	"context"
	"testing"
	"time"

	"algo_bot/internal/exchange"
	"algo_bot/internal/models"

	"github.com/pkg/errors"
)

var ctx = context.Background()

func mark(b *Book, px float64) {
	b.Mark(models.Bar{Start: time.Unix(0, 0).UTC(), Close: px})
}

func TestEntryNeedsPrice(t *testing.T) {
	b := NewBook("BTCUSDT", 1000, 0)
	if err := b.Entry(ctx, "L", true, 1); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("err = %v, want ErrNoPrice", err)
	}
}

func TestEntrySameDirectionIsKept(t *testing.T) {
	b := NewBook("BTCUSDT", 1000, 0)
	mark(b, 100)
	if err := b.Entry(ctx, "L", true, 1); err != nil {
		t.Fatal(err)
	}
	mark(b, 110)
	if err := b.Entry(ctx, "L", true, 5); err != nil {
		t.Fatal(err)
	}
	pos := b.Position()
	if pos.Size != 1 || pos.EntryPrice != 100 {
		t.Fatalf("position = %+v, want 1 @ 100", pos)
	}
}

func TestReverseBooksWinAndLoss(t *testing.T) {
	b := NewBook("BTCUSDT", 1000, 0)
	var fills []Fill
	b.OnFill(func(f Fill) { fills = append(fills, f) })

	mark(b, 100)
	_ = b.Entry(ctx, "L", true, 2) // long 2 @ 100
	mark(b, 110)
	_ = b.Entry(ctx, "S", false, 1) // close +20, short 1 @ 110
	mark(b, 120)
	_ = b.Exit(ctx, "X") // close -10

	r := b.Report()
	want := exchange.Report{Trades: 2, Wins: 1, Losses: 1, WinProfit: 20, LoseLoss: 10, Balance: 1010}
	if r != want {
		t.Fatalf("report = %+v, want %+v", r, want)
	}
	pf, err := r.ProfitFactor()
	if err != nil || pf != 2 {
		t.Fatalf("profit factor = %v, %v; want 2", pf, err)
	}
	if len(fills) != 4 {
		t.Fatalf("got %d fills, want 4", len(fills))
	}
	if fills[1].Order.Side != models.SideSell || fills[1].PnL != 20 {
		t.Errorf("closing fill = %+v", fills[1])
	}
	if fills[0].Order.ID == "" || fills[0].Order.ID == fills[2].Order.ID {
		t.Error("order ids are not unique")
	}
	if !b.Position().Flat() {
		t.Error("position not flat after exit")
	}
}

func TestFeesReduceBalance(t *testing.T) {
	b := NewBook("BTCUSDT", 1000, 0.001)
	mark(b, 100)
	_ = b.Entry(ctx, "L", true, 10) // fee 1
	_ = b.Exit(ctx, "X")            // fee 1, pnl -1

	r := b.Report()
	if r.Balance != 998 {
		t.Errorf("balance = %v, want 998", r.Balance)
	}
	if r.Losses != 1 || r.LoseLoss != 1 {
		t.Errorf("report = %+v", r)
	}
}

func TestProfitFactorUndefinedWithoutLosses(t *testing.T) {
	b := NewBook("BTCUSDT", 1000, 0)
	mark(b, 100)
	_ = b.Entry(ctx, "L", true, 1)
	mark(b, 105)
	_ = b.Exit(ctx, "X")

	if _, err := b.Report().ProfitFactor(); !errors.Is(err, exchange.ErrUndefinedProfitFactor) {
		t.Fatalf("err = %v, want ErrUndefinedProfitFactor", err)
	}
}

func TestEquityMarksOpenPosition(t *testing.T) {
	b := NewBook("BTCUSDT", 1000, 0)
	mark(b, 100)
	_ = b.Entry(ctx, "S", false, 3)
	mark(b, 90)
	bal, _ := b.Balance(ctx)
	if bal != 1030 {
		t.Fatalf("equity = %v, want 1030", bal)
	}
}

func TestRejectsNonPositiveQty(t *testing.T) {
	b := NewBook("BTCUSDT", 1000, 0)
	mark(b, 100)
	if err := b.Entry(ctx, "L", true, 0); !errors.Is(err, ErrQty) {
		t.Fatalf("err = %v, want ErrQty", err)
	}
}
