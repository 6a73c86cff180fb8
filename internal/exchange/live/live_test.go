package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"algo_bot/internal/exchange"
	"algo_bot/internal/exchange/venue"
	"algo_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
)

type fakeFeed struct {
	warm []models.Bar
	bars chan models.Bar
	errs chan error
}

func newFakeFeed(warm ...models.Bar) *fakeFeed {
	return &fakeFeed{warm: warm, bars: make(chan models.Bar), errs: make(chan error, 1)}
}

func (f *fakeFeed) Klines(context.Context, string, string, time.Time, time.Time) ([]models.Bar, error) {
	return f.warm, nil
}

func (f *fakeFeed) StreamKlines(ctx context.Context, _, _ string) (<-chan models.Bar, <-chan error) {
	return f.bars, f.errs
}

type fakeVenue struct {
	*fakeFeed
	mu     sync.Mutex
	pos    float64
	orders []models.Order
	cancel int
}

func (v *fakeVenue) Name() models.Exchange                    { return models.ExchangeBinance }
func (v *fakeVenue) Balance(context.Context) (float64, error) { return 42, nil }

func (v *fakeVenue) CancelAll(context.Context, string) error {
	v.cancel++
	return nil
}

func (v *fakeVenue) Position(_ context.Context, pair string) (models.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return models.Position{Pair: pair, Size: v.pos}, nil
}

func (v *fakeVenue) MarketOrder(_ context.Context, pair string, side models.Side, qty float64, clientID string) (models.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if side == models.SideBuy {
		v.pos += qty
	} else {
		v.pos -= qty
	}
	o := models.Order{ID: "1", ClientID: clientID, Pair: pair, Side: side, Qty: qty}
	v.orders = append(v.orders, o)
	return o, nil
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, px float64) models.Bar {
	return models.Bar{Start: t0.Add(time.Duration(i) * time.Minute), Close: px}
}

func TestPaperStreamsIntoWindow(t *testing.T) {
	feed := newFakeFeed(bar(0, 1), bar(1, 2))
	p := NewPaper(models.ExchangeBitmex, "XBTUSD", feed, 1000, 0, zaptest.NewLogger(t))
	p.SetLookback(3)

	seen := make(chan models.Series, 1)
	err := p.OnUpdate(context.Background(), "1m", func(ctx context.Context, o exchange.Orders, s models.Series) {
		if err := o.Entry(ctx, "L", true, 1); err != nil {
			t.Error(err)
		}
		seen <- s
	})
	if err != nil {
		t.Fatalf("OnUpdate: %v", err)
	}

	feed.bars <- bar(1, 2) // duplicate of the warm-up tail, dropped
	feed.bars <- bar(2, 3)
	s := <-seen
	if s.Len() != 3 || s.Last() != 3 {
		t.Fatalf("window = %+v", s)
	}
	if p.book.Position().Size != 1 {
		t.Errorf("paper position = %+v", p.book.Position())
	}

	p.Stop()
	p.Stop()
	if err := p.ShowResult(context.Background()); err != nil {
		t.Fatalf("ShowResult after Stop: %v", err)
	}
}

func TestFeedLossEndsShowResult(t *testing.T) {
	feed := newFakeFeed()
	p := NewPaper(models.ExchangeFtx, "BTC-PERP", feed, 1000, 0, nil)
	if err := p.OnUpdate(context.Background(), "1m", func(context.Context, exchange.Orders, models.Series) {}); err != nil {
		t.Fatal(err)
	}
	feed.errs <- venue.ErrStreamLost

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.ShowResult(ctx); !errors.Is(err, venue.ErrStreamLost) {
		t.Fatalf("ShowResult = %v, want ErrStreamLost", err)
	}
}

func TestShowResultWithoutFeed(t *testing.T) {
	p := NewPaper(models.ExchangeFtx, "BTC-PERP", newFakeFeed(), 1000, 0, nil)
	if err := p.ShowResult(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("err = %v, want ErrNotStarted", err)
	}
	p.Stop()
}

func TestLiveEntryReversesPosition(t *testing.T) {
	v := &fakeVenue{fakeFeed: newFakeFeed(), pos: -2}
	l := NewLive(v, "BTCUSDT", zaptest.NewLogger(t))
	ctx := context.Background()

	if err := l.orders.Entry(ctx, "L", true, 1); err != nil {
		t.Fatal(err)
	}
	if len(v.orders) != 1 || v.orders[0].Qty != 3 || v.orders[0].Side != models.SideBuy {
		t.Fatalf("orders = %+v, want one BUY of 3", v.orders)
	}
	if l.orders.Position().Size != 1 {
		t.Fatalf("position = %+v", l.orders.Position())
	}

	// same direction is a no-op
	if err := l.orders.Entry(ctx, "L", true, 1); err != nil {
		t.Fatal(err)
	}
	if len(v.orders) != 1 {
		t.Fatalf("same-direction entry sent an order")
	}

	if err := l.orders.Exit(ctx, "X"); err != nil {
		t.Fatal(err)
	}
	if !l.orders.Position().Flat() || v.orders[1].Side != models.SideSell {
		t.Fatalf("exit left %+v", l.orders.Position())
	}

	if err := l.CancelAll(ctx); err != nil || v.cancel != 1 {
		t.Fatalf("CancelAll: %v (calls %d)", err, v.cancel)
	}
	if bal, _ := l.Balance(ctx); bal != 42 {
		t.Errorf("balance = %v", bal)
	}
	if l.Name() != "live/binance" {
		t.Errorf("name = %s", l.Name())
	}
}
