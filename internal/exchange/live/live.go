package live

import (
	"context"
	"math"
	"sync"

	"algo_bot/internal/exchange"
	"algo_bot/internal/exchange/venue"
	"algo_bot/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Live sends real market orders to the venue.
type Live struct {
	*stream
	v      venue.Venue
	orders *orders
}

func NewLive(v venue.Venue, pair string, log *zap.Logger) *Live {
	s := newStream(v, pair, log)
	return &Live{
		stream: s,
		v:      v,
		orders: &orders{acc: v, pair: pair, log: s.log},
	}
}

func (l *Live) Name() string      { return name("live", l.v.Name()) }
func (l *Live) SetLookback(n int) { l.setLookback(n) }

func (l *Live) OnUpdate(ctx context.Context, timeframe string, fn exchange.StrategyFunc) error {
	if err := l.orders.refresh(ctx); err != nil {
		return errors.Wrap(err, "initial position")
	}
	return l.run(ctx, timeframe, func(ctx context.Context, _ models.Bar, w models.Series) {
		if err := l.orders.refresh(ctx); err != nil {
			l.log.Warn("position refresh failed", zap.Error(err))
		}
		fn(ctx, l.orders, w)
	})
}

func (l *Live) Balance(ctx context.Context) (float64, error) { return l.v.Balance(ctx) }

func (l *Live) ShowResult(ctx context.Context) error { return l.wait(ctx) }

func (l *Live) Stop() { l.stop() }

func (l *Live) CancelAll(ctx context.Context) error { return l.orders.CancelAll(ctx) }

// orders maps the strategy order API onto venue market orders. Position is
// the last value read from the venue.
type orders struct {
	acc  venue.Account
	pair string
	log  *zap.Logger

	mu  sync.Mutex
	pos models.Position
}

func (o *orders) refresh(ctx context.Context) error {
	pos, err := o.acc.Position(ctx, o.pair)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.pos = pos
	o.mu.Unlock()
	return nil
}

func (o *orders) Position() models.Position {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pos
}

func (o *orders) Entry(ctx context.Context, id string, long bool, qty float64) error {
	if err := o.refresh(ctx); err != nil {
		return err
	}
	size := o.Position().Size
	if (long && size > 0) || (!long && size < 0) {
		return nil
	}
	side := models.SideBuy
	if !long {
		side = models.SideSell
	}
	return o.send(ctx, id, side, qty+math.Abs(size))
}

func (o *orders) Exit(ctx context.Context, id string) error {
	if err := o.refresh(ctx); err != nil {
		return err
	}
	size := o.Position().Size
	if size == 0 {
		return nil
	}
	side := models.SideSell
	if size < 0 {
		side = models.SideBuy
	}
	return o.send(ctx, id, side, math.Abs(size))
}

func (o *orders) send(ctx context.Context, id string, side models.Side, qty float64) error {
	clientID := id + "-" + uuid.NewString()[:8]
	ord, err := o.acc.MarketOrder(ctx, o.pair, side, qty, clientID)
	if err != nil {
		return errors.Wrapf(err, "order %s", clientID)
	}
	o.log.Info("order filled",
		zap.String("id", ord.ID),
		zap.String("client_id", clientID),
		zap.String("side", string(side)),
		zap.Float64("qty", ord.Qty),
		zap.Float64("price", ord.Price),
	)
	return o.refresh(ctx)
}

func (o *orders) CancelAll(ctx context.Context) error {
	return o.acc.CancelAll(ctx, o.pair)
}
