// Package sim fills market orders against the last seen bar and keeps the
// wallet and trade aggregates paper and backtest backends report.
package sim

import (
	"context"
	"sync"
	"time"

	"algo_bot/internal/exchange"
	"algo_bot/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNoPrice = errors.New("no market price yet")
	ErrQty     = errors.New("order quantity must be positive")
)

// Fill is reported for every simulated execution.
type Fill struct {
	Order models.Order
	PnL   float64 // realised by this fill, 0 for openings
}

type Book struct {
	mu sync.Mutex

	pair    string
	fee     decimal.Decimal
	balance decimal.Decimal
	size    decimal.Decimal // signed
	entry   decimal.Decimal
	price   decimal.Decimal
	now     time.Time

	trades, wins, losses int
	winProfit, loseLoss  decimal.Decimal

	onFill func(Fill)
}

// NewBook starts with balance in quote currency. feeRate is charged on the
// notional of every fill.
func NewBook(pair string, balance, feeRate float64) *Book {
	return &Book{
		pair:    pair,
		fee:     decimal.NewFromFloat(feeRate),
		balance: decimal.NewFromFloat(balance),
	}
}

// OnFill registers a callback run after each fill, outside the lock.
func (b *Book) OnFill(fn func(Fill)) {
	b.mu.Lock()
	b.onFill = fn
	b.mu.Unlock()
}

// Mark moves the book to bar's close.
func (b *Book) Mark(bar models.Bar) {
	b.mu.Lock()
	b.price = decimal.NewFromFloat(bar.Close)
	b.now = bar.Start
	b.mu.Unlock()
}

func (b *Book) Entry(_ context.Context, id string, long bool, qty float64) error {
	if qty <= 0 {
		return errors.Wrapf(ErrQty, "entry %s: %v", id, qty)
	}
	b.mu.Lock()
	if b.price.IsZero() {
		b.mu.Unlock()
		return ErrNoPrice
	}
	if (long && b.size.IsPositive()) || (!long && b.size.IsNegative()) {
		b.mu.Unlock()
		return nil
	}

	var fills []Fill
	if !b.size.IsZero() {
		fills = append(fills, b.closeLocked(id))
	}
	q := decimal.NewFromFloat(qty)
	side := models.SideBuy
	if !long {
		q = q.Neg()
		side = models.SideSell
	}
	b.balance = b.balance.Sub(b.feeOn(q))
	b.size = q
	b.entry = b.price
	fills = append(fills, Fill{Order: b.orderLocked(id, side, qty)})
	cb := b.onFill
	b.mu.Unlock()

	notify(cb, fills)
	return nil
}

func (b *Book) Exit(_ context.Context, id string) error {
	b.mu.Lock()
	if b.size.IsZero() {
		b.mu.Unlock()
		return nil
	}
	if b.price.IsZero() {
		b.mu.Unlock()
		return ErrNoPrice
	}
	f := b.closeLocked(id)
	cb := b.onFill
	b.mu.Unlock()

	notify(cb, []Fill{f})
	return nil
}

// CancelAll has nothing to do: simulated orders never rest.
func (b *Book) CancelAll(context.Context) error { return nil }

func (b *Book) Position() models.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.Position{
		Pair:       b.pair,
		Size:       b.size.InexactFloat64(),
		EntryPrice: b.entry.InexactFloat64(),
	}
}

// Balance is equity: cash plus the open position marked to market.
func (b *Book) Balance(context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.equityLocked().InexactFloat64(), nil
}

func (b *Book) Report() exchange.Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	return exchange.Report{
		Trades:    b.trades,
		Wins:      b.wins,
		Losses:    b.losses,
		WinProfit: b.winProfit.InexactFloat64(),
		LoseLoss:  b.loseLoss.InexactFloat64(),
		Balance:   b.equityLocked().InexactFloat64(),
	}
}

func (b *Book) equityLocked() decimal.Decimal {
	return b.balance.Add(b.price.Sub(b.entry).Mul(b.size))
}

func (b *Book) feeOn(q decimal.Decimal) decimal.Decimal {
	return q.Abs().Mul(b.price).Mul(b.fee)
}

// closeLocked flattens the position at the current price and books the
// trade as a win or a loss.
func (b *Book) closeLocked(id string) Fill {
	pnl := b.price.Sub(b.entry).Mul(b.size).Sub(b.feeOn(b.size))
	b.balance = b.balance.Add(pnl)

	b.trades++
	switch {
	case pnl.IsPositive():
		b.wins++
		b.winProfit = b.winProfit.Add(pnl)
	case pnl.IsNegative():
		b.losses++
		b.loseLoss = b.loseLoss.Add(pnl.Neg())
	}

	side := models.SideSell
	if b.size.IsNegative() {
		side = models.SideBuy
	}
	o := b.orderLocked(id, side, b.size.Abs().InexactFloat64())
	b.size = decimal.Zero
	b.entry = decimal.Zero
	return Fill{Order: o, PnL: pnl.InexactFloat64()}
}

func (b *Book) orderLocked(clientID string, side models.Side, qty float64) models.Order {
	return models.Order{
		ID:       uuid.NewString(),
		ClientID: clientID,
		Pair:     b.pair,
		Side:     side,
		Qty:      qty,
		Price:    b.price.InexactFloat64(),
		FilledAt: b.now,
	}
}

func notify(cb func(Fill), fills []Fill) {
	if cb == nil {
		return
	}
	for _, f := range fills {
		cb(f)
	}
}
