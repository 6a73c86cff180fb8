// Package strategy holds the strategy contract and the built-in strategies.
package strategy

import (
	"context"

	"algo_bot/internal/exchange"
	"algo_bot/internal/models"
	"algo_bot/internal/session"
)

// Bar is what a strategy receives on every closed bar: the lookback window,
// the order API of the active backend and the run's session.
type Bar struct {
	Series  models.Series
	Orders  exchange.Orders
	Session *session.Session
}

// Strategy decides on aligned OHLCV windows. It changes backend state only
// through Bar.Orders.
type Strategy interface {
	Name() string
	// Lookback is the window length the strategy needs. Zero or less asks
	// for DefaultLookback.
	Lookback() int
	OnBar(ctx context.Context, b Bar)
}

// DefaultLookback is the window given to a strategy whose Lookback is not
// positive.
const DefaultLookback = 100

// LookbackOf returns s.Lookback(), or DefaultLookback when s asks for none.
func LookbackOf(s Strategy) int {
	if n := s.Lookback(); n > 0 {
		return n
	}
	return DefaultLookback
}

// Func adapts s to the callback backends drive. sess may be nil.
func Func(s Strategy, sess *session.Session) exchange.StrategyFunc {
	if sess == nil {
		sess = session.New()
	}
	return func(ctx context.Context, orders exchange.Orders, series models.Series) {
		s.OnBar(ctx, Bar{Series: series, Orders: orders, Session: sess})
	}
}
