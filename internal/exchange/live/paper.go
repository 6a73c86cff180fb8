package live

import (
	"context"

	"algo_bot/internal/exchange"
	"algo_bot/internal/exchange/sim"
	"algo_bot/internal/exchange/venue"
	"algo_bot/internal/models"

	"go.uber.org/zap"
)

// Paper trades live bars on a simulated book; no order reaches the venue.
type Paper struct {
	*stream
	ex   models.Exchange
	book *sim.Book
}

func NewPaper(ex models.Exchange, pair string, md venue.MarketData, balance, feeRate float64, log *zap.Logger) *Paper {
	p := &Paper{
		stream: newStream(md, pair, log),
		ex:     ex,
		book:   sim.NewBook(pair, balance, feeRate),
	}
	p.book.OnFill(func(f sim.Fill) {
		p.log.Info("paper fill",
			zap.String("id", f.Order.ClientID),
			zap.String("side", string(f.Order.Side)),
			zap.Float64("qty", f.Order.Qty),
			zap.Float64("price", f.Order.Price),
			zap.Float64("pnl", f.PnL),
		)
	})
	return p
}

func (p *Paper) Name() string      { return name("paper", p.ex) }
func (p *Paper) SetLookback(n int) { p.setLookback(n) }

func (p *Paper) OnUpdate(ctx context.Context, timeframe string, fn exchange.StrategyFunc) error {
	return p.run(ctx, timeframe, func(ctx context.Context, bar models.Bar, w models.Series) {
		p.book.Mark(bar)
		fn(ctx, p.book, w)
	})
}

func (p *Paper) Balance(ctx context.Context) (float64, error) { return p.book.Balance(ctx) }

func (p *Paper) Report() exchange.Report { return p.book.Report() }

func (p *Paper) ShowResult(ctx context.Context) error {
	err := p.wait(ctx)
	r := p.Report()
	p.log.Info("paper result",
		zap.String("backend", p.Name()),
		zap.Int("trades", r.Trades),
		zap.Float64("win_profit", r.WinProfit),
		zap.Float64("lose_loss", r.LoseLoss),
		zap.Float64("balance", r.Balance),
	)
	return err
}

func (p *Paper) Stop() { p.stop() }

func (p *Paper) CancelAll(ctx context.Context) error { return p.book.CancelAll(ctx) }
