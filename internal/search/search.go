// Package search tunes strategy parameters: every trial is a full backtest
// scored by 1/profitFactor and the TPE optimizer proposes the next vector.
package search

import (
	"context"
	"fmt"
	"math"

	"algo_bot/internal/exchange"
	"algo_bot/internal/hyperopt"
	"algo_bot/internal/models"
	"algo_bot/internal/params"
	"algo_bot/internal/strategy"
	"algo_bot/pkg/tracing"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultBudget = 200

var ErrEmptySpace = errors.New("strategy declares no search space")

// Backtester is a finished-on-return backtest that keeps aggregates.
type Backtester interface {
	exchange.Backend
	exchange.Reporter
}

// Env loads the bars once and builds a fresh backtest per trial.
type Env interface {
	LoadBars(ctx context.Context, ex models.Exchange, acc models.Account, pair, timeframe string) ([]models.Bar, error)
	NewBacktest(ex models.Exchange, pair string, bars []models.Bar) Backtester
}

type Config struct {
	Exchange  models.Exchange
	Account   models.Account
	Pair      string
	Timeframe string
	Budget    int
	Seed      int64
	// Base holds fixed values; a trial's sampled values override them.
	Base params.Values
}

// Outcome is what a finished search reports.
type Outcome struct {
	RunID        string
	Best         params.Values
	BestLoss     float64
	ProfitFactor float64
	Trials       int
	Failed       int
}

type Search struct {
	cfg   Config
	def   strategy.Definition
	env   Env
	store *TrialStore
	log   *zap.Logger
}

// New builds a search; store may be nil.
func New(cfg Config, def strategy.Definition, env Env, store *TrialStore, log *zap.Logger) *Search {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Search{cfg: cfg, def: def, env: env, store: store, log: log}
}

func (s *Search) Run(ctx context.Context) (*Outcome, error) {
	if len(s.def.Space) == 0 {
		return nil, errors.Wrap(ErrEmptySpace, s.def.Name)
	}
	span, ctx := tracing.StartSpan(ctx, "search.run",
		opentracing.Tag{Key: "strategy", Value: s.def.Name},
		opentracing.Tag{Key: "budget", Value: s.cfg.Budget},
	)

	bars, err := s.env.LoadBars(ctx, s.cfg.Exchange, s.cfg.Account, s.cfg.Pair, s.cfg.Timeframe)
	if err != nil {
		tracing.Finish(span, err)
		return nil, errors.Wrap(err, "load bars")
	}

	runID := uuid.NewString()
	s.log.Info("parameter search started",
		zap.String("run_id", runID),
		zap.String("strategy", s.def.Name),
		zap.String("exchange", string(s.cfg.Exchange)),
		zap.String("pair", s.cfg.Pair),
		zap.Int("bars", len(bars)),
		zap.Int("budget", s.cfg.Budget),
	)

	failed := 0
	tpe := &hyperopt.TPE{
		Seed: s.cfg.Seed,
		Log:  s.log,
		OnTrial: func(t hyperopt.Trial) {
			if t.Result.Status != models.TrialOK {
				failed++
			}
			if s.store == nil {
				return
			}
			if err := s.store.Save(ctx, runID, s.def.Name, t); err != nil {
				s.log.Warn("trial not stored", zap.Int("trial", t.Number), zap.Error(err))
			}
		},
	}

	res, err := tpe.Minimize(ctx, s.def.Space, s.Objective(bars), s.cfg.Budget)
	tracing.Finish(span, err)
	if err != nil {
		return nil, errors.Wrapf(err, "search %s", runID)
	}

	best, _ := res.BestLoss()
	out := &Outcome{
		RunID:        runID,
		Best:         s.merged(res.Best.Params),
		BestLoss:     best,
		ProfitFactor: 1 / best,
		Trials:       len(res.Trials),
		Failed:       failed,
	}
	s.log.Info(fmt.Sprintf("Best params is %v", out.Best))
	s.log.Info(fmt.Sprintf("Best profit factor is %v", out.ProfitFactor),
		zap.String("run_id", runID),
		zap.Int("trials", out.Trials),
		zap.Int("failed", out.Failed),
	)
	return out, nil
}

// Objective scores one parameter vector on a fresh backtest over bars.
// Every failure, a panic included, becomes a FAIL result without a loss.
func (s *Search) Objective(bars []models.Bar) hyperopt.Objective {
	return func(ctx context.Context, p params.Values) (res models.TrialResult) {
		span, ctx := tracing.StartSpan(ctx, "search.trial")
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("panic: %v", r)
				res = models.TrialFailed()
			}
			if err != nil {
				s.log.Info("trial failed", zap.Any("params", p), zap.Error(err))
			}
			tracing.Finish(span, err)
		}()

		s.log.Info(fmt.Sprintf("Params : %v", p))
		var pf float64
		if pf, err = s.evaluate(ctx, bars, p); err != nil {
			return models.TrialFailed()
		}
		s.log.Info(fmt.Sprintf("Profit Factor : %v", pf))
		return models.TrialSucceeded(1 / pf)
	}
}

func (s *Search) evaluate(ctx context.Context, bars []models.Bar, p params.Values) (float64, error) {
	strat, err := s.def.Build(s.merged(p))
	if err != nil {
		return 0, err
	}
	bt := s.env.NewBacktest(s.cfg.Exchange, s.cfg.Pair, bars)
	bt.SetLookback(strategy.LookbackOf(strat))
	if err := bt.OnUpdate(ctx, s.cfg.Timeframe, strategy.Func(strat, nil)); err != nil {
		return 0, err
	}
	pf, err := bt.Report().ProfitFactor()
	if err != nil {
		return 0, err
	}
	if pf <= 0 || math.IsInf(pf, 0) || math.IsNaN(pf) {
		return 0, errors.Errorf("profit factor %v has no finite reciprocal", pf)
	}
	return pf, nil
}

func (s *Search) merged(p params.Values) params.Values {
	out := s.cfg.Base.Clone()
	for k, v := range p {
		out[k] = v
	}
	return out
}
