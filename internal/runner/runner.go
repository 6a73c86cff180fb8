// Package runner drives one run of the bot: it resolves the mode, builds
// exactly one backend and shuts it down in order.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"algo_bot/internal/config"
	"algo_bot/internal/exchange"
	"algo_bot/internal/exchange/factory"
	"algo_bot/internal/models"
	"algo_bot/internal/modules/health/service"
	"algo_bot/internal/notify"
	"algo_bot/internal/params"
	"algo_bot/internal/search"
	"algo_bot/internal/session"
	"algo_bot/internal/strategy"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// State is where a run stands. Uninitialized moves to exactly one of the
// mode states and every path ends in Stopped.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateOptimize      State = "optimize"
	StatePaper         State = "paper"
	StateBacktest      State = "backtest"
	StateLive          State = "live"
	StateStopped       State = "stopped"
)

var ErrAlreadyRun = errors.New("runner already ran")

func stateOf(m models.Mode) State {
	switch m {
	case models.ModeOptimize:
		return StateOptimize
	case models.ModePaper:
		return StatePaper
	case models.ModeBacktest:
		return StateBacktest
	default:
		return StateLive
	}
}

// Backends builds the backend of a run. *factory.Factory is one.
type Backends interface {
	Backend(ctx context.Context, s factory.Spec) (exchange.Backend, error)
}

// Searcher runs a parameter search to completion.
type Searcher interface {
	Run(ctx context.Context) (*search.Outcome, error)
}

// NewSearch builds the search of an optimize run.
type NewSearch func(cfg search.Config, def strategy.Definition) Searcher

type Deps struct {
	Config   *config.Config
	Backends Backends
	Search   NewSearch
	Registry *strategy.Registry
	Store    session.Store   // NopStore when nil
	Notifier notify.Notifier // logs only when nil
	Health   *service.State  // optional
	Log      *zap.Logger
}

type Runner struct {
	cfg      *config.Config
	backends Backends
	search   NewSearch
	registry *strategy.Registry
	store    session.Store
	n        notify.Notifier
	health   *service.State
	log      *zap.Logger

	sess *session.Session

	mu       sync.Mutex
	state    State
	mode     models.Mode
	ex       models.Exchange
	strategy string
	backend  exchange.Backend
	outcome  *search.Outcome
	started  time.Time

	stopOnce sync.Once
	stopErr  error
}

func New(d Deps) *Runner {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Store == nil {
		d.Store = session.NopStore{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewStdout(d.Log)
	}
	return &Runner{
		cfg:      d.Config,
		backends: d.Backends,
		search:   d.Search,
		registry: d.Registry,
		store:    d.Store,
		n:        d.Notifier,
		health:   d.Health,
		log:      d.Log,
		sess:     session.New(),
		state:    StateUninitialized,
	}
}

// Session is the run's key/value store strategies write to.
func (r *Runner) Session() *session.Session { return r.sess }

// Run performs the run to its natural end: the search finished, the
// backtest replayed or the live feed ended. Configuration problems are
// logged and end the run without an error.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateUninitialized {
		r.mu.Unlock()
		return ErrAlreadyRun
	}
	r.started = time.Now()
	r.mu.Unlock()

	mode, conflict, err := r.cfg.ResolveMode()
	if err != nil {
		r.abort(err)
		return nil
	}
	if conflict {
		r.log.Warn("[RUNNER] several mode flags set, highest priority wins",
			zap.Bool("optimize", r.cfg.Flags.Optimize),
			zap.Bool("paper", r.cfg.Flags.Paper),
			zap.Bool("backtest", r.cfg.Flags.Backtest),
			zap.Stringer("mode", mode),
		)
	}
	r.log.Info(fmt.Sprintf("Bot Mode : %s", mode))

	ex, err := models.ParseExchange(r.cfg.Exchange)
	if err != nil {
		r.abort(err)
		return nil
	}
	def, err := r.registry.Get(r.cfg.Strategy)
	if err != nil {
		r.abort(err)
		return nil
	}
	values, err := r.cfg.Params()
	if err != nil {
		r.abort(err)
		return nil
	}

	r.mu.Lock()
	r.mode, r.ex, r.strategy = mode, ex, def.Name
	r.mu.Unlock()
	if r.health != nil {
		r.health.SetMode(string(mode))
	}

	if err := r.loadSession(ctx); err != nil {
		r.setState(StateStopped)
		return err
	}

	if mode == models.ModeOptimize {
		return r.optimize(ctx, ex, def, values)
	}
	return r.trade(ctx, mode, ex, def, values)
}

func (r *Runner) abort(err error) {
	r.log.Error("[RUNNER] run aborted", zap.Error(err))
	r.setState(StateStopped)
}

// setState never leaves Stopped.
func (r *Runner) setState(s State) {
	r.mu.Lock()
	if r.state != StateStopped {
		r.state = s
	}
	r.mu.Unlock()
}

func (r *Runner) loadSession(ctx context.Context) error {
	attrs, err := r.store.Load(ctx)
	if err != nil {
		return errors.Wrapf(err, "load session %s", r.store.Target())
	}
	if err := r.sess.Load(attrs); err != nil {
		return errors.Wrapf(err, "load session %s", r.store.Target())
	}
	if len(attrs) > 0 {
		r.log.Info("[RUNNER] session restored",
			zap.String("target", r.store.Target()),
			zap.Int("attributes", len(attrs)),
		)
	}
	return nil
}

func (r *Runner) optimize(ctx context.Context, ex models.Exchange, def strategy.Definition, values params.Values) error {
	r.setState(StateOptimize)
	if r.health != nil {
		r.health.SetReady(true)
	}

	s := r.search(search.Config{
		Exchange:  ex,
		Account:   r.cfg.Account,
		Pair:      r.cfg.Pair,
		Timeframe: r.cfg.Timeframe,
		Budget:    r.cfg.Search.Budget,
		Seed:      r.cfg.Search.Seed,
		Base:      values,
	}, def)
	out, err := s.Run(ctx)
	if err != nil {
		r.n.Sendf("Parameter search for %s failed: %v", def.Name, err)
		return errors.Wrap(err, "optimize")
	}

	r.sess.Set("optimize.best_params", map[string]any(out.Best))
	r.sess.Set("optimize.profit_factor", out.ProfitFactor)
	r.mu.Lock()
	r.outcome = out
	r.mu.Unlock()

	r.n.Sendf("Best params is %v\nBest profit factor is %v", out.Best, out.ProfitFactor)
	return nil
}

func (r *Runner) trade(ctx context.Context, mode models.Mode, ex models.Exchange, def strategy.Definition, values params.Values) error {
	strat, err := def.Build(values)
	if err != nil {
		r.abort(err)
		return nil
	}
	if l, ok := strat.(strategy.Logged); ok {
		l.WithLogger(r.log.Named(def.Name))
	}

	if mode == models.ModeLive && r.cfg.ConfirmLive {
		prompt := fmt.Sprintf("Start live trading %s on %s %s?", def.Name, ex, r.cfg.Pair)
		if !r.n.Confirm(ctx, prompt, r.cfg.ConfirmTimeout) {
			r.abort(errors.New("live trading not confirmed"))
			return nil
		}
	}

	backend, err := r.backends.Backend(ctx, factory.Spec{
		Mode:     mode,
		Exchange: ex,
		Account:  r.cfg.Account,
		Pair:     r.cfg.Pair,
		Demo:     r.cfg.Testnet,
	})
	if err != nil {
		r.setState(StateStopped)
		return errors.Wrapf(err, "build %s backend", mode)
	}

	r.mu.Lock()
	if r.state == StateStopped {
		// Stop won the race; it saw no backend to shut down
		r.mu.Unlock()
		backend.Stop()
		return nil
	}
	r.backend = backend
	r.state = stateOf(mode)
	r.mu.Unlock()

	lookback := r.cfg.Lookback
	if lookback <= 0 {
		lookback = strategy.LookbackOf(strat)
	}
	backend.SetLookback(lookback)

	if err := backend.OnUpdate(ctx, r.cfg.Timeframe, r.observe(strategy.Func(strat, r.sess))); err != nil {
		return errors.Wrapf(err, "%s on_update", backend.Name())
	}

	balance, err := backend.Balance(ctx)
	if err != nil {
		r.log.Warn("[RUNNER] balance unavailable", zap.Error(err))
	}
	r.log.Info("Starting Bot",
		zap.String("backend", backend.Name()),
		zap.String("pair", r.cfg.Pair),
		zap.String("timeframe", r.cfg.Timeframe),
		zap.Int("lookback", lookback),
	)
	r.log.Info(fmt.Sprintf("Strategy : %s", def.Name))
	r.log.Info(fmt.Sprintf("Balance : %v", balance))
	r.n.Sendf("Starting Bot\nStrategy : %s\nBalance : %v", def.Name, balance)

	if r.health != nil {
		r.health.SetStreaming(true)
		r.health.SetReady(true)
	}
	err = backend.ShowResult(ctx)
	if r.health != nil {
		r.health.SetStreaming(false)
	}
	if err != nil {
		r.n.Sendf("%s stopped: %v", backend.Name(), err)
		return errors.Wrap(err, backend.Name())
	}
	return nil
}

// observe stamps the health state on every bar before the strategy runs.
func (r *Runner) observe(fn exchange.StrategyFunc) exchange.StrategyFunc {
	if r.health == nil {
		return fn
	}
	return func(ctx context.Context, o exchange.Orders, s models.Series) {
		r.health.TouchBar(time.Now())
		fn(ctx, o, s)
	}
}

// Stop persists the session, stops the backend and cancels its open orders,
// in that order. Later calls return the first call's result. Without a
// backend only the session store is closed.
func (r *Runner) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() { r.stopErr = r.shutdown(ctx) })
	return r.stopErr
}

func (r *Runner) shutdown(ctx context.Context) error {
	r.mu.Lock()
	backend := r.backend
	persist := backend != nil || r.outcome != nil
	r.state = StateStopped
	r.mu.Unlock()
	if r.health != nil {
		r.health.SetReady(false)
	}

	var err error
	if persist {
		if e := r.store.Save(ctx, r.sess); e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "save session %s", r.store.Target()))
		} else if target := r.store.Target(); target != "" {
			r.log.Info("Saved Session to " + target)
		}
	}
	if e := r.store.Close(); e != nil {
		err = multierr.Append(err, errors.Wrap(e, "close session"))
	}
	if backend == nil {
		return err
	}

	backend.Stop()
	if e := backend.CancelAll(ctx); e != nil {
		err = multierr.Append(err, errors.Wrapf(e, "%s cancel all", backend.Name()))
	}
	r.log.Info("[RUNNER] stopped", zap.String("backend", backend.Name()))
	return err
}

// Status is a snapshot for probes and chat commands.
type Status struct {
	State    State
	Mode     models.Mode
	Exchange models.Exchange
	Pair     string
	Strategy string
	Backend  string
	Started  time.Time
	Outcome  *search.Outcome
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		State:    r.state,
		Mode:     r.mode,
		Exchange: r.ex,
		Pair:     r.cfg.Pair,
		Strategy: r.strategy,
		Started:  r.started,
		Outcome:  r.outcome,
	}
	if r.backend != nil {
		st.Backend = r.backend.Name()
	}
	return st
}

func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "State : %s\n", s.State)
	if s.Mode != "" {
		fmt.Fprintf(&b, "Mode : %s\n", s.Mode)
	}
	if s.Strategy != "" {
		fmt.Fprintf(&b, "Strategy : %s\n", s.Strategy)
	}
	if s.Backend != "" {
		fmt.Fprintf(&b, "Backend : %s %s\n", s.Backend, s.Pair)
	}
	if s.Outcome != nil {
		fmt.Fprintf(&b, "Best profit factor : %v\n", s.Outcome.ProfitFactor)
	}
	if !s.Started.IsZero() {
		fmt.Fprintf(&b, "Up : %s\n", time.Since(s.Started).Truncate(time.Second))
	}
	return strings.TrimRight(b.String(), "\n")
}
