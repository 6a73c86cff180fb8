package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"algo_bot/internal/config"
	"algo_bot/internal/exchange"
	"algo_bot/internal/exchange/factory"
	"algo_bot/internal/exchange/venue"
	"algo_bot/internal/models"
	"algo_bot/internal/params"
	"algo_bot/internal/search"
	"algo_bot/internal/session"
	"algo_bot/internal/strategy"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// recorder keeps the order of calls across fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(c string) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(c string) int {
	n := 0
	for _, x := range r.list() {
		if x == c {
			n++
		}
	}
	return n
}

type fakeBackend struct {
	rec      *recorder
	name     string
	lookback int
	showErr  error
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) SetLookback(n int) {
	b.lookback = n
	b.rec.add("lookback")
}

func (b *fakeBackend) OnUpdate(context.Context, string, exchange.StrategyFunc) error {
	b.rec.add("on_update")
	return nil
}

func (b *fakeBackend) Balance(context.Context) (float64, error) {
	b.rec.add("balance")
	return 10000, nil
}

func (b *fakeBackend) ShowResult(context.Context) error {
	b.rec.add("show_result")
	return b.showErr
}

func (b *fakeBackend) Stop() { b.rec.add("stop") }

func (b *fakeBackend) CancelAll(context.Context) error {
	b.rec.add("cancel_all")
	return nil
}

type fakeBackends struct {
	rec     *recorder
	specs   []factory.Spec
	showErr error
	last    *fakeBackend
}

func (f *fakeBackends) Backend(_ context.Context, s factory.Spec) (exchange.Backend, error) {
	f.specs = append(f.specs, s)
	f.last = &fakeBackend{rec: f.rec, name: string(s.Mode) + "/" + string(s.Exchange), showErr: f.showErr}
	return f.last, nil
}

type fakeSearcher struct {
	cfg search.Config
	out *search.Outcome
	err error
}

func (s *fakeSearcher) Run(context.Context) (*search.Outcome, error) { return s.out, s.err }

type fakeStore struct {
	rec   *recorder
	attrs map[string]any
	saved map[string]any
}

func (s *fakeStore) Load(context.Context) (map[string]any, error) { return s.attrs, nil }

func (s *fakeStore) Save(_ context.Context, sess *session.Session) error {
	s.rec.add("save")
	snap, err := sess.Snapshot()
	s.saved = snap
	return err
}

func (s *fakeStore) Close() error {
	s.rec.add("close")
	return nil
}

func (s *fakeStore) Target() string { return "fake" }

type fakeNotifier struct {
	mu      sync.Mutex
	msgs    []string
	confirm bool
}

func (n *fakeNotifier) Send(msg string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *fakeNotifier) Sendf(format string, args ...any) {
	n.Send(fmt.Sprintf(format, args...))
}

func (n *fakeNotifier) Confirm(context.Context, string, time.Duration) bool { return n.confirm }

func (n *fakeNotifier) has(prefix string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.msgs {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

type fixture struct {
	rec      *recorder
	backends *fakeBackends
	searches []*fakeSearcher
	store    *fakeStore
	n        *fakeNotifier
	logs     *observer.ObservedLogs
	runner   *Runner
	outcome  *search.Outcome
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	rec := &recorder{}
	f := &fixture{
		rec:      rec,
		backends: &fakeBackends{rec: rec},
		store:    &fakeStore{rec: rec},
		n:        &fakeNotifier{confirm: true},
		logs:     logs,
		outcome: &search.Outcome{
			RunID:        "run",
			Best:         map[string]any{"period": 12},
			ProfitFactor: 1.8,
			Trials:       200,
		},
	}
	f.runner = New(Deps{
		Config:   cfg,
		Backends: f.backends,
		Search: func(c search.Config, _ strategy.Definition) Searcher {
			s := &fakeSearcher{cfg: c, out: f.outcome}
			f.searches = append(f.searches, s)
			return s
		},
		Registry: strategy.Builtin(),
		Store:    f.store,
		Notifier: f.n,
		Log:      zap.New(core),
	})
	return f
}

func baseConfig() *config.Config {
	return &config.Config{
		Exchange:  "bitmex",
		Pair:      "XBTUSD",
		Timeframe: "1h",
		Strategy:  "donchian",
		Account:   models.Account{Name: "bitmexaccount1"},
	}
}

func TestModeResolution(t *testing.T) {
	cases := []struct {
		flags models.Flags
		want  models.Mode
	}{
		{models.Flags{}, models.ModeLive},
		{models.Flags{Backtest: true}, models.ModeBacktest},
		{models.Flags{Paper: true}, models.ModePaper},
		{models.Flags{Paper: true, Backtest: true}, models.ModePaper},
		{models.Flags{Optimize: true}, models.ModeOptimize},
		{models.Flags{Optimize: true, Backtest: true}, models.ModeOptimize},
		{models.Flags{Optimize: true, Paper: true}, models.ModeOptimize},
		{models.Flags{Optimize: true, Paper: true, Backtest: true}, models.ModeOptimize},
	}
	for _, tc := range cases {
		cfg := baseConfig()
		cfg.Flags = tc.flags
		f := newFixture(t, cfg)

		if err := f.runner.Run(context.Background()); err != nil {
			t.Fatalf("%+v: %v", tc.flags, err)
		}

		if tc.want == models.ModeOptimize {
			if len(f.backends.specs) != 0 || len(f.searches) != 1 {
				t.Errorf("%+v: %d backends, %d searches", tc.flags, len(f.backends.specs), len(f.searches))
			}
			continue
		}
		if len(f.backends.specs) != 1 || len(f.searches) != 0 {
			t.Fatalf("%+v: %d backends, %d searches", tc.flags, len(f.backends.specs), len(f.searches))
		}
		if got := f.backends.specs[0].Mode; got != tc.want {
			t.Errorf("%+v: mode %s, want %s", tc.flags, got, tc.want)
		}
		if st := f.runner.Status().State; st != stateOf(tc.want) {
			t.Errorf("%+v: state %s", tc.flags, st)
		}
	}
}

func TestConflictingFlagsWarn(t *testing.T) {
	cfg := baseConfig()
	cfg.Flags = models.Flags{Paper: true, Backtest: true}
	f := newFixture(t, cfg)
	if err := f.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.logs.FilterMessageSnippet("several mode flags").Len() != 1 {
		t.Error("no warning for conflicting flags")
	}
}

func TestUnknownExchangeIsNoop(t *testing.T) {
	cfg := baseConfig()
	cfg.Exchange = "kraken"
	cfg.Flags = models.Flags{Paper: true}
	f := newFixture(t, cfg)

	if err := f.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if len(f.backends.specs) != 0 || len(f.searches) != 0 {
		t.Fatal("unknown exchange built something")
	}
	if f.runner.Status().State != StateStopped {
		t.Errorf("state = %s", f.runner.Status().State)
	}
	if f.logs.FilterMessageSnippet("run aborted").Len() != 1 {
		t.Error("abort not logged")
	}

	if err := f.runner.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.rec.count("save") != 0 || f.rec.count("stop") != 0 {
		t.Errorf("calls after abort = %v", f.rec.list())
	}
}

func TestPaperOnBitmex(t *testing.T) {
	cfg := baseConfig()
	cfg.Flags = models.Flags{Paper: true}
	f := newFixture(t, cfg)

	if err := f.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	spec := f.backends.specs[0]
	if spec.Exchange != models.ExchangeBitmex || spec.Pair != "XBTUSD" || spec.Account.Name != "bitmexaccount1" {
		t.Errorf("spec = %+v", spec)
	}
	want := []string{"lookback", "on_update", "balance", "show_result"}
	if got := f.rec.list(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if f.backends.last.lookback != 100 {
		t.Errorf("lookback = %d, want the strategy's 100", f.backends.last.lookback)
	}
	if f.logs.FilterMessage("Balance : 10000").Len() != 1 {
		t.Error("balance not logged")
	}
	if f.logs.FilterMessage("Strategy : donchian").Len() != 1 {
		t.Error("strategy not logged")
	}
	if !f.n.has("Starting Bot") {
		t.Errorf("notifications = %v", f.n.msgs)
	}
}

func TestLookbackFromConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.Flags = models.Flags{Backtest: true}
	cfg.Lookback = 30
	f := newFixture(t, cfg)
	if err := f.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.backends.last.lookback != 30 {
		t.Errorf("lookback = %d", f.backends.last.lookback)
	}
}

type windowless struct{}

func (windowless) Name() string { return "windowless" }
func (windowless) Lookback() int { return 0 }
func (windowless) OnBar(context.Context, strategy.Bar) {}

func TestLookbackDefaultsWhenStrategyAsksNone(t *testing.T) {
	cfg := baseConfig()
	cfg.Flags = models.Flags{Backtest: true}
	cfg.Strategy = "windowless"
	f := newFixture(t, cfg)
	f.runner.registry = strategy.NewRegistry(strategy.Definition{
		Name: "windowless",
		New:  func(params.Resolved) strategy.Strategy { return windowless{} },
	})
	if err := f.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.backends.last.lookback != strategy.DefaultLookback {
		t.Errorf("lookback = %d, want %d", f.backends.last.lookback, strategy.DefaultLookback)
	}
}

func TestStopOrder(t *testing.T) {
	cfg := baseConfig()
	cfg.Flags = models.Flags{Backtest: true}
	f := newFixture(t, cfg)
	if err := f.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := len(f.rec.list())

	ctx := context.Background()
	if err := f.runner.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.runner.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"save", "close", "stop", "cancel_all"}
	if got := f.rec.list()[before:]; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("shutdown calls = %v, want %v", got, want)
	}
	if f.runner.Status().State != StateStopped {
		t.Errorf("state = %s", f.runner.Status().State)
	}
}

func TestStopWithoutBackend(t *testing.T) {
	f := newFixture(t, baseConfig())
	if err := f.runner.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.rec.list(); len(got) != 1 || got[0] != "close" {
		t.Errorf("calls = %v, want only close", got)
	}
	if err := f.runner.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("Run after Stop = %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	cfg := baseConfig()
	cfg.Flags = models.Flags{Paper: true}
	f := newFixture(t, cfg)
	f.store.attrs = map[string]any{"donchian.last_signal": "long", "runs": float64(3)}

	if err := f.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := f.runner.Session().Get("donchian.last_signal"); v != "long" {
		t.Errorf("restored = %v", v)
	}
	f.runner.Session().Set("runs", float64(4))

	if err := f.runner.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.store.saved["runs"] != float64(4) || f.store.saved["donchian.last_signal"] != "long" {
		t.Errorf("saved = %v", f.store.saved)
	}
}

func TestOptimizeKeepsBest(t *testing.T) {
	cfg := baseConfig()
	cfg.Flags = models.Flags{Optimize: true}
	cfg.Search.Budget = 200
	f := newFixture(t, cfg)

	if err := f.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := f.searches[0]
	if s.cfg.Budget != 200 || s.cfg.Exchange != models.ExchangeBitmex || s.cfg.Timeframe != "1h" {
		t.Errorf("search config = %+v", s.cfg)
	}
	if st := f.runner.Status(); st.Outcome == nil || st.Outcome.ProfitFactor != 1.8 {
		t.Errorf("status = %+v", st)
	}
	if !f.n.has("Best params is") {
		t.Errorf("notifications = %v", f.n.msgs)
	}

	if err := f.runner.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.store.saved["optimize.profit_factor"] != 1.8 {
		t.Errorf("saved = %v", f.store.saved)
	}
	if f.rec.count("stop") != 0 {
		t.Error("optimize has no backend to stop")
	}
}

func TestOptimizeFailure(t *testing.T) {
	cfg := baseConfig()
	cfg.Flags = models.Flags{Optimize: true}
	f := newFixture(t, cfg)
	f.runner.search = func(search.Config, strategy.Definition) Searcher {
		return &fakeSearcher{err: search.ErrEmptySpace}
	}

	if err := f.runner.Run(context.Background()); !errors.Is(err, search.ErrEmptySpace) {
		t.Fatalf("Run = %v", err)
	}
	if err := f.runner.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.rec.count("save") != 0 {
		t.Error("failed search saved the session")
	}
}

func TestFeedLost(t *testing.T) {
	cfg := baseConfig()
	cfg.Exchange = "binance"
	cfg.Account = models.Account{Name: "binanceaccount1", APIKey: "k", APISecret: "s"}
	f := newFixture(t, cfg)
	f.backends.showErr = errors.Wrap(venue.ErrStreamLost, "binance")

	err := f.runner.Run(context.Background())
	if !errors.Is(err, venue.ErrStreamLost) {
		t.Fatalf("Run = %v, want ErrStreamLost", err)
	}
	if f.backends.specs[0].Mode != models.ModeLive {
		t.Errorf("mode = %s", f.backends.specs[0].Mode)
	}
	if !f.n.has("live/binance stopped") {
		t.Errorf("notifications = %v", f.n.msgs)
	}
}

func TestLiveNeedsConfirmation(t *testing.T) {
	cfg := baseConfig()
	cfg.ConfirmLive = true
	f := newFixture(t, cfg)
	f.n.confirm = false

	if err := f.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.backends.specs) != 0 {
		t.Error("backend built without confirmation")
	}
}

func TestUnknownStrategyIsNoop(t *testing.T) {
	cfg := baseConfig()
	cfg.Strategy = "martingale"
	cfg.Flags = models.Flags{Paper: true}
	f := newFixture(t, cfg)

	if err := f.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.backends.specs) != 0 {
		t.Error("backend built for an unknown strategy")
	}
}

func TestStatusString(t *testing.T) {
	st := Status{
		State:    StatePaper,
		Mode:     models.ModePaper,
		Strategy: "donchian",
		Backend:  "paper/bitmex",
		Pair:     "XBTUSD",
	}
	s := st.String()
	for _, want := range []string{"State : paper", "Strategy : donchian", "Backend : paper/bitmex XBTUSD"} {
		if !strings.Contains(s, want) {
			t.Errorf("status %q lacks %q", s, want)
		}
	}
}
