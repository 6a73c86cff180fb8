// Package live runs strategies on streamed bars, either with real orders
// (Live) or against a simulated book (Paper).
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"algo_bot/internal/exchange"
	"algo_bot/internal/exchange/venue"
	"algo_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNotStarted = errors.New("no feed attached")

// stream owns the bar window and the feed goroutine shared by Live and
// Paper.
type stream struct {
	md       venue.MarketData
	pair     string
	log      *zap.Logger
	lookback int

	mu      sync.Mutex
	window  []models.Bar
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	started bool

	stopOnce sync.Once
}

func newStream(md venue.MarketData, pair string, log *zap.Logger) *stream {
	if log == nil {
		log = zap.NewNop()
	}
	return &stream{md: md, pair: pair, log: log, lookback: 100, done: make(chan struct{})}
}

func (s *stream) setLookback(n int) {
	if n > 0 {
		s.lookback = n
	}
}

// run seeds the window with recent closed bars, then hands every streamed
// bar to onBar with the current window. It returns once the feed is up.
func (s *stream) run(ctx context.Context, timeframe string, onBar func(ctx context.Context, bar models.Bar, w models.Series)) error {
	tf := models.TimeframeDuration(timeframe)
	if tf == 0 {
		return errors.Wrapf(venue.ErrTimeframe, "%q", timeframe)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("feed already attached")
	}
	s.started = true
	s.mu.Unlock()

	end := time.Now().UTC().Truncate(tf)
	warm, err := s.md.Klines(ctx, s.pair, timeframe, end.Add(-time.Duration(s.lookback)*tf), end)
	if err != nil {
		return errors.Wrap(err, "warm up window")
	}
	s.window = append(s.window, warm...)
	s.log.Info("feed warmed up",
		zap.String("pair", s.pair),
		zap.String("timeframe", timeframe),
		zap.Int("bars", len(warm)),
	)

	fctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	bars, errs := s.md.StreamKlines(fctx, s.pair, timeframe)
	go func() {
		defer close(s.done)
		defer cancel()
		for {
			select {
			case <-fctx.Done():
				return
			case err, ok := <-errs:
				if ok && err != nil {
					s.fail(err)
					return
				}
				errs = nil
			case bar, ok := <-bars:
				if !ok {
					return
				}
				if n := len(s.window); n > 0 && !bar.Start.After(s.window[n-1].Start) {
					continue
				}
				s.window = append(s.window, bar)
				if len(s.window) > s.lookback {
					s.window = s.window[len(s.window)-s.lookback:]
				}
				if err := s.call(fctx, bar, onBar); err != nil {
					s.fail(err)
					return
				}
			}
		}
	}()
	return nil
}

func (s *stream) call(ctx context.Context, bar models.Bar, onBar func(context.Context, models.Bar, models.Series)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("strategy panicked: %v", r)
		}
	}()
	onBar(ctx, bar, models.SeriesFromBars(s.window, s.lookback))
	return nil
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.log.Error("feed stopped", zap.String("pair", s.pair), zap.Error(err))
}

// wait blocks until the feed ends or ctx is done.
func (s *stream) wait(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

func name(kind string, ex models.Exchange) string {
	return fmt.Sprintf("%s/%s", kind, ex)
}

var _ exchange.Backend = (*Paper)(nil)
var _ exchange.Backend = (*Live)(nil)
