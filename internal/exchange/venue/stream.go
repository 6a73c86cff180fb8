package venue

import (
	"context"
	"time"

	"algo_bot/internal/models"
	"algo_bot/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// ErrStreamLost is sent on the error channel once a stream has used up its
// reconnect attempts.
var ErrStreamLost = errors.New("kline stream lost")

type wsSpec struct {
	name      string
	url       string
	subscribe any
	ping      any
	pingEvery time.Duration
	// parse returns the closed bars a frame carries, if any.
	parse func(msg []byte) ([]models.Bar, error)
}

// streamWS keeps one websocket alive and forwards closed bars. Consecutive
// connection failures (dial, subscribe or a dropped read) beyond maxRetries
// end the stream with ErrStreamLost; a successful read resets the counter.
func streamWS(ctx context.Context, dialer *websocket.Dialer, spec wsSpec, maxRetries int) (<-chan models.Bar, <-chan error) {
	out := make(chan models.Bar)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		retry := 0
		// retryAfter counts a failure and backs off; false ends the stream.
		retryAfter := func(stage string, err error) bool {
			retry++
			logger.Warn("[WS] %s %s error (%d/%d): %v", spec.name, stage, retry, maxRetries, err)
			if retry > maxRetries {
				errs <- errors.Wrapf(ErrStreamLost, "%s: %v", spec.name, err)
				return false
			}
			return sleepCtx(ctx, time.Duration(300*retry)*time.Millisecond)
		}

		for {
			if ctx.Err() != nil {
				return
			}
			logger.Info("[WS] %s connect %s", spec.name, spec.url)
			conn, _, err := dialer.DialContext(ctx, spec.url, nil)
			if err != nil {
				if !retryAfter("dial", err) {
					return
				}
				continue
			}

			if spec.subscribe != nil {
				if err := conn.WriteJSON(spec.subscribe); err != nil {
					_ = conn.Close()
					if !retryAfter("subscribe", err) {
						return
					}
					continue
				}
			}

			stopPing := make(chan struct{})
			if spec.ping != nil && spec.pingEvery > 0 {
				go func() {
					t := time.NewTicker(spec.pingEvery)
					defer t.Stop()
					for {
						select {
						case <-stopPing:
							return
						case <-ctx.Done():
							return
						case <-t.C:
							_ = conn.WriteJSON(spec.ping)
						}
					}
				}()
			}
			// unblock ReadMessage on cancel
			go func() {
				select {
				case <-ctx.Done():
					_ = conn.Close()
				case <-stopPing:
				}
			}()

			err = readLoop(ctx, conn, spec, out, &retry)
			close(stopPing)
			_ = conn.Close()
			if err == nil || ctx.Err() != nil {
				return
			}
			if !retryAfter("read", err) {
				return
			}
		}
	}()
	return out, errs
}

// readLoop forwards bars until the connection drops, returning the read
// error, or until ctx ends, returning nil.
func readLoop(ctx context.Context, conn *websocket.Conn, spec wsSpec, out chan<- models.Bar, retry *int) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		*retry = 0

		bars, err := spec.parse(msg)
		if err != nil {
			continue
		}
		for _, b := range bars {
			select {
			case out <- b:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// pollKlines emulates a stream for venues without a kline channel: every
// poll it fetches the recent window and forwards bars that have closed.
func pollKlines(
	ctx context.Context,
	name string,
	tf time.Duration,
	every time.Duration,
	maxRetries int,
	fetch func(ctx context.Context, from, to time.Time) ([]models.Bar, error),
) (<-chan models.Bar, <-chan error) {
	out := make(chan models.Bar)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		var last time.Time
		failures := 0
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			now := time.Now().UTC()
			bars, err := fetch(ctx, now.Add(-3*tf), now)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				failures++
				logger.Warn("[POLL] %s error (%d/%d): %v", name, failures, maxRetries, err)
				if failures > maxRetries {
					errs <- errors.Wrapf(ErrStreamLost, "%s: %v", name, err)
					return
				}
			default:
				failures = 0
				for _, b := range bars {
					if b.Start.Add(tf).After(now) || !b.Start.After(last) {
						continue
					}
					last = b.Start
					select {
					case out <- b:
					case <-ctx.Done():
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return out, errs
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
