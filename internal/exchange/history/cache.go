// Package history serves historical bars for backtests, caching what the
// venue returned in one parquet file per exchange, pair and timeframe:
//
//	<dir>/<exchange>/<PAIR>/<timeframe>.parquet
package history

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"algo_bot/internal/models"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Source is where missing bars come from; venue clients satisfy it.
type Source interface {
	Klines(ctx context.Context, pair, timeframe string, start, end time.Time) ([]models.Bar, error)
}

// BarRecord is the on-disk schema.
type BarRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // bar open, Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

type Cache struct {
	dir string
	ex  models.Exchange
	src Source
	log *zap.Logger
}

// NewCache with an empty dir reads straight from src.
func NewCache(dir string, ex models.Exchange, src Source, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{dir: dir, ex: ex, src: src, log: log}
}

// Bars returns the bars opening in [start, end), fetching only the ranges
// the cache file does not cover yet.
func (c *Cache) Bars(ctx context.Context, pair, timeframe string, start, end time.Time) ([]models.Bar, error) {
	tf := models.TimeframeDuration(timeframe)
	if tf == 0 {
		return nil, errors.Errorf("unknown timeframe %q", timeframe)
	}
	if !start.Before(end) {
		return nil, errors.Errorf("empty range %s..%s", start, end)
	}
	if c.dir == "" {
		return c.src.Klines(ctx, pair, timeframe, start, end)
	}

	path := c.path(pair, timeframe)
	cached, err := readBars(path)
	if err != nil {
		return nil, err
	}

	var fetched []models.Bar
	if len(cached) == 0 {
		if fetched, err = c.src.Klines(ctx, pair, timeframe, start, end); err != nil {
			return nil, err
		}
	} else {
		first, last := cached[0].Start, cached[len(cached)-1].Start.Add(tf)
		if start.Before(first) {
			head, err := c.src.Klines(ctx, pair, timeframe, start, first)
			if err != nil {
				return nil, err
			}
			fetched = append(fetched, head...)
		}
		if end.After(last) {
			tail, err := c.src.Klines(ctx, pair, timeframe, last, end)
			if err != nil {
				return nil, err
			}
			fetched = append(fetched, tail...)
		}
	}

	all := cached
	if len(fetched) > 0 {
		all = merge(cached, fetched)
		if err := writeBars(path, all); err != nil {
			return nil, err
		}
		c.log.Info("history cache updated",
			zap.String("file", path),
			zap.Int("fetched", len(fetched)),
			zap.Int("total", len(all)),
		)
	}

	out := make([]models.Bar, 0, len(all))
	for _, b := range all {
		if !b.Start.Before(start) && b.Start.Before(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (c *Cache) path(pair, timeframe string) string {
	return filepath.Join(c.dir, string(c.ex), strings.ToUpper(pair), timeframe+".parquet")
}

func readBars(path string) ([]models.Bar, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	bars := make([]models.Bar, len(rows))
	for i, r := range rows {
		bars[i] = models.Bar{
			Start:  time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Start.Before(bars[j].Start) })
	return bars, nil
}

func writeBars(path string, bars []models.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	rows := make([]BarRecord, len(bars))
	for i, b := range bars {
		rows[i] = BarRecord{
			Timestamp: b.Start.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return errors.Wrapf(parquet.WriteFile(path, rows), "write %s", path)
}

// merge dedups by open time, preferring incoming bars.
func merge(existing, incoming []models.Bar) []models.Bar {
	seen := make(map[int64]models.Bar, len(existing)+len(incoming))
	for _, b := range existing {
		seen[b.Start.UnixMilli()] = b
	}
	for _, b := range incoming {
		seen[b.Start.UnixMilli()] = b
	}
	out := make([]models.Bar, 0, len(seen))
	for _, b := range seen {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
