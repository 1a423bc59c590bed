package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"roommon/internal/model"
)

// ErrSourceUnavailable is reported after a live source exhausts its
// reconnect budget. The caller decides whether to fail over to the mock
// source.
var ErrSourceUnavailable = errors.New("reading source unavailable")

// Source produces raw sensor lines. Implementations are not restartable:
// once ReadLine returns ErrSourceUnavailable or ctx is cancelled the source
// is done.
type Source interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// Stats counts per-reading outcomes for observability.
type Stats struct {
	parsed      atomic.Int64
	parseErrors atomic.Int64
}

func (s *Stats) Parsed() int64      { return s.parsed.Load() }
func (s *Stats) ParseErrors() int64 { return s.parseErrors.Load() }

// Run is the producer loop: it drains the source, parses each line and
// feeds the bounded ordered pipeline queue. Malformed lines are skipped and
// counted, never fatal. Returns nil on cancellation, ErrSourceUnavailable
// when the source gives up.
func Run(ctx context.Context, src Source, out chan<- model.SensorReading, stats *Stats, logger *slog.Logger) error {
	for {
		line, err := src.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrSourceUnavailable) {
				return err
			}
			if logger != nil {
				logger.Warn("source read error", "err", err)
			}
			continue
		}
		if line == "" {
			continue
		}
		reading, err := ParseLine(line, time.Now().UTC())
		if err != nil {
			if stats != nil {
				stats.parseErrors.Add(1)
			}
			if logger != nil {
				logger.Warn("skipping malformed line", "line", line, "err", err)
			}
			continue
		}
		if stats != nil {
			stats.parsed.Add(1)
		}
		select {
		case out <- reading:
		case <-ctx.Done():
			return nil
		}
	}
}

// BackoffSleep waits for d unless the context ends first.
func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
