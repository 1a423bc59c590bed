package storage

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"roommon/internal/config"
	"roommon/internal/model"
)

// Writer serializes appends through one goroutine so persisted events never
// reorder, while keeping store latency off the distribution path. Each
// append is retried a bounded number of times with backoff; an exhausted
// append drops the event from persistence with a warning. Live subscribers
// already received it.
type Writer struct {
	store   Store
	in      chan model.SensorEvent
	retries int
	backoff time.Duration
	logger  *slog.Logger
	dropped atomic.Int64
	done    chan struct{}
}

func NewWriter(store Store, cfg config.StorageConfig, logger *slog.Logger) *Writer {
	return &Writer{
		store:   store,
		in:      make(chan model.SensorEvent, cfg.QueueSize),
		retries: cfg.WriteRetries,
		backoff: cfg.RetryBackoff,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (w *Writer) Start() {
	go func() {
		defer close(w.done)
		for ev := range w.in {
			w.appendWithRetry(ev)
		}
	}()
}

// Enqueue hands an event to the writer without blocking the pipeline. When
// the queue is full the event is dropped from persistence only.
func (w *Writer) Enqueue(ev model.SensorEvent) bool {
	select {
	case w.in <- ev:
		return true
	default:
		w.dropped.Add(1)
		if w.logger != nil {
			w.logger.Warn("store queue full, dropping from persistence", "timestamp", ev.Reading.Timestamp)
		}
		return false
	}
}

func (w *Writer) appendWithRetry(ev model.SensorEvent) {
	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(w.backoff * time.Duration(attempt))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := w.store.Append(ctx, ev)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
	}
	w.dropped.Add(1)
	if w.logger != nil {
		w.logger.Warn("store append failed, dropping from persistence",
			"timestamp", ev.Reading.Timestamp,
			"attempts", w.retries+1,
			"err", lastErr,
		)
	}
}

func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// CloseAndDrain stops intake and waits until queued appends have been
// written. Part of the graceful shutdown path.
func (w *Writer) CloseAndDrain() {
	close(w.in)
	<-w.done
}
