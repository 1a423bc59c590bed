// Package pipeline connects the reading source to the evaluator, store and
// live feed. One producer goroutine parses raw lines into a bounded ordered
// queue; one consumer goroutine drains it strictly FIFO, which is what
// gives the evaluator its single-threaded guarantee.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"roommon/internal/engine"
	"roommon/internal/hub"
	"roommon/internal/ingest"
	"roommon/internal/model"
	"roommon/internal/storage"
)

type Pipeline struct {
	source   ingest.Source
	fallback ingest.Source
	engine   *engine.Engine
	writer   *storage.Writer
	feed     *hub.Hub
	stats    *ingest.Stats
	logger   *slog.Logger
	buffer   int
}

func New(source, fallback ingest.Source, eng *engine.Engine, writer *storage.Writer, feed *hub.Hub, buffer int, logger *slog.Logger) *Pipeline {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Pipeline{
		source:   source,
		fallback: fallback,
		engine:   eng,
		writer:   writer,
		feed:     feed,
		stats:    &ingest.Stats{},
		logger:   logger,
		buffer:   buffer,
	}
}

func (p *Pipeline) Stats() *ingest.Stats {
	return p.stats
}

// Run blocks until the source is exhausted or ctx is cancelled. On a
// controlled stop every queued reading is evaluated and handed to the store
// writer before Run returns; the writer itself is drained last.
func (p *Pipeline) Run(ctx context.Context) error {
	readings := make(chan model.SensorReading, p.buffer)
	errCh := make(chan error, 1)

	if p.writer != nil {
		p.writer.Start()
	}

	go func() {
		defer close(readings)
		err := ingest.Run(ctx, p.source, readings, p.stats, p.logger)
		if errors.Is(err, ingest.ErrSourceUnavailable) && p.fallback != nil {
			if p.logger != nil {
				p.logger.Error("live source unavailable, failing over to mock source")
			}
			err = ingest.Run(ctx, p.fallback, readings, p.stats, p.logger)
		}
		errCh <- err
	}()

	// Consumer: evaluate, then hand off to persistence and fan-out. The
	// writer queue preserves append order; the broadcast never blocks.
	for reading := range readings {
		ev := p.engine.Process(reading)
		if p.writer != nil {
			p.writer.Enqueue(ev)
		}
		if p.feed != nil {
			p.feed.Broadcast(ev)
		}
	}

	if p.writer != nil {
		p.writer.CloseAndDrain()
	}
	return <-errCh
}
