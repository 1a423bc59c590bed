package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roommon/internal/config"
	"roommon/internal/model"
)

// flakyStore fails the first failures appends, then accepts everything.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	appended []model.SensorEvent
}

func (f *flakyStore) Init(ctx context.Context) error { return nil }
func (f *flakyStore) Close() error                   { return nil }

func (f *flakyStore) Append(ctx context.Context, ev model.SensorEvent) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("database is locked")
	}
	f.appended = append(f.appended, ev)
	return int64(len(f.appended)), nil
}

func (f *flakyStore) events() []model.SensorEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.SensorEvent, len(f.appended))
	copy(out, f.appended)
	return out
}

func (f *flakyStore) Recent(ctx context.Context, limit int) ([]model.SensorEvent, error) {
	return nil, nil
}

func (f *flakyStore) QueryRange(ctx context.Context, start, end time.Time, limit, offset int) ([]model.SensorEvent, error) {
	return nil, nil
}

func (f *flakyStore) Latest(ctx context.Context) (*model.SensorEvent, error) {
	return nil, ErrNoObservations
}

func (f *flakyStore) ByID(ctx context.Context, id int64) (*model.SensorEvent, error) {
	return nil, ErrNoObservations
}

func (f *flakyStore) Summary(ctx context.Context) (model.Summary, error) {
	return model.Summary{}, nil
}

func (f *flakyStore) ActivityAnalysis(ctx context.Context, start, end time.Time) (model.ActivityAnalysis, error) {
	return model.ActivityAnalysis{}, nil
}

func (f *flakyStore) HourlyActivity(ctx context.Context, day time.Time) ([]model.HourlyActivity, error) {
	return nil, nil
}

func writerEvent(sec int) model.SensorEvent {
	return model.SensorEvent{
		Reading: model.SensorReading{
			Timestamp:   time.Date(2026, 3, 1, 8, 0, sec, 0, time.UTC),
			Temperature: 21.0,
			SoundLevel:  30,
		},
		Alert: model.AlertNone,
	}
}

func writerConfig() config.StorageConfig {
	return config.StorageConfig{
		QueueSize:    8,
		WriteRetries: 2,
		RetryBackoff: time.Millisecond,
	}
}

func TestWriterRetriesTransientFailures(t *testing.T) {
	store := &flakyStore{failures: 2}
	w := NewWriter(store, writerConfig(), nil)
	w.Start()
	w.Enqueue(writerEvent(0))
	w.Enqueue(writerEvent(1))
	w.CloseAndDrain()

	events := store.events()
	if len(events) != 2 {
		t.Fatalf("appended: %d", len(events))
	}
	if !events[0].Reading.Timestamp.Before(events[1].Reading.Timestamp) {
		t.Fatal("append order lost across retries")
	}
	if w.Dropped() != 0 {
		t.Fatalf("dropped: %d", w.Dropped())
	}
}

func TestWriterDropsAfterExhaustedRetries(t *testing.T) {
	// More failures than one event's retry budget: the first event is
	// dropped, the second lands once the store recovers.
	store := &flakyStore{failures: 3}
	w := NewWriter(store, writerConfig(), nil)
	w.Start()
	w.Enqueue(writerEvent(0))
	w.Enqueue(writerEvent(1))
	w.CloseAndDrain()

	events := store.events()
	if len(events) != 1 {
		t.Fatalf("appended: %d", len(events))
	}
	if events[0].Reading.Timestamp.Second() != 1 {
		t.Fatalf("wrong survivor: %v", events[0].Reading.Timestamp)
	}
	if w.Dropped() != 1 {
		t.Fatalf("dropped: %d", w.Dropped())
	}
}

func TestWriterEnqueueNeverBlocks(t *testing.T) {
	store := &flakyStore{}
	w := NewWriter(store, config.StorageConfig{
		QueueSize:    2,
		WriteRetries: 1,
		RetryBackoff: time.Millisecond,
	}, nil)
	// Writer not started: the queue fills and further events drop.
	if !w.Enqueue(writerEvent(0)) || !w.Enqueue(writerEvent(1)) {
		t.Fatal("queue should accept up to its capacity")
	}
	if w.Enqueue(writerEvent(2)) {
		t.Fatal("full queue must not block or accept")
	}
	if w.Dropped() != 1 {
		t.Fatalf("dropped: %d", w.Dropped())
	}
	w.Start()
	w.CloseAndDrain()
	if len(store.events()) != 2 {
		t.Fatalf("drained: %d", len(store.events()))
	}
}
