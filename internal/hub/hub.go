// Package hub fans each new observation out to live subscribers. Every
// subscriber owns a bounded queue drained by its own send goroutine; a slow
// consumer loses its oldest entries instead of stalling ingestion or peers.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"roommon/internal/model"
)

// FeedMessage is the live feed wire format.
type FeedMessage struct {
	Type        string  `json:"type"`
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Motion      bool    `json:"motion"`
	SoundLevel  int     `json:"soundLevel"`
	Alert       *string `json:"alert"`
}

func NewFeedMessage(ev model.SensorEvent) FeedMessage {
	msg := FeedMessage{
		Type:        "sensorReading",
		Timestamp:   ev.Reading.Timestamp.UTC().Format(time.RFC3339Nano),
		Temperature: ev.Reading.Temperature,
		Motion:      ev.Reading.Motion,
		SoundLevel:  ev.Reading.SoundLevel,
	}
	if ev.Alert != model.AlertNone {
		tag := ev.Alert.Tag()
		msg.Alert = &tag
	}
	return msg
}

type Subscriber struct {
	ch      chan []byte
	dropped atomic.Int64
}

// C is the subscriber's outbound queue. Closed on Unsubscribe.
func (s *Subscriber) C() <-chan []byte {
	return s.ch
}

func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// push enqueues without ever blocking: when the queue is full the oldest
// entry is evicted first (newest wins).
func (s *Subscriber) push(msg []byte) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
			select {
			case <-s.ch:
				s.dropped.Add(1)
			default:
			}
		}
	}
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
	logger *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan []byte, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Info("subscriber added", "subscribers", count)
	}
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, s)
	count := len(h.subs)
	h.mu.Unlock()
	close(s.ch)
	if h.logger != nil {
		h.logger.Info("subscriber removed", "subscribers", count, "dropped", s.Dropped())
	}
}

// Broadcast pushes one event to every live subscriber. Never blocks the
// caller; delivery is at-most-once, best-effort.
func (h *Hub) Broadcast(ev model.SensorEvent) {
	payload, err := json.Marshal(NewFeedMessage(ev))
	if err != nil {
		if h.logger != nil {
			h.logger.Error("feed message marshal failed", "err", err)
		}
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		s.push(payload)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
