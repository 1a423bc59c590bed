package ingest

import (
	"context"
	"fmt"
	"math/rand"

	"roommon/internal/config"
)

// MockSource synthesizes readings without hardware: temperature drifts
// around a baseline, motion toggles randomly, and sound spikes are injected
// periodically to exercise the fall-detection path. Deterministic for a
// given seed.
type MockSource struct {
	cfg  config.MockConfig
	rng  *rand.Rand
	temp float64
}

func NewMockSource(cfg config.MockConfig) *MockSource {
	return &MockSource{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		temp: 22.0,
	}
}

func (m *MockSource) ReadLine(ctx context.Context) (string, error) {
	if !BackoffSleep(ctx, m.cfg.Interval) {
		return "", ctx.Err()
	}
	return m.NextLine(), nil
}

// NextLine produces the next raw sample without waiting for the tick.
// Exposed so tests can drive the generator directly.
func (m *MockSource) NextLine() string {
	m.temp += (m.rng.Float64() - 0.5) * 0.4
	if m.temp < 18.0 {
		m.temp = 18.0
	}
	if m.temp > 28.0 {
		m.temp = 28.0
	}

	motion := m.rng.Float64() < 0.3

	var sound int
	if m.rng.Float64() < 0.1 {
		// Spike event. Pair it with motion so it can trip the fall rule.
		sound = 150 + m.rng.Intn(250)
		motion = true
	} else {
		sound = 10 + m.rng.Intn(40)
	}

	motionFlag := 0
	if motion {
		motionFlag = 1
	}
	return fmt.Sprintf("%.1f,%d,%d", m.temp, motionFlag, sound)
}

func (m *MockSource) Close() error {
	return nil
}
