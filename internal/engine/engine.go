package engine

import (
	"log/slog"
	"sync/atomic"
	"time"

	"roommon/internal/config"
	"roommon/internal/model"
)

// State is the evaluator's working memory for one monitored room. It is a
// small explicit value threaded through each Evaluate call; the engine is
// the only writer, which keeps alert decisions deterministic and
// order-preserving without locking.
type State struct {
	LastMotionAt     *time.Time
	InactivityActive bool
	LastFallAlertAt  *time.Time
}

// Evaluate applies the clinical rules to one reading in arrival order.
//
// Precedence: fall detection first (with cooldown), then inactivity.
// Inactivity fires on every qualifying reading while the condition holds;
// fall alerts are suppressed inside the cooldown window. The asymmetry is
// deliberate: downstream consumers treat inactivity as an ongoing alert and
// falls as discrete events.
func Evaluate(r model.SensorReading, mc config.MonitorConfig, st State) (model.AlertType, State) {
	// Before any motion has ever been seen the stream start is the
	// inactivity baseline.
	if st.LastMotionAt == nil {
		ts := r.Timestamp
		st.LastMotionAt = &ts
	}

	if r.Motion {
		ts := r.Timestamp
		st.LastMotionAt = &ts
		st.InactivityActive = false
	}

	if r.Motion && r.SoundLevel > mc.SoundThreshold {
		cooldown := mc.FallAlertCooldown
		if st.LastFallAlertAt == nil || r.Timestamp.Sub(*st.LastFallAlertAt) >= cooldown {
			ts := r.Timestamp
			st.LastFallAlertAt = &ts
			return model.AlertFall, st
		}
		return model.AlertNone, st
	}

	if !r.Motion {
		elapsed := r.Timestamp.Sub(*st.LastMotionAt)
		if elapsed >= time.Duration(mc.InactivitySeconds)*time.Second {
			st.InactivityActive = true
			return model.AlertInactivity, st
		}
	}

	return model.AlertNone, st
}

// Engine wraps Evaluate with the live settings snapshot and alert logging.
// It must only be driven from the single pipeline consumer.
type Engine struct {
	cfg    *config.Manager
	logger *slog.Logger
	state  State

	fallAlerts       atomic.Int64
	inactivityAlerts atomic.Int64
}

func NewEngine(cfg *config.Manager, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// Process evaluates one reading against the current settings snapshot.
// Settings changed through the config manager apply from the next call.
func (e *Engine) Process(r model.SensorReading) model.SensorEvent {
	mc := e.cfg.Get().Monitor
	alert, next := Evaluate(r, mc, e.state)
	e.state = next

	switch alert {
	case model.AlertFall:
		e.fallAlerts.Add(1)
		if e.logger != nil {
			e.logger.Warn("fall alert",
				"sound_level", r.SoundLevel,
				"sound_threshold", mc.SoundThreshold,
				"timestamp", r.Timestamp,
			)
		}
	case model.AlertInactivity:
		e.inactivityAlerts.Add(1)
		if e.logger != nil {
			e.logger.Warn("inactivity alert",
				"last_motion_at", e.state.LastMotionAt,
				"inactivity_seconds", mc.InactivitySeconds,
				"timestamp", r.Timestamp,
			)
		}
	}

	return model.SensorEvent{Reading: r, Alert: alert}
}

func (e *Engine) FallAlerts() int64       { return e.fallAlerts.Load() }
func (e *Engine) InactivityAlerts() int64 { return e.inactivityAlerts.Load() }

// Reset drops the evaluator state. Alert continuity across a reset is lost
// and self-heals within one inactivity window.
func (e *Engine) Reset() {
	e.state = State{}
}
