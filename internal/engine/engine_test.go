package engine

import (
	"testing"
	"time"

	"roommon/internal/config"
	"roommon/internal/model"
)

func testMonitor() config.MonitorConfig {
	return config.MonitorConfig{
		SoundThreshold:    150,
		InactivitySeconds: 300,
		FallAlertCooldown: 10 * time.Second,
	}
}

func reading(ts time.Time, motion bool, sound int) model.SensorReading {
	return model.SensorReading{
		Timestamp:   ts,
		Temperature: 22.5,
		Motion:      motion,
		SoundLevel:  sound,
	}
}

func TestFallDetected(t *testing.T) {
	mc := testMonitor()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var st State

	alert, st := Evaluate(reading(base, false, 3), mc, st)
	if alert != model.AlertNone {
		t.Fatalf("quiet reading: got %v", alert)
	}
	alert, _ = Evaluate(reading(base.Add(5*time.Second), true, 200), mc, st)
	if alert != model.AlertFall {
		t.Fatalf("expected fall, got %v", alert)
	}
}

func TestNoFallWithoutMotion(t *testing.T) {
	mc := testMonitor()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Loud sound alone could be external noise.
	alert, _ := Evaluate(reading(base, false, 300), mc, State{})
	if alert != model.AlertNone {
		t.Fatalf("got %v", alert)
	}
}

func TestNoFallAtExactThreshold(t *testing.T) {
	mc := testMonitor()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	alert, _ := Evaluate(reading(base, true, 150), mc, State{})
	if alert != model.AlertNone {
		t.Fatalf("sound at threshold must not alert, got %v", alert)
	}
	alert, _ = Evaluate(reading(base, true, 151), mc, State{})
	if alert != model.AlertFall {
		t.Fatalf("sound above threshold must alert, got %v", alert)
	}
}

func TestFallCooldownSuppressesSecondAlert(t *testing.T) {
	mc := testMonitor()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var st State

	alert, st := Evaluate(reading(base, true, 200), mc, st)
	if alert != model.AlertFall {
		t.Fatalf("first fall: got %v", alert)
	}
	alert, st = Evaluate(reading(base.Add(5*time.Second), true, 220), mc, st)
	if alert != model.AlertNone {
		t.Fatalf("fall inside cooldown must be suppressed, got %v", alert)
	}
	alert, _ = Evaluate(reading(base.Add(10*time.Second), true, 220), mc, st)
	if alert != model.AlertFall {
		t.Fatalf("fall after cooldown: got %v", alert)
	}
}

func TestInactivityFiresOnEveryQualifyingReading(t *testing.T) {
	mc := testMonitor()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var st State

	alert, st := Evaluate(reading(base, true, 20), mc, st)
	if alert != model.AlertNone {
		t.Fatalf("motion reading: got %v", alert)
	}

	// Six still readings 60s apart; elapsed reaches 300s on the fifth.
	var alerts int
	for i := 1; i <= 6; i++ {
		var a model.AlertType
		a, st = Evaluate(reading(base.Add(time.Duration(i)*time.Minute), false, 20), mc, st)
		if i < 5 && a != model.AlertNone {
			t.Fatalf("reading %d: premature %v", i, a)
		}
		if i >= 5 {
			if a != model.AlertInactivity {
				t.Fatalf("reading %d: expected inactivity, got %v", i, a)
			}
			alerts++
		}
	}
	if alerts != 2 {
		t.Fatalf("expected inactivity on every qualifying reading, got %d", alerts)
	}

	// Motion clears the condition immediately.
	alert, st = Evaluate(reading(base.Add(7*time.Minute), true, 20), mc, st)
	if alert != model.AlertNone {
		t.Fatalf("motion resumed: got %v", alert)
	}
	if st.InactivityActive {
		t.Fatal("inactivity flag must clear on motion")
	}
	alert, _ = Evaluate(reading(base.Add(8*time.Minute), false, 20), mc, st)
	if alert != model.AlertNone {
		t.Fatalf("fresh stillness: got %v", alert)
	}
}

func TestFallTakesPrecedenceOverInactivity(t *testing.T) {
	mc := testMonitor()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var st State

	_, st = Evaluate(reading(base, true, 20), mc, st)
	_, st = Evaluate(reading(base.Add(10*time.Minute), false, 20), mc, st)

	// Motion resumes with a loud bang after a long stillness.
	alert, _ := Evaluate(reading(base.Add(11*time.Minute), true, 300), mc, st)
	if alert != model.AlertFall {
		t.Fatalf("expected fall to win, got %v", alert)
	}
}

func TestInactivityBaselineSeededFromFirstReading(t *testing.T) {
	mc := testMonitor()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var st State

	// No motion ever observed: the first reading sets the baseline, so the
	// alert fires once the stream itself spans the threshold.
	alert, st := Evaluate(reading(base, false, 10), mc, st)
	if alert != model.AlertNone {
		t.Fatalf("first reading: got %v", alert)
	}
	alert, _ = Evaluate(reading(base.Add(300*time.Second), false, 10), mc, st)
	if alert != model.AlertInactivity {
		t.Fatalf("expected inactivity after full window, got %v", alert)
	}
}

func TestSettingsChangeAppliesToNextReading(t *testing.T) {
	cfg := config.DefaultConfig()
	mgr := config.NewStaticManager(cfg)
	eng := NewEngine(mgr, nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ev := eng.Process(reading(base, true, 180))
	if ev.Alert != model.AlertFall {
		t.Fatalf("sound 180 over default threshold 150: got %v", ev.Alert)
	}

	if _, err := mgr.UpdateMonitor(config.MonitorConfig{SoundThreshold: 250, InactivitySeconds: 300}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	ev = eng.Process(reading(base.Add(30*time.Second), true, 180))
	if ev.Alert != model.AlertNone {
		t.Fatalf("sound 180 under raised threshold 250: got %v", ev.Alert)
	}
}

func TestEngineCountsAlerts(t *testing.T) {
	mgr := config.NewStaticManager(config.DefaultConfig())
	eng := NewEngine(mgr, nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	eng.Process(reading(base, true, 200))
	eng.Process(reading(base.Add(20*time.Second), true, 200))
	if got := eng.FallAlerts(); got != 2 {
		t.Fatalf("fall alerts: got %d, want 2", got)
	}
}
