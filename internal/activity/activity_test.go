package activity

import (
	"testing"
	"time"

	"roommon/internal/model"
)

func TestScore(t *testing.T) {
	cases := []struct {
		motion, total int64
		want          float64
	}{
		{0, 100, 0},
		{100, 100, 100},
		{50, 100, 50},
		{3, 10, 30},
		{0, 0, 0},
	}
	for _, tc := range cases {
		if got := Score(tc.motion, tc.total); got != tc.want {
			t.Fatalf("Score(%d,%d) = %v, want %v", tc.motion, tc.total, got, tc.want)
		}
	}
}

func TestLevelBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0, "deep_sleep"},
		{19.99, "deep_sleep"},
		{20, "light_sleep"},
		{30, "light_sleep"},
		{39.99, "light_sleep"},
		{40, "restless"},
		{59.99, "restless"},
		{60, "active"},
		{100, "active"},
	}
	for _, tc := range cases {
		if got := Level(tc.score); got != tc.want {
			t.Fatalf("Level(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestRestQuality(t *testing.T) {
	if got := RestQuality(10); got != "Excellent" {
		t.Fatalf("RestQuality(10) = %s", got)
	}
	if got := RestQuality(75); got != "Poor" {
		t.Fatalf("RestQuality(75) = %s", got)
	}
}

func still(ts time.Time) model.SensorReading {
	return model.SensorReading{Timestamp: ts, Motion: false}
}

func moving(ts time.Time) model.SensorReading {
	return model.SensorReading{Timestamp: ts, Motion: true}
}

func TestLongestStill(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := []model.SensorReading{
		moving(base),
		still(base.Add(1 * time.Minute)),
		still(base.Add(5 * time.Minute)),
		moving(base.Add(8 * time.Minute)), // 7 min still run
		still(base.Add(9 * time.Minute)),
		moving(base.Add(12 * time.Minute)), // 3 min still run
	}
	if got := LongestStill(readings, base.Add(12*time.Minute)); got != 7 {
		t.Fatalf("longest still: got %d, want 7", got)
	}
}

func TestLongestStillOpenRunExtendsToWindowEnd(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := []model.SensorReading{
		moving(base),
		still(base.Add(2 * time.Minute)),
	}
	if got := LongestStill(readings, base.Add(30*time.Minute)); got != 28 {
		t.Fatalf("open run: got %d, want 28", got)
	}
}

func TestLongestStillEmpty(t *testing.T) {
	if got := LongestStill(nil, time.Now()); got != 0 {
		t.Fatalf("empty window: got %d", got)
	}
}
