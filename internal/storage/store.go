package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"roommon/internal/activity"
	"roommon/internal/config"
	"roommon/internal/model"
)

// ErrNoObservations is returned by Latest and ByID when nothing matches.
var ErrNoObservations = errors.New("no observations recorded")

// Store is the append-only persistence layer for sensor events. QueryRange
// returns events ascending by timestamp; Recent returns the newest first.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Append(ctx context.Context, ev model.SensorEvent) (int64, error)
	Recent(ctx context.Context, limit int) ([]model.SensorEvent, error)
	QueryRange(ctx context.Context, start, end time.Time, limit, offset int) ([]model.SensorEvent, error)
	Latest(ctx context.Context) (*model.SensorEvent, error)
	ByID(ctx context.Context, id int64) (*model.SensorEvent, error)
	Summary(ctx context.Context) (model.Summary, error)
	ActivityAnalysis(ctx context.Context, start, end time.Time) (model.ActivityAnalysis, error)
	HourlyActivity(ctx context.Context, day time.Time) ([]model.HourlyActivity, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// analyzeEvents computes the window aggregates in Go so both drivers share
// one implementation of the classification rules.
func analyzeEvents(events []model.SensorEvent, start, end time.Time) model.ActivityAnalysis {
	var (
		motionCount int64
		falls       int64
		sumTemp     float64
		sumSound    float64
		maxSound    int
	)
	readings := make([]model.SensorReading, 0, len(events))
	for _, ev := range events {
		readings = append(readings, ev.Reading)
		if ev.Reading.Motion {
			motionCount++
		}
		if ev.Alert == model.AlertFall {
			falls++
		}
		sumTemp += ev.Reading.Temperature
		sumSound += float64(ev.Reading.SoundLevel)
		if ev.Reading.SoundLevel > maxSound {
			maxSound = ev.Reading.SoundLevel
		}
	}
	total := int64(len(events))
	score := activity.Score(motionCount, total)
	var avgTemp, avgSound float64
	if total > 0 {
		avgTemp = sumTemp / float64(total)
		avgSound = sumSound / float64(total)
	}
	return model.ActivityAnalysis{
		PeriodStart:            start.UTC().Format(time.RFC3339),
		PeriodEnd:              end.UTC().Format(time.RFC3339),
		TotalReadings:          total,
		MotionReadings:         motionCount,
		ActivityScore:          activity.Round2(score),
		ActivityLevel:          activity.Level(score),
		AvgTemperature:         activity.Round2(avgTemp),
		AvgSoundLevel:          activity.Round2(avgSound),
		MaxSoundLevel:          maxSound,
		FallAlerts:             falls,
		LongestStillPeriodMins: activity.LongestStill(readings, end),
	}
}

// hourlyFromEvents buckets one day of events by hour. events must be
// ordered ascending.
func hourlyFromEvents(events []model.SensorEvent) []model.HourlyActivity {
	type bucket struct {
		total    int64
		motion   int64
		sumSound float64
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0, 24)
	for _, ev := range events {
		hour := ev.Reading.Timestamp.UTC().Format("15:00")
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{}
			buckets[hour] = b
			order = append(order, hour)
		}
		b.total++
		if ev.Reading.Motion {
			b.motion++
		}
		b.sumSound += float64(ev.Reading.SoundLevel)
	}
	out := make([]model.HourlyActivity, 0, len(order))
	for _, hour := range order {
		b := buckets[hour]
		score := activity.Score(b.motion, b.total)
		out = append(out, model.HourlyActivity{
			Hour:          hour,
			ActivityScore: activity.Round2(score),
			Readings:      b.total,
			AvgSoundLevel: activity.Round2(b.sumSound / float64(b.total)),
		})
	}
	return out
}
