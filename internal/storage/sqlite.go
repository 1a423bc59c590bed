package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"roommon/internal/model"
)

type sqliteStore struct {
	baseStore
}

// Timestamps are stored as fixed-width text: trailing fractional zeros are
// kept so lexicographic ORDER BY and range comparisons match time order for
// sub-second readings.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:roommon.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Appends come from a single writer goroutine; one connection avoids
	// sqlite lock contention with readers.
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sensor_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			temperature REAL NOT NULL,
			motion INTEGER NOT NULL,
			sound_level INTEGER NOT NULL,
			alert_type TEXT NOT NULL DEFAULT 'none'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sensor_ts ON sensor_data(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) Append(ctx context.Context, ev model.SensorEvent) (int64, error) {
	motion := 0
	if ev.Reading.Motion {
		motion = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_data (ts, temperature, motion, sound_level, alert_type)
		VALUES (?, ?, ?, ?, ?)`,
		ev.Reading.Timestamp.UTC().Format(sqliteTimeLayout),
		ev.Reading.Temperature,
		motion,
		ev.Reading.SoundLevel,
		string(ev.Alert),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const sqliteSelect = `SELECT id, ts, temperature, motion, sound_level, alert_type FROM sensor_data`

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]model.SensorEvent, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelect+` ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteRows(rows)
}

func (s *sqliteStore) QueryRange(ctx context.Context, start, end time.Time, limit, offset int) ([]model.SensorEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		sqliteSelect+` WHERE ts >= ? AND ts <= ? ORDER BY ts ASC, id ASC LIMIT ? OFFSET ?`,
		start.UTC().Format(sqliteTimeLayout),
		end.UTC().Format(sqliteTimeLayout),
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteRows(rows)
}

func (s *sqliteStore) Latest(ctx context.Context) (*model.SensorEvent, error) {
	events, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoObservations
	}
	return &events[0], nil
}

func (s *sqliteStore) ByID(ctx context.Context, id int64) (*model.SensorEvent, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events, err := scanSQLiteRows(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoObservations
	}
	return &events[0], nil
}

func (s *sqliteStore) Summary(ctx context.Context) (model.Summary, error) {
	var sum model.Summary
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(CASE WHEN alert_type = 'fall' THEN 1 END),
			COUNT(CASE WHEN alert_type = 'inactivity' THEN 1 END)
		FROM sensor_data`)
	if err := row.Scan(&sum.TotalReadings, &sum.FallAlerts, &sum.InactivityAlerts); err != nil {
		return model.Summary{}, err
	}
	return sum, nil
}

func (s *sqliteStore) ActivityAnalysis(ctx context.Context, start, end time.Time) (model.ActivityAnalysis, error) {
	events, err := s.QueryRange(ctx, start, end, 0, 0)
	if err != nil {
		return model.ActivityAnalysis{}, err
	}
	return analyzeEvents(events, start, end), nil
}

func (s *sqliteStore) HourlyActivity(ctx context.Context, day time.Time) ([]model.HourlyActivity, error) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	events, err := s.QueryRange(ctx, start, start.Add(24*time.Hour), 0, 0)
	if err != nil {
		return nil, err
	}
	return hourlyFromEvents(events), nil
}

func scanSQLiteRows(rows *sql.Rows) ([]model.SensorEvent, error) {
	var events []model.SensorEvent
	for rows.Next() {
		var (
			ev     model.SensorEvent
			ts     string
			motion int
			alert  string
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.Reading.Temperature, &motion, &ev.Reading.SoundLevel, &alert); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(sqliteTimeLayout, ts)
		if err != nil {
			return nil, err
		}
		ev.Reading.Timestamp = parsed.UTC()
		ev.Reading.Motion = motion != 0
		ev.Alert = model.AlertType(alert)
		events = append(events, ev)
	}
	return events, rows.Err()
}
