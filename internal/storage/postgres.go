package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"roommon/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/roommon?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sensor_data (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			motion BOOLEAN NOT NULL,
			sound_level INTEGER NOT NULL,
			alert_type VARCHAR(20) NOT NULL DEFAULT 'none'
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

func (s *postgresStore) Append(ctx context.Context, ev model.SensorEvent) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO sensor_data (ts, temperature, motion, sound_level, alert_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		ev.Reading.Timestamp.UTC(),
		ev.Reading.Temperature,
		ev.Reading.Motion,
		ev.Reading.SoundLevel,
		string(ev.Alert),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const pgSelect = `SELECT id, ts, temperature, motion, sound_level, alert_type FROM sensor_data`

func (s *postgresStore) Recent(ctx context.Context, limit int) ([]model.SensorEvent, error) {
	rows, err := s.db.QueryContext(ctx, pgSelect+` ORDER BY ts DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPGRows(rows)
}

func (s *postgresStore) QueryRange(ctx context.Context, start, end time.Time, limit, offset int) ([]model.SensorEvent, error) {
	q := pgSelect + ` WHERE ts >= $1 AND ts <= $2 ORDER BY ts ASC, id ASC OFFSET $3`
	args := []any{start.UTC(), end.UTC(), offset}
	if limit > 0 {
		q += ` LIMIT $4`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPGRows(rows)
}

func (s *postgresStore) Latest(ctx context.Context) (*model.SensorEvent, error) {
	events, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoObservations
	}
	return &events[0], nil
}

func (s *postgresStore) ByID(ctx context.Context, id int64) (*model.SensorEvent, error) {
	rows, err := s.db.QueryContext(ctx, pgSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events, err := scanPGRows(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoObservations
	}
	return &events[0], nil
}

func (s *postgresStore) Summary(ctx context.Context) (model.Summary, error) {
	var sum model.Summary
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE alert_type = 'fall'),
			COUNT(*) FILTER (WHERE alert_type = 'inactivity')
		FROM sensor_data`)
	if err := row.Scan(&sum.TotalReadings, &sum.FallAlerts, &sum.InactivityAlerts); err != nil {
		return model.Summary{}, err
	}
	return sum, nil
}

func (s *postgresStore) ActivityAnalysis(ctx context.Context, start, end time.Time) (model.ActivityAnalysis, error) {
	events, err := s.QueryRange(ctx, start, end, 0, 0)
	if err != nil {
		return model.ActivityAnalysis{}, err
	}
	return analyzeEvents(events, start, end), nil
}

func (s *postgresStore) HourlyActivity(ctx context.Context, day time.Time) ([]model.HourlyActivity, error) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	events, err := s.QueryRange(ctx, start, start.Add(24*time.Hour), 0, 0)
	if err != nil {
		return nil, err
	}
	return hourlyFromEvents(events), nil
}

func scanPGRows(rows *sql.Rows) ([]model.SensorEvent, error) {
	var events []model.SensorEvent
	for rows.Next() {
		var (
			ev    model.SensorEvent
			ts    time.Time
			alert string
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.Reading.Temperature, &ev.Reading.Motion, &ev.Reading.SoundLevel, &alert); err != nil {
			return nil, err
		}
		ev.Reading.Timestamp = ts.UTC()
		ev.Alert = model.AlertType(alert)
		events = append(events, ev)
	}
	return events, rows.Err()
}
