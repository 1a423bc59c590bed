package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"roommon/internal/model"
)

// ParseError marks a raw line that could not be turned into a reading.
// These are skipped by the producer loop, not fatal.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Line, e.Reason)
}

const (
	minTemperature = -50.0
	maxTemperature = 150.0
)

// ParseLine converts one raw sample into a SensorReading. The line is comma
// delimited: "temperature,motion,sound" or
// "timestamp,temperature,motion,sound". Decimal separator is always ".".
// A missing timestamp defaults to receivedAt.
func ParseLine(line string, receivedAt time.Time) (model.SensorReading, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return model.SensorReading{}, &ParseError{Line: line, Reason: "empty line"}
	}
	parts := strings.Split(trim, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	ts := receivedAt.UTC()
	switch len(parts) {
	case 3:
	case 4:
		parsed, err := parseTimestamp(parts[0])
		if err != nil {
			return model.SensorReading{}, &ParseError{Line: line, Reason: err.Error()}
		}
		ts = parsed
		parts = parts[1:]
	default:
		return model.SensorReading{}, &ParseError{Line: line, Reason: fmt.Sprintf("expected 3 or 4 fields, got %d", len(parts))}
	}

	temp, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return model.SensorReading{}, &ParseError{Line: line, Reason: "temperature is not a number"}
	}
	if temp < minTemperature || temp > maxTemperature {
		return model.SensorReading{}, &ParseError{Line: line, Reason: "temperature out of range"}
	}

	motion, err := parseMotion(parts[1])
	if err != nil {
		return model.SensorReading{}, &ParseError{Line: line, Reason: err.Error()}
	}

	sound, err := strconv.Atoi(parts[2])
	if err != nil {
		return model.SensorReading{}, &ParseError{Line: line, Reason: "sound level is not an integer"}
	}
	if sound < 0 {
		return model.SensorReading{}, &ParseError{Line: line, Reason: "sound level is negative"}
	}

	return model.SensorReading{
		Timestamp:   ts,
		Temperature: temp,
		Motion:      motion,
		SoundLevel:  sound,
	}, nil
}

func parseMotion(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	}
	// Some firmware emits the raw PIR counter instead of a flag.
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n != 0, nil
	}
	return false, fmt.Errorf("motion flag %q not recognized", s)
}

// parseTimestamp accepts RFC3339 or a unix tick counter (seconds or
// milliseconds).
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %q not parseable", s)
		}
		if len(s) >= 13 {
			return time.Unix(0, n*int64(time.Millisecond)).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q not parseable", s)
}

func isDigits(s string) bool {
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(s) > 0
}
