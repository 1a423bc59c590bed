package model

import "time"

type AlertType string

const (
	AlertNone       AlertType = "none"
	AlertFall       AlertType = "fall"
	AlertInactivity AlertType = "inactivity"
)

// Tag is the alert string carried on the wire and inside observations.
func (a AlertType) Tag() string {
	switch a {
	case AlertFall:
		return "FALL_DETECTED"
	case AlertInactivity:
		return "INACTIVITY_ALERT"
	}
	return ""
}

func AlertFromTag(s string) AlertType {
	switch s {
	case "FALL_DETECTED":
		return AlertFall
	case "INACTIVITY_ALERT":
		return AlertInactivity
	}
	return AlertNone
}

// SensorReading is one parsed sample from the room sensors. Immutable once
// produced by the parser.
type SensorReading struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Motion      bool      `json:"motion"`
	SoundLevel  int       `json:"sound_level"`
}

// SensorEvent is a reading plus the alert decision made for it. ID is set
// once the event has been persisted.
type SensorEvent struct {
	ID      int64         `json:"id,omitempty"`
	Reading SensorReading `json:"reading"`
	Alert   AlertType     `json:"alert"`
}

type Summary struct {
	TotalReadings    int64 `json:"totalReadings"`
	FallAlerts       int64 `json:"fallAlerts"`
	InactivityAlerts int64 `json:"inactivityAlerts"`
}

type ActivityAnalysis struct {
	PeriodStart            string  `json:"periodStart"`
	PeriodEnd              string  `json:"periodEnd"`
	TotalReadings          int64   `json:"totalReadings"`
	MotionReadings         int64   `json:"motionReadings"`
	ActivityScore          float64 `json:"activityScore"`
	ActivityLevel          string  `json:"activityLevel"`
	AvgTemperature         float64 `json:"avgTemperature"`
	AvgSoundLevel          float64 `json:"avgSoundLevel"`
	MaxSoundLevel          int     `json:"maxSoundLevel"`
	FallAlerts             int64   `json:"fallAlerts"`
	LongestStillPeriodMins int64   `json:"longestStillPeriodMins"`
}

type HourlyActivity struct {
	Hour          string  `json:"hour"`
	ActivityScore float64 `json:"activityScore"`
	Readings      int64   `json:"readings"`
	AvgSoundLevel float64 `json:"avgSoundLevel"`
}
