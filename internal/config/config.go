package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Source   SourceConfig  `json:"source" yaml:"source"`
	Monitor  MonitorConfig `json:"monitor" yaml:"monitor"`
	API      APIConfig     `json:"api" yaml:"api"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Feed     FeedConfig    `json:"feed" yaml:"feed"`
}

type SourceConfig struct {
	// Mode selects the reading source: serial, mock or kafka.
	Mode           string       `json:"mode" yaml:"mode"`
	ChannelBuffer  int          `json:"channel_buffer" yaml:"channel_buffer"`
	FallbackToMock bool         `json:"fallback_to_mock" yaml:"fallback_to_mock"`
	Serial         SerialConfig `json:"serial" yaml:"serial"`
	Mock           MockConfig   `json:"mock" yaml:"mock"`
	Kafka          KafkaConfig  `json:"kafka" yaml:"kafka"`
}

type SerialConfig struct {
	Port        string        `json:"port" yaml:"port"`
	BaudRate    int           `json:"baud_rate" yaml:"baud_rate"`
	MaxFailures int           `json:"max_failures" yaml:"max_failures"`
	Backoff     time.Duration `json:"backoff" yaml:"backoff"`
	MaxBackoff  time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

type MockConfig struct {
	Seed     int64         `json:"seed" yaml:"seed"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

// MonitorConfig holds the clinical thresholds read by the alert evaluator.
// Both values are hot-reloadable through the settings API; a change becomes
// visible on the next evaluated reading.
type MonitorConfig struct {
	SoundThreshold    int           `json:"sound_threshold" yaml:"sound_threshold"`
	InactivitySeconds int           `json:"inactivity_seconds" yaml:"inactivity_seconds"`
	FallAlertCooldown time.Duration `json:"fall_alert_cooldown" yaml:"fall_alert_cooldown"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

type StorageConfig struct {
	Driver       string        `json:"driver" yaml:"driver"`
	DSN          string        `json:"dsn" yaml:"dsn"`
	WriteRetries int           `json:"write_retries" yaml:"write_retries"`
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`
	QueueSize    int           `json:"queue_size" yaml:"queue_size"`
}

type FeedConfig struct {
	SubscriberBuffer int `json:"subscriber_buffer" yaml:"subscriber_buffer"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Source: SourceConfig{
			Mode:           "mock",
			ChannelBuffer:  1024,
			FallbackToMock: true,
			Serial: SerialConfig{
				Port:        "/dev/ttyUSB0",
				BaudRate:    9600,
				MaxFailures: 10,
				Backoff:     500 * time.Millisecond,
				MaxBackoff:  30 * time.Second,
			},
			Mock: MockConfig{
				Seed:     0,
				Interval: 1 * time.Second,
			},
		},
		Monitor: MonitorConfig{
			SoundThreshold:    150,
			InactivitySeconds: 300,
			FallAlertCooldown: 10 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8080",
			BaseURL: "http://localhost:8080",
		},
		Storage: StorageConfig{
			Driver:       "sqlite",
			DSN:          "file:roommon.db?_pragma=busy_timeout(5000)",
			WriteRetries: 3,
			RetryBackoff: 250 * time.Millisecond,
			QueueSize:    256,
		},
		Feed: FeedConfig{SubscriberBuffer: 64},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Mode == "" {
		cfg.Source.Mode = "mock"
	}
	if cfg.Source.ChannelBuffer <= 0 {
		cfg.Source.ChannelBuffer = 1024
	}
	if cfg.Source.Serial.BaudRate <= 0 {
		cfg.Source.Serial.BaudRate = 9600
	}
	if cfg.Source.Serial.MaxFailures <= 0 {
		cfg.Source.Serial.MaxFailures = 10
	}
	if cfg.Source.Serial.Backoff <= 0 {
		cfg.Source.Serial.Backoff = 500 * time.Millisecond
	}
	if cfg.Source.Serial.MaxBackoff <= 0 {
		cfg.Source.Serial.MaxBackoff = 30 * time.Second
	}
	if cfg.Source.Mock.Interval <= 0 {
		cfg.Source.Mock.Interval = 1 * time.Second
	}
	if cfg.Monitor.FallAlertCooldown <= 0 {
		cfg.Monitor.FallAlertCooldown = 10 * time.Second
	}
	if cfg.Storage.WriteRetries <= 0 {
		cfg.Storage.WriteRetries = 3
	}
	if cfg.Storage.RetryBackoff <= 0 {
		cfg.Storage.RetryBackoff = 250 * time.Millisecond
	}
	if cfg.Storage.QueueSize <= 0 {
		cfg.Storage.QueueSize = 256
	}
	if cfg.Feed.SubscriberBuffer <= 0 {
		cfg.Feed.SubscriberBuffer = 64
	}
}

func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Source.Mode) {
	case "serial":
		if cfg.Source.Serial.Port == "" {
			return errors.New("source.serial.port required when source.mode is serial")
		}
	case "mock":
	case "kafka":
		if len(cfg.Source.Kafka.Brokers) == 0 || cfg.Source.Kafka.Topic == "" || cfg.Source.Kafka.GroupID == "" {
			return errors.New("source.kafka requires brokers, topic, group_id")
		}
	default:
		return fmt.Errorf("unknown source.mode: %q", cfg.Source.Mode)
	}
	if err := ValidateMonitor(cfg.Monitor); err != nil {
		return err
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported storage.driver: %q", cfg.Storage.Driver)
	}
	return nil
}

// ValidateMonitor guards the runtime settings surface. Non-positive
// thresholds are rejected so the previous valid settings stay in effect.
func ValidateMonitor(mc MonitorConfig) error {
	if mc.SoundThreshold <= 0 {
		return errors.New("monitor.sound_threshold must be a positive integer")
	}
	if mc.InactivitySeconds <= 0 {
		return errors.New("monitor.inactivity_seconds must be a positive integer")
	}
	return nil
}

func ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}

// Manager publishes the active config as an atomically swapped snapshot.
// Readers always see a fully formed value.
type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if info, err := os.Stat(path); err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file. Used when
// the process is configured from defaults or the environment.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

// UpdateMonitor swaps in new threshold settings. The snapshot becomes
// visible to the evaluator on its next reading.
func (m *Manager) UpdateMonitor(mc MonitorConfig) (*Config, error) {
	if err := ValidateMonitor(mc); err != nil {
		return nil, err
	}
	current := m.Get()
	next := *current
	next.Monitor.SoundThreshold = mc.SoundThreshold
	next.Monitor.InactivitySeconds = mc.InactivitySeconds
	if mc.FallAlertCooldown > 0 {
		next.Monitor.FallAlertCooldown = mc.FallAlertCooldown
	}
	m.cfg.Store(&next)
	if m.path != "" {
		if err := Save(m.path, &next); err != nil {
			return &next, err
		}
	}
	return &next, nil
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

// Watch polls the backing file and reloads on change. Runs until stop.
func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}
