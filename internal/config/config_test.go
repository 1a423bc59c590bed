package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Monitor.SoundThreshold != 150 || cfg.Monitor.InactivitySeconds != 300 {
		t.Fatalf("monitor defaults: %+v", cfg.Monitor)
	}
	if cfg.Monitor.FallAlertCooldown != 10*time.Second {
		t.Fatalf("cooldown default: %v", cfg.Monitor.FallAlertCooldown)
	}
}

func TestLoadJSONOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"log_level": "debug",
		"monitor": {"sound_threshold": 200, "inactivity_seconds": 120}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level: %q", cfg.LogLevel)
	}
	if cfg.Monitor.SoundThreshold != 200 || cfg.Monitor.InactivitySeconds != 120 {
		t.Fatalf("monitor: %+v", cfg.Monitor)
	}
	// Untouched sections keep their defaults.
	if cfg.Storage.Driver != "sqlite" || cfg.Source.Mode != "mock" {
		t.Fatalf("defaults lost: %+v %+v", cfg.Storage, cfg.Source)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "log_level: warn\nsource:\n  mode: serial\n  serial:\n    port: /dev/ttyACM0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.Mode != "serial" || cfg.Source.Serial.Port != "/dev/ttyACM0" {
		t.Fatalf("source: %+v", cfg.Source)
	}
	if cfg.Source.Serial.BaudRate != 9600 {
		t.Fatalf("baud default not applied: %d", cfg.Source.Serial.BaudRate)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad mode":         `{"source": {"mode": "carrier-pigeon"}}`,
		"bad threshold":    `{"monitor": {"sound_threshold": -5}}`,
		"serial sans port": "source:\n  mode: serial\n  serial:\n    port: \"\"\n",
	}
	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected load to fail", name)
		}
	}
}

func TestValidateMonitor(t *testing.T) {
	if err := ValidateMonitor(MonitorConfig{SoundThreshold: 150, InactivitySeconds: 300}); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
	if err := ValidateMonitor(MonitorConfig{SoundThreshold: 0, InactivitySeconds: 300}); err == nil {
		t.Fatal("zero threshold accepted")
	}
	if err := ValidateMonitor(MonitorConfig{SoundThreshold: 150, InactivitySeconds: -1}); err == nil {
		t.Fatal("negative inactivity accepted")
	}
}

func TestUpdateMonitorSwapsSnapshot(t *testing.T) {
	mgr := NewStaticManager(DefaultConfig())
	before := mgr.Get()

	next, err := mgr.UpdateMonitor(MonitorConfig{SoundThreshold: 180, InactivitySeconds: 600})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if next.Monitor.SoundThreshold != 180 || next.Monitor.InactivitySeconds != 600 {
		t.Fatalf("updated monitor: %+v", next.Monitor)
	}
	if next.Monitor.FallAlertCooldown != before.Monitor.FallAlertCooldown {
		t.Fatal("cooldown must carry over when unset")
	}
	if mgr.Get().Monitor.SoundThreshold != 180 {
		t.Fatal("snapshot not swapped")
	}
	// The old snapshot is immutable; callers holding it are unaffected.
	if before.Monitor.SoundThreshold != 150 {
		t.Fatalf("prior snapshot mutated: %+v", before.Monitor)
	}
}

func TestUpdateMonitorRejectsAndKeepsSettings(t *testing.T) {
	mgr := NewStaticManager(DefaultConfig())
	if _, err := mgr.UpdateMonitor(MonitorConfig{SoundThreshold: -1, InactivitySeconds: 600}); err == nil {
		t.Fatal("invalid settings accepted")
	}
	got := mgr.Get().Monitor
	if got.SoundThreshold != 150 || got.InactivitySeconds != 300 {
		t.Fatalf("settings changed after rejected update: %+v", got)
	}
}

func TestUpdateMonitorPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if _, err := mgr.UpdateMonitor(MonitorConfig{SoundThreshold: 175, InactivitySeconds: 450}); err != nil {
		t.Fatalf("update: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Monitor.SoundThreshold != 175 || reloaded.Monitor.InactivitySeconds != 450 {
		t.Fatalf("persisted monitor: %+v", reloaded.Monitor)
	}
}

func TestNeedsReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	needs, err := mgr.NeedsReload()
	if err != nil || needs {
		t.Fatalf("fresh file flagged: %v %v", needs, err)
	}

	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	future := time.Now().Add(2 * time.Second)
	if err := Save(path, cfg); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	needs, err = mgr.NeedsReload()
	if err != nil || !needs {
		t.Fatalf("stale file not flagged: %v %v", needs, err)
	}
	reloaded, err := mgr.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.LogLevel != "debug" {
		t.Fatalf("reload content: %q", reloaded.LogLevel)
	}
}
