package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "server:\n  log_level: info\n")

	changed := make(chan ConfigDiff, 1)
	w, err := NewWatcher(path, func(old, new *Config) {
		changed <- Diff(old, new)
	}, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current().Server.LogLevel != LogLevelInfo {
		t.Fatalf("initial log level = %q, want info", w.Current().Server.LogLevel)
	}

	time.Sleep(10 * time.Millisecond)
	writeConfigFile(t, dir, "server:\n  log_level: debug\n")

	select {
	case d := <-changed:
		if !d.LogLevelChanged || d.NewLogLevel != LogLevelDebug {
			t.Errorf("unexpected diff: %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
