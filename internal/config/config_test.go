package config

import "testing"

func TestLogLevelIsValid(t *testing.T) {
	for _, l := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		if !l.IsValid() {
			t.Errorf("LogLevel(%q).IsValid() = false, want true", l)
		}
	}
	if LogLevel("trace").IsValid() {
		t.Error(`LogLevel("trace").IsValid() = true, want false`)
	}
}

func TestStorageTypeIsValid(t *testing.T) {
	for _, s := range []StorageType{StorageMemory, StorageJSON, StorageSparql} {
		if !s.IsValid() {
			t.Errorf("StorageType(%q).IsValid() = false, want true", s)
		}
	}
	if StorageType("postgres").IsValid() {
		t.Error(`StorageType("postgres").IsValid() = true, want false`)
	}
}
