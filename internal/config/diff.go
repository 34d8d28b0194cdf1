package config

import "reflect"

// ConfigDiff describes what changed between two configs: log level, memory
// tunables, enhancements, and sparqlEndpoints (reported so the caller can
// flag that a restart is needed) — adapted from the teacher's per-NPC diff
// to this domain's configuration groups.
type ConfigDiff struct {
	LogLevelChanged        bool
	NewLogLevel            LogLevel
	MemoryChanged          bool
	SparqlEndpointsChanged bool
	EnhancementsChanged    bool
}

// Diff compares old and new configs and returns what changed. storage.type
// and models.* are intentionally excluded — changing the persistence
// backend or model selection requires a restart, not a hot reload.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Memory != new.Memory {
		d.MemoryChanged = true
	}
	if !reflect.DeepEqual(old.SparqlEndpoints, new.SparqlEndpoints) {
		d.SparqlEndpointsChanged = true
	}
	if !reflect.DeepEqual(old.Enhancements, new.Enhancements) {
		d.EnhancementsChanged = true
	}

	return d
}
