// Package config loads the capability snapshot that decides which backends
// each degradation chain gets at construction time. Loading never fails: a
// missing or malformed file falls back to the all-disabled defaults so the
// process always starts, just degraded.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Service is one capability's entry in the snapshot.
type Service struct {
	Enabled bool              `json:"enabled"`
	Params  map[string]string `json:"params"`
}

// Param returns a service parameter or the fallback when unset.
func (s Service) Param(key, fallback string) string {
	if v, ok := s.Params[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Snapshot is an immutable-per-load view of the configuration. Facades take a
// Snapshot at construction and never consult the file again; a reload
// produces a fresh Snapshot and requires rebuilding the facades.
type Snapshot struct {
	Server   ServerConfig       `json:"server"`
	Storage  StorageConfig      `json:"storage"`
	Services map[string]Service `json:"services"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

// ServiceEnabled reports whether the named capability is enabled.
// An absent entry means disabled, never an error.
func (s Snapshot) ServiceEnabled(name string) bool {
	return s.Services[name].Enabled
}

// Service returns the named capability's configuration, or an empty entry
// when absent.
func (s Snapshot) Service(name string) Service {
	svc, ok := s.Services[name]
	if !ok || svc.Params == nil {
		svc.Params = map[string]string{}
	}
	return svc
}

// Capability names used across the codebase.
const (
	ServiceDocstore    = "docstore"
	ServiceEmbedding   = "embedding"
	ServiceVectorstore = "vectorstore"
	ServiceCalendar    = "calendar"
)

func defaults() Snapshot {
	return Snapshot{
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Services: map[string]Service{
			ServiceDocstore: {
				Enabled: false,
				Params:  map[string]string{"collection": "user_lists"},
			},
			ServiceEmbedding: {
				Enabled: false,
				Params: map[string]string{
					"model":      "text-embedding-3-small",
					"chat_model": "gpt-4o-mini",
				},
			},
			ServiceVectorstore: {
				Enabled: false,
				Params: map[string]string{
					"class": "PennyChunk",
				},
			},
			ServiceCalendar: {
				Enabled: false,
				Params:  map[string]string{"calendar_id": "primary"},
			},
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "penny")
	}
	return ".penny"
}

// Loader owns the current Snapshot for one config file. All facades in a
// process share a single Loader; Reload replaces the snapshot wholesale.
type Loader struct {
	path string
	log  *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// Load reads the snapshot file at path. It never fails: on any read or parse
// error it logs a diagnostic and serves the all-disabled defaults.
func Load(path string, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	l := &Loader{path: path, log: log}
	l.snap = l.read()
	return l
}

// Snapshot returns the current snapshot with service maps copied, so callers
// can hold it without observing later reloads.
func (l *Loader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copySnapshot(l.snap)
}

// Reload re-reads the file and replaces the snapshot for every facade
// constructed against this loader. Callers must rebuild their chains after a
// reload; cached readiness from the previous snapshot is not valid.
func (l *Loader) Reload() Snapshot {
	snap := l.read()
	l.mu.Lock()
	l.snap = snap
	l.mu.Unlock()
	l.log.Info("configuration reloaded", "path", l.path)
	return copySnapshot(snap)
}

// Path returns the config file path the loader watches.
func (l *Loader) Path() string { return l.path }

func (l *Loader) read() Snapshot {
	snap := defaults()

	data, err := os.ReadFile(l.path)
	if err != nil {
		l.log.Warn("config file unavailable, using defaults", "path", l.path, "error", err)
		applyEnvOverrides(&snap)
		return snap
	}

	var loaded Snapshot
	if err := json.Unmarshal(data, &loaded); err != nil {
		l.log.Warn("config file malformed, using defaults", "path", l.path, "error", err)
		applyEnvOverrides(&snap)
		return snap
	}

	merge(&snap, loaded)
	applyEnvOverrides(&snap)
	return snap
}

// merge overlays loaded values onto the defaults, so partially specified
// files keep sensible parameters.
func merge(dst *Snapshot, src Snapshot) {
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.LogLevel != "" {
		dst.Server.LogLevel = src.Server.LogLevel
	}
	if src.Storage.DataDir != "" {
		dst.Storage.DataDir = src.Storage.DataDir
	}
	for name, svc := range src.Services {
		base := dst.Services[name]
		base.Enabled = svc.Enabled
		if base.Params == nil {
			base.Params = map[string]string{}
		}
		for k, v := range svc.Params {
			base.Params[k] = v
		}
		dst.Services[name] = base
	}
}

// applyEnvOverrides lets PENNY_* environment variables override file values
// on all platforms. Secrets are expected to arrive this way.
func applyEnvOverrides(snap *Snapshot) {
	if v := os.Getenv("PENNY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			snap.Server.Port = port
		}
	}
	if v := os.Getenv("PENNY_LOG_LEVEL"); v != "" {
		snap.Server.LogLevel = v
	}
	if v := os.Getenv("PENNY_DATA_DIR"); v != "" {
		snap.Storage.DataDir = v
	}
	if v := os.Getenv("PENNY_OPENAI_API_KEY"); v != "" {
		setParam(snap, ServiceEmbedding, "api_key", v)
	}
	if v := os.Getenv("PENNY_DOCSTORE_API_KEY"); v != "" {
		setParam(snap, ServiceDocstore, "api_key", v)
	}
}

func setParam(snap *Snapshot, service, key, value string) {
	svc := snap.Services[service]
	if svc.Params == nil {
		svc.Params = map[string]string{}
	}
	svc.Params[key] = value
	snap.Services[service] = svc
}

func copySnapshot(s Snapshot) Snapshot {
	out := s
	out.Services = make(map[string]Service, len(s.Services))
	for name, svc := range s.Services {
		params := make(map[string]string, len(svc.Params))
		for k, v := range svc.Params {
			params[k] = v
		}
		out.Services[name] = Service{Enabled: svc.Enabled, Params: params}
	}
	return out
}
