package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/repolens/repolens/internal/lenssdk"
	"gopkg.in/yaml.v3"
)

const (
	defaultDebounceMs = 250
	minDebounceMs     = 50
	maxDebounceMs     = 5000
)

type settingsFile struct {
	Exclude     []string `yaml:"exclude,omitempty"`
	DebounceMs  int      `yaml:"debounce_ms"`
	LintEnabled bool     `yaml:"lint_enabled"`
}

// SettingsStore holds the analysis settings, persisted as YAML next to the
// repository so they survive server restarts.
type SettingsStore struct {
	mu       sync.RWMutex
	path     string
	rootPath string
	current  settingsFile
}

func NewSettingsStore(path, rootPath string) (*SettingsStore, error) {
	s := &SettingsStore{
		path:     path,
		rootPath: rootPath,
		current: settingsFile{
			DebounceMs:  defaultDebounceMs,
			LintEnabled: true,
		},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SettingsStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	var loaded settingsFile
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse settings %s: %w", s.path, err)
	}
	if loaded.DebounceMs == 0 {
		loaded.DebounceMs = defaultDebounceMs
	}
	s.current = loaded
	return nil
}

// Get returns a copy of the current settings in wire form.
func (s *SettingsStore) Get() *lenssdk.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &lenssdk.Settings{
		RootPath:    s.rootPath,
		Exclude:     append([]string(nil), s.current.Exclude...),
		DebounceMs:  s.current.DebounceMs,
		LintEnabled: s.current.LintEnabled,
	}
}

// Apply validates a partial update, merges it and persists the result.
// Nothing is changed when validation fails.
func (s *SettingsStore) Apply(update *lenssdk.SettingsUpdate) (*lenssdk.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if update.Exclude != nil {
		for _, pattern := range *update.Exclude {
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("invalid exclude pattern: %q", pattern)
			}
		}
		next.Exclude = append([]string(nil), *update.Exclude...)
	}
	if update.DebounceMs != nil {
		if *update.DebounceMs < minDebounceMs || *update.DebounceMs > maxDebounceMs {
			return nil, fmt.Errorf("debounce_ms must be between %d and %d", minDebounceMs, maxDebounceMs)
		}
		next.DebounceMs = *update.DebounceMs
	}
	if update.LintEnabled != nil {
		next.LintEnabled = *update.LintEnabled
	}

	if err := s.save(next); err != nil {
		return nil, err
	}
	s.current = next

	return &lenssdk.Settings{
		RootPath:    s.rootPath,
		Exclude:     append([]string(nil), next.Exclude...),
		DebounceMs:  next.DebounceMs,
		LintEnabled: next.LintEnabled,
	}, nil
}

// save writes settings atomically: a torn write must never corrupt the
// file a future server start will load.
func (s *SettingsStore) save(v settingsFile) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}
