package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nijel/pvgis2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

// restoreMaxAge limits how old a persisted forecast may be to still be
// restored on startup.
const restoreMaxAge = 24 * time.Hour

// FileStateStore persists forecast state as a JSON file. Writes go through a
// temp file and rename so a crash never leaves a half written state behind.
type FileStateStore struct {
	path   string
	logger *zap.Logger
}

func NewFileStateStore(path string, logger *zap.Logger) *FileStateStore {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create state directory", zap.String("dir", dir), zap.Error(err))
	}
	return &FileStateStore{
		path:   path,
		logger: logger,
	}
}

// Save writes the state with the current time as its save stamp.
func (s *FileStateStore) Save(state domain.PersistedState) error {
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.Debug("saved state", zap.String("path", s.path))
	return nil
}

// Load reads the persisted state. A missing file yields an empty state.
func (s *FileStateStore) Load() (domain.PersistedState, error) {
	var state domain.PersistedState

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("state file does not exist, starting empty")
			return state, nil
		}
		return state, fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to parse state file: %w", err)
	}

	return state, nil
}

// Restore loads the state and drops a stale forecast. Snapshots and snow
// overrides survive any age, the last forecast only when recent enough to
// still be meaningful.
func (s *FileStateStore) Restore(now time.Time) (domain.PersistedState, error) {
	state, err := s.Load()
	if err != nil {
		return state, err
	}

	if state.Forecast != nil && now.Sub(state.SavedAt) >= restoreMaxAge {
		s.logger.Info("discarding stale persisted forecast",
			zap.Time("saved_at", state.SavedAt))
		state.Forecast = nil
	}

	return state, nil
}
