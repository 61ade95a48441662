package port

import (
	"time"

	"github.com/nijel/pvgis2mqtt/internal/core/domain"
)

// StateStore persists forecast state across restarts.
type StateStore interface {
	Save(state domain.PersistedState) error
	Load() (domain.PersistedState, error)
	// Restore loads the state dropping parts too stale to reuse.
	Restore(now time.Time) (domain.PersistedState, error)
}
