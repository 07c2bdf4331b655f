package reload

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/tickclaw/internal/config"
	"github.com/flemzord/tickclaw/internal/jobs"
)

// Snapshot is one read of the settings file and jobs directory.
type Snapshot struct {
	// Settings is nil when the settings file could not be loaded or failed
	// validation; the caller keeps its previous settings.
	Settings *config.Settings
	Runtime  config.Runtime

	// Jobs is only meaningful when JobsOK is true.
	Jobs        []jobs.Job
	JobsOK      bool
	Fingerprint string
}

// Loader reads snapshots.
type Loader struct {
	settingsPath string
	store        *jobs.Store
	logger       *slog.Logger
	now          func() time.Time
}

// NewLoader creates a loader for the settings file at settingsPath and the
// jobs in store.
func NewLoader(settingsPath string, store *jobs.Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		settingsPath: settingsPath,
		store:        store,
		logger:       logger,
		now:          time.Now,
	}
}

// Load reads settings and jobs. The two halves fail independently: the
// returned error describes whichever failed, and the snapshot carries
// whatever succeeded.
func (l *Loader) Load() (Snapshot, error) {
	var snap Snapshot

	settings, settingsErr := l.LoadSettings()
	if settingsErr == nil {
		snap.Settings = settings
		snap.Runtime = settings.Resolve(l.now(), l.logger)
	}

	list, err := l.store.Load()
	if err != nil {
		err = fmt.Errorf("reload: loading jobs: %w", err)
		if settingsErr != nil {
			return snap, fmt.Errorf("%w; %w", settingsErr, err)
		}
		return snap, err
	}
	snap.Jobs = list
	snap.JobsOK = true
	snap.Fingerprint = jobs.Fingerprint(list)

	return snap, settingsErr
}

// LoadSettings loads and validates the settings file.
func (l *Loader) LoadSettings() (*config.Settings, error) {
	settings, err := config.Load(l.settingsPath)
	if err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}
	if err := config.Validate(settings); err != nil {
		return nil, fmt.Errorf("reload: invalid settings: %w", err)
	}
	return settings, nil
}
