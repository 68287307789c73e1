package attendance

import (
	"time"

	"go.uber.org/zap"
)

// Config carries the ambient dependencies shared by every component.
type Config struct {
	Clock    Clock
	Logger   *zap.Logger
	Location *time.Location // month boundaries for reports
}

// Engine wires the components over a single Store.
type Engine struct {
	Roster      Roster
	Sessions    *Sessions
	Scanner     *Scanner
	Stats       *Stats
	Reports     *Reports
	Importer    *RosterImporter
	Broadcaster *Broadcaster
}

func New(store Store, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = systemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	b := NewBroadcaster()
	b.Clock = cfg.Clock

	return &Engine{
		Roster: store,
		Sessions: &Sessions{
			Store:     store,
			Audit:     store,
			Publisher: b,
			Clock:     cfg.Clock,
			Logger:    cfg.Logger.Named("sessions"),
		},
		Scanner: &Scanner{
			Sessions:  store,
			Roster:    store,
			Records:   store,
			Publisher: b,
			Clock:     cfg.Clock,
			Logger:    cfg.Logger.Named("scanner"),
		},
		Stats: &Stats{
			Sessions: store,
			Roster:   store,
			Records:  store,
			Clock:    cfg.Clock,
		},
		Reports: &Reports{
			Sessions: store,
			Roster:   store,
			Records:  store,
			Location: cfg.Location,
			Clock:    cfg.Clock,
		},
		Importer: &RosterImporter{
			Store:  store,
			Clock:  cfg.Clock,
			Logger: cfg.Logger.Named("roster"),
		},
		Broadcaster: b,
	}
}
