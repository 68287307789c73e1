/*
scheduler.go - Periodic live-stats refresh

PURPOSE:
  Periodically publishes a refresh notification for the active session so
  idle live subscribers re-pull their snapshot. This covers roster changes
  (an import between check-ins) that never produce a notification of their own.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Skips the tick when no session is active
  - Publishing never blocks: the broadcaster coalesces per subscriber

CONFIGURATION:
  - Interval: How often to refresh (STATS_REFRESH_INTERVAL, default 30s)
  - Enabled:  false when Interval is 0

USAGE:
  refresher := NewStatsRefresher(engine, logger)
  refresher.Interval = cfg.RefreshInterval
  refresher.Start()
  // ... later
  refresher.Stop()

SEE ALSO:
  - live.go: WebSocket consumers of the notifications
  - attendance/notify.go: Broadcaster
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/checkin-engine/attendance"
	"go.uber.org/zap"
)

// StatsRefresher re-publishes the active session on a ticker.
type StatsRefresher struct {
	Sessions  attendance.SessionStore
	Publisher attendance.Publisher
	Interval  time.Duration
	Logger    *zap.Logger

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewStatsRefresher creates a refresher over the engine's store and broadcaster.
func NewStatsRefresher(sessions attendance.SessionStore, publisher attendance.Publisher, logger *zap.Logger) *StatsRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsRefresher{
		Sessions:  sessions,
		Publisher: publisher,
		Interval:  30 * time.Second,
		Logger:    logger.Named("refresher"),
	}
}

// Start begins the refresher. No-op when Interval <= 0 or already running.
func (sr *StatsRefresher) Start() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.Interval <= 0 {
		sr.Logger.Info("disabled, not starting")
		return
	}
	if sr.running {
		return
	}

	sr.ticker = time.NewTicker(sr.Interval)
	sr.stop = make(chan struct{})
	sr.running = true
	sr.wg.Add(1)

	go sr.run()

	sr.Logger.Info("started", zap.Duration("interval", sr.Interval))
}

// Stop stops the refresher and waits for the goroutine to exit.
func (sr *StatsRefresher) Stop() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if !sr.running {
		return
	}
	sr.ticker.Stop()
	close(sr.stop)
	sr.wg.Wait()
	sr.running = false
	sr.Logger.Info("stopped")
}

func (sr *StatsRefresher) run() {
	defer sr.wg.Done()

	for {
		select {
		case <-sr.ticker.C:
			sr.RunNow(context.Background())
		case <-sr.stop:
			return
		}
	}
}

// RunNow publishes one refresh for the active session, if any.
// Reports whether a notification was published.
func (sr *StatsRefresher) RunNow(ctx context.Context) bool {
	sess, err := sr.Sessions.ActiveSession(ctx)
	if err != nil {
		sr.Logger.Warn("active session lookup failed", zap.Error(err))
		return false
	}
	if sess == nil {
		return false
	}
	sr.Publisher.Publish(sess.ID, attendance.ReasonRefresh)
	return true
}
