/*
live.go - WebSocket stream of live session stats

PURPOSE:
  Pushes stats snapshots to dashboards while a session runs, so they don't
  have to poll GET /api/sessions/{id}/stats.

PROTOCOL:
  GET /api/sessions/{id}/live  (404 before upgrade if the session is unknown)

  Server -> client messages (JSON text frames):
    {"type":"snapshot","status":"active","seq":3,"reason":"recorded","snapshot":{...}}

  1. One snapshot immediately after the upgrade (seq 0, reason "initial")
  2. One snapshot per broadcaster notification. Bursts coalesce, so a
     client may see fewer messages than check-ins, never a stale final state.
  3. When the session ends: a final snapshot with "status":"ended", then a
     normal close frame.

  Client messages are read and discarded (the read loop only services
  pong/close control frames).

NOTIFICATIONS ARE HINTS:
  The notification payload is never forwarded. Every message carries a
  freshly pulled attendance.Snapshot.

KEEPALIVE:
  Ping every pingPeriod; the read deadline is extended on each pong.
  Every write has a writeWait deadline.

SEE ALSO:
  - attendance/notify.go: Broadcaster (per-session coalescing pub/sub)
  - scheduler.go: StatsRefresher (periodic refresh notifications)
*/
package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/warp/checkin-engine/attendance"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxClientFrame = 512
)

// LiveMessage is one frame on the live stream.
type LiveMessage struct {
	Type     string      `json:"type"`
	Status   string      `json:"status"`
	Seq      uint64      `json:"seq"`
	Reason   string      `json:"reason"`
	Snapshot SnapshotDTO `json:"snapshot"`
}

// LiveStats upgrades to a WebSocket and streams snapshots for one session.
func (h *Handler) LiveStats(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := h.Engine.Sessions.Get(r.Context(), id); err != nil {
		h.writeEngineError(w, "Failed to open live stream", err)
		return
	}

	// Subscribe before the initial snapshot so nothing between the two is lost.
	sub := h.Engine.Broadcaster.Subscribe(id)
	defer sub.Close()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", zap.String("session_id", string(id)), zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.Logger.With(zap.String("session_id", string(id)))
	logger.Debug("live stream opened")

	clientGone := make(chan struct{})
	go readPump(conn, clientGone)

	// The request context is detached from a hijacked connection.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ended, err := h.pushSnapshot(ctx, conn, id, 0, "initial")
	if err != nil || ended {
		h.closeLive(conn, logger, err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			ended, err := h.pushSnapshot(ctx, conn, id, n.Seq, n.Reason)
			if err != nil || ended {
				h.closeLive(conn, logger, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("ping failed", zap.Error(err))
				return
			}
		case <-clientGone:
			logger.Debug("live stream closed by client")
			return
		case <-h.shutdown():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

// pushSnapshot re-pulls the snapshot and writes it. Reports whether the
// session has ended.
func (h *Handler) pushSnapshot(ctx context.Context, conn *websocket.Conn, id attendance.SessionID, seq uint64, reason string) (bool, error) {
	snap, err := h.Engine.Stats.Snapshot(ctx, id)
	if err != nil {
		return false, err
	}
	msg := LiveMessage{
		Type:     "snapshot",
		Status:   string(snap.Session.Status),
		Seq:      seq,
		Reason:   reason,
		Snapshot: toSnapshotDTO(snap),
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false, err
	}
	if err := conn.WriteJSON(msg); err != nil {
		return false, err
	}
	return !snap.Session.IsActive(), nil
}

func (h *Handler) closeLive(conn *websocket.Conn, logger *zap.Logger, err error) {
	code, text := websocket.CloseNormalClosure, "session ended"
	if err != nil {
		logger.Warn("live stream failed", zap.Error(err))
		code, text = websocket.CloseInternalServerErr, "snapshot failed"
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(writeWait))
}

// readPump drains client frames so control frames (pong, close) are processed.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// checkOrigin allows non-browser clients, same-host pages, and the CORS allow-list.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Close ends all open live streams. Call during server shutdown, since
// hijacked connections are not tracked by http.Server.Shutdown.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.shutdown()) })
}

func (h *Handler) shutdown() chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		h.done = make(chan struct{})
	}
	return h.done
}
