/*
session.go - Session lifecycle (Idle -> Active -> Ended)

PURPOSE:
  Enforces the single-active-session invariant and exposes the lifecycle.
  The active-session slot is the only piece of mutable shared configuration
  in the system, so starting a session while one is active FAILS instead of
  replacing it.

STATE MACHINE:
  Idle --Start--> Active --End--> Ended (terminal)
  A new event always needs a new Session.

ERRORS:
  Start: ErrInvalidInput (empty name), *ConflictError (already active)
  End:   ErrNotFound (unknown id), *ConflictError (already ended)

  Ending an ended session is reported, not accepted, so that two admins
  racing to end the same session see who lost.

SIDE EFFECTS:
  Audit entries are best effort. A failing audit log is logged and never
  rolls back the committed state change.
*/
package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sessions is the Session Store component.
type Sessions struct {
	Store     SessionStore
	Audit     AuditLog  // optional
	Publisher Publisher // optional
	Clock     Clock
	Logger    *zap.Logger
}

// Start opens a new active session.
func (s *Sessions) Start(ctx context.Context, eventName, actor string) (Session, error) {
	name := strings.TrimSpace(eventName)
	if name == "" {
		return Session{}, invalidInput("event name is required")
	}

	sess := Session{
		ID:        SessionID(uuid.NewString()),
		EventName: name,
		Status:    SessionActive,
		StartedAt: s.now(),
		StartedBy: actor,
	}
	if err := s.Store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, ErrConflict) {
			return Session{}, err
		}
		return Session{}, &SystemError{Op: "start session", Err: err}
	}

	s.logger().Info("session started",
		zap.String("session_id", string(sess.ID)),
		zap.String("event_name", sess.EventName),
		zap.String("actor", actor))

	s.audit(ctx, AuditEntry{
		Timestamp: sess.StartedAt,
		ActorID:   actor,
		Action:    AuditSessionStarted,
		SessionID: sess.ID,
		Payload:   map[string]any{"event_name": sess.EventName},
	})
	s.publisher().Publish(sess.ID, ReasonSessionStarted)
	return sess, nil
}

// End closes an active session.
func (s *Sessions) End(ctx context.Context, id SessionID, actor string) (Session, error) {
	if strings.TrimSpace(string(id)) == "" {
		return Session{}, invalidInput("session id is required")
	}

	sess, err := s.Store.EndSession(ctx, id, s.now(), actor)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return Session{}, err
		}
		return Session{}, &SystemError{Op: "end session", Err: err}
	}

	s.logger().Info("session ended",
		zap.String("session_id", string(sess.ID)),
		zap.String("actor", actor))

	s.audit(ctx, AuditEntry{
		Timestamp: *sess.EndedAt,
		ActorID:   actor,
		Action:    AuditSessionEnded,
		SessionID: sess.ID,
		Payload:   map[string]any{"event_name": sess.EventName},
	})
	s.publisher().Publish(sess.ID, ReasonSessionEnded)
	return sess, nil
}

// Active returns the active session, or nil when idle.
func (s *Sessions) Active(ctx context.Context) (*Session, error) {
	sess, err := s.Store.ActiveSession(ctx)
	if err != nil {
		return nil, &SystemError{Op: "load active session", Err: err}
	}
	return sess, nil
}

// Get returns a session by id.
func (s *Sessions) Get(ctx context.Context, id SessionID) (Session, error) {
	sess, err := s.Store.GetSession(ctx, id)
	if err != nil {
		return Session{}, &SystemError{Op: "load session", Err: err}
	}
	if sess == nil {
		return Session{}, ErrNotFound
	}
	return *sess, nil
}

func (s *Sessions) audit(ctx context.Context, entry AuditEntry) {
	if s.Audit == nil {
		return
	}
	entry.ID = uuid.NewString()
	if err := s.Audit.AppendAudit(ctx, entry); err != nil {
		s.logger().Warn("audit append failed",
			zap.String("action", string(entry.Action)),
			zap.String("session_id", string(entry.SessionID)),
			zap.Error(err))
	}
}

func (s *Sessions) now() time.Time {
	if s.Clock == nil {
		return systemClock()
	}
	return s.Clock()
}

func (s *Sessions) publisher() Publisher {
	if s.Publisher == nil {
		return nopPublisher{}
	}
	return s.Publisher
}

func (s *Sessions) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
