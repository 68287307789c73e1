/*
scan.go - Check-in classification with no double counting

PURPOSE:
  Classifies and records one check-in submitted by a scanning device.
  Many devices submit concurrently and may resubmit after timeouts; the
  engine guarantees an employee is recorded at most once per session.

INVARIANT:
  (SessionID, EmployeeID) is unique. The store's atomic unique insert is the
  ONLY concurrency control point. Device-side debounce of repeated camera
  frames is an optimization on the device and is never relied upon here.

ALGORITHM:
  1. Trim employee id; empty -> ErrInvalidInput (nothing written)
  2. No active session     -> KindNoActiveSession
  3. Roster miss/inactive  -> KindInvalidEmployee
  4. Atomic unique insert
  5. Success               -> KindRecorded (server-assigned ScannedAt)
  6. ErrDuplicateRecord    -> KindDuplicate with the EARLIEST existing record
  7. ErrSessionNotActive   -> KindNoActiveSession (session ended after step 2)
  8. Anything else         -> *SystemError (retryable, no internal retry)

TIE-BREAK:
  First writer wins. N concurrent identical submissions produce exactly one
  Recorded and N-1 Duplicate, all carrying the same ScannedAt.

RETRIES:
  Duplicate, InvalidEmployee and NoActiveSession are final. Only SystemError
  may be retried, and resubmission degrades gracefully to Duplicate.
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnknownDevice is stored when a submission carries no device id.
const UnknownDevice = "unknown"

type ResultKind string

const (
	KindRecorded        ResultKind = "recorded"
	KindDuplicate       ResultKind = "duplicate"
	KindInvalidEmployee ResultKind = "invalid_employee"
	KindNoActiveSession ResultKind = "no_active_session"
)

// ScanRequest is one check-in as submitted by a device.
type ScanRequest struct {
	EmployeeID string // untrimmed
	Method     Method
	DeviceID   string
}

// ScanResult is the final classification of a submission.
//
// For KindRecorded, Record is the new record.
// For KindDuplicate, Record is the original (earliest) record.
type ScanResult struct {
	Kind       ResultKind
	SessionID  SessionID
	EmployeeID EmployeeID
	Employee   *Employee
	Record     *Record
}

// Scanner is the Scan Ingestion Engine.
type Scanner struct {
	Sessions  SessionStore
	Roster    Roster
	Records   RecordStore
	Publisher Publisher // optional
	Clock     Clock
	Logger    *zap.Logger
}

// Scan classifies and, when valid, records a check-in.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	employeeID := EmployeeID(strings.TrimSpace(req.EmployeeID))
	if employeeID == "" {
		return ScanResult{}, invalidInput("employee id is required")
	}
	if !req.Method.Valid() {
		return ScanResult{}, invalidInput("unknown method %q", req.Method)
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		deviceID = UnknownDevice
	}

	sess, err := s.Sessions.ActiveSession(ctx)
	if err != nil {
		return ScanResult{}, &SystemError{Op: "load active session", Err: err}
	}
	if sess == nil {
		return ScanResult{Kind: KindNoActiveSession, EmployeeID: employeeID}, nil
	}

	result := ScanResult{SessionID: sess.ID, EmployeeID: employeeID}

	emp, err := s.Roster.Lookup(ctx, employeeID)
	if err != nil {
		return ScanResult{}, &SystemError{Op: "roster lookup", Err: err}
	}
	if emp == nil || !emp.Active {
		result.Kind = KindInvalidEmployee
		s.log(result, deviceID, req.Method)
		return result, nil
	}
	result.Employee = emp

	rec := Record{
		ID:         RecordID(uuid.NewString()),
		SessionID:  sess.ID,
		EmployeeID: employeeID,
		Method:     req.Method,
		DeviceID:   deviceID,
		ScannedAt:  s.now(),
	}

	err = s.Records.InsertRecord(ctx, rec)
	switch {
	case err == nil:
		result.Kind = KindRecorded
		result.Record = &rec
		s.log(result, deviceID, req.Method)
		s.publisher().Publish(sess.ID, ReasonRecorded)
		return result, nil

	case errors.Is(err, ErrSessionNotActive):
		// The session ended between the lookup and the write.
		ended := ScanResult{Kind: KindNoActiveSession, EmployeeID: employeeID}
		s.log(ended, deviceID, req.Method)
		return ended, nil

	case errors.Is(err, ErrDuplicateRecord):
		original, lookupErr := s.Records.EarliestRecord(ctx, sess.ID, employeeID)
		if lookupErr != nil {
			return ScanResult{}, &SystemError{Op: "load original record", Err: lookupErr}
		}
		if original == nil {
			// Uniqueness rejected the insert, so the winner must be visible.
			return ScanResult{}, &SystemError{
				Op:  "load original record",
				Err: fmt.Errorf("no record for session %s employee %s", sess.ID, employeeID),
			}
		}
		result.Kind = KindDuplicate
		result.Record = original
		s.log(result, deviceID, req.Method)
		return result, nil

	default:
		return ScanResult{}, &SystemError{Op: "insert record", Err: err}
	}
}

func (s *Scanner) log(r ScanResult, deviceID string, method Method) {
	fields := []zap.Field{
		zap.String("kind", string(r.Kind)),
		zap.String("session_id", string(r.SessionID)),
		zap.String("employee_id", string(r.EmployeeID)),
		zap.String("device_id", deviceID),
		zap.String("method", string(method)),
	}
	if r.Kind == KindDuplicate && r.Record != nil {
		fields = append(fields, zap.Time("original_scanned_at", r.Record.ScannedAt))
	}
	s.logger().Debug("scan classified", fields...)
}

func (s *Scanner) now() time.Time {
	if s.Clock == nil {
		return systemClock()
	}
	return s.Clock()
}

func (s *Scanner) publisher() Publisher {
	if s.Publisher == nil {
		return nopPublisher{}
	}
	return s.Publisher
}

func (s *Scanner) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
