// Package attendance validates scans against live sessions and records each
// student's presence exactly once per session.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"classattend/internal/docstore"
	"classattend/internal/metrics"
	"classattend/internal/netinfo"
	"classattend/internal/queue"
	"classattend/internal/session"
)

// ErrSessionNotFound is returned when no session document exists for the
// scanned subject.
var ErrSessionNotFound = errors.New("no session for subject")

// ErrSessionExpired is returned when the session window has closed. The check
// is strict: a scan arriving exactly at the expiry instant is rejected.
var ErrSessionExpired = errors.New("session expired")

// Record is one student's proof of presence under a session, keyed by
// student id. A resubmission overwrites it, never duplicates it.
type Record struct {
	Name      string    `json:"name"`
	StudentID string    `json:"studentId"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
}

// Recorder writes attendance records after validating the scan.
type Recorder struct {
	store  docstore.Store
	net    netinfo.Lookup
	events queue.Publisher
}

// NewRecorder creates a recorder. events may be nil when no audit fan-out is
// wanted (tests, single-process setups).
func NewRecorder(store docstore.Store, net netinfo.Lookup, events queue.Publisher) *Recorder {
	return &Recorder{store: store, net: net, events: events}
}

// Record validates the decoded scan for subject against the live session and
// writes the student's record under it.
//
// Validation order: the session must exist, must not be expired at now, and
// the scanning device's address must be resolvable. The address is stored for
// audit only; it is not compared against the session's own IP.
func (r *Recorder) Record(ctx context.Context, studentID, name, subject string, now time.Time) (Record, error) {
	var sess session.Session
	if err := r.store.Get(ctx, session.Collection, subject, &sess); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Record{}, ErrSessionNotFound
		}
		return Record{}, err
	}

	if !sess.Active(now) {
		return Record{}, ErrSessionExpired
	}

	ip, err := r.net.CurrentIP(ctx)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		Name:      name,
		StudentID: studentID,
		Timestamp: now,
		IP:        ip,
	}
	if err := r.store.Set(ctx, session.ScansCollection(subject), studentID, rec); err != nil {
		return Record{}, fmt.Errorf("write scan for %q: %w", subject, err)
	}
	metrics.ScansRecorded.Inc()

	if r.events != nil {
		evt := queue.ScanEvent{
			Subject:   subject,
			StudentID: studentID,
			Name:      name,
			Timestamp: now,
			IP:        ip,
		}
		if err := r.events.Publish(ctx, evt); err != nil {
			log.Printf("scan event publish failed: %v", err)
		}
	}
	return rec, nil
}
