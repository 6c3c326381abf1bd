// Package session manages time-boxed attendance sessions, at most one per
// subject. The subject name is the document key, so opening a session for a
// subject replaces whatever document held that key before.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"classattend/internal/docstore"
	"classattend/internal/metrics"
	"classattend/internal/netinfo"
	"classattend/internal/timetable"
)

// Collection is the docstore collection holding one document per subject.
const Collection = "sessions"

// ErrNoActiveSlot is returned when the subject has no timetable slot on the
// requested day, so no session window can be derived.
var ErrNoActiveSlot = errors.New("no active timetable slot for subject")

// Session is one attendance window. Active iff now < ExpiresAt.
type Session struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	Subject   string    `json:"subject"`
	StartsAt  time.Time `json:"startsAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Active reports whether the session window still covers now. Expiry is
// exclusive: a session whose ExpiresAt equals now is no longer active.
func (s Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// ScansCollection returns the docstore collection holding the session's
// per-student scan records.
func ScansCollection(subject string) string {
	return Collection + "/" + subject + "/scans"
}

// Manager opens and maintains session documents.
type Manager struct {
	store    docstore.Store
	resolver *timetable.Resolver
	net      netinfo.Lookup
}

// NewManager creates a manager.
func NewManager(store docstore.Store, resolver *timetable.Resolver, net netinfo.Lookup) *Manager {
	return &Manager{store: store, resolver: resolver, net: net}
}

// EnsureActive returns the active session for subject, creating one when none
// is active. An expired or missing document is replaced with a fresh session
// whose bounds come from the subject's timetable slot on now's date.
//
// Two callers racing here may both write; both derive the same slot window,
// so last-writer-wins converges on an equivalent document. There is no
// conditional create.
func (m *Manager) EnsureActive(ctx context.Context, subject string, now time.Time) (Session, error) {
	var existing Session
	err := m.store.Get(ctx, Collection, subject, &existing)
	switch {
	case err == nil:
		if existing.Active(now) {
			return existing, nil
		}
	case !errors.Is(err, docstore.ErrNotFound):
		return Session{}, err
	}

	slot, err := m.resolver.SlotFor(ctx, subject, now)
	if err != nil {
		if errors.Is(err, timetable.ErrNotScheduled) {
			return Session{}, ErrNoActiveSlot
		}
		return Session{}, err
	}

	ip, err := m.net.CurrentIP(ctx)
	if err != nil {
		return Session{}, err
	}

	fresh := Session{
		ID:        subject,
		IP:        ip,
		Subject:   subject,
		StartsAt:  slot.StartsAt,
		ExpiresAt: slot.ExpiresAt,
	}
	if err := m.store.Set(ctx, Collection, subject, fresh); err != nil {
		return Session{}, fmt.Errorf("write session %q: %w", subject, err)
	}
	metrics.SessionsOpened.Inc()
	log.Printf("session opened for %q, window %s to %s", subject,
		fresh.StartsAt.Format(time.Kitchen), fresh.ExpiresAt.Format(time.Kitchen))
	return fresh, nil
}

// Get returns the session document for subject, whether or not it is still
// active. Returns docstore.ErrNotFound when none exists.
func (m *Manager) Get(ctx context.Context, subject string) (Session, error) {
	var s Session
	if err := m.store.Get(ctx, Collection, subject, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// SweepInvalid deletes every session document lacking an expiry and returns
// the count removed. Such documents come from interrupted or malformed
// writes; nothing can ever validate against them.
func (m *Manager) SweepInvalid(ctx context.Context) (int, error) {
	docs, err := m.store.List(ctx, Collection)
	if err != nil {
		return 0, err
	}

	removed := 0
	for key, raw := range docs {
		var probe struct {
			ExpiresAt *time.Time `json:"expiresAt"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil && probe.ExpiresAt != nil && !probe.ExpiresAt.IsZero() {
			continue
		}
		if err := m.store.Delete(ctx, Collection, key); err != nil {
			return removed, fmt.Errorf("sweep %q: %w", key, err)
		}
		removed++
		metrics.SweptSessions.Inc()
	}
	return removed, nil
}
