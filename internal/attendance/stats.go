package attendance

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"classattend/internal/docstore"
	"classattend/internal/session"
)

// Attended is one entry of a student's attendance history.
type Attended struct {
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionStat is the read-side projection of one session's attendance.
type SessionStat struct {
	Subject        string      `json:"subject"`
	TotalAttendees int         `json:"totalAttendees"`
	ScanTimestamps []time.Time `json:"scanTimestamps"`
}

// DayEntry is one session on a student's calendar, attended or not.
type DayEntry struct {
	Subject   string `json:"subject"`
	TimeRange string `json:"timeRange"`
	Attended  bool   `json:"attended"`
}

// dateFormat matches how session dates are grouped for display, one section
// per calendar day.
const dateFormat = "Mon Jan 02 2006"

// Stats derives read-only projections from recorded data. It walks every
// session and its scans per call; fine for a classroom's worth of data.
type Stats struct {
	store docstore.Store
}

// NewStats creates a stats reader.
func NewStats(store docstore.Store) *Stats {
	return &Stats{store: store}
}

// History returns every session the named student attended, ordered by scan
// time. Matching is by the record's name field.
func (s *Stats) History(ctx context.Context, studentName string) ([]Attended, error) {
	sessions, err := s.sessions(ctx)
	if err != nil {
		return nil, err
	}

	var out []Attended
	for _, sess := range sessions {
		scans, err := s.scans(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		for _, rec := range scans {
			if rec.Name == studentName {
				out = append(out, Attended{Subject: sess.Subject, Timestamp: rec.Timestamp})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// SessionStats returns, for every session on record, its subject, attendee
// count, and scan timestamps in ascending order.
func (s *Stats) SessionStats(ctx context.Context) ([]SessionStat, error) {
	sessions, err := s.sessions(ctx)
	if err != nil {
		return nil, err
	}

	var out []SessionStat
	for _, sess := range sessions {
		scans, err := s.scans(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		stat := SessionStat{Subject: sess.Subject, TotalAttendees: len(scans)}
		for _, rec := range scans {
			stat.ScanTimestamps = append(stat.ScanTimestamps, rec.Timestamp)
		}
		sort.Slice(stat.ScanTimestamps, func(i, j int) bool {
			return stat.ScanTimestamps[i].Before(stat.ScanTimestamps[j])
		})
		out = append(out, stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// GroupedByDate returns every session on record grouped by the calendar date
// of its start, with per-session attendance for the given student id. Entries
// within a day are ordered by start time.
func (s *Stats) GroupedByDate(ctx context.Context, studentID string) (map[string][]DayEntry, error) {
	sessions, err := s.sessions(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartsAt.Before(sessions[j].StartsAt) })

	grouped := make(map[string][]DayEntry)
	for _, sess := range sessions {
		scans, err := s.scans(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		_, attended := scans[studentID]

		entry := DayEntry{
			Subject:   sess.Subject,
			TimeRange: sess.StartsAt.Format("15:04") + " - " + sess.ExpiresAt.Format("15:04"),
			Attended:  attended,
		}
		date := sess.StartsAt.Format(dateFormat)
		grouped[date] = append(grouped[date], entry)
	}
	return grouped, nil
}

// sessions lists all session documents, skipping any that do not decode.
func (s *Stats) sessions(ctx context.Context) ([]session.Session, error) {
	docs, err := s.store.List(ctx, session.Collection)
	if err != nil {
		return nil, err
	}
	out := make([]session.Session, 0, len(docs))
	for key, raw := range docs {
		var sess session.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			log.Printf("stats: skipping undecodable session %q: %v", key, err)
			continue
		}
		if sess.ID == "" {
			sess.ID = key
		}
		out = append(out, sess)
	}
	return out, nil
}

// scans returns the session's scan records keyed by student id.
func (s *Stats) scans(ctx context.Context, sessionID string) (map[string]Record, error) {
	docs, err := s.store.List(ctx, session.ScansCollection(sessionID))
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(docs))
	for key, raw := range docs {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Printf("stats: skipping undecodable scan %q under %q: %v", key, sessionID, err)
			continue
		}
		out[key] = rec
	}
	return out, nil
}
