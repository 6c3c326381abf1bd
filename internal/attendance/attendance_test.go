package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"classattend/internal/docstore"
	"classattend/internal/netinfo"
	"classattend/internal/queue"
	"classattend/internal/session"
)

type stubNet struct {
	ip  string
	err error
}

func (s stubNet) CurrentIP(ctx context.Context) (string, error) {
	return s.ip, s.err
}

var base = time.Date(2025, time.April, 7, 10, 0, 0, 0, time.UTC)

func openSession(t *testing.T, store docstore.Store, subject string, startsAt, expiresAt time.Time) {
	t.Helper()
	sess := session.Session{
		ID:        subject,
		IP:        "10.0.0.1",
		Subject:   subject,
		StartsAt:  startsAt,
		ExpiresAt: expiresAt,
	}
	if err := store.Set(context.Background(), session.Collection, subject, sess); err != nil {
		t.Fatalf("Set session: %v", err)
	}
}

func TestRecord(t *testing.T) {
	store := docstore.NewMemory()
	events := queue.NewInMemory(4)
	rec := NewRecorder(store, stubNet{ip: "10.0.0.42"}, events)
	ctx := context.Background()

	openSession(t, store, "Networks 731", base, base.Add(time.Hour))

	got, err := rec.Record(ctx, "uid-1", "Asha Naidoo", "Networks 731", base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got.StudentID != "uid-1" || got.Name != "Asha Naidoo" || got.IP != "10.0.0.42" {
		t.Errorf("record = %+v", got)
	}

	var stored Record
	if err := store.Get(ctx, session.ScansCollection("Networks 731"), "uid-1", &stored); err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored != got {
		t.Errorf("stored %+v != returned %+v", stored, got)
	}

	// The scan event reaches the audit queue.
	msgs, err := events.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case evt := <-msgs:
		if evt.Subject != "Networks 731" || evt.StudentID != "uid-1" {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Error("no scan event published")
	}
}

func TestRecordResubmissionOverwrites(t *testing.T) {
	store := docstore.NewMemory()
	rec := NewRecorder(store, stubNet{ip: "10.0.0.42"}, nil)
	ctx := context.Background()

	openSession(t, store, "Networks 731", base, base.Add(time.Hour))

	if _, err := rec.Record(ctx, "uid-1", "Asha Naidoo", "Networks 731", base.Add(time.Minute)); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	later := base.Add(10 * time.Minute)
	if _, err := rec.Record(ctx, "uid-1", "Asha Naidoo", "Networks 731", later); err != nil {
		t.Fatalf("second Record: %v", err)
	}

	docs, err := store.List(ctx, session.ScansCollection("Networks 731"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d records, want 1 (overwrite, not duplicate)", len(docs))
	}

	var stored Record
	if err := store.Get(ctx, session.ScansCollection("Networks 731"), "uid-1", &stored); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.Timestamp.Equal(later) {
		t.Errorf("timestamp = %v, want the later scan %v", stored.Timestamp, later)
	}
}

func TestRecordSessionNotFound(t *testing.T) {
	rec := NewRecorder(docstore.NewMemory(), stubNet{ip: "10.0.0.42"}, nil)
	_, err := rec.Record(context.Background(), "uid-1", "Asha Naidoo", "Networks 731", base)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Record = %v, want ErrSessionNotFound", err)
	}
}

func TestRecordExpiryBoundary(t *testing.T) {
	store := docstore.NewMemory()
	rec := NewRecorder(store, stubNet{ip: "10.0.0.42"}, nil)
	ctx := context.Background()

	expiry := time.Date(2025, time.April, 7, 10, 30, 0, 0, time.UTC)
	openSession(t, store, "Networks 731", expiry.Add(-time.Hour), expiry)

	cases := []struct {
		name    string
		now     time.Time
		wantErr error
	}{
		{"just before expiry", expiry.Add(-time.Second), nil},
		{"exactly at expiry", expiry, ErrSessionExpired},
		{"after expiry", expiry.Add(time.Second), ErrSessionExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := rec.Record(ctx, "uid-"+tc.name, "Asha Naidoo", "Networks 731", tc.now)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Record at %v = %v, want %v", tc.now, err, tc.wantErr)
			}
		})
	}
}

func TestRecordNetworkUnavailable(t *testing.T) {
	store := docstore.NewMemory()
	rec := NewRecorder(store, stubNet{err: netinfo.ErrUnavailable}, nil)
	ctx := context.Background()

	openSession(t, store, "Networks 731", base, base.Add(time.Hour))

	_, err := rec.Record(ctx, "uid-1", "Asha Naidoo", "Networks 731", base.Add(time.Minute))
	if !errors.Is(err, netinfo.ErrUnavailable) {
		t.Fatalf("Record = %v, want ErrUnavailable", err)
	}

	// Address failure is fatal; no record without an origin IP.
	docs, err := store.List(ctx, session.ScansCollection("Networks 731"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("record written despite address failure")
	}
}

func TestHistory(t *testing.T) {
	store := docstore.NewMemory()
	rec := NewRecorder(store, stubNet{ip: "10.0.0.42"}, nil)
	stats := NewStats(store)
	ctx := context.Background()

	openSession(t, store, "Networks 731", base, base.Add(time.Hour))
	openSession(t, store, "Machine Learning 700", base.Add(2*time.Hour), base.Add(3*time.Hour))
	openSession(t, store, "PROG-JAVA 731", base.Add(4*time.Hour), base.Add(5*time.Hour))

	if _, err := rec.Record(ctx, "uid-1", "Asha Naidoo", "Machine Learning 700", base.Add(2*time.Hour+time.Minute)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := rec.Record(ctx, "uid-1", "Asha Naidoo", "Networks 731", base.Add(time.Minute)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := rec.Record(ctx, "uid-2", "Ben Okafor", "PROG-JAVA 731", base.Add(4*time.Hour+time.Minute)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := stats.History(ctx, "Asha Naidoo")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(got), got)
	}
	// Ordered by scan time.
	if got[0].Subject != "Networks 731" || got[1].Subject != "Machine Learning 700" {
		t.Errorf("history order = [%s, %s]", got[0].Subject, got[1].Subject)
	}

	none, err := stats.History(ctx, "Nobody")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown student has history: %+v", none)
	}
}

func TestSessionStats(t *testing.T) {
	store := docstore.NewMemory()
	rec := NewRecorder(store, stubNet{ip: "10.0.0.42"}, nil)
	stats := NewStats(store)
	ctx := context.Background()

	openSession(t, store, "Networks 731", base, base.Add(time.Hour))
	openSession(t, store, "Machine Learning 700", base, base.Add(time.Hour))

	if _, err := rec.Record(ctx, "uid-1", "Asha Naidoo", "Networks 731", base.Add(time.Minute)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := rec.Record(ctx, "uid-2", "Ben Okafor", "Networks 731", base.Add(2*time.Minute)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := stats.SessionStats(ctx)
	if err != nil {
		t.Fatalf("SessionStats: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sessions, want 2", len(got))
	}
	// Sorted by subject: Machine Learning before Networks.
	if got[0].Subject != "Machine Learning 700" || got[0].TotalAttendees != 0 {
		t.Errorf("stat[0] = %+v", got[0])
	}
	if got[1].Subject != "Networks 731" || got[1].TotalAttendees != 2 {
		t.Errorf("stat[1] = %+v", got[1])
	}
	if len(got[1].ScanTimestamps) != 2 || !got[1].ScanTimestamps[0].Before(got[1].ScanTimestamps[1]) {
		t.Errorf("scan timestamps unordered: %v", got[1].ScanTimestamps)
	}
}

func TestGroupedByDate(t *testing.T) {
	store := docstore.NewMemory()
	rec := NewRecorder(store, stubNet{ip: "10.0.0.42"}, nil)
	stats := NewStats(store)
	ctx := context.Background()

	nextDay := base.AddDate(0, 0, 1)
	openSession(t, store, "Networks 731", base, base.Add(time.Hour))
	openSession(t, store, "Machine Learning 700", nextDay, nextDay.Add(time.Hour))

	if _, err := rec.Record(ctx, "uid-1", "Asha Naidoo", "Networks 731", base.Add(time.Minute)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := stats.GroupedByDate(ctx, "uid-1")
	if err != nil {
		t.Fatalf("GroupedByDate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d dates, want 2: %v", len(got), got)
	}

	day1 := got[base.Format("Mon Jan 02 2006")]
	if len(day1) != 1 || !day1[0].Attended || day1[0].Subject != "Networks 731" {
		t.Errorf("day1 = %+v", day1)
	}
	if day1[0].TimeRange != "10:00 - 11:00" {
		t.Errorf("time range = %q", day1[0].TimeRange)
	}

	day2 := got[nextDay.Format("Mon Jan 02 2006")]
	if len(day2) != 1 || day2[0].Attended {
		t.Errorf("day2 = %+v, want unattended entry", day2)
	}
}
