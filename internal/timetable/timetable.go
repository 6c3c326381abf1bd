// Package timetable resolves which subjects are scheduled when, from weekly
// timetable documents. Each weekday document maps "HH:MM-HH:MM" range strings
// to the subjects taught in that range. Ranges within one day may overlap;
// a subject is conventionally scheduled at most once per day, but this is not
// enforced and the first matching range wins.
package timetable

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"classattend/internal/docstore"
)

// Collection is the docstore collection holding one document per weekday.
const Collection = "timetable"

// ErrNotScheduled is returned when a subject has no slot on the given day.
var ErrNotScheduled = errors.New("subject not scheduled today")

// Slot is a resolved timetable entry with its bounds anchored to a concrete
// date.
type Slot struct {
	StartsAt  time.Time
	ExpiresAt time.Time
}

// Resolver answers schedule queries against the timetable collection.
type Resolver struct {
	store docstore.Store
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(store docstore.Store) *Resolver {
	return &Resolver{store: store}
}

// day holds one weekday's raw timetable document.
type day map[string][]string

// CurrentSubjects returns every subject whose slot contains the time-of-day
// of now, on now's weekday. Both range endpoints are inclusive. An empty
// result is not an error.
func (r *Resolver) CurrentSubjects(ctx context.Context, now time.Time) ([]string, error) {
	var tt day
	if err := r.store.Get(ctx, Collection, now.Weekday().String(), &tt); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	seen := make(map[string]bool)
	var subjects []string
	for _, rangeKey := range sortedKeys(tt) {
		start, end, err := parseRange(rangeKey, now)
		if err != nil {
			log.Printf("timetable: skipping malformed range %q for %s: %v", rangeKey, now.Weekday(), err)
			continue
		}
		if now.Before(start) || now.After(end) {
			continue
		}
		for _, s := range tt[rangeKey] {
			if !seen[s] {
				seen[s] = true
				subjects = append(subjects, s)
			}
		}
	}
	sort.Strings(subjects)
	return subjects, nil
}

// SlotFor returns the slot bounds for subject on now's weekday, anchored to
// now's date. Range keys are scanned in sorted order and the first range
// listing the subject wins; a subject appearing in two ranges on one day is a
// malformed timetable, not an error. Returns ErrNotScheduled when no range
// lists the subject.
func (r *Resolver) SlotFor(ctx context.Context, subject string, now time.Time) (Slot, error) {
	var tt day
	if err := r.store.Get(ctx, Collection, now.Weekday().String(), &tt); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Slot{}, ErrNotScheduled
		}
		return Slot{}, err
	}

	for _, rangeKey := range sortedKeys(tt) {
		if !contains(tt[rangeKey], subject) {
			continue
		}
		start, end, err := parseRange(rangeKey, now)
		if err != nil {
			log.Printf("timetable: skipping malformed range %q for %s: %v", rangeKey, now.Weekday(), err)
			continue
		}
		return Slot{StartsAt: start, ExpiresAt: end}, nil
	}
	return Slot{}, ErrNotScheduled
}

// Ranges returns the raw timetable document for the given weekday. Used by
// live views; returns an empty document when the day has none.
func (r *Resolver) Ranges(ctx context.Context, weekday time.Weekday) (map[string][]string, error) {
	var tt day
	if err := r.store.Get(ctx, Collection, weekday.String(), &tt); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return map[string][]string{}, nil
		}
		return nil, err
	}
	return tt, nil
}

// parseRange converts "HH:MM-HH:MM" into concrete timestamps on anchor's
// date, in anchor's location.
func parseRange(rangeKey string, anchor time.Time) (time.Time, time.Time, error) {
	parts := strings.SplitN(rangeKey, "-", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("want HH:MM-HH:MM, got %q", rangeKey)
	}
	start, err := atTimeOfDay(parts[0], anchor)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := atTimeOfDay(parts[1], anchor)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func atTimeOfDay(hhmm string, anchor time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(anchor.Year(), anchor.Month(), anchor.Day(), t.Hour(), t.Minute(), 0, 0, anchor.Location()), nil
}

func sortedKeys(tt day) []string {
	keys := make([]string, 0, len(tt))
	for k := range tt {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
