package timetable

import (
	"context"
	"fmt"
	"sort"

	"classattend/internal/docstore"
)

// SubjectsCollection holds one registry document per known subject. It is
// rebuilt from the timetable at seed time and lets clients validate subject
// names without scanning all seven weekday documents.
const SubjectsCollection = "subjects"

// SubjectEntry is a registry document.
type SubjectEntry struct {
	Name string `json:"name"`
}

// weeklyData is the built-in timetable written by Seed.
var weeklyData = map[string]map[string][]string{
	"Monday": {
		"08:30-09:30": {"Artificial Intelligence 700", "Networks 731"},
		"09:30-10:30": {"Networks 730"},
		"10:00-11:30": {"Machine Learning 700", "Programming 741"},
		"11:30-12:30": {"PROG-JAVA 731"},
		"12:30-13:30": {"Software Engineering 700"},
		"13:30-14:30": {"IT Strategic Management 731"},
		"14:30-15:30": {"Programming 741", "Cyber Security 700"},
	},
	"Tuesday": {
		"08:30-09:30": {"PROG-JAVA 731"},
		"09:30-10:30": {"Software Engineering 700"},
		"10:30-11:30": {"Networks 731", "Programming 741"},
		"11:30-12:30": {"IT Strategic Management 731"},
		"12:30-13:30": {"Software Engineering 700", "Machine Learning 700"},
		"13:30-14:30": {"Human Computer Interaction 700"},
		"14:30-15:30": {"Cyber Security 700", "Artificial Intelligence 700"},
	},
	"Wednesday": {
		"08:30-09:30": {"Networks 731", "Programming 741"},
		"09:30-10:30": {"IT Strategic Management 731"},
		"10:30-11:30": {"Software Engineering 700"},
		"11:30-12:30": {"PROG-JAVA 731"},
		"12:30-13:30": {"Artificial Intelligence 700"},
		"13:30-14:30": {"Human Computer Interaction 700"},
		"14:30-15:30": {"Cyber Security 700"},
	},
	"Thursday": {
		"08:30-09:30": {"Programming 741"},
		"09:30-10:30": {"Artificial Intelligence 700"},
		"10:30-11:30": {"Networks 731"},
		"11:30-12:30": {"PROG-JAVA 731"},
		"12:30-13:30": {"Machine Learning 700"},
		"13:30-14:30": {"IT Strategic Management 731", "Networks 731"},
	},
	"Friday": {
		"08:30-09:30": {"Cyber Security 700"},
		"09:30-10:30": {"Machine Learning 700"},
		"10:30-11:30": {"Programming 741"},
		"11:30-12:30": {"PROG-JAVA 731"},
		"12:30-13:30": {"Artificial Intelligence 700"},
		"13:30-14:30": {"Human Computer Interaction 700"},
		"14:30-15:30": {"Software Engineering 700"},
		"15:30-16:30": {"IT Strategic Management 731", "Networks 731"},
	},
	"Saturday": {
		"00:00-22:30": {"Cyber Security 700"},
	},
	"Sunday": {
		"00:00-22:30": {"Cyber Security 700"},
	},
}

// Seed writes the built-in weekly timetable, one document per weekday, and
// rebuilds the subject registry from every subject seen in any slot.
// Seeding is idempotent; weekday documents are overwritten wholesale.
func Seed(ctx context.Context, store docstore.Store) error {
	subjects := make(map[string]bool)

	for weekday, slots := range weeklyData {
		if err := store.Set(ctx, Collection, weekday, slots); err != nil {
			return fmt.Errorf("seed %s: %w", weekday, err)
		}
		for _, list := range slots {
			for _, s := range list {
				subjects[s] = true
			}
		}
	}

	names := make([]string, 0, len(subjects))
	for s := range subjects {
		names = append(names, s)
	}
	sort.Strings(names)
	for _, s := range names {
		if err := store.Set(ctx, SubjectsCollection, s, SubjectEntry{Name: s}); err != nil {
			return fmt.Errorf("seed subject %q: %w", s, err)
		}
	}
	return nil
}
