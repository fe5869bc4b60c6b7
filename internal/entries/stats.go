package entries

import (
	"math"
	"sort"
	"time"

	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

const weekWindow = 7 * 24 * time.Hour

// Mood labels reported by AvgMood.
const (
	MoodVeryPositive = "Very Positive"
	MoodPositive     = "Positive"
	MoodNeutral      = "Neutral"
	MoodReflective   = "Reflective"
)

// ComputeStats derives the dashboard figures for entries as of asOf.
func ComputeStats(entries []models.JournalEntry, asOf time.Time) models.Stats {
	return models.Stats{
		TotalEntries:  len(entries),
		ThisWeek:      CountSince(entries, asOf.Add(-weekWindow)),
		LongestStreak: LongestStreak(entries, asOf),
		AvgMood:       AvgMood(entries),
	}
}

// CountSince counts entries created at or after since.
func CountSince(entries []models.JournalEntry, since time.Time) int {
	n := 0
	for _, e := range entries {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n
}

// LongestStreak walks entries newest first, measuring each one's distance in
// calendar days from asOf. An entry extends the streak when that distance
// equals the current streak or the current streak plus one; the first entry
// that does neither ends the walk. Two entries on the same day therefore
// stop the count at the second one.
func LongestStreak(entries []models.JournalEntry, asOf time.Time) int {
	if len(entries) == 0 {
		return 0
	}
	sorted := make([]models.JournalEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	loc := asOf.Location()
	anchor := startOfDay(asOf, loc)

	current, longest := 0, 0
	for _, e := range sorted {
		diff := daysBetween(startOfDay(e.CreatedAt, loc), anchor)
		if diff != current && diff != current+1 {
			break
		}
		current++
		longest = max(longest, current)
	}
	return longest
}

// AvgMood labels the mean sentiment over entries that carry a summary.
func AvgMood(entries []models.JournalEntry) string {
	var sum float64
	n := 0
	for _, e := range entries {
		if e.Summary == nil {
			continue
		}
		sum += e.Summary.Sentiment
		n++
	}
	if n == 0 {
		return MoodNeutral
	}
	return MoodLabel(sum / float64(n))
}

// MoodLabel maps an average sentiment onto its label.
func MoodLabel(avg float64) string {
	switch {
	case avg >= 0.7:
		return MoodVeryPositive
	case avg >= 0.4:
		return MoodPositive
	case avg >= 0.2:
		return MoodNeutral
	default:
		return MoodReflective
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// daysBetween rounds so DST transitions do not shift the count.
func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}
