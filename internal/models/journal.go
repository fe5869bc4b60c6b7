package models

import (
	"sync"
	"time"
)

// Source records how a journal entry's video was produced.
type Source string

const (
	SourceRecorded Source = "recorded"
	SourceUploaded Source = "uploaded"
)

// Mood is the dominant emotional tone reported by a summary.
type Mood string

const (
	MoodReflective    Mood = "Reflective"
	MoodOptimistic    Mood = "Optimistic"
	MoodContemplative Mood = "Contemplative"
	MoodGrateful      Mood = "Grateful"
	MoodAnxious       Mood = "Anxious"
)

// Valid reports whether m is one of the known moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodReflective, MoodOptimistic, MoodContemplative, MoodGrateful, MoodAnxious:
		return true
	}
	return false
}

// FileMetadata describes an uploaded file. Recorded entries carry none.
type FileMetadata struct {
	Name        string `bson:"name" json:"name" yaml:"name"`
	ByteSize    int64  `bson:"byte_size" json:"byte_size" yaml:"byte_size"`
	ContentType string `bson:"content_type" json:"content_type" yaml:"content_type"`
}

// Summary is the generated reflection attached to an entry.
type Summary struct {
	Mood         Mood      `bson:"mood" json:"mood" yaml:"mood"`
	MainThoughts []string  `bson:"main_thoughts" json:"main_thoughts" yaml:"main_thoughts"`
	KeyInsights  string    `bson:"key_insights" json:"key_insights" yaml:"key_insights"`
	ActionItems  []string  `bson:"action_items" json:"action_items" yaml:"action_items"`
	Topics       []string  `bson:"topics" json:"topics" yaml:"topics"`
	Sentiment    float64   `bson:"sentiment" json:"sentiment" yaml:"sentiment"`
	GeneratedAt  time.Time `bson:"generated_at" json:"generated_at" yaml:"generated_at"`
	Generator    string    `bson:"generator,omitempty" json:"generator,omitempty" yaml:"generator,omitempty"`
}

// JournalEntry is one recorded or uploaded video in a user's journal.
// Entries are immutable once stored except for Summary.
type JournalEntry struct {
	ID              int64         `bson:"id" json:"id" yaml:"id"`
	BlobRef         string        `bson:"blob_ref" json:"blob_ref" yaml:"blob_ref"`
	CreatedAt       time.Time     `bson:"created_at" json:"created_at" yaml:"created_at"`
	Source          Source        `bson:"source" json:"source" yaml:"source"`
	File            *FileMetadata `bson:"file,omitempty" json:"file,omitempty" yaml:"file,omitempty"`
	DurationSeconds *int          `bson:"duration_seconds,omitempty" json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	MimeType        string        `bson:"mime_type,omitempty" json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	Summary         *Summary      `bson:"summary,omitempty" json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Stats are the dashboard figures derived from a collection.
type Stats struct {
	TotalEntries  int    `json:"total_entries" yaml:"total_entries"`
	ThisWeek      int    `json:"this_week" yaml:"this_week"`
	LongestStreak int    `json:"longest_streak" yaml:"longest_streak"`
	AvgMood       string `json:"avg_mood" yaml:"avg_mood"`
}

// IDSequence hands out entry ids derived from the wall clock in
// milliseconds, bumped when two saves land in the same millisecond.
type IDSequence struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDSequence returns a sequence reading time from now (time.Now when nil).
func NewIDSequence(now func() time.Time) *IDSequence {
	if now == nil {
		now = time.Now
	}
	return &IDSequence{now: now}
}

// Next returns an id strictly greater than every id returned before.
func (s *IDSequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}

// Observe raises the floor so ids loaded from storage are never reissued.
func (s *IDSequence) Observe(id int64) {
	s.mu.Lock()
	if id > s.last {
		s.last = id
	}
	s.mu.Unlock()
}
