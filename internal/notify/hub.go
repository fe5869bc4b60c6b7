// Package notify delivers per-user journal events, such as a finished
// summary, to the user's open event streams.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// Event types.
const (
	EventSummaryReady  = "summary_ready"
	EventSummaryFailed = "summary_failed"
	EventEntrySaved    = "entry_saved"
	EventEntryDeleted  = "entry_deleted"
)

// Event is the payload sent to subscribers and over the relay.
type Event struct {
	Type      string               `json:"type"`
	UserID    string               `json:"user_id,omitempty"`
	EntryID   int64                `json:"entry_id,omitempty"`
	Entry     *models.JournalEntry `json:"entry,omitempty"`
	Summary   *models.Summary      `json:"summary,omitempty"`
	Error     *apperr.View         `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Publisher accepts events for a user.
type Publisher interface {
	Publish(ctx context.Context, userID string, ev Event) error
}

const subscriberBuffer = 16

type subscriber struct {
	ch chan Event
}

// Hub fans events out to the subscribers of this process.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
	log  zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*subscriber]struct{}),
		log:  logger.WithComponent("notify"),
	}
}

// Subscribe registers a stream for userID. The returned cancel func
// unregisters it and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], sub)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(sub.ch)
			h.mu.Unlock()
		})
	}
}

// Publish delivers ev to every local subscriber of userID. Slow
// subscribers miss events rather than block the publisher.
func (h *Hub) Publish(_ context.Context, userID string, ev Event) error {
	ev.UserID = userID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn().
				Str("user_id", userID).
				Str("event", ev.Type).
				Msg("subscriber too slow, event dropped")
		}
	}
	return nil
}

// Subscribers returns the number of local streams for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
