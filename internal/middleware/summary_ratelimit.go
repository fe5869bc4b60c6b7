package middleware

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/AnshRaj112/daily-journal-backend/internal/session"
	"github.com/AnshRaj112/daily-journal-backend/pkg/clientip"
)

// Summary requests are limited per user: 6/min, burst 3.
const (
	summaryRPS   = 0.1
	summaryBurst = 3
)

// SummaryLimiter throttles summary generation requests per signed-in user,
// falling back to the client IP.
type SummaryLimiter struct {
	set *limiterSet
}

func NewSummaryLimiter() *SummaryLimiter {
	return &SummaryLimiter{set: newLimiterSet(rate.Limit(summaryRPS), summaryBurst)}
}

// Sweep forgets users idle for longer than ttl.
func (l *SummaryLimiter) Sweep(ttl time.Duration) int { return l.set.sweep(ttl) }

// Limit applies only to POST requests; reading a summary is not limited.
func (l *SummaryLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		key := "ip:" + clientip.RealClientIP(r)
		if sc, ok := session.FromContext(r.Context()); ok {
			key = "user:" + sc.UserID()
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(summaryBurst))
		if !l.set.allow(key) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			writeError(w, http.StatusTooManyRequests, "Too many summary requests. Please slow down.", "RATE_LIMITED")
			return
		}
		next.ServeHTTP(w, r)
	})
}
