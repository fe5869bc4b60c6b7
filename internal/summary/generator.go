// Package summary produces the reflective summary shown beside a journal
// entry. Generation is a pluggable strategy; the default one returns a
// canned template after a simulated delay.
package summary

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// Generator produces a summary for an entry. Failures carry
// apperr.CodeSummaryGenerationFailed.
type Generator interface {
	Generate(ctx context.Context, entry models.JournalEntry) (models.Summary, error)
	Name() string
}

// Mock generation defaults.
const (
	DefaultMinDelay = 2 * time.Second
	DefaultMaxDelay = 4 * time.Second
)

// MockGenerator waits a random delay and returns a random template. It
// ignores the entry content.
type MockGenerator struct {
	templates   *TemplateSet
	minDelay    time.Duration
	maxDelay    time.Duration
	failureRate float64
	rnd         func() float64
	sleep       func(context.Context, time.Duration) error
	now         func() time.Time
}

type MockOption func(*MockGenerator)

// WithDelay sets the latency bounds.
func WithDelay(lo, hi time.Duration) MockOption {
	return func(g *MockGenerator) {
		if hi < lo {
			hi = lo
		}
		g.minDelay, g.maxDelay = lo, hi
	}
}

// WithFailureRate makes a fraction of generations fail.
func WithFailureRate(rate float64) MockOption {
	return func(g *MockGenerator) { g.failureRate = rate }
}

// WithRand replaces the [0,1) random source.
func WithRand(rnd func() float64) MockOption {
	return func(g *MockGenerator) { g.rnd = rnd }
}

// WithSleep replaces the delay function.
func WithSleep(sleep func(context.Context, time.Duration) error) MockOption {
	return func(g *MockGenerator) { g.sleep = sleep }
}

func WithNow(now func() time.Time) MockOption {
	return func(g *MockGenerator) { g.now = now }
}

func NewMockGenerator(templates *TemplateSet, opts ...MockOption) *MockGenerator {
	g := &MockGenerator{
		templates: templates,
		minDelay:  DefaultMinDelay,
		maxDelay:  DefaultMaxDelay,
		rnd:       rand.Float64,
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *MockGenerator) Name() string { return "mock" }

func (g *MockGenerator) Generate(ctx context.Context, _ models.JournalEntry) (models.Summary, error) {
	delay := g.minDelay + time.Duration(g.rnd()*float64(g.maxDelay-g.minDelay))
	if err := g.sleep(ctx, delay); err != nil {
		return models.Summary{}, apperr.Wrap(apperr.CodeSummaryGenerationFailed, err)
	}
	if g.failureRate > 0 && g.rnd() < g.failureRate {
		return models.Summary{}, apperr.New(apperr.CodeSummaryGenerationFailed)
	}
	ts := g.templates.Get()
	i := int(g.rnd() * float64(len(ts)))
	if i >= len(ts) {
		i = len(ts) - 1
	}
	return ts[i].Summary(g.now().UTC(), g.Name()), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validateSummary(s models.Summary) error {
	switch {
	case !s.Mood.Valid():
		return errors.New("unknown mood " + string(s.Mood))
	case s.Sentiment < 0 || s.Sentiment > 1:
		return errors.New("sentiment out of range")
	case len(s.MainThoughts) == 0:
		return errors.New("main thoughts missing")
	case strings.TrimSpace(s.KeyInsights) == "":
		return errors.New("key insights missing")
	}
	return nil
}
