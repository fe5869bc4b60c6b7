package summary

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// Template is one canned summary.
type Template struct {
	Mood         models.Mood `yaml:"mood"`
	Sentiment    float64     `yaml:"sentiment"`
	MainThoughts []string    `yaml:"main_thoughts"`
	KeyInsights  string      `yaml:"key_insights"`
	ActionItems  []string    `yaml:"action_items"`
	Topics       []string    `yaml:"topics"`
}

// Summary returns a copy of t as a summary generated at.
func (t Template) Summary(at time.Time, generator string) models.Summary {
	return models.Summary{
		Mood:         t.Mood,
		MainThoughts: append([]string(nil), t.MainThoughts...),
		KeyInsights:  t.KeyInsights,
		ActionItems:  append([]string(nil), t.ActionItems...),
		Topics:       append([]string(nil), t.Topics...),
		Sentiment:    t.Sentiment,
		GeneratedAt:  at,
		Generator:    generator,
	}
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// ParseTemplates decodes and validates a YAML template document.
func ParseTemplates(data []byte) ([]Template, error) {
	var doc templateFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	if len(doc.Templates) == 0 {
		return nil, errors.New("no templates defined")
	}
	for i, t := range doc.Templates {
		if err := validateSummary(t.Summary(time.Time{}, "")); err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
	}
	return doc.Templates, nil
}

// DefaultTemplates returns the built-in set.
func DefaultTemplates() []Template {
	ts, err := ParseTemplates(defaultTemplatesYAML)
	if err != nil {
		panic(err)
	}
	return ts
}

// TemplateSet holds the active templates. With a path it loads them from a
// file and can follow edits to it.
type TemplateSet struct {
	mu        sync.RWMutex
	templates []Template
	path      string
	log       zerolog.Logger
}

// NewTemplateSet loads templates from path, or the built-in set when path
// is empty.
func NewTemplateSet(path string) (*TemplateSet, error) {
	s := &TemplateSet{path: path, log: logger.WithComponent("summary.templates")}
	if path == "" {
		s.templates = DefaultTemplates()
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the active templates.
func (s *TemplateSet) Get() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates
}

// Reload re-reads the file. A bad file leaves the current set in place.
func (s *TemplateSet) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read templates: %w", err)
	}
	ts, err := ParseTemplates(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.templates = ts
	s.mu.Unlock()
	s.log.Info().Str("path", s.path).Int("count", len(ts)).Msg("summary templates loaded")
	return nil
}

// Watch reloads the set whenever the file changes, until ctx is done.
func (s *TemplateSet) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch templates: %w", err)
	}
	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *TemplateSet) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				if err := s.Reload(); err != nil {
					s.log.Error().Err(err).Str("path", s.path).Msg("template reload failed")
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Error().Err(err).Msg("template watcher error")
		}
	}
}
