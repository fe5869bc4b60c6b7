package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
	"github.com/AnshRaj112/daily-journal-backend/pkg/utils"
)

// LLMGenerator asks a chat model for a summary in JSON.
type LLMGenerator struct {
	runnable compose.Runnable[map[string]any, *schema.Message]
	now      func() time.Time
}

// NewLLMGenerator compiles the prompt chain around chatModel.
func NewLLMGenerator(ctx context.Context, chatModel model.ChatModel) (*LLMGenerator, error) {
	if chatModel == nil {
		return nil, errors.New("summary: chat model is required")
	}
	tmpl := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage(summaryUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(tmpl)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile summary chain: %w", err)
	}
	return &LLMGenerator{runnable: runnable, now: time.Now}, nil
}

func (g *LLMGenerator) Name() string { return "llm" }

func (g *LLMGenerator) Generate(ctx context.Context, entry models.JournalEntry) (models.Summary, error) {
	msg, err := g.runnable.Invoke(ctx, map[string]any{"entry": describeEntry(entry)})
	if err != nil {
		return models.Summary{}, apperr.Wrap(apperr.CodeSummaryGenerationFailed, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return models.Summary{}, apperr.Wrap(apperr.CodeSummaryGenerationFailed, errors.New("empty model response"))
	}
	s, err := parseSummary(msg.Content)
	if err != nil {
		return models.Summary{}, apperr.Wrap(apperr.CodeSummaryGenerationFailed, err)
	}
	s.GeneratedAt = g.now().UTC()
	s.Generator = g.Name()
	return s, nil
}

type summaryPayload struct {
	Mood         string   `json:"mood"`
	MainThoughts []string `json:"main_thoughts"`
	KeyInsights  string   `json:"key_insights"`
	ActionItems  []string `json:"action_items"`
	Topics       []string `json:"topics"`
	Sentiment    float64  `json:"sentiment"`
}

// parseSummary extracts the JSON object from a model reply.
func parseSummary(content string) (models.Summary, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end <= start {
		return models.Summary{}, errors.New("missing json object")
	}

	var p summaryPayload
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &p); err != nil {
		return models.Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	s := models.Summary{
		Mood:         models.Mood(strings.TrimSpace(p.Mood)),
		MainThoughts: p.MainThoughts,
		KeyInsights:  strings.TrimSpace(p.KeyInsights),
		ActionItems:  p.ActionItems,
		Topics:       p.Topics,
		Sentiment:    p.Sentiment,
	}
	if err := validateSummary(s); err != nil {
		return models.Summary{}, err
	}
	return s, nil
}

func describeEntry(e models.JournalEntry) string {
	parts := []string{
		"source: " + string(e.Source),
		"recorded: " + e.CreatedAt.Format(time.RFC1123),
	}
	if e.DurationSeconds != nil {
		parts = append(parts, "duration: "+utils.FormatDuration(*e.DurationSeconds))
	}
	if e.File != nil {
		parts = append(parts, "file: "+e.File.Name, "size: "+utils.FormatFileSize(e.File.ByteSize))
	}
	return strings.Join(parts, "\n")
}

const summarySystemPrompt = "You write short, kind reflections on a personal video journal entry. " +
	"Reply with one JSON object and nothing else. Fields: mood (one of Reflective, Optimistic, Contemplative, Grateful, Anxious), " +
	"main_thoughts (3 to 5 short sentences), key_insights (one or two sentences), action_items (3 to 5 short imperatives), " +
	"topics (2 to 5 lowercase phrases), sentiment (number between 0 and 1)."

const summaryUserPrompt = "Journal entry:\n{entry}\n\nReturn the JSON summary."
