// Package classify assigns every RawItem a type from the fixed taxonomy.
//
// The policy, in order:
//  1. Social sources are authoritative: social_post at confidence 1.0.
//  2. Keyword rules over title, summary and type hint: confidence 0.9.
//  3. With a completion service configured, its validated verdict is used
//     verbatim.
//  4. When the service fails, the rule verdict (or the type hint, or
//     legislative) is used at confidence 0.5.
//
// Classify never returns an error.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/shawcc/trumpsword/internal/domain"
)

// Confidence levels assigned by the non-LLM steps.
const (
	ConfidenceSource   = 1.0
	ConfidenceRules    = 0.9
	ConfidenceFallback = 0.5
)

// Method values recorded on a Classification.
const (
	MethodSource   = "source"
	MethodRules    = "rules"
	MethodLLM      = "llm"
	MethodFallback = "fallback"
)

const maxSummaryRunes = 280

const systemPrompt = `You are a political analyst. Classify the item into exactly one of these types:
- "legislative": bills, resolutions, laws and votes in Congress
- "executive": executive orders, proclamations, memoranda and other presidential actions
- "appointment": nominations, appointments and confirmations of officials
- "social_post": statements published on social media

Also write a one or two sentence summary and list the key people, bodies and places involved.
Respond with a single JSON object and nothing else:
{"type": "...", "confidence": 0.0, "summary": "...", "entities": ["..."]}`

// Classifier applies the classification policy.
type Classifier struct {
	llm    Completer
	logger *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithCompleter enables the completion-service step.
func WithCompleter(c Completer) Option {
	return func(cl *Classifier) { cl.llm = c }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cl *Classifier) { cl.logger = l }
}

// New creates a Classifier. Without WithCompleter only the rules run.
func New(opts ...Option) *Classifier {
	c := &Classifier{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the verdict for item.
func (c *Classifier) Classify(ctx context.Context, item domain.RawItem) domain.Classification {
	if item.Source.IsSocial() {
		return domain.Classification{
			Type:       domain.TypeSocialPost,
			Confidence: ConfidenceSource,
			Summary:    truncate(firstNonEmpty(item.Summary, item.Content, item.Title)),
			Entities:   postEntities(item),
			Method:     MethodSource,
		}
	}

	ruleType, entities, matched := matchRules(item)

	if c.llm != nil {
		verdict, err := c.askLLM(ctx, item)
		if err == nil {
			return verdict
		}
		c.logger.Warn("classification service failed, using rules",
			"source", item.Source, "title", item.Title, "error", err)
		return domain.Classification{
			Type:       fallbackType(ruleType, matched, item.TypeHint),
			Confidence: ConfidenceFallback,
			Summary:    fmt.Sprintf("Automatic analysis unavailable (%v); classified by keyword rules.", err),
			Entities:   entities,
			Method:     MethodFallback,
		}
	}

	if matched {
		return domain.Classification{
			Type:       ruleType,
			Confidence: ConfidenceRules,
			Summary:    truncate(firstNonEmpty(item.Summary, item.Title)),
			Entities:   entities,
			Method:     MethodRules,
		}
	}
	return domain.Classification{
		Type:       fallbackType("", false, item.TypeHint),
		Confidence: ConfidenceFallback,
		Summary:    truncate(firstNonEmpty(item.Summary, item.Title)),
		Entities:   entities,
		Method:     MethodFallback,
	}
}

func (c *Classifier) askLLM(ctx context.Context, item domain.RawItem) (domain.Classification, error) {
	user := fmt.Sprintf("Source: %s\nTitle: %s\nContent: %s", item.Source, item.Title, item.Text())
	reply, err := c.llm.Complete(ctx, systemPrompt, user)
	if err != nil {
		return domain.Classification{}, err
	}
	return parseVerdict(reply)
}

// parseVerdict decodes and validates a service reply.
func parseVerdict(reply string) (domain.Classification, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return domain.Classification{}, fmt.Errorf("reply contains no JSON object")
	}

	var v struct {
		Type       string   `json:"type"`
		Confidence *float64 `json:"confidence"`
		Summary    string   `json:"summary"`
		Entities   []string `json:"entities"`
		// Older prompts asked for this key.
		ExtractedEntities []string `json:"extracted_entities"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return domain.Classification{}, fmt.Errorf("malformed reply: %w", err)
	}

	typ := domain.EventType(strings.ToLower(strings.TrimSpace(v.Type)))
	if !typ.Valid() {
		return domain.Classification{}, fmt.Errorf("reply type %q is not in the taxonomy", v.Type)
	}
	if v.Confidence == nil {
		return domain.Classification{}, fmt.Errorf("reply has no confidence")
	}
	if conf := *v.Confidence; math.IsNaN(conf) || conf < 0 || conf > 1 {
		return domain.Classification{}, fmt.Errorf("reply confidence %v outside [0,1]", conf)
	}

	entities := v.Entities
	if entities == nil {
		entities = v.ExtractedEntities
	}
	if entities == nil {
		entities = []string{}
	}
	return domain.Classification{
		Type:       typ,
		Confidence: *v.Confidence,
		Summary:    v.Summary,
		Entities:   entities,
		Method:     MethodLLM,
	}, nil
}

func fallbackType(ruleType domain.EventType, matched bool, hint domain.EventType) domain.EventType {
	if matched {
		return ruleType
	}
	if hint.Valid() {
		return hint
	}
	return domain.TypeLegislative
}

func postEntities(item domain.RawItem) []string {
	if item.Post != nil && item.Post.Author != "" {
		return []string{item.Post.Author}
	}
	return []string{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxSummaryRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxSummaryRunes-1]) + "…"
}
