package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/pkg/models"
)

const classifySystemPrompt = `You classify writing tasks for a writing assistant.
Respond with a single JSON object and nothing else:
{"content_type": "draft|edit|summary|research|review",
 "complexity": "low|medium|high|expert",
 "domain": "<short lowercase tag, e.g. legal, technical, marketing>",
 "mode": "single|sequential|parallel|collaborative",
 "confidence": <0.0-1.0>}`

// LLMBackend samples classifications from a completion backend.
type LLMBackend struct {
	backend provider.Backend
}

// NewLLMBackend creates a classification sampler on top of a completion
// backend.
func NewLLMBackend(backend provider.Backend) *LLMBackend {
	return &LLMBackend{backend: backend}
}

// Sample asks the model for one classification of the task.
func (l *LLMBackend) Sample(ctx context.Context, task models.Task) (models.Classification, error) {
	prompt := fmt.Sprintf("Classify this writing task:\n\n%s", task.Description)
	if task.DomainHint != "" {
		prompt += fmt.Sprintf("\n\nThe requester tagged the domain as: %s", task.DomainHint)
	}

	res, err := l.backend.Complete(ctx, provider.Request{
		System:    classifySystemPrompt,
		Prompt:    prompt,
		MaxTokens: 512,
	})
	if err != nil {
		return models.Classification{}, err
	}

	return parseClassification(res.Text)
}

// parseClassification extracts and validates the JSON object in the model's
// reply. Replies often carry prose around the JSON, so it scans for the
// outermost braces.
func parseClassification(text string) (models.Classification, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.Classification{}, fmt.Errorf("no JSON object in classification reply")
	}

	var raw struct {
		ContentType string  `json:"content_type"`
		Complexity  string  `json:"complexity"`
		Domain      string  `json:"domain"`
		Mode        string  `json:"mode"`
		Confidence  float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return models.Classification{}, fmt.Errorf("parse classification reply: %w", err)
	}

	cls := models.Classification{
		ContentType: models.ContentType(strings.ToLower(raw.ContentType)),
		Complexity:  models.Complexity(strings.ToLower(raw.Complexity)),
		Domain:      strings.ToLower(strings.TrimSpace(raw.Domain)),
		Mode:        models.CollaborationMode(strings.ToLower(raw.Mode)),
		Confidence:  raw.Confidence,
	}
	if !cls.ContentType.Valid() {
		return models.Classification{}, fmt.Errorf("invalid content type %q in reply", raw.ContentType)
	}
	if !cls.Complexity.Valid() {
		cls.Complexity = models.ComplexityMedium
	}
	if !cls.Mode.Valid() {
		cls.Mode = models.ModeSingle
	}
	if cls.Domain == "" {
		cls.Domain = "general"
	}
	if cls.Confidence < 0 {
		cls.Confidence = 0
	}
	if cls.Confidence > 1 {
		cls.Confidence = 1
	}
	return cls, nil
}
