package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/pkg/models"
)

// fakeBackend replays a scripted sequence of samples and errors.
type fakeBackend struct {
	samples []models.Classification
	errs    []error
	calls   int
}

func (f *fakeBackend) Sample(ctx context.Context, task models.Task) (models.Classification, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return models.Classification{}, f.errs[i]
	}
	if i >= len(f.samples) {
		i = len(f.samples) - 1
	}
	return f.samples[i], nil
}

func testCfg() config.ClassifierConfig {
	return config.ClassifierConfig{
		VoteThreshold:  0.7,
		HumanThreshold: 0.5,
		MaxSamples:     3,
	}
}

func TestClassifier_ConfidentFirstSample(t *testing.T) {
	backend := &fakeBackend{samples: []models.Classification{
		{ContentType: models.ContentTypeDraft, Complexity: models.ComplexityMedium, Domain: "legal", Mode: models.ModeSingle, Confidence: 0.9},
	}}
	c := New(backend, testCfg())

	got, err := c.Classify(context.Background(), models.Task{ID: "t1", Description: "draft an NDA"})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Domain != "legal" || got.Confidence != 0.9 {
		t.Errorf("unexpected classification: %+v", got)
	}
	if backend.calls != 1 {
		t.Errorf("expected single sample for confident result, got %d", backend.calls)
	}
}

func TestClassifier_MajorityVoteOnLowConfidence(t *testing.T) {
	backend := &fakeBackend{samples: []models.Classification{
		{ContentType: models.ContentTypeDraft, Domain: "legal", Mode: models.ModeSingle, Confidence: 0.6},
		{ContentType: models.ContentTypeDraft, Domain: "legal", Mode: models.ModeSingle, Confidence: 0.65},
		{ContentType: models.ContentTypeEdit, Domain: "legal", Mode: models.ModeSingle, Confidence: 0.6},
	}}
	c := New(backend, testCfg())

	got, err := c.Classify(context.Background(), models.Task{ID: "t1", Description: "work on this contract"})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.ContentType != models.ContentTypeDraft {
		t.Errorf("expected draft to win the vote, got %s", got.ContentType)
	}
	if backend.calls != 3 {
		t.Errorf("expected 3 samples, got %d", backend.calls)
	}
	// 2/3 agreement at avg 0.625 scales below the raw sample confidence.
	if got.Confidence >= 0.6 {
		t.Errorf("expected agreement-scaled confidence below 0.6, got %f", got.Confidence)
	}
}

func TestClassifier_LowConfidenceEscalates(t *testing.T) {
	backend := &fakeBackend{samples: []models.Classification{
		{ContentType: models.ContentTypeDraft, Domain: "legal", Confidence: 0.4},
		{ContentType: models.ContentTypeEdit, Domain: "business", Confidence: 0.4},
		{ContentType: models.ContentTypeSummary, Domain: "creative", Confidence: 0.4},
	}}
	c := New(backend, testCfg())

	_, err := c.Classify(context.Background(), models.Task{ID: "t1", Description: "do something"})
	if err == nil {
		t.Fatal("expected low-confidence error")
	}
	if models.CodeOf(err) != models.CodeLowConfidence {
		t.Errorf("expected low confidence code, got %s", models.CodeOf(err))
	}
}

func TestClassifier_BackendErrorFallsBackToKeywords(t *testing.T) {
	backend := &fakeBackend{errs: []error{errors.New("connection refused")}}
	c := New(backend, testCfg())

	got, err := c.Classify(context.Background(), models.Task{ID: "t1", Description: "summarize the quarterly report"})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.ContentType != models.ContentTypeSummary {
		t.Errorf("expected keyword fallback to detect summary, got %s", got.ContentType)
	}
	if got.Confidence != keywordConfidence {
		t.Errorf("expected fallback confidence %f, got %f", keywordConfidence, got.Confidence)
	}
}

func TestClassifier_CancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend := &fakeBackend{errs: []error{context.Canceled}}
	c := New(backend, testCfg())

	if _, err := c.Classify(ctx, models.Task{ID: "t1"}); err == nil {
		t.Error("expected error when context is cancelled")
	}
}

func TestClassifier_CachesPerTask(t *testing.T) {
	backend := &fakeBackend{samples: []models.Classification{
		{ContentType: models.ContentTypeDraft, Domain: "legal", Confidence: 0.9},
	}}
	c := New(backend, testCfg())

	task := models.Task{ID: "t1", Description: "draft a contract"}
	if _, err := c.Classify(context.Background(), task); err != nil {
		t.Fatalf("first classify: %v", err)
	}
	if _, err := c.Classify(context.Background(), task); err != nil {
		t.Fatalf("second classify: %v", err)
	}
	if backend.calls != 1 {
		t.Errorf("expected cached result on second call, backend called %d times", backend.calls)
	}
}

func TestClassifier_DomainHintWins(t *testing.T) {
	backend := &fakeBackend{samples: []models.Classification{
		{ContentType: models.ContentTypeDraft, Domain: "business", Confidence: 0.9},
	}}
	c := New(backend, testCfg())

	got, err := c.Classify(context.Background(), models.Task{ID: "t1", Description: "draft a memo", DomainHint: "legal"})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Domain != "legal" {
		t.Errorf("expected hint to override domain, got %s", got.Domain)
	}
}
