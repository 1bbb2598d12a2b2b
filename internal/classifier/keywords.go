package classifier

import (
	"strings"

	"github.com/quillworks/quill/pkg/models"
)

// keywordConfidence is the confidence assigned to rule-based classifications.
// It sits above the human-escalation floor but below the vote threshold, so
// rule-based results are always usable yet marked as lower quality.
const keywordConfidence = 0.55

// domainKeywords maps domain tags to words that indicate them.
var domainKeywords = map[string][]string{
	"legal":     {"contract", "legal", "clause", "compliance", "terms", "policy", "nda", "agreement"},
	"technical": {"api", "technical", "documentation", "architecture", "code", "software", "spec"},
	"marketing": {"campaign", "marketing", "landing", "seo", "brand", "tagline", "ad copy"},
	"academic":  {"thesis", "academic", "citation", "abstract", "paper", "literature"},
	"business":  {"proposal", "memo", "report", "executive", "quarterly", "stakeholder"},
	"creative":  {"story", "creative", "poem", "fiction", "narrative", "script"},
}

// contentTypeKeywords maps content types to words that indicate them.
var contentTypeKeywords = map[models.ContentType][]string{
	models.ContentTypeEdit:     {"edit", "revise", "rewrite", "fix", "polish", "proofread", "tighten"},
	models.ContentTypeSummary:  {"summarize", "summary", "condense", "tl;dr", "shorten", "digest"},
	models.ContentTypeResearch: {"research", "investigate", "sources", "find out", "compare", "analyze"},
	models.ContentTypeReview:   {"review", "critique", "feedback", "assess", "evaluate"},
}

// expertKeywords indicate expert-level complexity regardless of length.
var expertKeywords = []string{
	"contract", "compliance", "regulatory", "patent", "litigation",
	"peer-review", "whitepaper",
}

// highKeywords indicate high complexity.
var highKeywords = []string{
	"comprehensive", "in-depth", "multi-part", "restructure", "thorough",
	"technical documentation",
}

// lowKeywords indicate trivial, single-pass work.
var lowKeywords = []string{
	"typo", "trivial", "quick", "short", "one-liner", "minor", "caption",
}

// parallelKeywords suggest fan-out across multiple workers.
var parallelKeywords = []string{
	"sections", "chapters", "multiple", "each", "variants", "versions",
}

// sequentialKeywords suggest a pipeline of stages.
var sequentialKeywords = []string{
	"then", "after that", "followed by", "draft and edit", "research then",
}

// KeywordClassifier is the rule-based fallback used when the classification
// backend is unavailable. It always produces a usable classification at
// reduced confidence rather than failing the task.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the rule-based classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify derives a classification from keyword signals in the task
// description. The caller-supplied domain hint wins over keyword detection.
func (k *KeywordClassifier) Classify(task models.Task) models.Classification {
	text := strings.ToLower(task.Description)

	c := models.Classification{
		TaskID:      task.ID,
		ContentType: detectContentType(text),
		Complexity:  detectComplexity(text),
		Domain:      task.DomainHint,
		Mode:        detectMode(text),
		Confidence:  keywordConfidence,
	}
	if c.Domain == "" {
		c.Domain = detectDomain(text)
	}
	return c
}

func detectDomain(text string) string {
	best := "general"
	bestHits := 0
	// Iterate deterministically so ties resolve the same way every run.
	for _, domain := range []string{"academic", "business", "creative", "legal", "marketing", "technical"} {
		hits := 0
		for _, kw := range domainKeywords[domain] {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = domain
			bestHits = hits
		}
	}
	return best
}

func detectContentType(text string) models.ContentType {
	for _, ct := range []models.ContentType{
		models.ContentTypeEdit,
		models.ContentTypeSummary,
		models.ContentTypeResearch,
		models.ContentTypeReview,
	} {
		for _, kw := range contentTypeKeywords[ct] {
			if strings.Contains(text, kw) {
				return ct
			}
		}
	}
	return models.ContentTypeDraft
}

func detectComplexity(text string) models.Complexity {
	for _, kw := range expertKeywords {
		if strings.Contains(text, kw) {
			return models.ComplexityExpert
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(text, kw) {
			return models.ComplexityHigh
		}
	}
	for _, kw := range lowKeywords {
		if strings.Contains(text, kw) {
			return models.ComplexityLow
		}
	}
	// Long briefs skew harder than short ones.
	if len(strings.Fields(text)) > 120 {
		return models.ComplexityHigh
	}
	return models.ComplexityMedium
}

func detectMode(text string) models.CollaborationMode {
	sequential := false
	for _, kw := range sequentialKeywords {
		if strings.Contains(text, kw) {
			sequential = true
			break
		}
	}
	parallel := false
	for _, kw := range parallelKeywords {
		if strings.Contains(text, kw) {
			parallel = true
			break
		}
	}

	switch {
	case sequential && parallel:
		return models.ModeCollaborative
	case sequential:
		return models.ModeSequential
	case parallel:
		return models.ModeParallel
	default:
		return models.ModeSingle
	}
}
