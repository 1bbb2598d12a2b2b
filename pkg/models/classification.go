package models

// ContentType is the kind of writing a task asks for.
type ContentType string

const (
	// ContentTypeDraft is net-new prose written from a brief.
	ContentTypeDraft ContentType = "draft"
	// ContentTypeEdit is a revision of existing content.
	ContentTypeEdit ContentType = "edit"
	// ContentTypeSummary condenses existing content.
	ContentTypeSummary ContentType = "summary"
	// ContentTypeResearch gathers and synthesizes source material.
	ContentTypeResearch ContentType = "research"
	// ContentTypeReview critiques content without rewriting it.
	ContentTypeReview ContentType = "review"
)

// Valid returns true if the content type is a known value.
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeDraft, ContentTypeEdit, ContentTypeSummary, ContentTypeResearch, ContentTypeReview:
		return true
	default:
		return false
	}
}

// Complexity is the ordinal difficulty of a task.
type Complexity string

const (
	// ComplexityLow is for trivial, single-pass work.
	ComplexityLow Complexity = "low"
	// ComplexityMedium is for standard work.
	ComplexityMedium Complexity = "medium"
	// ComplexityHigh is for work needing careful structure or domain depth.
	ComplexityHigh Complexity = "high"
	// ComplexityExpert is for work that needs specialist-grade treatment.
	ComplexityExpert Complexity = "expert"
)

// Rank returns the ordinal position of the complexity, low first.
// Unknown values rank below low.
func (c Complexity) Rank() int {
	switch c {
	case ComplexityLow:
		return 1
	case ComplexityMedium:
		return 2
	case ComplexityHigh:
		return 3
	case ComplexityExpert:
		return 4
	default:
		return 0
	}
}

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	return c.Rank() > 0
}

// CollaborationMode describes how many workers a task needs and how they
// should be sequenced.
type CollaborationMode string

const (
	// ModeSingle uses one worker in one invocation.
	ModeSingle CollaborationMode = "single"
	// ModeSequential runs supporting workers before the primary, each seeing
	// the previous output.
	ModeSequential CollaborationMode = "sequential"
	// ModeParallel fans supporting workers out concurrently with the primary
	// aggregating afterwards.
	ModeParallel CollaborationMode = "parallel"
	// ModeCollaborative fans supporting workers out, then the primary
	// synthesizes their outputs in a final stage.
	ModeCollaborative CollaborationMode = "collaborative"
)

// Valid returns true if the mode is a known value.
func (m CollaborationMode) Valid() bool {
	switch m {
	case ModeSingle, ModeSequential, ModeParallel, ModeCollaborative:
		return true
	default:
		return false
	}
}

// Classification is the structured analysis of a Task produced by the
// classifier. It is computed once per Task and cached for the Task's lifetime.
type Classification struct {
	// TaskID is the task this classification was derived from.
	TaskID string `json:"task_id"`
	// ContentType is the kind of writing requested.
	ContentType ContentType `json:"content_type"`
	// Complexity is the ordinal difficulty estimate.
	Complexity Complexity `json:"complexity"`
	// Domain is the subject-matter tag (e.g. "legal", "technical").
	Domain string `json:"domain"`
	// Mode is how workers should collaborate on the task.
	Mode CollaborationMode `json:"mode"`
	// Confidence is the classifier's confidence in [0,1].
	Confidence float64 `json:"confidence"`
}
