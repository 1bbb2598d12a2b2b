package orchestrator

import (
	"fmt"
	"strings"
)

// Validator is a pluggable quality check run over a workflow's aggregated
// output. It returns the specific violations it found, or nil when the
// output passes.
type Validator interface {
	Validate(output string) []string
}

// MinLengthValidator rejects output shorter than a character floor, which
// catches empty and truncated completions.
type MinLengthValidator struct {
	MinChars int
}

// Validate reports a violation when the trimmed output is too short.
func (v MinLengthValidator) Validate(output string) []string {
	trimmed := strings.TrimSpace(output)
	if len(trimmed) < v.MinChars {
		return []string{fmt.Sprintf("output is %d characters, below the %d-character minimum", len(trimmed), v.MinChars)}
	}
	return nil
}

// RefusalValidator rejects output that is a bare refusal instead of the
// requested content.
type RefusalValidator struct{}

var refusalMarkers = []string{
	"i cannot help with",
	"i can't help with",
	"i'm unable to",
	"as an ai",
}

// Validate reports a violation when the output opens with a refusal.
func (v RefusalValidator) Validate(output string) []string {
	head := strings.ToLower(output)
	if len(head) > 200 {
		head = head[:200]
	}
	for _, marker := range refusalMarkers {
		if strings.Contains(head, marker) {
			return []string{fmt.Sprintf("output appears to be a refusal (%q)", marker)}
		}
	}
	return nil
}

// runValidators collects violations from every validator.
func runValidators(validators []Validator, output string) []string {
	var violations []string
	for _, v := range validators {
		violations = append(violations, v.Validate(output)...)
	}
	return violations
}
