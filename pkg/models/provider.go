package models

// CircuitState represents the circuit-breaker state of a provider.
type CircuitState string

const (
	// CircuitClosed means the provider is healthy and fully routable.
	CircuitClosed CircuitState = "closed"
	// CircuitOpen means the provider is failing and excluded from routing.
	CircuitOpen CircuitState = "open"
	// CircuitHalfOpen means the provider is being probed after a cool-down;
	// it is routable but ranked below every closed provider.
	CircuitHalfOpen CircuitState = "half_open"
)

// Valid returns true if the state is a known value.
func (s CircuitState) Valid() bool {
	switch s {
	case CircuitClosed, CircuitOpen, CircuitHalfOpen:
		return true
	default:
		return false
	}
}

// Provider declares an upstream execution backend (a language-model API).
// Provider is an immutable value record; rolling scores and breaker state
// live in the registry.
type Provider struct {
	// ID is the unique identifier for this provider.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable provider name.
	Name string `json:"name" yaml:"name"`
	// Model is the upstream model identifier the provider maps to.
	Model string `json:"model" yaml:"model"`
	// Kind selects the backend transport ("anthropic" or "bedrock").
	Kind string `json:"kind" yaml:"kind"`
	// SupportedTypes lists the content types the provider handles well.
	// Empty means all types.
	SupportedTypes []ContentType `json:"supported_types" yaml:"supported_types"`
	// CostPerKTokensIn is the USD cost per 1000 input tokens.
	CostPerKTokensIn float64 `json:"cost_per_ktokens_in" yaml:"cost_per_ktokens_in"`
	// CostPerKTokensOut is the USD cost per 1000 output tokens.
	CostPerKTokensOut float64 `json:"cost_per_ktokens_out" yaml:"cost_per_ktokens_out"`
}

// Supports returns true if the provider handles the given content type.
func (p Provider) Supports(ct ContentType) bool {
	if len(p.SupportedTypes) == 0 {
		return true
	}
	for _, t := range p.SupportedTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// Cost converts a token count into an estimated USD cost using the
// provider's declared rates.
func (p Provider) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1000*p.CostPerKTokensIn +
		float64(outputTokens)/1000*p.CostPerKTokensOut
}
