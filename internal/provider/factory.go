package provider

import (
	"fmt"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/pkg/models"
)

// NewBackendFor builds the completion backend for one catalog provider.
func NewBackendFor(p models.Provider, cfg config.AnthropicConfig) (Backend, error) {
	switch p.Kind {
	case "anthropic", "":
		return NewAnthropicBackend(BackendConfig{
			Model:  p.Model,
			APIKey: cfg.APIKey,
		})
	case "bedrock":
		return NewAnthropicBackend(BackendConfig{
			Model:      p.Model,
			UseBedrock: true,
			AWSRegion:  cfg.AWSRegion,
			AWSProfile: cfg.AWSProfile,
		})
	default:
		return nil, fmt.Errorf("unknown provider kind %q for provider %s", p.Kind, p.ID)
	}
}
