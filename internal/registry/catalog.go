package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quillworks/quill/pkg/models"
)

// WorkerCatalog is the on-disk declaration of available workers.
type WorkerCatalog struct {
	Workers []models.Worker `yaml:"workers"`
}

// ProviderCatalog is the on-disk declaration of available providers.
type ProviderCatalog struct {
	Providers []models.Provider `yaml:"providers"`
}

// GrantCatalog is the on-disk declaration of permission grants.
type GrantCatalog struct {
	Grants []models.PermissionGrant `yaml:"grants"`
}

// LoadWorkerCatalog parses a worker catalog from a YAML file.
func LoadWorkerCatalog(path string) (*WorkerCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read worker catalog: %w", err)
	}

	catalog := &WorkerCatalog{}
	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("parse worker catalog %s: %w", path, err)
	}

	for i, w := range catalog.Workers {
		if w.ID == "" {
			return nil, fmt.Errorf("worker catalog %s: entry %d has no id", path, i)
		}
	}
	return catalog, nil
}

// LoadProviderCatalog parses a provider catalog from a YAML file.
func LoadProviderCatalog(path string) (*ProviderCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider catalog: %w", err)
	}

	catalog := &ProviderCatalog{}
	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("parse provider catalog %s: %w", path, err)
	}

	for i, p := range catalog.Providers {
		if p.ID == "" {
			return nil, fmt.Errorf("provider catalog %s: entry %d has no id", path, i)
		}
	}
	return catalog, nil
}

// LoadGrantCatalog parses a grant catalog from a YAML file.
func LoadGrantCatalog(path string) (*GrantCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grant catalog: %w", err)
	}

	catalog := &GrantCatalog{}
	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("parse grant catalog %s: %w", path, err)
	}

	for i, g := range catalog.Grants {
		if g.ID == "" {
			return nil, fmt.Errorf("grant catalog %s: entry %d has no id", path, i)
		}
		// The same check the grant store applies, so a bad catalog fails
		// here with the file name instead of later at registration.
		if g.Policy.Kind == "" {
			return nil, fmt.Errorf("grant catalog %s: grant %s has no policy kind", path, g.ID)
		}
		if !g.Policy.Kind.Valid() {
			return nil, fmt.Errorf("grant catalog %s: grant %s has unknown policy %q", path, g.ID, g.Policy.Kind)
		}
	}
	return catalog, nil
}

// ApplyWorkerCatalog reconciles the registry with a catalog: new workers are
// registered, existing declarations are replaced, and workers no longer in
// the catalog are unregistered. In-flight invocations keep their bindings.
func ApplyWorkerCatalog(reg *WorkerRegistry, catalog *WorkerCatalog) {
	wanted := make(map[string]bool, len(catalog.Workers))
	for _, w := range catalog.Workers {
		wanted[w.ID] = true
		reg.Register(w)
	}
	for _, existing := range reg.All() {
		if !wanted[existing.ID] {
			reg.Unregister(existing.ID)
		}
	}
}
