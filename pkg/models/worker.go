package models

// Worker declares a specialized execution unit (agent) capable of performing
// certain writing task types. Worker is an immutable value record; mutable
// runtime state (rolling performance, in-flight load) lives in the registry.
type Worker struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable worker name.
	Name string `json:"name" yaml:"name"`
	// Capabilities is the set of capability tags the worker declares
	// (e.g. "legal", "draft", "summarize").
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	// ContentTypes lists the content types the worker can produce.
	ContentTypes []ContentType `json:"content_types" yaml:"content_types"`
	// MaxComplexity is the highest complexity the worker is rated for.
	MaxComplexity Complexity `json:"max_complexity" yaml:"max_complexity"`
}

// HasCapability returns true if the worker declares the given tag.
func (w Worker) HasCapability(tag string) bool {
	for _, c := range w.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// SupportsContentType returns true if the worker can produce the given type.
// A worker with no declared content types supports all of them.
func (w Worker) SupportsContentType(ct ContentType) bool {
	if len(w.ContentTypes) == 0 {
		return true
	}
	for _, c := range w.ContentTypes {
		if c == ct {
			return true
		}
	}
	return false
}
