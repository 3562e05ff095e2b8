package header

import (
	"fmt"
	"strings"
	"time"
)

var (
	APIVersionDomain = "chirop.grid5000.fr"
	APIVersionV1     = "v1"
)

// Header contains kind and versioning metadata for chiropctl documents
// (diagnostic reports, profile sets). It follows Kubernetes-style resource
// conventions with Kind, APIVersion, and Metadata fields.
type Header struct {
	// Kind is the document type (e.g., "DiagnosticReport").
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// APIVersion identifies the schema version for the document.
	APIVersion string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`

	// Metadata contains free-form key-value pairs about the document.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Option is a functional option for configuring Header instances.
type Option func(*Header)

// WithKind returns an Option that sets the Kind field.
func WithKind(kind string) Option {
	return func(h *Header) {
		h.Kind = kind
	}
}

// WithMetadata returns an Option that adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(h *Header) {
		if h.Metadata == nil {
			h.Metadata = make(map[string]string)
		}
		h.Metadata[key] = value
	}
}

// New creates a Header with the provided options.
func New(opts ...Option) *Header {
	h := &Header{
		Metadata: make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Set initializes the Header for the given kind. The APIVersion is derived
// as "<kind>.chirop.grid5000.fr/v1" and a generation timestamp is recorded.
func (h *Header) Set(kind string) {
	h.Kind = kind
	h.APIVersion = fmt.Sprintf("%s.%s/%s", strings.ToLower(kind), APIVersionDomain, APIVersionV1)
	h.Metadata = map[string]string{
		"generated-at": time.Now().UTC().Format(time.RFC3339),
	}
}
