package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetDerivesAPIVersion(t *testing.T) {
	var h Header
	h.Set("DiagnosticReport")

	assert.Equal(t, "DiagnosticReport", h.Kind)
	assert.Equal(t, "diagnosticreport.chirop.grid5000.fr/v1", h.APIVersion)
	assert.NotEmpty(t, h.Metadata["generated-at"])
}

func TestNewWithOptions(t *testing.T) {
	h := New(WithKind("ExportReport"), WithMetadata("source", "prometheus"))

	assert.Equal(t, "ExportReport", h.Kind)
	assert.Equal(t, "prometheus", h.Metadata["source"])
}
