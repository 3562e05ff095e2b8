// Package serializer renders chiropctl documents (reports, profiles,
// manifests) as JSON, YAML, or human-readable tables, to stdout or a file.
package serializer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// IsUnknown reports whether the format is not one of the supported encodings.
func (f Format) IsUnknown() bool {
	switch f {
	case FormatJSON, FormatYAML, FormatTable:
		return false
	}
	return true
}

// Serializer writes a document in a fixed format to a fixed destination.
type Serializer interface {
	Serialize(doc any) error
	Close() error
}

// Writer is a Serializer over an arbitrary io.Writer. File destinations are
// opened lazily on the first Serialize call so a failed run leaves no empty
// output file.
type Writer struct {
	format Format
	out    io.Writer
	closer io.Closer
	path   string
}

// NewWriter creates a Serializer that writes to out in the given format.
func NewWriter(format Format, out io.Writer) *Writer {
	return &Writer{format: format, out: out}
}

// NewStdoutWriter creates a Serializer that writes to stdout.
func NewStdoutWriter(format Format) *Writer {
	return NewWriter(format, os.Stdout)
}

// NewFileWriterOrStdout creates a Serializer for the given destination path.
// An empty path or "-" means stdout.
func NewFileWriterOrStdout(format Format, path string) *Writer {
	if path == "" || path == StdoutURI {
		return NewStdoutWriter(format)
	}
	return &Writer{format: format, path: path}
}

func (w *Writer) ensureOpen() error {
	if w.out != nil {
		return nil
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", w.path, err)
	}
	w.out = f
	w.closer = f
	return nil
}

// Serialize writes doc to the destination in the configured format.
func (w *Writer) Serialize(doc any) error {
	if err := w.ensureOpen(); err != nil {
		return err
	}

	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to serialize to json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w.out)
		enc.SetIndent(2)
		defer enc.Close()
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to serialize to yaml: %w", err)
		}
		return nil
	case FormatTable:
		return writeTable(w.out, doc)
	default:
		return fmt.Errorf("unknown output format: %q", w.format)
	}
}

// Close releases the underlying file, if any.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
