package serializer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads a document of type T from a JSON or YAML file. The decoder
// is picked from the file extension; unknown extensions are parsed as YAML,
// which also accepts JSON.
func FromFile[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	return FromBytes[T](path, data)
}

// FromBytes decodes a document of type T from raw bytes, picking the decoder
// from the path's extension.
func FromBytes[T any](path string, data []byte) (*T, error) {
	var doc T
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse json from %q: %w", path, err)
		}
		return &doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml from %q: %w", path, err)
	}
	return &doc, nil
}
