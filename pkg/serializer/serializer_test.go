package serializer

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

type testConfig struct {
	Name  string `json:"name" yaml:"name"`
	Value int    `json:"value" yaml:"value"`
}

func TestWriterSerializeJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(FormatJSON, &buf)

	data := []testConfig{
		{Name: "test1", Value: 123},
		{Name: "test2", Value: 456},
	}
	assert.NoError(t, w.Serialize(data))

	var result []testConfig
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Len(t, result, 2)
	assert.Equal(t, "test1", result[0].Name)
	assert.Equal(t, 123, result[0].Value)
}

func TestWriterSerializeYAML(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(FormatYAML, &buf)

	assert.NoError(t, w.Serialize(testConfig{Name: "test1", Value: 123}))

	var result testConfig
	assert.NoError(t, yaml.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "test1", result.Name)
	assert.Equal(t, 123, result.Value)
}

type tablerDoc struct{}

func (tablerDoc) TableHeaders() []string { return []string{"cluster_name", "site"} }
func (tablerDoc) TableRows() [][]string  { return [][]string{{"gros", "nancy"}} }

func TestWriterSerializeTable(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(FormatTable, &buf)

	assert.NoError(t, w.Serialize(tablerDoc{}))

	out := buf.String()
	// Underscored headers are title-cased for display.
	assert.Contains(t, out, "Cluster Name")
	assert.Contains(t, out, "gros")
	assert.Contains(t, out, "nancy")
}

func TestWriterTableFallsBackToYAML(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(FormatTable, &buf)

	assert.NoError(t, w.Serialize(testConfig{Name: "x", Value: 1}))
	assert.Contains(t, buf.String(), "name: x")
}

func TestNewFileWriterOrStdout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := NewFileWriterOrStdout(FormatJSON, path)

	assert.NoError(t, w.Serialize(testConfig{Name: "file", Value: 7}))
	assert.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"file"`)
}

func TestNewFileWriterOrStdoutStdinDash(t *testing.T) {
	w := NewFileWriterOrStdout(FormatYAML, StdoutURI)
	assert.Same(t, os.Stdout, w.out)
}

func TestFormatIsUnknown(t *testing.T) {
	assert.False(t, FormatJSON.IsUnknown())
	assert.False(t, FormatYAML.IsUnknown())
	assert.False(t, FormatTable.IsUnknown())
	assert.True(t, Format("xml").IsUnknown())
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "doc.json")
	assert.NoError(t, os.WriteFile(jsonPath, []byte(`{"name":"j","value":1}`), 0o644))
	fromJSON, err := FromFile[testConfig](jsonPath)
	assert.NoError(t, err)
	assert.Equal(t, "j", fromJSON.Name)

	yamlPath := filepath.Join(dir, "doc.yaml")
	assert.NoError(t, os.WriteFile(yamlPath, []byte("name: y\nvalue: 2\n"), 0o644))
	fromYAML, err := FromFile[testConfig](yamlPath)
	assert.NoError(t, err)
	assert.Equal(t, "y", fromYAML.Name)
	assert.Equal(t, 2, fromYAML.Value)
}

func TestFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	assert.NoError(t, os.WriteFile(path, []byte(`{"name":`), 0o644))

	_, err := FromFile[testConfig](path)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "json"))
}
