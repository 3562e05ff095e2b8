package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunMapsValidationErrorsToExitOne(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-profiles.json")
	code := Run(context.Background(), []string{
		"chiropctl", "profile", "validate", "--profiles", missing,
	})
	assert.Equal(t, ExitValidation, code)
}

func TestRunProfileDeriveWritesProfile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "derived.json")

	code := Run(context.Background(), []string{
		"chiropctl", "profile", "derive",
		"--cluster", "gros", "--site", "nancy",
		"--cpu-threads", "72", "--cpu-cores", "36", "--memory-gb", "96",
		"--format", "json", "--output", out,
	})
	assert.Equal(t, ExitOK, code)

	data, err := os.ReadFile(out)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"stress_cpu_threads": 72`)
	assert.Contains(t, string(data), `"stress_vm_workers": 18`)
	assert.Contains(t, string(data), `"70%"`)
}

func TestRunProfileDeriveAppendAndGet(t *testing.T) {
	dir := t.TempDir()
	profiles := filepath.Join(dir, "machine_profiles.json")

	code := Run(context.Background(), []string{
		"chiropctl", "profile", "derive",
		"--cluster", "gros", "--site", "nancy",
		"--cpu-threads", "72", "--cpu-cores", "36", "--memory-gb", "96",
		"--append", "--profiles", profiles,
		"--output", filepath.Join(dir, "ignored.yaml"),
	})
	assert.Equal(t, ExitOK, code)

	// Appending the same cluster again without --force must fail.
	code = Run(context.Background(), []string{
		"chiropctl", "profile", "derive",
		"--cluster", "gros",
		"--cpu-threads", "72", "--cpu-cores", "36", "--memory-gb", "96",
		"--append", "--profiles", profiles,
		"--output", filepath.Join(dir, "ignored2.yaml"),
	})
	assert.Equal(t, ExitValidation, code)

	out := filepath.Join(dir, "got.json")
	code = Run(context.Background(), []string{
		"chiropctl", "profile", "get", "gros",
		"--profiles", profiles, "--format", "json", "--output", out,
	})
	assert.Equal(t, ExitOK, code)

	data, err := os.ReadFile(out)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"cluster": "gros"`)
}

func TestRunProfileGetMissingSuggests(t *testing.T) {
	dir := t.TempDir()
	profiles := filepath.Join(dir, "machine_profiles.json")

	code := Run(context.Background(), []string{
		"chiropctl", "profile", "derive",
		"--cluster", "gros",
		"--cpu-threads", "72", "--cpu-cores", "36", "--memory-gb", "96",
		"--append", "--profiles", profiles,
		"--output", filepath.Join(dir, "ignored.yaml"),
	})
	assert.Equal(t, ExitOK, code)

	code = Run(context.Background(), []string{
		"chiropctl", "profile", "get", "gos", "--profiles", profiles,
	})
	assert.Equal(t, ExitValidation, code)
}

func TestRunExportRequiresExactlyOneSource(t *testing.T) {
	code := Run(context.Background(), []string{"chiropctl", "export"})
	assert.Equal(t, ExitValidation, code)

	code = Run(context.Background(), []string{
		"chiropctl", "export",
		"--input", "x.json", "--prometheus-url", "http://localhost:9090",
	})
	assert.Equal(t, ExitValidation, code)
}

func TestRunExportFromFile(t *testing.T) {
	dir := t.TempDir()
	samples := filepath.Join(dir, "samples.json")
	payload := `[
	  {"device_id": "gros-42", "timestamp": 1700000000, "value": 100},
	  {"device_id": "gros-42", "timestamp": 1700000030, "value": 120}
	]`
	assert.NoError(t, os.WriteFile(samples, []byte(payload), 0o644))

	outDir := filepath.Join(dir, "export")
	report := filepath.Join(dir, "report.yaml")
	code := Run(context.Background(), []string{
		"chiropctl", "export",
		"--input", samples, "--output-dir", outDir, "--output", report,
	})
	assert.Equal(t, ExitOK, code)

	csv, err := os.ReadFile(filepath.Join(outDir, "gros-42.csv"))
	assert.NoError(t, err)
	assert.Contains(t, string(csv), "timestamp,power_watt")

	_, err = os.Stat(report)
	assert.NoError(t, err)
}
