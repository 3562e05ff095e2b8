// Package export turns raw power samples into one CSV file per device,
// plus a summary report. Samples come either from a JSON capture file or
// from a Prometheus range query.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
	"github.com/grid5000/chiropctl/pkg/header"
)

const (
	// APIVersion is the schema version for serialized export reports.
	APIVersion = "chirop.grid5000.fr/v1"

	// Kind is the report kind for serialized export reports.
	Kind = "ExportReport"
)

// Sample is one power measurement for one device. Timestamp is unix
// seconds, possibly fractional.
type Sample struct {
	DeviceID  string  `json:"device_id"`
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// DeviceSummary aggregates the samples written for one device.
type DeviceSummary struct {
	DeviceID       string  `json:"device_id" yaml:"device_id"`
	File           string  `json:"file" yaml:"file"`
	Records        int     `json:"records" yaml:"records"`
	FirstTimestamp float64 `json:"first_timestamp" yaml:"first_timestamp"`
	LastTimestamp  float64 `json:"last_timestamp" yaml:"last_timestamp"`
	MinWatts       float64 `json:"min_watts" yaml:"min_watts"`
	MaxWatts       float64 `json:"max_watts" yaml:"max_watts"`
	AvgWatts       float64 `json:"avg_watts" yaml:"avg_watts"`
}

// Report describes the outcome of an export run.
type Report struct {
	header.Header `json:",inline" yaml:",inline"`

	OutputDir    string          `json:"output_dir" yaml:"output_dir"`
	TotalRecords int             `json:"total_records" yaml:"total_records"`
	Devices      []DeviceSummary `json:"devices" yaml:"devices"`
}

// TableHeaders implements serializer.Tabler.
func (r *Report) TableHeaders() []string {
	return []string{"device", "records", "min_watts", "max_watts", "avg_watts", "file"}
}

// TableRows implements serializer.Tabler.
func (r *Report) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Devices))
	for _, d := range r.Devices {
		rows = append(rows, []string{
			d.DeviceID,
			strconv.Itoa(d.Records),
			formatWatts(d.MinWatts),
			formatWatts(d.MaxWatts),
			formatWatts(d.AvgWatts),
			d.File,
		})
	}
	return rows
}

// LoadSamples reads a JSON capture file: an array of samples.
func LoadSamples(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation,
			fmt.Sprintf("cannot read samples file %q", path))
	}

	var samples []Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation,
			fmt.Sprintf("malformed samples file %q", path))
	}
	for i, s := range samples {
		if s.DeviceID == "" {
			return nil, chiroperrors.Newf(chiroperrors.ErrCodeValidation,
				"sample %d has no device_id", i)
		}
	}
	return samples, nil
}

// Write groups samples per device, sorts each group by timestamp and
// writes one CSV file per device under outputDir. Device files are
// written concurrently.
func Write(ctx context.Context, samples []Sample, outputDir string) (*Report, error) {
	if len(samples) == 0 {
		return nil, chiroperrors.New(chiroperrors.ErrCodeValidation, "no samples to export")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %q: %w", outputDir, err)
	}

	start := time.Now()
	byDevice := make(map[string][]Sample)
	for _, s := range samples {
		byDevice[s.DeviceID] = append(byDevice[s.DeviceID], s)
	}

	devices := make([]string, 0, len(byDevice))
	for id := range byDevice {
		devices = append(devices, id)
	}
	sort.Strings(devices)

	summaries := make([]DeviceSummary, len(devices))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range devices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary, err := writeDevice(outputDir, id, byDevice[id])
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		OutputDir:    outputDir,
		TotalRecords: len(samples),
		Devices:      summaries,
	}
	report.Set(Kind)

	recordsExported.Add(float64(len(samples)))
	exportDuration.Observe(time.Since(start).Seconds())
	slog.Info("export complete",
		slog.Int("devices", len(devices)),
		slog.Int("records", len(samples)),
		slog.String("output", outputDir))
	return report, nil
}

// writeDevice sorts one device's samples by timestamp and writes its CSV.
func writeDevice(outputDir, deviceID string, samples []Sample) (DeviceSummary, error) {
	sort.SliceStable(samples, func(a, b int) bool {
		return samples[a].Timestamp < samples[b].Timestamp
	})

	name := sanitizeDeviceID(deviceID) + ".csv"
	path := filepath.Join(outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return DeviceSummary{}, fmt.Errorf("failed to create %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "power_watt"}); err != nil {
		return DeviceSummary{}, fmt.Errorf("failed to write header for %q: %w", deviceID, err)
	}

	summary := DeviceSummary{
		DeviceID:       deviceID,
		File:           name,
		Records:        len(samples),
		FirstTimestamp: samples[0].Timestamp,
		LastTimestamp:  samples[len(samples)-1].Timestamp,
		MinWatts:       samples[0].Value,
		MaxWatts:       samples[0].Value,
	}
	var total float64
	for _, s := range samples {
		if err := w.Write([]string{formatTimestamp(s.Timestamp), formatWatts(s.Value)}); err != nil {
			return DeviceSummary{}, fmt.Errorf("failed to write sample for %q: %w", deviceID, err)
		}
		if s.Value < summary.MinWatts {
			summary.MinWatts = s.Value
		}
		if s.Value > summary.MaxWatts {
			summary.MaxWatts = s.Value
		}
		total += s.Value
	}
	summary.AvgWatts = total / float64(len(samples))

	w.Flush()
	if err := w.Error(); err != nil {
		return DeviceSummary{}, fmt.Errorf("failed to flush %q: %w", path, err)
	}
	return summary, nil
}

// sanitizeDeviceID makes a device identifier safe to use as a filename.
func sanitizeDeviceID(id string) string {
	replace := func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}
	return strings.Map(replace, id)
}

func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

func formatWatts(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
