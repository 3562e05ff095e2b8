package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
)

func testSamples() []Sample {
	return []Sample{
		{DeviceID: "gros-42", Timestamp: 1700000030, Value: 120.5},
		{DeviceID: "gros-42", Timestamp: 1700000000, Value: 100},
		{DeviceID: "gros-42", Timestamp: 1700000060, Value: 140},
		{DeviceID: "gros-43", Timestamp: 1700000000, Value: 95.25},
	}
}

func TestWriteGroupsAndSortsPerDevice(t *testing.T) {
	dir := t.TempDir()
	report, err := Write(context.Background(), testSamples(), dir)
	assert.NoError(t, err)
	assert.Equal(t, 4, report.TotalRecords)
	assert.Len(t, report.Devices, 2)

	// Devices are summarized in sorted order.
	assert.Equal(t, "gros-42", report.Devices[0].DeviceID)
	assert.Equal(t, "gros-43", report.Devices[1].DeviceID)

	f, err := os.Open(filepath.Join(dir, "gros-42.csv"))
	assert.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	assert.NoError(t, err)
	assert.Equal(t, []string{"timestamp", "power_watt"}, rows[0])
	assert.Len(t, rows, 4)

	// Rows are sorted by timestamp regardless of input order.
	assert.Equal(t, "1700000000", rows[1][0])
	assert.Equal(t, "1700000030", rows[2][0])
	assert.Equal(t, "1700000060", rows[3][0])
	assert.Equal(t, "120.5", rows[2][1])
}

func TestWriteSummaries(t *testing.T) {
	dir := t.TempDir()
	report, err := Write(context.Background(), testSamples(), dir)
	assert.NoError(t, err)

	d := report.Devices[0]
	assert.Equal(t, 3, d.Records)
	assert.Equal(t, float64(1700000000), d.FirstTimestamp)
	assert.Equal(t, float64(1700000060), d.LastTimestamp)
	assert.Equal(t, 100.0, d.MinWatts)
	assert.Equal(t, 140.0, d.MaxWatts)
	assert.InDelta(t, 120.17, d.AvgWatts, 0.01)

	single := report.Devices[1]
	assert.Equal(t, 1, single.Records)
	assert.Equal(t, 95.25, single.MinWatts)
	assert.Equal(t, 95.25, single.MaxWatts)
	assert.Equal(t, 95.25, single.AvgWatts)
}

func TestWriteRejectsEmptyInput(t *testing.T) {
	_, err := Write(context.Background(), nil, t.TempDir())
	assert.Error(t, err)
	assert.Equal(t, chiroperrors.ErrCodeValidation, chiroperrors.CodeOf(err))
}

func TestWriteSanitizesDeviceNames(t *testing.T) {
	dir := t.TempDir()
	samples := []Sample{{DeviceID: "rack 1/node:2", Timestamp: 1, Value: 10}}

	report, err := Write(context.Background(), samples, dir)
	assert.NoError(t, err)
	assert.Equal(t, "rack_1_node_2.csv", report.Devices[0].File)

	_, err = os.Stat(filepath.Join(dir, "rack_1_node_2.csv"))
	assert.NoError(t, err)
}

func TestLoadSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.json")
	payload := `[
	  {"device_id": "gros-42", "timestamp": 1700000000, "value": 100.5},
	  {"device_id": "gros-43", "timestamp": 1700000000.5, "value": 95}
	]`
	assert.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	samples, err := LoadSamples(path)
	assert.NoError(t, err)
	assert.Len(t, samples, 2)
	assert.Equal(t, "gros-42", samples[0].DeviceID)
	assert.Equal(t, 1700000000.5, samples[1].Timestamp)
}

func TestLoadSamplesRejectsMissingDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.json")
	assert.NoError(t, os.WriteFile(path, []byte(`[{"timestamp": 1, "value": 2}]`), 0o644))

	_, err := LoadSamples(path)
	assert.Error(t, err)
	assert.Equal(t, chiroperrors.ErrCodeValidation, chiroperrors.CodeOf(err))
}

func TestFilterOut(t *testing.T) {
	samples := []Sample{
		{DeviceID: "gros-42"},
		{DeviceID: "gros-43"},
		{DeviceID: "grisou-1"},
		{DeviceID: "paravance-9"},
	}

	assert.Len(t, FilterOut(samples, nil), 4)
	assert.Len(t, FilterOut(samples, []string{"gros-42"}), 3)
	assert.Len(t, FilterOut(samples, []string{"gros*"}), 2)
	assert.Len(t, FilterOut(samples, []string{"*-9"}), 3)
	assert.Len(t, FilterOut(samples, []string{"*ris*"}), 3)
	assert.Len(t, FilterOut(samples, []string{"gr*", "para*"}), 0)
}

func TestReportTableRows(t *testing.T) {
	report, err := Write(context.Background(), testSamples(), t.TempDir())
	assert.NoError(t, err)

	rows := report.TableRows()
	assert.Len(t, rows, 2)
	assert.Equal(t, len(report.TableHeaders()), len(rows[0]))
	assert.Equal(t, "gros-42", rows[0][0])
	assert.Equal(t, "3", rows[0][1])
}
