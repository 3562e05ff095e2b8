package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
)

// DefaultQuery selects the per-node exporter power readings.
const DefaultQuery = "kepler_node_platform_watts"

// deviceLabels are tried in order to name the device behind a series.
var deviceLabels = []model.LabelName{"instance", "node", "device", "exported_instance"}

// PrometheusSource fetches power samples from a Prometheus server.
type PrometheusSource struct {
	api promv1.API
}

// NewPrometheusSource builds a source against the given server address,
// e.g. "http://localhost:9090".
func NewPrometheusSource(address string) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation,
			fmt.Sprintf("invalid prometheus address %q", address))
	}
	return &PrometheusSource{api: promv1.NewAPI(client)}, nil
}

// Fetch runs a range query over the trailing window and converts the
// resulting matrix into flat samples. Each series becomes one device,
// named from the first matching device label or the full metric string.
func (s *PrometheusSource) Fetch(ctx context.Context, query string, window, step time.Duration) ([]Sample, error) {
	end := time.Now()
	r := promv1.Range{
		Start: end.Add(-window),
		End:   end,
		Step:  step,
	}

	value, warnings, err := s.api.QueryRange(ctx, query, r)
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeClusterUnreachable,
			fmt.Sprintf("prometheus range query %q failed", query))
	}
	for _, w := range warnings {
		slog.Warn("prometheus query warning", slog.String("warning", w))
	}

	matrix, ok := value.(model.Matrix)
	if !ok {
		return nil, chiroperrors.Newf(chiroperrors.ErrCodeValidation,
			"query %q returned %s, expected a range vector", query, value.Type())
	}

	var samples []Sample
	for _, series := range matrix {
		device := deviceName(series.Metric)
		for _, pair := range series.Values {
			samples = append(samples, Sample{
				DeviceID:  device,
				Timestamp: float64(pair.Timestamp) / 1000,
				Value:     float64(pair.Value),
			})
		}
	}
	if len(samples) == 0 {
		return nil, chiroperrors.Newf(chiroperrors.ErrCodeValidation,
			"query %q returned no samples over the last %s", query, window)
	}

	slog.Debug("fetched prometheus samples",
		slog.Int("series", len(matrix)),
		slog.Int("samples", len(samples)))
	return samples, nil
}

func deviceName(metric model.Metric) string {
	for _, label := range deviceLabels {
		if v, ok := metric[label]; ok && v != "" {
			return string(v)
		}
	}
	return metric.String()
}
