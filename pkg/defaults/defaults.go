// Package defaults centralizes the configuration defaults shared by the
// chiropctl commands: namespaces, chart sources, selectors and timeouts.
// Keeping them in one place ensures the apply, install and diagnose
// commands agree on where the stack lives.
package defaults

import "time"

// Namespaces the stack is deployed into.
const (
	// Namespace hosts the Kepler exporter.
	Namespace = "kepler"

	// MonitoringNamespace hosts Prometheus and Grafana.
	MonitoringNamespace = "monitoring"
)

// Chart sources for the monitoring stack.
const (
	KeplerRepoURL   = "https://sustainable-computing-io.github.io/kepler-helm-chart"
	KeplerChartName = "kepler"

	PrometheusRepoURL   = "https://prometheus-community.github.io/helm-charts"
	PrometheusChartName = "kube-prometheus-stack"
)

// Pod selectors used for readiness waits.
const (
	KeplerReadySelector     = "app.kubernetes.io/name=kepler-exporter"
	PrometheusReadySelector = "app.kubernetes.io/name=prometheus"
)

// ReadyTimeout bounds the per-release readiness wait after an install
// or upgrade.
const ReadyTimeout = 5 * time.Minute

// ProfilesFile is the machine profiles registry path relative to the
// working directory.
const ProfilesFile = "machine_profiles.json"

// ScrapeInterval is the ServiceMonitor's Prometheus scrape interval.
const ScrapeInterval = "30s"
