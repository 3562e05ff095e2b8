// Package cli implements the command-line interface for chiropctl.
//
// # Overview
//
// chiropctl manages the Kepler power-monitoring stack on Grid'5000
// Kubernetes clusters: installing the Helm releases, reconciling the
// network resources that wire the exporter into Prometheus, diagnosing
// the scrape pipeline, and handling machine profiles and power exports.
//
// # Commands
//
// install - Install or upgrade the stack's Helm releases:
//
//	chiropctl install [--kepler-version V] [--prometheus-version V] [--set k=v]
//
// apply - Reconcile Service, NetworkPolicies and ServiceMonitor:
//
//	chiropctl apply [manifest-file] [--namespace NS] [--open-external]
//
// diagnose - Run the read-only health checklist:
//
//	chiropctl diagnose [--namespace NS] [--format yaml|json|table]
//
// profile - Inspect and extend the machine profile registry:
//
//	chiropctl profile get <cluster> [--profiles FILE]
//	chiropctl profile validate [--profiles FILE]
//	chiropctl profile derive --cluster NAME --cpu-threads N --cpu-cores N --memory-gb N
//
// export - Turn power samples into per-device CSV files:
//
//	chiropctl export --input samples.json [--push --registry HOST --repository PATH]
//
// # Exit Codes
//
// 0 on success, 1 on validation or generic failures, 2 when the cluster
// or a chart repository cannot be reached, 3 when diagnostic checks fail
// (the report is still written).
package cli
