package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/grid5000/chiropctl/pkg/defaults"
	"github.com/grid5000/chiropctl/pkg/diagnose"
	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
	"github.com/grid5000/chiropctl/pkg/k8s/client"
	"github.com/grid5000/chiropctl/pkg/manifest"
)

func diagnoseCmd() *cli.Command {
	return &cli.Command{
		Name:                  "diagnose",
		EnableShellCompletion: true,
		Usage:                 "Run read-only health checks against the monitoring stack",
		Description: `Walks the scrape pipeline from the Kepler exporter to Prometheus and
reports a verdict per check: the exporter DaemonSet and its pods, the
Service and its endpoints, the ServiceMonitor wiring, NetworkPolicy port
coverage, a metrics probe inside an exporter pod, and an exporter log scan.

Checks never mutate the cluster. Failed checks carry a remediation hint.
The report is always written, even when checks fail; the process then
exits with code 3.

# Examples

Diagnose the default namespaces:
  chiropctl diagnose

Write a JSON report for archiving:
  chiropctl diagnose --format json --output diagnostics.json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Value:   defaults.Namespace,
				Usage:   "Namespace hosting the Kepler exporter",
			},
			&cli.StringFlag{
				Name:  "monitoring-namespace",
				Value: defaults.MonitoringNamespace,
				Usage: "Namespace hosting Prometheus and the ServiceMonitor",
			},
			&cli.Int32Flag{
				Name:  "metrics-port",
				Value: manifest.KeplerMetricsPort,
				Usage: "Port the exporter serves metrics on",
			},
			&cli.Int64Flag{
				Name:  "log-tail",
				Value: 200,
				Usage: "Number of exporter log lines to scan for errors",
			},
			outputFlag(),
			formatFlag(),
			kubeconfigFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			clients, err := client.New(cmd.String("kubeconfig"))
			if err != nil {
				return err
			}

			runner := diagnose.New(clients.ClientSet, clients.Dynamic, clients.RestConfig, diagnose.Config{
				Namespace:           cmd.String("namespace"),
				MonitoringNamespace: cmd.String("monitoring-namespace"),
				MetricsPort:         cmd.Int32("metrics-port"),
				LogTail:             cmd.Int64("log-tail"),
			})

			report, err := runner.Run(ctx)
			if err != nil {
				return err
			}

			out, err := newSerializer(cmd)
			if err != nil {
				return err
			}
			defer out.Close()
			if err := out.Serialize(report); err != nil {
				return err
			}

			if report.Summary.Failed > 0 {
				return chiroperrors.Newf(chiroperrors.ErrCodeCheckFailed,
					"%d of %d checks failed", report.Summary.Failed, report.Summary.Total)
			}
			return nil
		},
	}
}
