package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/grid5000/chiropctl/pkg/apply"
	"github.com/grid5000/chiropctl/pkg/defaults"
	"github.com/grid5000/chiropctl/pkg/k8s/client"
	"github.com/grid5000/chiropctl/pkg/manifest"
)

func applyCmd() *cli.Command {
	return &cli.Command{
		Name:                  "apply",
		EnableShellCompletion: true,
		Usage:                 "Reconcile the monitoring stack's network resources on the cluster",
		ArgsUsage:             "[manifest-file]",
		Description: `Reconciles the Service, NetworkPolicies and ServiceMonitor that wire the
Kepler exporter into Prometheus. Without an argument the built-in resource
set is applied; with a manifest file argument the file's resources are
applied instead.

Applying is idempotent: resources already matching the desired state are
left untouched and reported as unchanged.

# Built-in Resources

  - Service kepler-exporter: headless service exposing the metrics port
  - NetworkPolicy allow-prometheus-to-kepler: admits Prometheus scrapes
  - NetworkPolicy allow-grafana-external: admits dashboard access
  - ServiceMonitor kepler-exporter: registers the scrape target

# Examples

Apply the built-in resource set:
  chiropctl apply --namespace kepler --monitoring-namespace monitoring

Open the exporter and Grafana to any source, as on an isolated testbed:
  chiropctl apply --open-external

Apply resources from a file:
  chiropctl apply ./extra-policies.yaml`,
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
				Usage: "Namespace hosting Prometheus and Grafana",
			},
			&cli.Int32Flag{
				Name:  "metrics-port",
				Value: manifest.KeplerMetricsPort,
				Usage: "Port the exporter serves metrics on",
			},
			&cli.StringFlag{
				Name:  "scrape-interval",
				Value: defaults.ScrapeInterval,
				Usage: "Prometheus scrape interval for the ServiceMonitor",
			},
			&cli.BoolFlag{
				Name:  "open-external",
				Usage: "Allow traffic from any source to the exporter and Grafana (isolated testbeds only)",
			},
			outputFlag(),
			formatFlag(),
			kubeconfigFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := buildStore(cmd)
			if err != nil {
				return err
			}

			clients, err := client.New(cmd.String("kubeconfig"))
			if err != nil {
				return err
			}

			engine := apply.New(clients.Dynamic)
			results, err := engine.ApplyAll(ctx, store)
			if err != nil {
				return err
			}

			report := apply.NewReport(results)
			slog.Info("apply complete",
				slog.Int("resources", len(results)),
				slog.Int("changed", report.Changed))

			out, err := newSerializer(cmd)
			if err != nil {
				return err
			}
			defer out.Close()
			return out.Serialize(report)
		},
	}
}

func buildStore(cmd *cli.Command) (*manifest.Store, error) {
	if cmd.Args().Len() > 0 {
		return manifest.LoadFile(cmd.Args().First())
	}
	return manifest.DefaultStore(manifest.StackConfig{
		Namespace:           cmd.String("namespace"),
		MonitoringNamespace: cmd.String("monitoring-namespace"),
		MetricsPort:         cmd.Int32("metrics-port"),
		ScrapeInterval:      cmd.String("scrape-interval"),
		OpenExternal:        cmd.Bool("open-external"),
	})
}
