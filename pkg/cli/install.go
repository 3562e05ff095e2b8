package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/grid5000/chiropctl/pkg/chart"
	"github.com/grid5000/chiropctl/pkg/defaults"
	"github.com/grid5000/chiropctl/pkg/k8s/client"
)

func installCmd() *cli.Command {
	return &cli.Command{
		Name:                  "install",
		EnableShellCompletion: true,
		Usage:                 "Install or upgrade the Kepler and Prometheus Helm releases",
		Description: `Installs the power-monitoring stack: the kube-prometheus-stack chart into
the monitoring namespace, then the Kepler exporter chart. Namespaces are
created as needed and each release waits for its pods to report Ready.

Re-running against an unchanged cluster is a no-op: a release already
deployed at the requested chart version with the same values is left
untouched.

# Examples

Install the full stack with defaults:
  chiropctl install

Pin chart versions:
  chiropctl install --kepler-version 0.5.9 --prometheus-version 55.5.0

Override chart values:
  chiropctl install --set serviceMonitor.enabled=true \
    --prometheus-set grafana.service.type=NodePort

Only the exporter, against an existing Prometheus:
  chiropctl install --skip-prometheus`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Value:   defaults.Namespace,
				Usage:   "Namespace for the Kepler release",
			},
			&cli.StringFlag{
				Name:  "monitoring-namespace",
				Value: defaults.MonitoringNamespace,
				Usage: "Namespace for the Prometheus release",
			},
			&cli.StringFlag{
				Name:  "kepler-version",
				Usage: "Kepler chart version (default: latest)",
			},
			&cli.StringFlag{
				Name:  "prometheus-version",
				Usage: "kube-prometheus-stack chart version (default: latest)",
			},
			&cli.StringSliceFlag{
				Name:  "set",
				Usage: "Override Kepler chart values (format: path.to.field=value, can be repeated)",
			},
			&cli.StringSliceFlag{
				Name:  "prometheus-set",
				Usage: "Override kube-prometheus-stack chart values (format: path.to.field=value, can be repeated)",
			},
			&cli.BoolFlag{
				Name:  "skip-prometheus",
				Usage: "Skip the Prometheus release and only install the exporter",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: defaults.ReadyTimeout,
				Usage: "Per-release readiness timeout",
			},
			outputFlag(),
			formatFlag(),
			kubeconfigFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			keplerValues, err := parseSetValues(cmd.StringSlice("set"))
			if err != nil {
				return err
			}
			prometheusValues, err := parseSetValues(cmd.StringSlice("prometheus-set"))
			if err != nil {
				return err
			}

			kubeconfig := cmd.String("kubeconfig")
			clients, err := client.New(kubeconfig)
			if err != nil {
				return err
			}
			installer := chart.New(kubeconfig, clients.ClientSet)

			releases := []chart.Release{}
			if !cmd.Bool("skip-prometheus") {
				releases = append(releases, chart.Release{
					Name:          "prometheus",
					RepoURL:       defaults.PrometheusRepoURL,
					ChartName:     defaults.PrometheusChartName,
					Version:       cmd.String("prometheus-version"),
					Namespace:     cmd.String("monitoring-namespace"),
					Values:        prometheusValues,
					ReadySelector: defaults.PrometheusReadySelector,
					ReadyTimeout:  cmd.Duration("timeout"),
				})
			}
			releases = append(releases, chart.Release{
				Name:          "kepler",
				RepoURL:       defaults.KeplerRepoURL,
				ChartName:     defaults.KeplerChartName,
				Version:       cmd.String("kepler-version"),
				Namespace:     cmd.String("namespace"),
				Values:        keplerValues,
				ReadySelector: defaults.KeplerReadySelector,
				ReadyTimeout:  cmd.Duration("timeout"),
			})

			results := make([]*chart.Result, 0, len(releases))
			for _, rel := range releases {
				slog.Info("ensuring release",
					slog.String("release", rel.Name),
					slog.String("chart", rel.ChartName),
					slog.String("namespace", rel.Namespace))
				result, err := installer.Ensure(ctx, rel)
				if err != nil {
					return err
				}
				results = append(results, result)
			}

			out, err := newSerializer(cmd)
			if err != nil {
				return err
			}
			defer out.Close()
			return out.Serialize(results)
		},
	}
}
