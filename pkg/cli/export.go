package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
	"github.com/grid5000/chiropctl/pkg/export"
	"github.com/grid5000/chiropctl/pkg/oci"
)

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:                  "export",
		EnableShellCompletion: true,
		Usage:                 "Export power samples to per-device CSV files",
		Description: `Exports power measurements as one CSV file per device (columns
timestamp,power_watt, sorted by timestamp) plus a summary report.

Samples come from exactly one source: a JSON capture file (--input) or a
Prometheus range query over the trailing window (--prometheus-url).

# Examples

Export a capture file:
  chiropctl export --input samples.json --output-dir ./power-export

Export the last hour of node power from Prometheus:
  chiropctl export --prometheus-url http://localhost:9090 \
    --window 1h --step 30s

Archive the result in a registry:
  chiropctl export --input samples.json \
    --push --registry registry.local:5000 --repository power/gros --tag run-3 \
    --plain-http`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Path to a JSON power samples file",
			},
			&cli.StringFlag{
				Name:  "prometheus-url",
				Usage: "Prometheus server address (e.g., http://localhost:9090)",
			},
			&cli.StringFlag{
				Name:  "query",
				Value: export.DefaultQuery,
				Usage: "PromQL range query selecting the power series",
			},
			&cli.DurationFlag{
				Name:  "window",
				Value: time.Hour,
				Usage: "Trailing time window for the Prometheus query",
			},
			&cli.DurationFlag{
				Name:  "step",
				Value: 30 * time.Second,
				Usage: "Query resolution step",
			},
			&cli.StringSliceFlag{
				Name:  "exclude-device",
				Usage: "Drop samples whose device matches the pattern (supports * wildcards, can be repeated)",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"d"},
				Value:   "./power-export",
				Usage:   "Directory the per-device CSV files are written to",
			},
			// OCI push flags
			&cli.BoolFlag{
				Name:  "push",
				Usage: "Push the export directory as an OCI artifact to a registry",
			},
			&cli.StringFlag{
				Name:  "registry",
				Usage: "OCI registry host (e.g., ghcr.io, localhost:5000)",
			},
			&cli.StringFlag{
				Name:  "repository",
				Usage: "OCI repository path (e.g., power/gros)",
			},
			&cli.StringFlag{
				Name:  "tag",
				Usage: "OCI artifact tag (default: latest)",
			},
			&cli.StringFlag{
				Name:    "registry-username",
				Sources: cli.EnvVars("CHIROP_REGISTRY_USERNAME"),
				Usage:   "Registry username for authenticated pushes",
			},
			&cli.StringFlag{
				Name:    "registry-password",
				Sources: cli.EnvVars("CHIROP_REGISTRY_PASSWORD"),
				Usage:   "Registry password for authenticated pushes",
			},
			&cli.BoolFlag{
				Name:  "plain-http",
				Usage: "Use HTTP instead of HTTPS for the OCI registry",
			},
			&cli.BoolFlag{
				Name:  "insecure-tls",
				Usage: "Skip TLS certificate verification for the OCI registry",
			},
			outputFlag(),
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			input := cmd.String("input")
			prometheusURL := cmd.String("prometheus-url")
			if (input == "") == (prometheusURL == "") {
				return chiroperrors.New(chiroperrors.ErrCodeValidation,
					"exactly one of --input or --prometheus-url is required")
			}
			if cmd.Bool("push") {
				if cmd.String("registry") == "" || cmd.String("repository") == "" {
					return chiroperrors.New(chiroperrors.ErrCodeValidation,
						"--registry and --repository are required when --push is enabled")
				}
			}

			var samples []export.Sample
			var err error
			if input != "" {
				samples, err = export.LoadSamples(input)
			} else {
				var source *export.PrometheusSource
				source, err = export.NewPrometheusSource(prometheusURL)
				if err == nil {
					samples, err = source.Fetch(ctx, cmd.String("query"),
						cmd.Duration("window"), cmd.Duration("step"))
				}
			}
			if err != nil {
				return err
			}
			samples = export.FilterOut(samples, cmd.StringSlice("exclude-device"))

			outputDir := cmd.String("output-dir")
			report, err := export.Write(ctx, samples, outputDir)
			if err != nil {
				return err
			}

			if cmd.Bool("push") {
				if err := pushExport(ctx, cmd, outputDir); err != nil {
					return err
				}
			}

			out, err := newSerializer(cmd)
			if err != nil {
				return err
			}
			defer out.Close()
			return out.Serialize(report)
		},
	}
}

func pushExport(ctx context.Context, cmd *cli.Command, dir string) error {
	tag := cmd.String("tag")
	if tag == "" {
		tag = "latest"
	}
	reference := cmd.String("registry") + "/" + cmd.String("repository") + ":" + tag

	var opts []oci.Option
	if cmd.Bool("plain-http") {
		opts = append(opts, oci.WithPlainHTTP())
	}
	if cmd.Bool("insecure-tls") {
		opts = append(opts, oci.WithInsecureTLS())
	}
	if username := cmd.String("registry-username"); username != "" {
		opts = append(opts, oci.WithCredentials(username, cmd.String("registry-password")))
	}

	digest, err := oci.New(opts...).PushDirectory(ctx, dir, reference)
	if err != nil {
		return err
	}
	slog.Info("export pushed",
		slog.String("reference", reference),
		slog.String("digest", digest))
	return nil
}
