package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
	"github.com/grid5000/chiropctl/pkg/logging"
	"github.com/grid5000/chiropctl/pkg/serializer"
	"github.com/grid5000/chiropctl/pkg/version"
)

// Process exit codes. Scripts driving chiropctl key off these.
const (
	ExitOK                 = 0
	ExitValidation         = 1
	ExitClusterUnreachable = 2
	ExitChecksFailed       = 3
)

// Flag state in urfave/cli is per-instance, so commands sharing a common
// flag each get their own copy.
func kubeconfigFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "kubeconfig",
		Sources: cli.EnvVars("KUBECONFIG"),
		Usage:   "Path to the kubeconfig file (defaults to $KUBECONFIG, then ~/.kube/config)",
	}
}

func outputFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Value:   serializer.StdoutURI,
		Usage:   "Output file path, '-' for stdout",
	}
}

func formatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   string(serializer.FormatYAML),
		Usage:   "Output format: yaml, json or table",
	}
}

// New builds the chiropctl command tree.
func New() *cli.Command {
	return &cli.Command{
		Name:                  "chiropctl",
		Usage:                 "Deploy and diagnose the Kepler power-monitoring stack on Grid'5000 clusters",
		Version:               version.Version,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.Setup(cmd.Bool("verbose"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			installCmd(),
			applyCmd(),
			diagnoseCmd(),
			profileCmd(),
			exportCmd(),
		},
	}
}

// Run executes the CLI and maps structured error codes onto exit codes:
// 1 for validation and generic failures, 2 when the cluster or a chart
// repository cannot be reached, 3 when diagnostic checks fail.
func Run(ctx context.Context, args []string) int {
	err := New().Run(ctx, args)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	switch chiroperrors.CodeOf(err) {
	case chiroperrors.ErrCodeClusterUnreachable, chiroperrors.ErrCodeRepoUnreachable:
		return ExitClusterUnreachable
	case chiroperrors.ErrCodeCheckFailed:
		return ExitChecksFailed
	default:
		return ExitValidation
	}
}
