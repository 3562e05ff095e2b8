package cli

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/grid5000/chiropctl/pkg/defaults"
	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
	"github.com/grid5000/chiropctl/pkg/profile"
)

func profilesFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "profiles",
		Aliases: []string{"p"},
		Value:   defaults.ProfilesFile,
		Usage:   "Path to the machine profiles JSON file",
	}
}

func profileCmd() *cli.Command {
	return &cli.Command{
		Name:                  "profile",
		EnableShellCompletion: true,
		Usage:                 "Inspect and extend the machine profile registry",
		Description: `Machine profiles describe each cluster's hardware and the stress
parameters tuned for it, keyed by cluster name in a JSON file.

# Examples

Look up a cluster profile:
  chiropctl profile get gros --profiles machine_profiles.json

Validate a hand-edited profiles file:
  chiropctl profile validate --profiles machine_profiles.json

Derive stress parameters for a new cluster and append it:
  chiropctl profile derive --cluster paradoxe --site rennes \
    --cpu-threads 104 --cpu-cores 52 --memory-gb 512 --append`,
		Commands: []*cli.Command{
			profileGetCmd(),
			profileValidateCmd(),
			profileDeriveCmd(),
		},
	}
}

func profileGetCmd() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print the profile for a cluster",
		ArgsUsage: "<cluster>",
		Flags: []cli.Flag{
			profilesFlag(),
			outputFlag(),
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return chiroperrors.New(chiroperrors.ErrCodeValidation,
					"expected exactly one cluster name argument")
			}

			registry, err := profile.Load(cmd.String("profiles"))
			if err != nil {
				return err
			}
			p, err := registry.Get(cmd.Args().First())
			if err != nil {
				return err
			}

			out, err := newSerializer(cmd)
			if err != nil {
				return err
			}
			defer out.Close()
			return out.Serialize(p)
		},
	}
}

// validateSummary is the success output of profile validate.
type validateSummary struct {
	File     string   `json:"file" yaml:"file"`
	Profiles int      `json:"profiles" yaml:"profiles"`
	Clusters []string `json:"clusters" yaml:"clusters"`
}

func profileValidateCmd() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check every profile in the file against its invariants",
		Flags: []cli.Flag{
			profilesFlag(),
			outputFlag(),
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("profiles")
			registry, err := profile.Load(path)
			if err != nil {
				return err
			}

			slog.Info("profiles valid",
				slog.String("file", path),
				slog.Int("profiles", registry.Count()))

			out, err := newSerializer(cmd)
			if err != nil {
				return err
			}
			defer out.Close()
			return out.Serialize(validateSummary{
				File:     path,
				Profiles: registry.Count(),
				Clusters: registry.Names(),
			})
		},
	}
}

func profileDeriveCmd() *cli.Command {
	return &cli.Command{
		Name:  "derive",
		Usage: "Compute stress parameters for a cluster from its hardware",
		Description: `Derives the stress parameters from the hardware description: every
hardware thread is stressed, half the physical cores drive vm workers,
and the memory share follows the RAM tier. The hardware is described
either by flags or detected from the local machine's lscpu and free
output with --detect.

With --append the profile is added to the profiles file; existing
entries are never overwritten unless --force is given.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "cluster",
				Required: true,
				Usage:    "Cluster name, the profile key",
			},
			&cli.StringFlag{
				Name:  "site",
				Usage: "Grid'5000 site hosting the cluster",
			},
			&cli.BoolFlag{
				Name:  "detect",
				Usage: "Detect the hardware from the local machine instead of flags",
			},
			&cli.IntFlag{
				Name:  "cpu-threads",
				Usage: "Hardware threads per node",
			},
			&cli.IntFlag{
				Name:  "cpu-cores",
				Usage: "Physical cores per node",
			},
			&cli.IntFlag{
				Name:  "sockets",
				Usage: "CPU sockets per node",
			},
			&cli.IntFlag{
				Name:  "threads-per-core",
				Usage: "Hardware threads per core",
			},
			&cli.IntFlag{
				Name:  "memory-gb",
				Usage: "Memory per node in GB",
			},
			&cli.StringFlag{
				Name:  "cpu-model",
				Usage: "CPU model string",
			},
			&cli.IntFlag{
				Name:  "cpu-base-mhz",
				Usage: "CPU base frequency in MHz",
			},
			&cli.IntFlag{
				Name:  "cpu-max-mhz",
				Usage: "CPU max frequency in MHz",
			},
			&cli.BoolFlag{
				Name:  "append",
				Usage: "Append the derived profile to the profiles file",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Replace an existing profile of the same name on --append",
			},
			profilesFlag(),
			outputFlag(),
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var p *profile.MachineProfile
			if cmd.Bool("detect") {
				detected, err := profile.Detect(ctx, cmd.String("cluster"), cmd.String("site"))
				if err != nil {
					return err
				}
				p = detected
			} else {
				if cmd.Int("cpu-threads") == 0 || cmd.Int("cpu-cores") == 0 || cmd.Int("memory-gb") == 0 {
					return chiroperrors.New(chiroperrors.ErrCodeValidation,
						"--cpu-threads, --cpu-cores and --memory-gb are required without --detect")
				}
				p = &profile.MachineProfile{
					Cluster:        cmd.String("cluster"),
					Site:           cmd.String("site"),
					CPUThreads:     cmd.Int("cpu-threads"),
					CPUCores:       cmd.Int("cpu-cores"),
					Sockets:        cmd.Int("sockets"),
					ThreadsPerCore: cmd.Int("threads-per-core"),
					MemoryGB:       cmd.Int("memory-gb"),
					CPUModel:       cmd.String("cpu-model"),
					CPUBaseMHz:     cmd.Int("cpu-base-mhz"),
					CPUMaxMHz:      cmd.Int("cpu-max-mhz"),
				}
				p.Derive()
			}

			if cmd.Bool("append") {
				path := cmd.String("profiles")
				registry, err := profile.Load(path)
				if errors.Is(err, fs.ErrNotExist) {
					registry = profile.NewRegistry()
				} else if err != nil {
					return err
				}
				if err := registry.Add(p, cmd.Bool("force")); err != nil {
					return err
				}
				if err := registry.Save(path); err != nil {
					return err
				}
				slog.Info("profile appended",
					slog.String("cluster", p.Cluster),
					slog.String("file", path))
			}

			out, err := newSerializer(cmd)
			if err != nil {
				return err
			}
			defer out.Close()
			return out.Serialize(p)
		},
	}
}
