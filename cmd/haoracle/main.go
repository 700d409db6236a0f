package main

import (
	"context"
	"log"
	"os"

	commands "github.com/urfave/cli/v3"

	"github.com/xenrt/haoracle/internal/cli"
	"github.com/xenrt/haoracle/internal/config"
)

func strict() commands.Flag {
	return &commands.BoolFlag{
		Name:  "strict",
		Usage: "Reject scenarios where several host groups still reach the statefile",
	}
}

func main() {
	cmd := &commands.Command{
		Name:  "haoracle",
		Usage: "Predict and verify how an HA pool survives injected faults",
		Flags: []commands.Flag{
			&commands.StringFlag{
				Name:    "config",
				Usage:   "Pool description file",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
			},
		},
		Commands: []*commands.Command{
			{
				Name:      "init",
				Usage:     "Describe a new pool",
				ArgsUsage: "[path]",
				Flags: []commands.Flag{
					&commands.IntFlag{
						Name:  "hosts",
						Usage: "Number of hosts in the pool",
						Value: 3,
					},
				},
				Action: cli.InitPool,
			},
			{
				Name:   "list",
				Usage:  "Show available scenarios",
				Action: cli.ListScenarios,
			},
			{
				Name:      "predict",
				Usage:     "Show the expected outcome of a scenario",
				ArgsUsage: "<scenario>",
				Flags:     []commands.Flag{strict()},
				Action:    cli.PredictScenario,
			},
			{
				Name:      "partition",
				Usage:     "Show how the pool splits for a partition shape",
				ArgsUsage: "<largest|smallest|equal>",
				Flags:     []commands.Flag{strict()},
				Action:    cli.PartitionPool,
			},
			{
				Name:      "run",
				Usage:     "Inject a scenario into the pool and check the outcome",
				ArgsUsage: "<scenario>",
				Flags: []commands.Flag{
					strict(),
					&commands.BoolFlag{
						Name:  "dry-run",
						Usage: "Print predictions without touching the pool",
					},
					&commands.BoolFlag{
						Name:    "verbose",
						Usage:   "Show each harness step",
						Aliases: []string{"v"},
					},
					&commands.Uint64Flag{
						Name:  "seed",
						Usage: "Seed for randomized scenarios (random when unset)",
					},
					&commands.IntFlag{
						Name:  "operations",
						Usage: "Number of steps a randomized scenario takes",
						Value: 20,
					},
					&commands.StringSliceFlag{
						Name:  "playback",
						Usage: "Replay recorded steps of a randomized scenario, e.g. kill:<host>,restore:<host>",
					},
				},
				Action: cli.RunScenario,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
