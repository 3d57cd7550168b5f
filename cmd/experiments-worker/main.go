package main

import (
	"context"
	"os"
	"slices"

	"github.com/mso4sc/experiments/pkg/cmd"
	"github.com/mso4sc/experiments/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	flags := slices.Concat(
		[]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		},
		cmd.StoreFlags(),
		cmd.EventBusFlags(true),
		cmd.WorkerFlags(),
	)

	command := &cli.Command{
		Name:                  "experiments-worker",
		EnableShellCompletion: true,
		Usage:                 "Run instance workflows requested through the event bus",
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return run(ctx, command)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("experiments-worker").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
