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
	command := &cli.Command{
		Name:                  "experiments",
		Usage:                 "Run and manage MSO4SC experiment instances",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"s"},
				Usage:   "Serve the API and run instance workflows in one process",
				Flags:   slices.Concat(cmd.StoreFlags(), cmd.WorkerFlags(), cmd.APIFlags()),
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"), command.String("log-format"))

					return serve(ctx, command)
				},
			},
			{
				Name:  "sweep",
				Usage: "Abandon instances left running by a stopped process and exit",
				Flags: slices.Concat(cmd.StoreFlags(), cmd.WorkerFlags()),
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"), command.String("log-format"))

					return sweep(ctx, command)
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("experiments").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
