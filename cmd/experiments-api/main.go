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
	flags := slices.Concat(cmd.StoreFlags(), cmd.EventBusFlags(true), cmd.APIFlags())

	command := &cli.Command{
		Name:                  "experiments-api",
		Usage:                 "Serve the experiments portal API and hand runs to the workers",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return run(ctx, command)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("experiments-api").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
