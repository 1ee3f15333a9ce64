package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librarian/internal/cli"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCommand(config.NewConfig()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand(cfg *config.Config) *cobra.Command {
	serve := func(*cobra.Command, []string) {
		entrypoint.Run(cfg, Version)
	}

	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Library circulation server",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		Args:          cobra.NoArgs,
		Run:           serve,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API server",
			Args:  cobra.NoArgs,
			Run:   serve,
		},
		cli.NewAccrueFinesCommand(cfg).Cobra(),
		cli.NewReconcileCommand(cfg).Cobra(),
		cli.NewCreateUserCommand(cfg).Cobra(),
	)
	return root
}
