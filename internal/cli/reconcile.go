package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database/reports"
)

// ReconcileCommand repairs availability counters that drifted from the
// copies table.
type ReconcileCommand struct {
	DryRun bool

	cfg *config.Config
	out io.Writer
}

func NewReconcileCommand(cfg *config.Config) *ReconcileCommand {
	return &ReconcileCommand{cfg: cfg, out: os.Stdout}
}

func (cmd *ReconcileCommand) Cobra() *cobra.Command {
	c := &cobra.Command{
		Use:   "reconcile",
		Short: "Recount available copies for every book",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return cmd.Run(c.Context())
		},
	}
	c.Flags().BoolVar(&cmd.DryRun, "dry-run", false, "Only report drifted books")
	return c
}

func (cmd *ReconcileCommand) Run(ctx context.Context) error {
	a, err := openApp(cmd.cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if cmd.DryRun {
		rep, err := reports.NewRepository(a.db)
		if err != nil {
			return err
		}
		drift, err := rep.AvailabilityDrift(ctx)
		if err != nil {
			return fmt.Errorf("find drift: %w", err)
		}
		for _, d := range drift {
			fmt.Fprintf(cmd.out, "book %d %q: recorded %d, actual %d\n", d.BookID, d.Title, d.Recorded, d.Actual)
		}
		fmt.Fprintf(cmd.out, "%d book(s) drifted\n", len(drift))
		return nil
	}

	fixes, err := a.service.ReconcileAvailability(ctx, circulation.SystemActor)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	for _, f := range fixes {
		fmt.Fprintf(cmd.out, "book %d %q: %d -> %d\n", f.BookID, f.Title, f.Before, f.After)
	}
	fmt.Fprintf(cmd.out, "%d counter(s) fixed\n", len(fixes))
	return nil
}
