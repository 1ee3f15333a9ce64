package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librarian/internal/config"
)

// AccrueFinesCommand runs the overdue fine sweep once.
type AccrueFinesCommand struct {
	cfg *config.Config
	out io.Writer
}

func NewAccrueFinesCommand(cfg *config.Config) *AccrueFinesCommand {
	return &AccrueFinesCommand{cfg: cfg, out: os.Stdout}
}

func (cmd *AccrueFinesCommand) Cobra() *cobra.Command {
	return &cobra.Command{
		Use:   "accrue-fines",
		Short: "Accrue fines for all overdue loans",
		Long: `Writes a fine for every overdue active loan that has not been fined yet.
Running it repeatedly never changes an existing fine.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return cmd.Run(c.Context())
		},
	}
}

func (cmd *AccrueFinesCommand) Run(ctx context.Context) error {
	a, err := openApp(cmd.cfg)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.service.ReconcileAllOverdueFines(ctx)
	if err != nil {
		return fmt.Errorf("accrue fines: %w", err)
	}
	fmt.Fprintf(cmd.out, "Accrued %d fine(s)\n", n)
	return nil
}
