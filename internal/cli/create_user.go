package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

// CreateUserCommand adds an account from the command line. The password is
// read from the terminal without echo, or from the first line of stdin when
// stdin is not a terminal.
type CreateUserCommand struct {
	Username string
	Email    string
	FullName string
	Role     string

	cfg          *config.Config
	in           io.Reader
	out          io.Writer
	readPassword func(prompt string) (string, error)
}

func NewCreateUserCommand(cfg *config.Config) *CreateUserCommand {
	cmd := &CreateUserCommand{cfg: cfg, in: os.Stdin, out: os.Stdout}
	cmd.readPassword = cmd.promptPassword
	return cmd
}

func (cmd *CreateUserCommand) Cobra() *cobra.Command {
	c := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account",
		Example: `  librarian create-user --username alice --role reader
  echo "$PASSWORD" | librarian create-user --username admin --role admin`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.Run()
		},
	}
	c.Flags().StringVar(&cmd.Username, "username", "", "Login name (required)")
	c.Flags().StringVar(&cmd.Email, "email", "", "Email address")
	c.Flags().StringVar(&cmd.FullName, "full-name", "", "Display name")
	c.Flags().StringVar(&cmd.Role, "role", string(entities.UserRoleReader), "reader, librarian or admin")
	_ = c.MarkFlagRequired("username")
	return c
}

func (cmd *CreateUserCommand) Run() error {
	role := entities.UserRole(cmd.Role)
	if !role.Valid() {
		return auth.ErrInvalidRole
	}

	password, err := cmd.readPassword("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	db, err := database.Open(cmd.cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	user, err := auth.NewService(db.DB, cmd.cfg.Auth).CreateUser(auth.NewUser{
		Username: cmd.Username,
		Email:    cmd.Email,
		FullName: cmd.FullName,
		Password: password,
		Role:     role,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.out, "Created %s %q (id %d)\n", user.Role, user.Username, user.ID)
	return nil
}

func (cmd *CreateUserCommand) promptPassword(prompt string) (string, error) {
	if f, ok := cmd.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.out, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(cmd.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
