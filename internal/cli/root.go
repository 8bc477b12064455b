package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/nodeadmin/backend/internal/accounts"
	"github.com/nodeadmin/backend/internal/bootstrap"
	"github.com/nodeadmin/backend/internal/config"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/spf13/cobra"
)

// backend is what the commands act on. Commands run as accounts.SystemActor.
type backend struct {
	users    userFinder
	accounts *accounts.Manager
	close    func()
}

type userFinder interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// connect is replaced in tests.
var connect = func(ctx context.Context) (*backend, error) {
	services, err := bootstrap.New(ctx, config.Load())
	if err != nil {
		return nil, err
	}
	return &backend{users: services.Users, accounts: services.Accounts, close: services.Close}, nil
}

var (
	flagJSON bool

	be *backend
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "usersctl",
		Short: "Manage node user accounts from the terminal",
		Long: `usersctl talks to the node database directly and runs every action
as the system operator.

  usersctl list --role recipient
  usersctl add --role admin --username alice --mail alice@example.org
  usersctl send-reset alice`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if be != nil {
				return nil
			}
			var err error
			be, err = connect(cmd.Context())
			if err != nil {
				return fmt.Errorf("connecting: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	root.AddCommand(newListCmd(), newAddCmd(), newDeleteCmd(), newSendResetCmd(), newDisable2FACmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	if err := run(context.Background(), NewRootCmd()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func run(ctx context.Context, root *cobra.Command) error {
	defer func() {
		if be != nil && be.close != nil {
			be.close()
		}
		be = nil
	}()
	return root.ExecuteContext(ctx)
}

// resolveUser accepts a user id or a username.
func resolveUser(ctx context.Context, ref string) (*models.User, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return be.users.Get(ctx, id)
	}
	u, err := be.users.FindByUsername(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("looking up %q: %w", ref, err)
	}
	return u, nil
}
