package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/nodeadmin/backend/internal/accounts"
	"github.com/nodeadmin/backend/internal/models"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var role, search string
	var limit int
	var expiredKeys bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, total, err := be.accounts.List(cmd.Context(), accounts.SystemActor, accounts.ListOptions{
				Search:     strings.TrimSpace(search),
				Role:       models.UserRole(role),
				KeyExpired: expiredKeys,
				Limit:      limit,
			})
			if err != nil {
				return fmt.Errorf("listing users: %w", err)
			}

			if flagJSON {
				return printJSON(cmd.OutOrStdout(), users)
			}
			userTable(cmd.OutOrStdout(), users)
			if int64(len(users)) < total {
				fmt.Fprintf(cmd.OutOrStdout(), "\nShowing %d of %d users.\n", len(users), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Filter by role: admin, recipient, custodian")
	cmd.Flags().StringVar(&search, "search", "", "Match username, name or mail")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of users")
	cmd.Flags().BoolVar(&expiredKeys, "expired-keys", false, "Only users whose PGP key has expired")
	return cmd
}

func newAddCmd() *cobra.Command {
	var in accounts.NewUser
	var role, keyFile string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = models.UserRole(role)
			if keyFile != "" {
				data, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("reading key file: %w", err)
				}
				in.PGPKeyPublic = string(data)
			}

			u, err := be.accounts.Add(cmd.Context(), accounts.SystemActor, in)
			if err != nil {
				return fmt.Errorf("creating user: %w", err)
			}

			if flagJSON {
				return printJSON(cmd.OutOrStdout(), u)
			}
			userDetail(cmd.OutOrStdout(), u)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&role, "role", string(models.UserRoleRecipient), "Role: admin, recipient, custodian")
	f.StringVar(&in.Username, "username", "", "Login name")
	f.StringVar(&in.Name, "name", "", "Full name")
	f.StringVar(&in.PublicName, "public-name", "", "Name shown to other users (default: name)")
	f.StringVar(&in.Mail, "mail", "", "Mail address")
	f.StringVar(&in.Language, "language", "", "Language code (default: node language)")
	f.StringVar(&in.Password, "password", "", "Initial password")
	f.StringVar(&keyFile, "pgp-key-file", "", "Path to an armored PGP public key")
	f.BoolVar(&in.SendActivation, "send-activation", false, "Mail an activation link")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|username>",
		Short: "Delete a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := resolveUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := be.accounts.Delete(cmd.Context(), accounts.SystemActor, u.ID); err != nil {
				return fmt.Errorf("deleting user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", displayName(u), u.ID)
			return nil
		},
	}
}

func newSendResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-reset <id|username>",
		Short: "Mail an activation or password reset link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := resolveUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			kind, err := be.accounts.SendPasswordReset(cmd.Context(), accounts.SystemActor, u.ID)
			if err != nil {
				return fmt.Errorf("sending reset link: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s link for %s\n", kind, u.Mail)
			return nil
		},
	}
}

func newDisable2FACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable-2fa <id|username>",
		Short: "Turn off two-factor authentication for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := resolveUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if _, err := be.accounts.Disable2FA(cmd.Context(), accounts.SystemActor, u.ID); err != nil {
				return fmt.Errorf("disabling two-factor: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Two-factor disabled for %s\n", displayName(u))
			return nil
		},
	}
}
