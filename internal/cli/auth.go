package cli

import (
	"bufio"
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"cms-console/internal/domain"
	"cms-console/internal/validation"
)

// readSecret reads the first line of stdin when a flag was left empty.
func (a *App) readSecret(cmd *cobra.Command, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("password is required (use --password or pipe it on stdin)")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *App) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Long: `Sign in with a username and password. The token is kept in the session
store (session.path) and reused by later commands until it expires or the API
rejects it.

Examples:
  cmsctl login -u alice -p s3cret!
  echo "$CMS_PASSWORD" | cmsctl login -u alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := a.readSecret(cmd, password)
			if err != nil {
				return err
			}
			form := validation.LoginForm{Username: username, Password: secret}
			if err := validation.ValidateLogin(form); err != nil {
				return err
			}

			user, err := a.session.Login(cmd.Context(), strings.TrimSpace(username), secret)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printer.JSON(user)
			}
			a.printer.Success("Signed in as %s %s", a.printer.Bold(user.Username), a.printer.RoleBadge(string(user.Role)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (read from stdin when omitted)")
	return cmd
}

func (a *App) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			a.printer.Success("Signed out")
			return nil
		},
	}
}

func (a *App) registerCmd() *cobra.Command {
	var username, password, role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account. Registering does not sign in; run 'cmsctl login' afterwards.

Example:
  cmsctl register -u carol -p s3cret! --role User`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := a.readSecret(cmd, password)
			if err != nil {
				return err
			}
			err = a.accounts.Register(cmd.Context(), validation.RegisterForm{
				Username: username,
				Password: secret,
				Role:     domain.Role(role),
			})
			if err != nil {
				return err
			}
			a.printer.Success("Account %s created, sign in with: cmsctl login -u %s", username, username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (read from stdin when omitted)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "account role: User or Admin")
	return cmd
}

func (a *App) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.guard("").Protect(cmd.Context(), func(_ context.Context, user *domain.User) error {
				if a.jsonOut {
					return a.printer.JSON(user)
				}
				table := a.printer.NewTable("ID", "USERNAME", "ROLE")
				table.AddRow(user.ID, user.Username, a.printer.RoleBadge(string(user.Role)))
				return table.Render()
			})
		},
	}
}
