/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/civictrack/apiserver/config"
	"github.com/civictrack/apiserver/internal/auth"
	"github.com/civictrack/apiserver/internal/db"
	"github.com/civictrack/apiserver/internal/services"
	"github.com/civictrack/apiserver/internal/store"
	"github.com/civictrack/apiserver/types"
	"github.com/spf13/cobra"
)

var (
	adminEmail    string
	adminPassword string
)

// adminCmd groups operator account commands.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an administrator account",
	Long: `Create an administrator account. The password is read from --password or,
if omitted, from the ADMIN_PASSWORD environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := adminPassword
		if password == "" {
			password = os.Getenv("ADMIN_PASSWORD")
		}
		if len(password) < 6 {
			return errors.New("password must be at least 6 characters")
		}
		if len(password) > auth.MaxPasswordBytes {
			return auth.ErrPasswordTooLong
		}

		users, closeDB, err := openUserService(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		user, err := users.CreateUserWithRole(cmd.Context(), adminEmail, password, types.RoleAdmin)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", user.Email, user.ID)
		return nil
	},
}

var adminPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Grant the admin role to an existing user",
	RunE: func(cmd *cobra.Command, args []string) error {
		users, closeDB, err := openUserService(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		user, err := users.GetByEmail(cmd.Context(), strings.TrimSpace(adminEmail))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no user with email %s", adminEmail)
			}
			return err
		}
		if _, err := users.SetRole(cmd.Context(), user.ID, types.RoleAdmin); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "promoted %s to admin\n", user.Email)
		return nil
	},
}

func openUserService(cmd *cobra.Command) (*services.UserService, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return services.NewUserService(store.NewUserRepository(conn)), func() { _ = conn.Close() }, nil
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)
	adminCmd.AddCommand(adminPromoteCmd)

	adminCmd.PersistentFlags().StringVar(&adminEmail, "email", "", "account email")
	_ = adminCmd.MarkPersistentFlagRequired("email")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "account password")
}
