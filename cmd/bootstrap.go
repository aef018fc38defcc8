/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/nebulasphere007-cell/MockZen/internal/db"
	"github.com/nebulasphere007-cell/MockZen/internal/services"
	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	bootstrapEmail    string
	bootstrapPassword string
)

// bootstrapCmd creates or updates a super admin directly against the database.
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create or update a super admin account",
	Long: `Creates a super admin, or rotates the password of an existing one.
The password falls back to SUPERADMIN_PASSWORD when --password is omitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		password := bootstrapPassword
		if password == "" {
			password = os.Getenv("SUPERADMIN_PASSWORD")
		}
		if bootstrapEmail == "" || password == "" {
			return errors.New("--email and a password are required")
		}

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		identity := services.NewIdentityService(store.NewAccountRepository(dbConn), store.NewInstitutionRepository(dbConn))
		provisioning := services.NewProvisioningService(identity, cfg, log)

		account, created, err := provisioning.CreateSuperAdmin(cmd.Context(), bootstrapEmail, password)
		if err != nil {
			return err
		}
		log.Info("super admin ready", zap.String("account_id", account.ID.String()), zap.Bool("created", created))
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "created super admin %s\n", account.ID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "updated super admin %s\n", account.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
	bootstrapCmd.Flags().StringVar(&bootstrapEmail, "email", "", "super admin email")
	bootstrapCmd.Flags().StringVar(&bootstrapPassword, "password", "", "super admin password")
}
