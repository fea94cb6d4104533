package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offboardpro/offboardpro/api/config"
	"github.com/offboardpro/offboardpro/api/database"
	"github.com/offboardpro/offboardpro/api/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the Postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.StoreBackend != config.StorePostgres {
			return fmt.Errorf("migrate needs STORE_BACKEND=%s, got %q", config.StorePostgres, cfg.StoreBackend)
		}
		if err := database.Initialize(); err != nil {
			return err
		}
		defer database.Close()
		if err := postgres.New(database.GetDBx(), cfg.DatabaseURL).Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}
