package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/matinee/internal/config"
	"github.com/zulandar/matinee/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		Long:  "Runs GORM auto-migration for all Matinee tables and seeds server rows from the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}

			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			if err := db.SeedServers(gormDB, cfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Migration complete\n")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "matinee.yaml", "path to Matinee config file")
	return cmd
}
