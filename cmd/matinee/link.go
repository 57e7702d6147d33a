package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/matinee/internal/config"
	"github.com/zulandar/matinee/internal/db"
	"github.com/zulandar/matinee/internal/identity"
)

func newLinkCmd() *cobra.Command {
	var configPath, name, email string

	cmd := &cobra.Command{
		Use:   "link <discord-user-id>",
		Short: "Link a Discord user to a Matinee account",
		Long:  "Creates (or re-activates) the account link that lets a Discord user talk to the bot.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}
			store, err := identity.NewStore(gormDB)
			if err != nil {
				return err
			}

			link, err := store.Link(cmd.Context(), args[0], name, email)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Linked Discord user %s to account %d\n",
				link.DiscordUserID, link.UserID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "matinee.yaml", "path to Matinee config file")
	cmd.Flags().StringVar(&name, "name", "", "account display name (for new accounts)")
	cmd.Flags().StringVar(&email, "email", "", "account email (for new accounts)")
	return cmd
}

func newUnlinkCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "unlink <discord-user-id>",
		Short: "Revoke a Discord account link",
		Long:  "Marks the link revoked; the user is treated as never linked until re-linked.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}
			store, err := identity.NewStore(gormDB)
			if err != nil {
				return err
			}

			if err := store.Unlink(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unlinked Discord user %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "matinee.yaml", "path to Matinee config file")
	return cmd
}
