package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/matinee/internal/arr"
	"github.com/zulandar/matinee/internal/assistant"
	"github.com/zulandar/matinee/internal/bot"
	"github.com/zulandar/matinee/internal/bot/discord"
	"github.com/zulandar/matinee/internal/config"
	"github.com/zulandar/matinee/internal/db"
	"github.com/zulandar/matinee/internal/identity"
	"github.com/zulandar/matinee/internal/plex"
	"github.com/zulandar/matinee/internal/web"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the Matinee bot",
		Long:  "Connects to Discord, listens for commands and chat, and serves the status API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "matinee.yaml", "path to Matinee config file")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}

	adapter, err := discord.New(discord.AdapterOpts{BotToken: cfg.Discord.BotToken})
	if err != nil {
		return err
	}

	idStore, err := identity.NewStore(gormDB)
	if err != nil {
		return err
	}

	library, err := arr.NewClient(gormDB, nil)
	if err != nil {
		return err
	}

	completer, err := assistant.NewClient(assistant.ClientOpts{
		BaseURL: cfg.Assistant.BaseURL,
		APIKey:  cfg.Assistant.APIKey,
		Model:   cfg.Assistant.Model,
	})
	if err != nil {
		return err
	}

	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		DB:        gormDB,
		Config:    cfg,
		Adapter:   adapter,
		Identity:  idStore,
		Media:     plex.NewClient(nil),
		Library:   library,
		Completer: completer,
		Out:       cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if cfg.Web.Enabled {
		go func() {
			err := web.Start(ctx, web.StartOpts{
				DB:   gormDB,
				Port: cfg.Web.Port,
				Out:  cmd.OutOrStdout(),
			})
			if err != nil {
				log.Printf("web: %v", err)
			}
		}()
	}

	return daemon.Run(ctx)
}
