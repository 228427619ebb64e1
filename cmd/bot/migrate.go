package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	clientrepo "github.com/ovaphlow/pitchfork/service-client-bot/internal/client/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-client-bot/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/database"
)

func newMigrateCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and the change-notification trigger, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := bootstrap(cmd.Context(), *envFile)
			if err != nil {
				return err
			}
			defer lg.Sync()
			sugar := lg.Sugar()

			db, err := database.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrate(cmd.Context(), db, cfg.NotifyChannel); err != nil {
				return err
			}
			sugar.Infow("schema is up to date", "channel", cfg.NotifyChannel)
			return nil
		},
	}
}

func migrate(ctx context.Context, db *sqlx.DB, channel string) error {
	if err := userrepo.NewUserRepo(db).EnsureTable(ctx); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	if err := clientrepo.NewClientRepo(db).EnsureTable(ctx, channel); err != nil {
		return fmt.Errorf("migrate clients: %w", err)
	}
	return nil
}
