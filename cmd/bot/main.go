package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-client-bot/internal/config"
	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/utilities"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:          "clientbot",
		Short:        "Telegram client onboarding bot with a PostgreSQL change relay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading configuration (optional).")

	cmd.AddCommand(newRunCmd(&envFile))
	cmd.AddCommand(newMigrateCmd(&envFile))
	return cmd
}

// bootstrap loads the env file (best-effort), the typed config and the
// logger shared by all commands.
func bootstrap(ctx context.Context, envFile string) (*config.Config, *zap.Logger, error) {
	if envFile != "" {
		// a missing file is fine: the real environment may hold everything
		_ = godotenv.Load(envFile)
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, lg, nil
}
