package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-client-bot/internal/bot"
	clientrepo "github.com/ovaphlow/pitchfork/service-client-bot/internal/client/repo"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/dedup"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/message"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/relay"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/router"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/session"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/supervisor"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/telegram"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-client-bot/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/database"
	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/utilities"
)

func newRunCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot and the change relay (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), *envFile)
		},
	}
}

func runBot(ctx context.Context, envFile string) error {
	cfg, lg, err := bootstrap(ctx, envFile)
	if err != nil {
		return err
	}
	defer lg.Sync()
	sugar := lg.Sugar()
	sugar.Info("starting clientbot")

	adminIDs, err := cfg.AdminIDs()
	if err != nil {
		sugar.Warnw("invalid ADMIN_TG_IDS, running without administrators", "err", err)
	}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		sugar.Errorw("db connect failed", "err", err)
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := migrate(ctx, db, cfg.NotifyChannel); err != nil {
			sugar.Errorw("schema bootstrap failed", "err", err)
			return err
		}
	}

	users := userrepo.NewUserRepo(db)
	clients := clientrepo.NewClientRepo(db)
	directory := user.NewService(users, clients, user.NewRoleResolver(adminIDs), sugar.Named("user"))
	tracker := message.NewTracker(users, sugar.Named("message"))
	ids := utilities.NewTraceIDs(cfg.NodeID)

	tg := telegram.NewClient(&http.Client{Timeout: cfg.Telegram.PollTimeout + 30*time.Second}, cfg.Telegram.BaseURL, cfg.Telegram.Token)
	handler := bot.NewHandler(tg, directory, tracker, session.NewStore(cfg.SessionTTL), ids, sugar.Named("bot"))
	dispatcher := bot.NewDispatcher(cfg.Workers, handler, sugar.Named("dispatch"))
	poller := telegram.NewPoller(tg, cfg.Telegram.PollTimeout, dispatcher.Enqueue, sugar.Named("poller"))

	var deduper relay.Deduper
	if cfg.Redis.Addr != "" {
		rdb, err := dedup.Connect(ctx, dedup.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			sugar.Warnw("redis unavailable, relay dedup disabled", "addr", cfg.Redis.Addr, "err", err)
		} else {
			defer rdb.Close()
			deduper = dedup.NewChecker(rdb, cfg.Redis.DedupTTL)
		}
	}
	rl := relay.New(tg, deduper, ids, sugar.Named("relay"))
	listener := relay.NewListener(cfg.Database.ConnString(), cfg.NotifyChannel, rl, sugar.Named("listener"))

	sup := supervisor.New(sugar.Named("supervisor"))
	g, gctx := errgroup.WithContext(ctx)

	dispatcher.Start(gctx)
	g.Go(func() error {
		dispatcher.Wait()
		return nil
	})
	g.Go(func() error {
		sup.Run(gctx, "poller", poller.Run)
		return nil
	})
	g.Go(func() error {
		sup.Run(gctx, "listener", listener.Run)
		return nil
	})

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router.RegisterRoutes(sugar.Named("http")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			sugar.Infow("http server listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				sugar.Warnw("http server shutdown failed", "err", err)
			}
			return nil
		})
	}

	sugar.Infow("bot is running", "workers", cfg.Workers, "channel", cfg.NotifyChannel, "admins", len(adminIDs))
	err = g.Wait()
	sugar.Info("goodbye")
	return err
}
