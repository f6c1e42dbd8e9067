package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/assistant"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/config"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/dayclock"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/discord"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/nutrition"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/observe"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/server"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/speech"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/storage"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot and the tool API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cfg.LogLevel))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("kbju-bot starting", "version", version, "database", cfg.Database.Path, "listen_addr", cfg.Server.ListenAddr)

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	days := dayclock.New(store,
		dayclock.WithDefaultTimezone(cfg.Days.DefaultTimezone),
		dayclock.WithRolloverHook(func(ctx context.Context, trigger dayclock.Trigger) {
			metrics.RecordRollover(ctx, string(trigger))
		}),
	)

	ai, err := nutrition.New(cfg.Nutrition.APIKey, cfg.Nutrition.Model,
		nutrition.WithBaseURL(cfg.Nutrition.BaseURL),
		nutrition.WithTimeout(cfg.Nutrition.Timeout),
		nutrition.WithFallback(cfg.Nutrition.Fallback),
		nutrition.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("create nutrition client: %w", err)
	}

	bot, err := discord.New(ctx, discord.Config{Token: cfg.Discord.Token, GuildID: cfg.Discord.GuildID})
	if err != nil {
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}()

	svcCfg := assistant.Config{
		Store:           store,
		Days:            days,
		Understanding:   ai,
		Transport:       bot,
		Metrics:         metrics,
		DefaultTimezone: cfg.Days.DefaultTimezone,
	}
	if cfg.Speech.Enabled {
		tr, err := speech.New(cfg.Speech.APIKey, cfg.Speech.Model,
			speech.WithBaseURL(cfg.Speech.BaseURL),
			speech.WithLanguage(cfg.Speech.Language),
			speech.WithMetrics(metrics),
		)
		if err != nil {
			return fmt.Errorf("create transcriber: %w", err)
		}
		svcCfg.Transcriber = tr
	}
	svc := assistant.New(svcCfg)
	bot.Bind(svc, commandSpecs())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})
	if cfg.Server.ListenAddr != "" {
		srv := server.New(server.Config{
			ListenAddr: cfg.Server.ListenAddr,
			Store:      store,
			Days:       days,
			Analyzer:   ai,
			Metrics:    metrics,
		})
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	slog.Info("kbju-bot ready")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("goodbye")
	return nil
}

func commandSpecs() []discord.CommandSpec {
	specs := make([]discord.CommandSpec, 0, len(assistant.Commands))
	for _, c := range assistant.Commands {
		spec := discord.CommandSpec{Name: c.Name, Description: c.Description}
		if c.Name == assistant.CommandTimezone {
			spec.Option = "zone"
		}
		specs = append(specs, spec)
	}
	return specs
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
