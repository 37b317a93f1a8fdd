package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
	"github.com/nextlevelbuilder/goconvo/internal/channels"
	"github.com/nextlevelbuilder/goconvo/internal/channels/discord"
	"github.com/nextlevelbuilder/goconvo/internal/channels/onebot"
	"github.com/nextlevelbuilder/goconvo/internal/channels/telegram"
	"github.com/nextlevelbuilder/goconvo/internal/config"
	"github.com/nextlevelbuilder/goconvo/internal/model"
	"github.com/nextlevelbuilder/goconvo/internal/orchestrator"
	"github.com/nextlevelbuilder/goconvo/internal/providers"
	"github.com/nextlevelbuilder/goconvo/internal/render"
	"github.com/nextlevelbuilder/goconvo/internal/store"
	"github.com/nextlevelbuilder/goconvo/internal/tracing"
)

// tickInterval drives batch flushes, idle expiry, and request reaping.
const tickInterval = time.Second

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	st, err := store.Open(cfg.Database.Driver, cfg.Database.SQLitePath, cfg.Database.PostgresDSN)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	if st != nil {
		defer st.Close()
	}

	provider, err := selectProvider(cfg)
	if err != nil {
		slog.Error("no usable model provider", "error", err)
		fmt.Println()
		fmt.Println("Set GOCONVO_DASHSCOPE_API_KEY or GOCONVO_OPENAI_API_KEY, or run: goconvo onboard")
		os.Exit(1)
	}
	slog.Info("model provider ready", "provider", provider.Name(), "model", provider.DefaultModel())

	msgBus := bus.New()
	defer msgBus.Close()

	caller := model.NewCaller(provider, msgBus)
	manager := channels.NewManager(msgBus, cfg.Channels.SendRatePerMin)
	if err := registerChannels(manager, cfg, msgBus); err != nil {
		slog.Error("failed to create channels", "error", err)
		os.Exit(1)
	}

	var renderer orchestrator.Renderer
	if cfg.Render.Enabled {
		r := render.New(cfg.Render)
		defer r.Close()
		renderer = r
	}

	opts := orchestrator.Options{
		Config:   cfg.Orchestrator,
		Sender:   manager,
		Models:   caller,
		Rooms:    manager,
		Renderer: renderer,
	}
	if st != nil {
		opts.Archive = st
	}
	orch := orchestrator.New(opts)

	if st != nil {
		warmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		entries, loadErr := st.LoadCooldowns(warmCtx, time.Now().Add(-cfg.Orchestrator.Cooldown()))
		cancel()
		if loadErr != nil {
			slog.Warn("cooldown warm start failed", "error", loadErr)
		} else if len(entries) > 0 {
			orch.SeedCooldowns(entries)
			slog.Info("cooldown ledger warmed", "entries", len(entries))
		}
	}

	if err := manager.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		manager.StopAll(stopCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eventLoop(gctx, msgBus, orch, cfg.Maintenance.Cron)
	})
	g.Go(func() error {
		return config.Watch(gctx, cfgPath, func(next *config.Config) {
			orch.Reload(next.Orchestrator)
			slog.Info("config reloaded")
		})
	})

	slog.Info("goconvo started", "version", Version)
	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("serve loop exited", "error", err)
	}
	slog.Info("goconvo stopped", "active_sessions", orch.ActiveSessions())
}

// eventLoop is the single consumer of orchestrator events. Everything the
// orchestrator does happens on this goroutine or inside one of its own
// fire-and-forget dispatches.
func eventLoop(ctx context.Context, msgBus *bus.MessageBus, orch *orchestrator.Orchestrator, maintCron string) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	gron := gronx.New()
	var lastMaint time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgBus.Inbound():
			orch.HandleMessage(msg)
		case res := <-msgBus.ModelResults():
			orch.HandleModelResult(res)
		case res := <-msgBus.RoomInfo():
			orch.HandleRoomInfo(res)
		case now := <-ticker.C:
			orch.HandleTick()
			// Run maintenance at most once per matching minute.
			if maintCron != "" && now.Truncate(time.Minute) != lastMaint {
				if due, err := gron.IsDue(maintCron, now); err == nil && due {
					lastMaint = now.Truncate(time.Minute)
					orch.Maintain()
				}
			}
		}
	}
}

// selectProvider builds the configured default model backend.
func selectProvider(cfg *config.Config) (providers.Provider, error) {
	pick := cfg.Providers.Default
	if pick == "" {
		switch {
		case cfg.Providers.DashScope.APIKey != "":
			pick = "dashscope"
		case cfg.Providers.OpenAI.APIKey != "":
			pick = "openai"
		}
	}
	switch pick {
	case "dashscope":
		if cfg.Providers.DashScope.APIKey == "" {
			return nil, fmt.Errorf("dashscope selected but GOCONVO_DASHSCOPE_API_KEY not set")
		}
		return providers.NewDashScopeProvider(
			cfg.Providers.DashScope.APIKey,
			cfg.Providers.DashScope.APIBase,
			cfg.Providers.DashScope.Model,
		), nil
	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai selected but GOCONVO_OPENAI_API_KEY not set")
		}
		return providers.NewOpenAIProvider(
			"openai",
			cfg.Providers.OpenAI.APIKey,
			cfg.Providers.OpenAI.APIBase,
			cfg.Providers.OpenAI.Model,
		), nil
	default:
		return nil, fmt.Errorf("no provider API key configured")
	}
}

func registerChannels(manager *channels.Manager, cfg *config.Config, msgBus *bus.MessageBus) error {
	if cfg.Channels.OneBot.Enabled {
		manager.RegisterChannel("onebot", onebot.New(cfg.Channels.OneBot, msgBus))
	}
	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(cfg.Channels.Discord, msgBus)
		if err != nil {
			return fmt.Errorf("discord: %w", err)
		}
		manager.RegisterChannel("discord", ch)
	}
	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(cfg.Channels.Telegram, msgBus)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		manager.RegisterChannel("telegram", ch)
	}
	return nil
}
