package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxTurns:           6,
			SessionTimeoutSec:  300,
			CooldownSec:        600,
			MergeWindowSec:     5,
			BatchCap:           10,
			TriageTimeoutSec:   20,
			ContextTimeoutSec:  10,
			ReplyTimeoutSec:    90,
			ReportTimeoutSec:   120,
			ReplyMaxTokens:     1024,
			ReportMaxTokens:    4096,
			InterruptKeywords:  []string{"stop", "别说了", "打住"},
			ReportKeywords:     []string{"summarize", "生成报告", "总结一下"},
			RoomContextEnabled: true,
			RoomHistoryCount:   20,
			ReportChunkWidth:   1800,
		},
		Providers: ProvidersConfig{
			Default: "dashscope",
			OpenAI: OpenAIConfig{
				Model: "gpt-4o-mini",
			},
			DashScope: DashScopeConfig{
				Model: "qwen3-max",
			},
		},
		Channels: ChannelsConfig{
			SendRatePerMin: 20,
		},
		Render: RenderConfig{
			Width: 720,
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "~/.goconvo/goconvo.db",
		},
		Telemetry: TelemetryConfig{
			OTLPProtocol: "http",
			ServiceName:  "goconvo",
		},
		Maintenance: MaintenanceConfig{
			Cron: "*/5 * * * *",
		},
	}
}

// Load reads config from a json5 file, then overlays env vars and clamps
// numeric limits. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			cfg.clamp()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.clamp()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Secrets are env-only and never persisted in the config file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("GOCONVO_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("GOCONVO_DASHSCOPE_API_KEY", &c.Providers.DashScope.APIKey)
	envStr("GOCONVO_ONEBOT_TOKEN", &c.Channels.OneBot.AccessToken)
	envStr("GOCONVO_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("GOCONVO_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("GOCONVO_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("GOCONVO_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	// Auto-enable channels when credentials arrive via env.
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Database.PostgresDSN != "" {
		c.Database.Driver = "postgres"
	}
}

func clampInt(v *int, def, lo, hi int) {
	if *v == 0 {
		*v = def
	}
	if *v < lo {
		*v = lo
	}
	if *v > hi {
		*v = hi
	}
}

// clamp bounds every numeric limit to its sane range. A config file can make
// the orchestrator slower or quieter, never unbounded.
func (c *Config) clamp() {
	o := &c.Orchestrator
	clampInt(&o.MaxTurns, 6, 1, 50)
	clampInt(&o.SessionTimeoutSec, 300, 30, 3600)
	clampInt(&o.CooldownSec, 600, 0, 86400)
	clampInt(&o.MergeWindowSec, 5, 1, 30)
	clampInt(&o.BatchCap, 10, 2, 50)
	clampInt(&o.TriageTimeoutSec, 20, 5, 120)
	clampInt(&o.ContextTimeoutSec, 10, 2, 60)
	clampInt(&o.ReplyTimeoutSec, 90, 10, 600)
	clampInt(&o.ReportTimeoutSec, 120, 10, 600)
	clampInt(&o.ReplyMaxTokens, 1024, 64, 32768)
	clampInt(&o.ReportMaxTokens, 4096, 256, 32768)
	clampInt(&o.RoomHistoryCount, 20, 1, 100)
	clampInt(&o.ReportChunkWidth, 1800, 200, 4000)
	clampInt(&c.Channels.SendRatePerMin, 20, 1, 120)
	clampInt(&c.Render.Width, 720, 320, 1200)
}
