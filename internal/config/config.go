// Package config holds the goconvo gateway configuration: a json5 file
// overlaid with GOCONVO_* environment variables, with defaults and clamping
// applied on load. The orchestrator receives a read-only snapshot; hot reload
// swaps the snapshot atomically between events.
package config

import (
	"time"
)

// Config is the root configuration for the goconvo gateway.
type Config struct {
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Providers    ProvidersConfig    `json:"providers"`
	Channels     ChannelsConfig     `json:"channels"`
	Render       RenderConfig       `json:"render,omitempty"`
	Database     DatabaseConfig     `json:"database,omitempty"`
	Telemetry    TelemetryConfig    `json:"telemetry,omitempty"`
	Maintenance  MaintenanceConfig  `json:"maintenance,omitempty"`
}

// OrchestratorConfig is the read-only snapshot consumed by the orchestrator.
type OrchestratorConfig struct {
	// Dialogue limits
	MaxTurns          int `json:"max_turns,omitempty"`           // assistant replies per session (default 6, clamp 1-50)
	SessionTimeoutSec int `json:"session_timeout_sec,omitempty"` // idle timeout (default 300, clamp 30-3600)
	CooldownSec       int `json:"cooldown_sec,omitempty"`        // quiet period after a session ends (default 600, clamp 0-86400)

	// Decision batching
	MergeWindowSec int `json:"merge_window_sec,omitempty"` // batch merge window (default 5, clamp 1-30)
	BatchCap       int `json:"batch_cap,omitempty"`        // max items per batch before forced flush (default 10, clamp 2-50)

	// Request timeouts
	TriageTimeoutSec  int `json:"triage_timeout_sec,omitempty"`  // default 20, clamp 5-120
	ContextTimeoutSec int `json:"context_timeout_sec,omitempty"` // default 10, clamp 2-60
	ReplyTimeoutSec   int `json:"reply_timeout_sec,omitempty"`   // default 90, clamp 10-600
	ReportTimeoutSec  int `json:"report_timeout_sec,omitempty"`  // default 120, clamp 10-600

	// Models
	TriageModel     string `json:"triage_model,omitempty"`
	ReplyModel      string `json:"reply_model,omitempty"`
	ReportModel     string `json:"report_model,omitempty"`
	ReplyMaxTokens  int    `json:"reply_max_tokens,omitempty"`  // default 1024
	ReportMaxTokens int    `json:"report_max_tokens,omitempty"` // default 4096
	EnableSearch    bool   `json:"enable_search,omitempty"`     // web-search-capable reply calls

	// Trigger keywords, matched on normalized text
	InterruptKeywords []string `json:"interrupt_keywords,omitempty"`
	ReportKeywords    []string `json:"report_keywords,omitempty"`

	// Room context capture at session creation
	RoomContextEnabled bool `json:"room_context_enabled,omitempty"`
	RoomHistoryCount   int  `json:"room_history_count,omitempty"` // default 20, clamp 1-100

	// Report delivery
	ReportChunkWidth int `json:"report_chunk_width,omitempty"` // display-width bound per chunk (default 1800)

	Prompts PromptsConfig `json:"prompts,omitempty"`
}

// PromptsConfig carries the prompt templates and user-visible notice strings.
// Empty fields fall back to built-in defaults on load.
type PromptsConfig struct {
	TriageSystem string `json:"triage_system,omitempty"`
	ReplySystem  string `json:"reply_system,omitempty"`
	ReportSystem string `json:"report_system,omitempty"`

	InterruptAck  string `json:"interrupt_ack,omitempty"`
	NothingToSay  string `json:"nothing_to_say,omitempty"`  // session ends with too little transcript to report
	ReplyFailed   string `json:"reply_failed,omitempty"`
	ReplyTimedOut string `json:"reply_timed_out,omitempty"`
	ReportFailed  string `json:"report_failed,omitempty"`
	SessionIdle   string `json:"session_idle,omitempty"`
}

// ProvidersConfig configures the LLM backends.
type ProvidersConfig struct {
	OpenAI    OpenAIConfig    `json:"openai,omitempty"`
	DashScope DashScopeConfig `json:"dashscope,omitempty"`
	// Default provider for model calls: "openai" or "dashscope".
	Default string `json:"default,omitempty"`
}

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string `json:"-"` // from env GOCONVO_OPENAI_API_KEY only
	APIBase string `json:"api_base,omitempty"`
	Model   string `json:"model,omitempty"`
}

// DashScopeConfig configures the DashScope compatible-mode endpoint.
// DashScope is the only backend that honors enable_search.
type DashScopeConfig struct {
	APIKey  string `json:"-"` // from env GOCONVO_DASHSCOPE_API_KEY only
	APIBase string `json:"api_base,omitempty"`
	Model   string `json:"model,omitempty"`
}

// ChannelsConfig configures the platform adapters.
type ChannelsConfig struct {
	OneBot   OneBotConfig   `json:"onebot,omitempty"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	// Outbound sends per minute per channel (default 20, clamp 1-120).
	SendRatePerMin int `json:"send_rate_per_min,omitempty"`
}

// OneBotConfig configures the OneBot v11 websocket connection (QQ-compatible).
type OneBotConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	WSURL       string `json:"ws_url,omitempty"`
	AccessToken string `json:"-"` // from env GOCONVO_ONEBOT_TOKEN only
	SelfID      string `json:"self_id,omitempty"`
}

// DiscordConfig configures the Discord bot adapter.
type DiscordConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"-"` // from env GOCONVO_DISCORD_TOKEN only
}

// TelegramConfig configures the Telegram bot adapter.
type TelegramConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"-"` // from env GOCONVO_TELEGRAM_TOKEN only
}

// RenderConfig configures the markdown-to-image report renderer.
type RenderConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	BrowserBin string `json:"browser_bin,omitempty"` // empty = rod's managed browser
	Width      int    `json:"width,omitempty"`       // image width px (default 720, clamp 320-1200)
}

// DatabaseConfig selects the archive/cooldown store backend.
// PostgresDSN is never read from the config file — env GOCONVO_POSTGRES_DSN only.
type DatabaseConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" (default) or "postgres"
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"`
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`
	OTLPProtocol string `json:"otlp_protocol,omitempty"` // "http" (default) or "grpc"
	ServiceName  string `json:"service_name,omitempty"`
}

// MaintenanceConfig schedules the deep sweep (cooldown pruning, archive flush).
type MaintenanceConfig struct {
	Cron string `json:"cron,omitempty"` // gronx expression, default "*/5 * * * *"
}

// Duration accessors — the orchestrator works in time.Duration throughout.

func (o OrchestratorConfig) SessionTimeout() time.Duration {
	return time.Duration(o.SessionTimeoutSec) * time.Second
}

func (o OrchestratorConfig) Cooldown() time.Duration {
	return time.Duration(o.CooldownSec) * time.Second
}

func (o OrchestratorConfig) MergeWindow() time.Duration {
	return time.Duration(o.MergeWindowSec) * time.Second
}

func (o OrchestratorConfig) TriageTimeout() time.Duration {
	return time.Duration(o.TriageTimeoutSec) * time.Second
}

func (o OrchestratorConfig) ContextTimeout() time.Duration {
	return time.Duration(o.ContextTimeoutSec) * time.Second
}

func (o OrchestratorConfig) ReplyTimeout() time.Duration {
	return time.Duration(o.ReplyTimeoutSec) * time.Second
}

func (o OrchestratorConfig) ReportTimeout() time.Duration {
	return time.Duration(o.ReportTimeoutSec) * time.Second
}
