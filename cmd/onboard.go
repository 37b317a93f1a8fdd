package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goconvo/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

func runOnboard() {
	cfgPath := resolveConfigPath()
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Config already exists at %s — edit it directly or delete it to start over.\n", cfgPath)
		return
	}

	var (
		provider     = "dashscope"
		channel      = "onebot"
		onebotURL    string
		onebotSelfID string
		roomContext  = true
		renderImages = false
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model provider").
				Description("DashScope supports search-grounded replies; any OpenAI-compatible endpoint works too.").
				Options(
					huh.NewOption("DashScope (Qwen)", "dashscope"),
					huh.NewOption("OpenAI-compatible", "openai"),
				).
				Value(&provider),
			huh.NewSelect[string]().
				Title("Chat platform").
				Options(
					huh.NewOption("OneBot v11 (QQ)", "onebot"),
					huh.NewOption("Discord", "discord"),
					huh.NewOption("Telegram", "telegram"),
				).
				Value(&channel),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OneBot websocket URL").
				Placeholder("ws://127.0.0.1:3001").
				Value(&onebotURL),
			huh.NewInput().
				Title("Bot account ID (self id)").
				Value(&onebotSelfID),
		).WithHideFunc(func() bool { return channel != "onebot" }),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Fetch room announcements and history for triage context?").
				Value(&roomContext),
			huh.NewConfirm().
				Title("Render reports as images (requires Chromium)?").
				Value(&renderImages),
		),
	)

	if err := form.Run(); err != nil {
		fmt.Println("Setup cancelled.")
		return
	}

	cfg := config.Default()
	cfg.Providers.Default = provider
	cfg.Orchestrator.RoomContextEnabled = roomContext
	cfg.Render.Enabled = renderImages
	switch channel {
	case "onebot":
		cfg.Channels.OneBot.Enabled = true
		cfg.Channels.OneBot.WSURL = onebotURL
		cfg.Channels.OneBot.SelfID = onebotSelfID
	case "discord":
		cfg.Channels.Discord.Enabled = true
	case "telegram":
		cfg.Channels.Telegram.Enabled = true
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		fmt.Printf("Failed to serialize config: %s\n", err)
		return
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		fmt.Printf("Failed to write %s: %s\n", cfgPath, err)
		return
	}

	fmt.Printf("\nWrote %s.\n\nSecrets are read from the environment, never the config file:\n\n", cfgPath)
	switch provider {
	case "dashscope":
		fmt.Println("  export GOCONVO_DASHSCOPE_API_KEY=sk-...")
	case "openai":
		fmt.Println("  export GOCONVO_OPENAI_API_KEY=sk-...")
	}
	switch channel {
	case "onebot":
		fmt.Println("  export GOCONVO_ONEBOT_TOKEN=...       # if your OneBot endpoint requires one")
	case "discord":
		fmt.Println("  export GOCONVO_DISCORD_TOKEN=...")
	case "telegram":
		fmt.Println("  export GOCONVO_TELEGRAM_TOKEN=...")
	}
	fmt.Println("\nThen start with:  goconvo serve")
}
