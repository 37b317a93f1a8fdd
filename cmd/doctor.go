package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goconvo/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("goconvo doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND — defaults + env only)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Providers:")
	printCheck("dashscope", cfg.Providers.DashScope.APIKey != "", "GOCONVO_DASHSCOPE_API_KEY not set")
	printCheck("openai", cfg.Providers.OpenAI.APIKey != "", "GOCONVO_OPENAI_API_KEY not set")

	fmt.Println()
	fmt.Println("  Channels:")
	printCheck("onebot", cfg.Channels.OneBot.Enabled && cfg.Channels.OneBot.WSURL != "", "disabled or ws_url missing")
	printCheck("discord", cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "", "disabled or GOCONVO_DISCORD_TOKEN not set")
	printCheck("telegram", cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "", "disabled or GOCONVO_TELEGRAM_TOKEN not set")

	fmt.Println()
	fmt.Println("  Database:")
	switch cfg.Database.Driver {
	case "postgres":
		db, dbErr := sql.Open("pgx", cfg.Database.PostgresDSN)
		if dbErr == nil {
			dbErr = db.Ping()
			db.Close()
		}
		if dbErr != nil {
			fmt.Printf("    postgres     CONNECT FAILED (%s)\n", dbErr)
		} else {
			fmt.Println("    postgres     OK")
		}
	case "sqlite", "":
		fmt.Println("    sqlite       OK (opened on start)")
	default:
		fmt.Printf("    %-12s UNKNOWN DRIVER\n", cfg.Database.Driver)
	}

	fmt.Println()
	fmt.Printf("  Orchestrator: max_turns=%d cooldown=%s merge_window=%s batch_cap=%d\n",
		cfg.Orchestrator.MaxTurns,
		cfg.Orchestrator.Cooldown(),
		cfg.Orchestrator.MergeWindow(),
		cfg.Orchestrator.BatchCap,
	)
}

func printCheck(name string, ok bool, hint string) {
	if ok {
		fmt.Printf("    %-12s OK\n", name)
	} else {
		fmt.Printf("    %-12s — (%s)\n", name, hint)
	}
}
