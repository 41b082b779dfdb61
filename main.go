package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kryptonlabs/leadscraper/browser"
	"github.com/kryptonlabs/leadscraper/runner"
	"github.com/kryptonlabs/leadscraper/runner/filerunner"
)

func main() {
	_ = godotenv.Load()

	cfg := runner.ParseConfig()

	if cfg.RunMode == runner.RunModeInstallPlaywright {
		if err := browser.Install(); err != nil {
			fmt.Fprintf(os.Stderr, "playwright install failed: %v\n", err)
			os.Exit(1)
		}

		return
	}

	if cfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	run, err := filerunner.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner.Banner()

	if err := run.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "%v\n", err)

		_ = run.Close(ctx)

		os.Exit(1)
	}

	_ = run.Close(ctx)
	_ = runner.Telemetry().Close()
}
