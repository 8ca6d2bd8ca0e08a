package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adda-Baaj/casa-harvester/internal/app"
	"github.com/Adda-Baaj/casa-harvester/internal/config"
	"github.com/Adda-Baaj/casa-harvester/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "harvester start failed: load config: %v\n", err)
		return app.ExitFailed
	}

	log, err := logger.Init(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "harvester start failed: init logger: %v\n", err)
		return app.ExitFailed
	}
	defer logger.Close()

	logger.InfoObj("harvester starting", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, cfg, log)
	code := app.ExitCode(err)
	if err != nil {
		logger.ErrorObj("harvester run failed", "run_error", map[string]any{
			"mode":      cfg.Mode,
			"error":     err.Error(),
			"exit_code": code,
		})
	}
	return code
}
