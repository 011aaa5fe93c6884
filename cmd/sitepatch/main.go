package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sokinpui/sitepatch/cli"
	"github.com/sokinpui/sitepatch/internal/logging"
	"github.com/sokinpui/sitepatch/internal/render"
	"github.com/sokinpui/sitepatch/internal/server"
	"github.com/sokinpui/sitepatch/internal/tui"
	"github.com/sokinpui/sitepatch/internal/ui"
	"github.com/sokinpui/sitepatch/model"
	"github.com/sokinpui/sitepatch/sitepatch"
)

func main() {
	cfg, err := cli.ParseFlags()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	app, err := sitepatch.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, app)
	stop()
	app.Close()
	os.Exit(code)
}

func run(ctx context.Context, cfg *cli.Config, app *sitepatch.App) int {
	if cfg.Serve {
		logger := logging.Stdout(cfg.Debug)
		if err := server.Run(ctx, cfg.Addr, server.NewRouter(app, logger), logger); err != nil {
			logger.Error("server error", "error", err)
			return 1
		}
		return 0
	}

	var (
		summary model.Summary
		err     error
	)
	if cfg.NoTUI {
		if cfg.Nvim {
			bar := ui.NewProgressBar(0, "Syncing editor")
			app.SetProgressCallback(bar.Set)
		}
		summary, err = app.Execute(ctx)
		ui.PrintSummary(summary)
	} else {
		summary, err = tui.Run(ctx, app)
	}

	if cfg.MessageHTML && summary.Message != "" {
		html, rerr := render.MessageHTML(summary.Message)
		if rerr != nil {
			ui.Error("Failed to render message: %v", rerr)
		} else {
			fmt.Fprint(os.Stdout, html)
		}
	}

	if err != nil {
		var detailed *sitepatch.DetailedError
		if errors.As(err, &detailed) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		if cfg.NoTUI {
			ui.Error("Error: %v", err)
		}
		return 1
	}
	return 0
}
