// Command verona performs an endless, improvised Romeo and Juliet: every
// speaker talks through a Markov model of their own lines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/verona/internal/app"
	"github.com/MrWong99/verona/internal/config"
	"github.com/MrWong99/verona/internal/discord"
	"github.com/MrWong99/verona/internal/feed"
	"github.com/MrWong99/verona/internal/observe"
	"github.com/MrWong99/verona/internal/resilience"
	"github.com/MrWong99/verona/internal/server"
	"github.com/MrWong99/verona/internal/tui"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mode := flag.String("mode", "", `override driver.mode ("online" or "interactive")`)
	seed := flag.Uint64("seed", 0, "override generation.seed; 0 keeps the configured value")
	logPath := flag.String("log", "", "write logs to this file instead of stderr (interactive mode discards them otherwise)")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level is a LevelVar so a config reload can change it in place.
	level := new(slog.LevelVar)
	logOut, closeLog, err := logWriter(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verona: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	// ── Load configuration ────────────────────────────────────────────────────
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level updated", "level", diff.NewLogLevel)
		}
		if application != nil {
			application.ApplyConfig(diff)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "verona: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "verona: %v\n", err)
		}
		return 1
	}
	cfg := applyFlags(watcher.Current(), *mode, *seed)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "verona: %v\n", err)
		return 1
	}
	level.Set(slogLevel(cfg.Server.LogLevel))
	if cfg.Driver.Mode == config.ModeInteractive && *logPath == "" {
		slog.SetDefault(slog.New(slog.DiscardHandler))
	}

	slog.Info("verona starting",
		"config", *configPath,
		"mode", cfg.Driver.Mode,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Start(ctx, observe.TelemetryConfig{
		Mode:    string(cfg.Driver.Mode),
		SceneID: cfg.State.SceneID,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := telemetry.Metrics

	// ── Sinks ─────────────────────────────────────────────────────────────────
	var sinks []app.Sink
	if cfg.Driver.Mode == config.ModeOnline {
		sinks = append(sinks, app.NewConsoleSink(os.Stdout))
	}

	var hub *feed.Hub
	if cfg.Server.ListenAddr != "" {
		hub = feed.NewHub(feed.WithMetrics(metrics))
		defer hub.Close()
		sinks = append(sinks, hub)
	}

	if cfg.Discord.Token != "" {
		poster, err := discord.Open(ctx, discord.Config{
			Token:     cfg.Discord.Token,
			ChannelID: cfg.Discord.ChannelID,
		})
		if err != nil {
			slog.Error("failed to connect to Discord", "err", err)
			return 1
		}
		defer func() {
			if err := poster.Close(); err != nil {
				slog.Warn("discord close error", "err", err)
			}
		}()
		sinks = append(sinks, app.Guard(poster, resilience.New(resilience.Config{Name: "discord"})))
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	if cfg.Driver.Mode == config.ModeOnline {
		printStartupSummary(cfg)
	}

	application, err = app.New(ctx, cfg,
		app.WithSinks(sinks...),
		app.WithMetrics(metrics),
		app.WithTracerProvider(telemetry.TracerProvider()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return watcher.Run(gctx) })

	if cfg.Server.ListenAddr != "" {
		srv := server.New(cfg.Server.ListenAddr,
			server.WithCheckers(application.Checkers()...),
			server.WithFeed(hub),
			server.WithMetrics(metrics),
		)
		g.Go(func() error { return srv.Run(gctx) })
	}

	switch cfg.Driver.Mode {
	case config.ModeInteractive:
		g.Go(func() error {
			// Quitting the terminal UI ends the whole program.
			defer cancel()
			return tui.Run(gctx, application.Next)
		})
	default:
		slog.Info("scene running, press Ctrl+C to stop", "interval", cfg.Driver.Interval)
		g.Go(func() error { return application.Run(gctx) })
	}

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("exeunt omnes")
	return 0
}

// applyFlags returns cfg with command-line overrides applied.
func applyFlags(cfg *config.Config, mode string, seed uint64) *config.Config {
	out := *cfg
	if mode != "" {
		out.Driver.Mode = config.DriverMode(mode)
	}
	if seed != 0 {
		out.Generation.Seed = seed
	}
	return &out
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Verona startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Corpus", cfg.Corpus.Path)
	printRow("Speakers", fmt.Sprint(len(cfg.Cast.Speakers)))
	printRow("Storage", cfg.Storage.Backend)
	switch {
	case cfg.State.PostgresDSN != "":
		printRow("State", "postgres / "+cfg.State.SceneID)
	case cfg.State.Path != "":
		printRow("State", cfg.State.Path)
	default:
		printRow("State", "(memory)")
	}
	printRow("Interval", cfg.Driver.Interval.String())
	if cfg.Discord.Token != "" {
		printRow("Discord", "connected")
	} else {
		printRow("Discord", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logWriter opens path for appending, or returns stderr when path is empty.
func logWriter(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
