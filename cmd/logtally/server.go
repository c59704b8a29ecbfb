package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/logtally/internal/artifacts"
	"github.com/tinytelemetry/logtally/internal/duckdb"
	"github.com/tinytelemetry/logtally/internal/httpserver"
	"github.com/tinytelemetry/logtally/internal/logging"
	"github.com/tinytelemetry/logtally/internal/server"
	"github.com/tinytelemetry/logtally/internal/session"
	"github.com/tinytelemetry/logtally/internal/wire"
)

// runServer starts the aggregation listener, and the HTTP API when enabled,
// and blocks until SIGINT or SIGTERM.
func runServer(cfg appConfig) error {
	if _, err := logging.Init("logtally", logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return err
	}

	store := artifacts.NewStore(cfg.UploadsDir, cfg.ResultsDir)
	handlerOpts := []session.Option{session.WithLimits(cfg.limits())}

	var history *duckdb.Store
	if cfg.HistoryEnabled {
		var err error
		history, err = duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		defer history.Close()
		handlerOpts = append(handlerOpts, session.WithHistory(history))
	}

	var pruner artifacts.Pruner
	if history != nil {
		pruner = history
	}
	sweeper, err := artifacts.NewSweeper(store, pruner, artifacts.RetentionConfig{
		RetentionDays: cfg.RetentionDays,
		Schedule:      cfg.RetentionSchedule,
	})
	if err != nil {
		return fmt.Errorf("failed to start retention sweeper: %w", err)
	}
	if sweeper != nil {
		defer sweeper.Stop()
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	srv := server.NewServer(cfg.Addr, session.NewHandler(store, handlerOpts...), server.ServerConfig{
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	})
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	var apiServer *httpserver.Server
	if cfg.APIEnabled && history != nil {
		apiServer = httpserver.NewServer(cfg.APIAddr, history)
		if err := apiServer.Start(); err != nil {
			srv.Stop()
			return fmt.Errorf("failed to start API server: %w", err)
		}
	} else if cfg.APIEnabled {
		log.Warn().Msg("api-enabled requires history-enabled; HTTP API not started")
	}

	printStartupBanner(cfg, srv.Addr(), apiServer != nil)

	// Use errgroup for concurrent goroutine lifecycle management.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop()
	})
	if apiServer != nil {
		g.Go(func() error {
			<-gctx.Done()
			return apiServer.Stop()
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("shutdown finished with error")
	}
	log.Info().Msg("server stopped")
	return nil
}

func (c appConfig) limits() wire.Limits {
	l := wire.DefaultLimits()
	if c.MaxNameBytes > 0 {
		l.MaxNameBytes = c.MaxNameBytes
	}
	if c.MaxStringBytes > 0 {
		l.MaxStringBytes = c.MaxStringBytes
	}
	if c.MaxPayloadBytes > 0 {
		l.MaxPayloadBytes = c.MaxPayloadBytes
	}
	if c.MaxFiles > 0 {
		l.MaxFiles = c.MaxFiles
	}
	if c.MaxSummaryBytes > 0 {
		l.MaxSummaryBytes = c.MaxSummaryBytes
	}
	return l
}

func printStartupBanner(cfg appConfig, listenAddr string, apiRunning bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔═╗╔╦╗╔═╗╦  ╦ ╦
    ║  ║ ║║ ╦ ║ ╠═╣║  ╚╦╝
    ╩═╝╚═╝╚═╝ ╩ ╩ ╩╩═╝ ╩ `)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	// Gateway
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  TCP Listener   %s", check, cyan.Render(listenAddr)))
	if apiRunning {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Connections    %s", check, dim.Render(fmt.Sprintf("max %d", cfg.MaxConnections))))
	lines = append(lines, "")

	// Storage
	lines = append(lines, bold.Render("    Storage"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Results        %s", check, dim.Render(shortenPath(cfg.ResultsDir))))
	if cfg.UploadsDir != "" {
		lines = append(lines, fmt.Sprintf("    %s  Uploads        %s", check, dim.Render(shortenPath(cfg.UploadsDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Uploads        %s", dot, dim.Render("not kept")))
	}
	if cfg.HistoryEnabled {
		lines = append(lines, fmt.Sprintf("    %s  History        %s", check, dim.Render(shortenPath(cfg.DBPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  History        %s", dot, dim.Render("disabled")))
	}
	if cfg.RetentionDays > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", check, dim.Render(fmt.Sprintf("%d days (%s)", cfg.RetentionDays, cfg.RetentionSchedule))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
