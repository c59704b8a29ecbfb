package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/logtally/internal/client"
	"github.com/tinytelemetry/logtally/internal/logging"
	"github.com/tinytelemetry/logtally/internal/model"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// requestFlags are the per-run options that never come from the config file.
type requestFlags struct {
	groupBy string
	count   string
	from    string
	to      string
	save    bool
}

func main() {
	var configPath, addr, outDir string
	var showVersion bool
	var rf requestFlags

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logtally/client.yml)")
	flag.StringVar(&addr, "addr", "", "server address host:port (overrides server-addr)")
	flag.StringVar(&outDir, "out", "", "directory for result files (overrides out-dir)")
	flag.StringVar(&rf.groupBy, "group-by", "ip", "group by: user, ip or level")
	flag.StringVar(&rf.count, "count", "entries", "count type: entries, user or ip")
	flag.StringVar(&rf.from, "from", "", `start of date range, "2006-01-02 15:04:05"`)
	flag.StringVar(&rf.to, "to", "", `end of date range, "2006-01-02 15:04:05"`)
	flag.BoolVar(&rf.save, "save", true, "save result files to the output directory")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] file...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("logtally-client - log upload client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.ServerAddr = addr
	}
	if outDir != "" {
		cfg.OutDir = outDir
	}

	params, err := rf.params()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(cfg, params, flag.Args(), rf.save); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// params validates the request flags locally so obvious mistakes never
// reach the server.
func (rf requestFlags) params() (model.Params, error) {
	var p model.Params
	var err error
	if p.GroupBy, err = model.ParseGroupBy(rf.groupBy); err != nil {
		return p, err
	}
	if p.Count, err = model.ParseCountMode(rf.count); err != nil {
		return p, err
	}
	switch {
	case rf.from == "" && rf.to == "":
	case rf.from == "" || rf.to == "":
		return p, errors.New("-from and -to must be given together")
	default:
		if p.Range, err = model.ParseDateRange(rf.from, rf.to); err != nil {
			return p, err
		}
	}
	return p, nil
}

func run(cfg cliConfig, params model.Params, paths []string, save bool) error {
	if _, err := logging.Init("logtally-client", logging.Options{Level: cfg.LogLevel}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, client.Config{
		Addr:         cfg.ServerAddr,
		RetryFor:     cfg.RetryFor,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BufferSize:   cfg.BufferSize,
	})
	if err != nil {
		return fmt.Errorf("cannot connect to logtally server at %s: %w", cfg.ServerAddr, err)
	}
	defer c.Close()

	resp, err := c.SendFiles(ctx, params, paths)
	if err != nil {
		return err
	}

	var saved []string
	if save && len(resp.Results) > 0 {
		saved, err = client.SaveResults(cfg.OutDir, resp.Results)
		if err != nil {
			return fmt.Errorf("saving results: %w", err)
		}
	}

	printResponse(params, resp, saved)
	return nil
}

func printResponse(params model.Params, resp *client.Response, saved []string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	bold := lipgloss.NewStyle().Bold(true)

	var lines []string
	lines = append(lines, "")
	header := fmt.Sprintf("    Results grouped by %s", params.Label())
	if params.Range != nil {
		header += dim.Render(fmt.Sprintf("  (%s .. %s)",
			params.Range.Start.Format(model.TimestampLayout), params.Range.End.Format(model.TimestampLayout)))
	}
	lines = append(lines, bold.Render(header))
	lines = append(lines, "")

	for _, line := range strings.Split(strings.TrimRight(resp.Summary, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "file "):
			lines = append(lines, "    "+cyan.Render(line))
		case strings.HasPrefix(line, "error"), strings.HasPrefix(line, "invalid"),
			strings.HasPrefix(line, "unsupported"), strings.HasPrefix(line, "warning"):
			lines = append(lines, "      "+red.Render(line))
		default:
			lines = append(lines, "      "+line)
		}
	}

	if len(saved) > 0 {
		lines = append(lines, "")
		for _, p := range saved {
			lines = append(lines, fmt.Sprintf("    %s  %s", green.Render("●"), dim.Render(p)))
		}
	} else if len(resp.Results) > 0 {
		lines = append(lines, "")
		lines = append(lines, "    "+dim.Render(fmt.Sprintf("%d result files received (not saved)", len(resp.Results))))
	}
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}
