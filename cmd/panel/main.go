// Command panel is a reference LCC turnout panel.
//
// It connects to a GridConnect hub (given explicitly or discovered
// over mDNS), loads the persisted turnout list, optionally merges a
// JMRI layout export and then serves an interactive console for
// operating and editing the panel.
//
// Usage:
//
//	panel [flags]
//
// Flags:
//
//	-config string     Configuration file path (default "panel.yaml")
//	-hub string        GridConnect hub host:port (overrides config, skips mDNS)
//	-jmri string       JMRI layout XML to merge on startup (overrides config)
//	-trace string      Bus capture file (overrides config)
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-interactive       Run the interactive console (default true)
//
// Examples:
//
//	# Discover a hub over mDNS and run the console
//	panel
//
//	# Connect to a fixed hub with bus capture
//	panel -hub 192.168.1.5:12021 -trace session.blog -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivanbuilds/panel-go/cmd/panel/interactive"
	"github.com/ivanbuilds/panel-go/pkg/busclient"
	"github.com/ivanbuilds/panel-go/pkg/buslog"
	"github.com/ivanbuilds/panel-go/pkg/config"
	"github.com/ivanbuilds/panel-go/pkg/eventid"
	"github.com/ivanbuilds/panel-go/pkg/panel"
	"github.com/ivanbuilds/panel-go/pkg/storage"
)

// hubDiscoveryTimeout bounds the mDNS search when no hub is configured.
const hubDiscoveryTimeout = 10 * time.Second

var (
	configFile   = flag.String("config", "panel.yaml", "Configuration file path")
	hubOverride  = flag.String("hub", "", "GridConnect hub host:port (overrides config, skips mDNS)")
	jmriOverride = flag.String("jmri", "", "JMRI layout XML to merge on startup (overrides config)")
	traceFile    = flag.String("trace", "", "Bus capture file (overrides config)")
	logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	runConsole   = flag.Bool("interactive", true, "Run the interactive console")
)

func main() {
	flag.Parse()

	logger := setupLogging(*logLevel)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("configuration rejected", "file", *configFile, "error", err)
		os.Exit(1)
	}
	if *hubOverride != "" {
		cfg.HubAddress = *hubOverride
	}
	if *jmriOverride != "" {
		cfg.JMRIImportFile = *jmriOverride
	}
	if *traceFile != "" {
		cfg.TraceFile = *traceFile
	}

	nodeID, err := config.LoadNodeID(cfg.NodeIDFile)
	if err != nil {
		logger.Error("node ID unavailable", "file", cfg.NodeIDFile, "error", err)
		os.Exit(1)
	}
	logger.Info("panel node", "node_id", nodeID.String())

	trace, closeTrace, err := setupTrace(cfg.TraceFile, logger)
	if err != nil {
		logger.Error("bus capture unavailable", "file", cfg.TraceFile, "error", err)
		os.Exit(1)
	}
	defer closeTrace()

	client := busclient.New(busclient.Config{
		NodeID: nodeID,
		Logger: logger,
		Trace:  trace,
	})

	p := panel.New(client, storage.NewFileStore(cfg.TurnoutsFile), panel.Config{
		StaleTimeout:   cfg.StaleTimeout(),
		QueryPace:      cfg.QueryPace(),
		JMRIImportFile: cfg.JMRIImportFile,
		Logger:         logger,
	})
	p.OnDiscovery(func(event eventid.EventID) {
		logger.Info("discovered event", "event_id", event.String())
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubAddr, err := resolveHub(ctx, cfg, logger)
	if err != nil {
		logger.Error("no hub available", "error", err)
		os.Exit(1)
	}

	if err := p.Start(ctx, hubAddr); err != nil {
		logger.Error("panel failed to start", "hub", hubAddr, "error", err)
		os.Exit(1)
	}
	logger.Info("panel running", "hub", hubAddr, "turnouts", p.Count())

	if *runConsole {
		console, err := interactive.New(p)
		if err != nil {
			logger.Error("console unavailable", "error", err)
			os.Exit(1)
		}
		console.Run(ctx, cancel)
	} else {
		waitForSignal(logger)
	}

	if err := p.Stop(); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("goodbye")
}

// setupLogging builds the process logger writing to stderr.
func setupLogging(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// setupTrace opens the bus capture file when configured. At debug
// level, frames are additionally mirrored to the process logger.
func setupTrace(path string, logger *slog.Logger) (buslog.Logger, func(), error) {
	if path == "" {
		if *logLevel == "debug" {
			return buslog.NewSlogAdapter(logger), func() {}, nil
		}
		return buslog.NoopLogger{}, func() {}, nil
	}

	file, err := buslog.NewFileLogger(path)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if cerr := file.Close(); cerr != nil {
			logger.Warn("closing bus capture failed", "error", cerr)
		}
	}
	if *logLevel == "debug" {
		return buslog.NewMultiLogger(file, buslog.NewSlogAdapter(logger)), closeFn, nil
	}
	return file, closeFn, nil
}

// resolveHub returns the configured hub address or finds one via mDNS.
func resolveHub(ctx context.Context, cfg config.Config, logger *slog.Logger) (string, error) {
	if cfg.HubAddress != "" {
		return cfg.HubAddress, nil
	}

	logger.Info("searching for gridconnect hub", "service", busclient.ServiceTypeHub)
	browseCtx, cancel := context.WithTimeout(ctx, hubDiscoveryTimeout)
	defer cancel()

	hub, err := busclient.FindHub(browseCtx)
	if err != nil {
		return "", fmt.Errorf("mdns discovery: %w", err)
	}
	logger.Info("found hub", "instance", hub.InstanceName, "addr", hub.Addr())
	return hub.Addr(), nil
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal(logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", "signal", sig.String())
}
