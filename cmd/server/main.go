// Package main runs the better-webhook capture server: it records every
// inbound request to the capture store, annotates it with the detected
// provider, and streams new captures to dashboard subscribers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/better-webhook/better-webhook/internal/broadcast"
	"github.com/better-webhook/better-webhook/internal/capture"
	"github.com/better-webhook/better-webhook/internal/config"
	"github.com/better-webhook/better-webhook/internal/detect"
	"github.com/better-webhook/better-webhook/internal/logging"
	"github.com/better-webhook/better-webhook/internal/server"
	"github.com/better-webhook/better-webhook/internal/templates"
	"github.com/better-webhook/better-webhook/internal/util"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	fmt.Printf("better-webhook Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)

	var configPath string
	var host string
	var port int
	var debug bool
	flag.StringVar(&configPath, "config", "", "Configure file path (default: <data-dir>/config.yaml)")
	flag.StringVar(&host, "host", "", "Listen address override")
	flag.IntVar(&port, "port", -1, "Listen port override (0 selects an ephemeral port)")
	flag.BoolVar(&debug, "debug", false, "Enable verbose logging")
	flag.Parse()

	// Local secrets such as GITHUB_WEBHOOK_SECRET live in .env during
	// development; a missing file is fine.
	_ = godotenv.Load()

	if configPath == "" {
		configPath = filepath.Join(util.DataDir(), "config.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if host != "" {
		cfg.Host = host
	}
	if port >= 0 {
		cfg.Port = port
	}
	if debug {
		cfg.Debug = true
	}

	logging.Setup(cfg.Debug)
	if err := logging.ConfigureOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
		log.Fatalf("failed to configure log output: %v", err)
	}

	if err := run(cfg, configPath); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func run(cfg *config.Config, configPath string) error {
	store, err := capture.NewStore(cfg.CaptureDir)
	if err != nil {
		return err
	}
	manager, err := templates.NewManager(cfg.TemplateDir, 0)
	if err != nil {
		return err
	}

	// Configured providers are detectable by their signature header.
	detector := detect.Default()
	for name, pc := range cfg.Providers {
		if pc.SignatureHeader != "" {
			detector.Register(detect.Header(pc.SignatureHeader, name, 0.8))
		}
	}

	hub := broadcast.NewHub()
	srv, err := server.New(server.Options{
		Host:         cfg.Host,
		Port:         cfg.Port,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Store:        store,
		Detector:     detector,
		Hub:          hub,
	})
	if err != nil {
		return err
	}
	srv.Subscribe(func(f capture.File) {
		log.WithFields(log.Fields{"provider": f.Capture.Provider, "capture": f.Capture.ID}).
			Debugf("capture stored as %s", f.File)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(srv.Start)

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Hot-reload the body cap and log settings on config edits; address
	// changes need a restart.
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		srv.SetMaxBodyBytes(next.MaxBodyBytes)
		if err := logging.ConfigureOutput(next.LoggingToFile, next.LogDir); err != nil {
			log.Warnf("failed to reconfigure log output: %v", err)
		}
	})
	if err != nil {
		log.Warnf("config watcher unavailable: %v", err)
	} else {
		if err := watcher.Start(ctx); err != nil {
			log.Warnf("config watcher failed to start: %v", err)
		}
		defer func() { _ = watcher.Stop() }()
	}

	if err := manager.Watch(ctx); err != nil {
		log.Warnf("template watcher unavailable: %v", err)
	}

	log.Infof("captures: %s", store.Dir())
	log.Infof("templates: %s", manager.Dir())

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
