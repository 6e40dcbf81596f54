// Gateway - face detection and autocrop HTTP service for the poster editor
//
// Serves POST /api/crop, POST /api/upload and the /ws/detections event feed.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/go-posterface/internal/config"
	"github.com/teslashibe/go-posterface/internal/log"
	"github.com/teslashibe/go-posterface/pkg/debug"
	"github.com/teslashibe/go-posterface/pkg/detection"
	"github.com/teslashibe/go-posterface/pkg/gateway"
	"github.com/teslashibe/go-posterface/pkg/oracle"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exit.
func run() int {
	if err := config.LoadDotEnv(); err != nil {
		log.Error("env file", "error", err)
		return 1
	}

	cfg, err := parseFlags()
	if err != nil {
		log.Error("configuration error", "error", err)
		return 1
	}

	log.InitWithOptions(log.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	logger := log.Component("main")

	if err = cfg.Validate(); err != nil {
		logger.Error("configuration error", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	o, err := oracle.New(ctx, cfg.Detector, detection.DefaultParams(), log.Component("oracle"))
	if err != nil {
		logger.Error("oracle initialization failed", "backend", cfg.Detector.Backend, "error", err)
		return 1
	}
	defer func() {
		if err := o.Close(); err != nil {
			logger.Warn("oracle close failed", "error", err)
		}
	}()

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Port
	}

	srv := gateway.NewServer(gateway.Options{
		Oracle:        o,
		PublicBaseURL: baseURL,
		UploadDir:     cfg.UploadDir,
		Logger:        log.L(),
	})

	if err := srv.Run(ctx, cfg.Addr()); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	logger.Info("gateway stopped")
	return 0
}

// parseFlags parses command line flags on top of defaults and environment.
func parseFlags() (config.Config, error) {
	cfg := config.DefaultConfig()
	envErr := cfg.LoadEnvConfig()

	port := flag.String("port", cfg.Port, "HTTP listen port")
	backend := flag.String("backend", string(cfg.Detector.Backend), "Detector backend: process, yunet, pigo, cloudvision, mock")
	fallback := flag.String("fallback", joinBackends(cfg.Detector.Fallback), "Comma-separated backends tried when the primary fails")
	script := flag.String("script", cfg.Detector.Script, "Detector script for the process backend")
	timeout := flag.Duration("timeout", cfg.Detector.Timeout, "Detector timeout")
	uploads := flag.String("uploads", cfg.UploadDir, "Upload directory")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	debugFlag := flag.Bool("debug", false, "Enable verbose debug logging")
	debugDetection := flag.Bool("debug-detection", false, "Log every detector result")
	flag.Parse()

	if envErr != nil {
		return cfg, envErr
	}

	cfg.Port = *port
	cfg.Detector.Backend = oracle.Backend(*backend)
	cfg.Detector.Fallback = config.ParseBackends(*fallback)
	cfg.Detector.Script = *script
	cfg.Detector.Timeout = *timeout
	cfg.UploadDir = *uploads
	cfg.LogLevel = *logLevel
	if *debugFlag {
		cfg.LogLevel = "debug"
	}
	debug.Detection = *debugDetection
	return cfg, nil
}

func joinBackends(bs []oracle.Backend) string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = string(b)
	}
	return strings.Join(names, ",")
}
