// Package main is the entry point of the pose pipeline simulator.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/skelmesh/internal/config"
	"github.com/Faultbox/skelmesh/internal/logger"
	"github.com/Faultbox/skelmesh/internal/sim"
)

var (
	flagFrames = flag.Int("frames", 600, "Number of ticks to simulate")
	flagHz     = flag.Float64("hz", 60, "Tick rate")
	flagDump   = flag.String("dump", "", "Write the run report as YAML to this file (- for stdout)")
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== Skelmesh pose simulator ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	opts := sim.DefaultOptions()
	opts.Frames = *flagFrames
	if *flagHz > 0 {
		opts.DeltaSeconds = 1 / *flagHz
	}

	s, err := sim.New(cfg, opts)
	if err != nil {
		logger.Error("failed to create simulation", zap.Error(err))
		os.Exit(1)
	}

	report, err := s.Run()
	if err != nil {
		logger.Error("simulation error", zap.Error(err))
		os.Exit(1)
	}

	if *flagDump != "" {
		if err := dump(report, *flagDump); err != nil {
			logger.Error("failed to write report", zap.Error(err))
			os.Exit(1)
		}
	}
}

func dump(report *sim.Report, path string) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
