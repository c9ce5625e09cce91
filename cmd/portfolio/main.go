package main

import (
	"os"

	"github.com/fatih/color"

	"portfolio-tracker/internal/cli"
	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("PORTFOLIO_CONFIG_DIR"))
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	logger := logging.NewLoggerWithConfig(logCfg)

	if err := cli.Execute(cfg, logger); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
