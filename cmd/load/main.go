package main

import (
	"context"
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/neighbourhoods/nh-tray/internal/loadtest"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/spf13/pflag"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	cfg := loadtest.DefaultConfig()
	fs := pflag.NewFlagSet("nh-load", pflag.ContinueOnError)
	fs.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "Base URL of the service")
	fs.IntVar(&cfg.Resources, "resources", cfg.Resources, "Number of distinct resources")
	fs.IntVarP(&cfg.Assessments, "assessments", "n", cfg.Assessments, "Number of assessments to post")
	fs.IntVarP(&cfg.Workers, "workers", "w", runtime.NumCPU()*2, "Number of concurrent workers")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	fs.StringVar(&cfg.ResourceDef, "resource-def", cfg.ResourceDef, "Resource definition name")
	fs.StringVar(&cfg.Dimension, "dimension", cfg.Dimension, "Input dimension name")
	fs.StringVar(&cfg.Output, "output", cfg.Output, "Output dimension name")
	fs.StringVar(&cfg.Tray, "tray", cfg.Tray, "Tray rendered for verification")
	fs.Int64Var(&cfg.Min, "min", cfg.Min, "Smallest value posted")
	fs.Int64Var(&cfg.Max, "max", cfg.Max, "Largest value posted")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log every mismatch")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	if _, err := loadtest.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("load test failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
