// Package main runs Kinetic UI flows against a tenant from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/kinetic/pkg/config"
	"github.com/entrhq/kinetic/pkg/flows"
	"github.com/entrhq/kinetic/pkg/harness"
	"github.com/entrhq/kinetic/pkg/logging"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	Flow          string
	CustomerID    string
	SettingsFile  string
	InstallDriver bool
	ShowVersion   bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("Kinetic v%s\n", version)
		return
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	ok, err := run(ctx, cli)
	cancel()
	if err != nil {
		log.Printf("Run failed: %v", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.Flow, "flow", "all", "Flow to run: login, customer-tracker or all")
	flag.StringVar(&cli.CustomerID, "customer", flows.DefaultCustomerID, "Customer ID for the customer-tracker flow")
	flag.StringVar(&cli.SettingsFile, "settings", "", "Path to settings file (YAML); overrides "+config.EnvSettings)
	flag.BoolVar(&cli.InstallDriver, "install", false, "Install the Playwright driver and Chromium before running")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Kinetic - UI checks for an Epicor Kinetic tenant\n\n")
		fmt.Fprintf(os.Stderr, "Usage: kinetic [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment (or .env):\n")
		fmt.Fprintf(os.Stderr, "  %s, %s, %s (required)\n", config.EnvBaseURL, config.EnvUsername, config.EnvPassword)
		fmt.Fprintf(os.Stderr, "  %s, %s, %s (optional)\n", config.EnvHeadless, config.EnvSlowMoMS, config.EnvReuseState)
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  kinetic -flow login\n")
		fmt.Fprintf(os.Stderr, "  kinetic -flow customer-tracker -customer ACME01\n\n")
	}

	flag.Parse()
	return cli
}

// run executes the selected flows and reports whether all of them passed.
func run(ctx context.Context, cli *CLIConfig) (bool, error) {
	selected, err := flows.Select(cli.Flow, cli.CustomerID)
	if err != nil {
		return false, err
	}

	// Configuration errors surface before any browser is launched
	cfg, err := config.Load()
	if err != nil {
		return false, err
	}

	settings, err := loadSettings(cli.SettingsFile)
	if err != nil {
		return false, err
	}

	level, err := logging.ParseLevel(settings.Logging.Level)
	if err != nil {
		return false, err
	}
	logger, err := logging.NewLogger("kinetic", logging.Options{Dir: settings.Logging.Dir, Level: level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	defer logger.Close()

	logger.Infof("Configuration: %s", cfg)

	r, err := harness.Start(ctx, harness.Options{
		Config:   cfg,
		Settings: settings,
		Launch:   harness.PlaywrightLauncher(cli.InstallDriver),
		Logger:   logger,
	})
	if err != nil {
		return false, err
	}

	info, results := execute(ctx, r, selected, logger)
	info.BaseURL = cfg.BaseURL

	fmt.Println(renderReport(info, results))
	return allPassed(results), nil
}

// execute runs the flows on r and closes it on every exit path, panics
// included.
func execute(ctx context.Context, r *harness.Run, selected []flows.Flow, logger *logging.Logger) (reportInfo, []flows.Result) {
	defer func() {
		if err := r.Close(); err != nil {
			logger.Warnf("Teardown reported: %v", err)
		}
	}()

	results := flows.RunFlows(ctx, r, selected, logger.With("flows"))

	return reportInfo{
		RunID:   r.ID,
		Reused:  r.Reused(),
		LogPath: logger.LogPath(),
	}, results
}

func loadSettings(path string) (config.Settings, error) {
	if path != "" {
		return config.LoadSettingsFile(path)
	}
	return config.LoadSettings(os.LookupEnv)
}
