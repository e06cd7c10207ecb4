package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"contact-scraper/pkg/config"
	"contact-scraper/pkg/crawler"
	"contact-scraper/pkg/fetch"
	"contact-scraper/pkg/storage"
	"contact-scraper/pkg/utils"
)

const version = "1.0.0"

const checkpointGCInterval = 10 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:], false)
	case "resume":
		runCrawl(os.Args[2:], true)
	case "validate":
		runValidate(os.Args[2:])
	case "list-sites":
		runListSites(os.Args[2:])
	case "version":
		fmt.Printf("contact-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `contact-scraper - Directory contact extractor

Usage:
  contact-scraper <command> [options]

Commands:
  crawl       Discover targets and scrape contacts from scratch
  resume      Continue a run, replaying checkpointed targets
  validate    Validate configuration file
  list-sites  List available site keys
  version     Show version info

Run 'contact-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.WrapErrorf(err, "read config %s", path)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, utils.WrapErrorf(err, "parse config %s", path)
	}

	return &cfg, nil
}

// runCrawl handles both crawl and resume subcommands
func runCrawl(args []string, isResume bool) {
	cmdName := "crawl"
	if isResume {
		cmdName = "resume"
	}

	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	siteKey := fs.String("site", "", "Site key from config")
	logLevel := fs.String("loglevel", "info", "Log level (trace, debug, info, warn, error, fatal)")
	renderer := fs.String("renderer", "", "Override the renderer (chrome or http)")
	noCheckpoint := fs.Bool("no-checkpoint", false, "Do not record per-target checkpoints")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: contact-scraper %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  contact-scraper %s -site azhca\n", cmdName)
		fmt.Fprintf(os.Stderr, "  contact-scraper %s -site azhca -renderer http -loglevel debug\n", cmdName)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *siteKey == "" {
		fmt.Fprintln(os.Stderr, "Error: -site is required")
		fs.Usage()
		os.Exit(1)
	}
	if isResume && *noCheckpoint {
		fmt.Fprintln(os.Stderr, "Error: resume needs the checkpoint, drop -no-checkpoint")
		os.Exit(1)
	}

	os.Exit(executeCrawl(*configFile, *siteKey, *logLevel, config.Renderer(*renderer), isResume, !*noCheckpoint))
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}

	return log
}

// prepareSite loads the config, applies overrides and validates both the app and the site.
// Warnings are logged; the first fatal problem is returned.
func prepareSite(configFile, siteKey string, renderer config.Renderer, log *logrus.Logger) (*config.AppConfig, *config.SiteConfig, error) {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	if renderer != "" {
		appCfg.Renderer = renderer
	}

	appWarnings, err := appCfg.Validate()
	if err != nil {
		return nil, nil, err
	}
	for _, w := range appWarnings {
		log.Warn(w)
	}

	siteCfg, ok := appCfg.Sites[siteKey]
	if !ok {
		return nil, nil, fmt.Errorf("%w: site '%s' not found in config", utils.ErrConfigValidation, siteKey)
	}
	if renderer != "" {
		siteCfg.Renderer = renderer
	}
	siteWarnings, err := siteCfg.Validate()
	if err != nil {
		return nil, nil, fmt.Errorf("site '%s': %w", siteKey, err)
	}
	for _, w := range siteWarnings {
		log.Warnf("[%s] %s", siteKey, w)
	}
	return appCfg, &siteCfg, nil
}

// exitCode maps the run outcome to a process exit code.
// Soft outcomes and operator cancellation exit 0.
func exitCode(err error, log logrus.FieldLogger) int {
	switch {
	case err == nil:
		log.Info("Run completed successfully.")
		return 0
	case utils.IsSoftFailure(err):
		log.Warnf("Run finished without results: %v", err)
		return 0
	case errors.Is(err, context.Canceled):
		log.Warn("Run cancelled gracefully.")
		return 0
	case errors.Is(err, utils.ErrSessionSetup):
		log.WithField("error_type", utils.CategorizeError(err)).Errorf("Rendering session could not start: %v", err)
		log.Error(crawler.SessionSetupGuidance)
		return 1
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("Run timed out (global timeout).")
		return 1
	default:
		log.WithField("error_type", utils.CategorizeError(err)).Errorf("Run finished with error: %v", err)
		return 1
	}
}

// runCheckpointGC runs value log GC for store in the background. The returned func
// stops GC, waits for it to return and only then closes the store.
func runCheckpointGC(ctx context.Context, store *storage.BadgerStore, interval time.Duration, log logrus.FieldLogger) func() {
	gcCtx, stopGC := context.WithCancel(ctx)
	gcDone := make(chan struct{})
	go func() {
		defer close(gcDone)
		store.RunGC(gcCtx, interval)
	}()

	return func() {
		stopGC()
		<-gcDone
		if err := store.Close(); err != nil {
			log.Warnf("Error closing checkpoint store: %v", err)
		}
	}
}

// executeCrawl runs one site and returns the process exit code
func executeCrawl(configFile, siteKey, logLevelStr string, renderer config.Renderer, isResume, useCheckpoint bool) int {
	log := setupLogger(logLevelStr)

	appCfg, siteCfg, err := prepareSite(configFile, siteKey, renderer, log)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	log.Infof("Site '%s': root %s, renderer %s, politeness %v",
		siteKey, siteCfg.RootURL, config.GetEffectiveRenderer(*siteCfg, *appCfg),
		config.GetEffectivePolitenessDelay(*siteCfg, *appCfg))

	// ===========================================================
	// == Setup Global Context & Signal Handling ==
	// ===========================================================
	var crawlCtx context.Context
	var cancelCrawl context.CancelFunc

	if appCfg.GlobalCrawlTimeout > 0 {
		log.Infof("Setting global crawl timeout: %v", appCfg.GlobalCrawlTimeout)
		crawlCtx, cancelCrawl = context.WithTimeout(context.Background(), appCfg.GlobalCrawlTimeout)
	} else {
		crawlCtx, cancelCrawl = context.WithCancel(context.Background())
	}
	defer cancelCrawl()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Finishing current target and shutting down...", sig)
			cancelCrawl()
		case <-crawlCtx.Done():
			return
		}

		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	// ===========================================================
	// == Initialize Components ==
	// ===========================================================
	logEntry := log.WithField("component", "crawl")

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, logEntry)
	fetcher := fetch.NewFetcher(httpClient, appCfg, logEntry)

	opts := crawler.Options{
		Fetcher: fetcher,
		Resume:  isResume,
		Summary: os.Stdout,
	}

	if useCheckpoint {
		store, err := storage.NewBadgerStore(appCfg.StateDir, siteKey, isResume, logEntry)
		if err != nil {
			log.Errorf("Failed to open checkpoint store: %v", err)
			return 1
		}
		shutdownStore := runCheckpointGC(crawlCtx, store, checkpointGCInterval, logEntry)
		defer shutdownStore()
		opts.Store = store
	}

	coordinator, err := crawler.NewCoordinator(appCfg, siteCfg, siteKey, logEntry, opts)
	if err != nil {
		log.Errorf("Failed to initialize coordinator: %v", err)
		return 1
	}

	// ===========================================================
	// == Run ==
	// ===========================================================
	_, err = coordinator.Run(crawlCtx)
	return exitCode(err, log)
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	siteKey := fs.String("site", "", "Site key to validate (optional, validates all if empty)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: contact-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, *siteKey, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, siteKey string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	keys := sortedSiteKeys(appCfg)
	if siteKey != "" {
		if _, ok := appCfg.Sites[siteKey]; !ok {
			fmt.Fprintf(stderr, "Error: site '%s' not found in config\n", siteKey)
			return 1
		}
		keys = []string{siteKey}
	}
	if len(keys) == 0 {
		fmt.Fprintln(stderr, "Error: no sites configured")
		return 1
	}

	hasError := false
	for _, key := range keys {
		siteCfg := appCfg.Sites[key]
		siteWarnings, err := siteCfg.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			hasError = true
			continue
		}
		for _, w := range siteWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
		}
		fmt.Fprintf(stdout, "OK: [%s]\n", key)
	}
	if hasError {
		return 1
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runListSites handles the list-sites subcommand
func runListSites(args []string) {
	fs := flag.NewFlagSet("list-sites", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: contact-scraper list-sites [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doListSites(*configFile, os.Stdout, os.Stderr))
}

// doListSites lists sites as a table and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doListSites(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	t := table.NewWriter()
	t.SetOutputMirror(stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("Sites in %s", configPath))
	t.AppendHeader(table.Row{"Key", "Root URL", "Renderer", "Target Markers", "Report"})

	for _, key := range sortedSiteKeys(appCfg) {
		site := appCfg.Sites[key]
		markers := site.TargetLinkMarkers
		if len(markers) == 0 {
			markers = config.DefaultTargetLinkMarkers
		}
		report := site.ReportFilename
		if report == "" {
			report = config.DefaultReportFilename
		}
		t.AppendRow(table.Row{
			key,
			site.RootURL,
			config.GetEffectiveRenderer(site, *appCfg),
			strings.Join(markers, " + "),
			report,
		})
	}
	t.Render()
	return 0
}

func sortedSiteKeys(appCfg *config.AppConfig) []string {
	keys := make([]string, 0, len(appCfg.Sites))
	for k := range appCfg.Sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
