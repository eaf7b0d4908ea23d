package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/scottfultz/cartographer-sub007/internal/common"
	"github.com/scottfultz/cartographer-sub007/internal/scheduler"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	resumeDir    = flag.String("resume", "", "Resume from an existing staging directory")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Cartographer version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Auto-discover a config file next to the binary's working directory
	if len(configFiles) == 0 {
		if _, err := os.Stat("cartographer.toml"); err == nil {
			configFiles = append(configFiles, "cartographer.toml")
		}
	}

	config, err := common.LoadConfig(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(scheduler.ExitUnknown)
	}
	if *resumeDir != "" {
		config.Resume.StagingDir = *resumeDir
	}
	if config.Logging.Mode == "quiet" {
		config.Logging.Level = "warn"
	}

	logger := common.InitLogger(config)

	logger.Info().
		Str("version", common.GetVersion()).
		Strs("config_files", configFiles).
		Strs("seeds", config.Crawl.Seeds).
		Str("mode", config.Render.Mode).
		Str("out", config.Crawl.OutAtls).
		Msg("Starting crawl")

	crawl, err := scheduler.New(scheduler.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize crawl")
		os.Exit(scheduler.ExitCode(err))
	}

	// First signal cancels the crawl and lets finalize write a partial
	// archive; a second signal kills the process.
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn().Msg("Interrupt received, cancelling crawl")
		crawl.Cancel(context.Background())
		<-sigChan
		logger.Error().Msg("Second interrupt, exiting immediately")
		os.Exit(scheduler.ExitCancelled)
	}()

	err = crawl.Run(context.Background())
	if err != nil {
		logger.Error().Err(err).Msg("Crawl ended with error")
	} else {
		logger.Info().
			Str("crawl_id", crawl.CrawlID()).
			Str("out", config.Crawl.OutAtls).
			Msg("Crawl complete")
	}
	os.Exit(scheduler.ExitCode(err))
}
