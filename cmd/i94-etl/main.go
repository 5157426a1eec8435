package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i94_etl/internal/config"
	"i94_etl/internal/engine"
	"i94_etl/internal/logging"
	"i94_etl/internal/pipeline"
	"i94_etl/internal/storage"
	"i94_etl/internal/surrogate"
)

const (
	defaultEnvFile = ".env"
	runTimeout     = 6 * time.Hour
)

var (
	configPath  = flag.String("config", "", "Path to TOML configuration file")
	envFile     = flag.String("env-file", defaultEnvFile, "Path to .env file (ignored if missing)")
	source      = flag.String("source", "", "Source root path or s3:// URL (overrides config file)")
	destination = flag.String("destination", "", "Destination root path or s3:// URL (overrides config file)")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	showVersion = flag.Bool("version", false, "Print version information and exit")

	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		os.Exit(0)
	}
	os.Exit(run())
}

func run() int {
	log := logging.New(os.Stdout, *verbose)
	log.Info("[OK] i94 ETL starting...", "version", version)

	// A missing default .env is fine, everything can come from the environment.
	env := *envFile
	if _, err := os.Stat(env); os.IsNotExist(err) && env == defaultEnvFile {
		env = ""
	}

	cfg, err := config.Load(*configPath, env)
	if err != nil {
		log.Error("[ERROR] Failed to load configuration", "error", err)
		return 1
	}
	cfg.ApplyOverrides(source, destination)
	if err := cfg.Validate(); err != nil {
		log.Error("[ERROR] Invalid configuration", "error", err)
		return 1
	}
	log.Info("[OK] Configuration validated",
		"source", cfg.Paths.SourceRoot,
		"destination", cfg.Paths.DestinationRoot,
		"workers", cfg.Write.PartitionWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	store, err := storage.New(storage.Options{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		EndpointURL:     cfg.AWS.EndpointURL,
		TempDir:         cfg.Paths.TempDir,
		VerifyUpload:    cfg.Write.VerifyUpload,
	}, log)
	if err != nil {
		log.Error("[ERROR] Failed to initialize storage", "error", err)
		return 1
	}
	defer store.Cleanup()

	eng, err := engine.New(engine.Config{
		Store:   store,
		TempDir: store.TempDir(),
		Workers: cfg.Write.PartitionWorkers,
		Logger:  log,
	})
	if err != nil {
		log.Error("[ERROR] Failed to initialize engine", "error", err)
		return 1
	}
	defer eng.Close()

	ids, err := surrogate.New(cfg.Surrogate.NodeID)
	if err != nil {
		log.Error("[ERROR] Failed to initialize id generator", "error", err)
		return 1
	}

	p, err := pipeline.New(cfg, eng, ids, log, pipeline.WithAccessChecker(store))
	if err != nil {
		log.Error("[ERROR] Failed to initialize pipeline", "error", err)
		return 1
	}

	stats, err := p.Run(ctx)
	if err != nil {
		log.Error("[ERROR] ETL pipeline failed", "error", err)
		return 1
	}

	log.Info("[OK] ETL pipeline finished",
		"run_id", stats.RunID,
		"tables", len(stats.Tables),
		"rows", stats.TotalRowsWritten,
		"duration", stats.TotalExecutionTime)
	return 0
}
