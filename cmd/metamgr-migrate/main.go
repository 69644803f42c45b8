package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/RhyVis/meta-manager/pkg/archive"
	"github.com/RhyVis/meta-manager/pkg/config"
	"github.com/RhyVis/meta-manager/pkg/library"
	"github.com/RhyVis/meta-manager/pkg/log"
	"github.com/RhyVis/meta-manager/pkg/storage"
)

type options struct {
	configPath string
	dataDir    string
	input      string
	dryRun     bool
	logJSON    bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("metamgr-migrate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Config file (default ./config.toml)")
	fs.StringVar(&opts.dataDir, "data-dir", "", "Data directory (overrides the config file)")
	fs.StringVarP(&opts.input, "input", "i", "", "Legacy game library JSON file (required)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Show what would be migrated without making changes")
	fs.BoolVar(&opts.logJSON, "log-json", false, "Log as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.input == "" {
		return nil, fmt.Errorf("--input is required")
	}
	return opts, nil
}

// run migrates a legacy {"games": [...]} document into the library store
func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: opts.logJSON, Output: stderr})
	logger := log.WithComponent("migrate")

	f, err := os.Open(opts.input)
	if err != nil {
		return fmt.Errorf("failed to open legacy library: %v", err)
	}
	defer f.Close()

	if opts.dryRun {
		recs, err := library.DecodeLegacy(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "[DRY RUN] %d entries would be migrated:\n", len(recs))
		for _, rec := range recs {
			fmt.Fprintf(stdout, "  %s  %s (%s)\n", rec.ID, rec.Title, rec.Platform)
		}
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	dataDir, err := cfg.EnsureDataDir()
	if err != nil {
		return err
	}
	logger.Info().Str("input", opts.input).Str("data_dir", dataDir).Msg("Migrating legacy library")

	storeOpts := storage.DefaultOptions()
	storeOpts.BackupKeep = cfg.Backup.Keep

	mgr, err := library.NewManager(&library.Config{
		DataDir:          dataDir,
		CompressionLevel: cfg.Archive.CompressionLevel,
		Store:            storeOpts,
		Archive:          archive.Options{PreferExternal: false},
	})
	if err != nil {
		return err
	}

	n, err := mgr.ImportLegacy(f)
	if shutdownErr := mgr.Shutdown(); err == nil {
		err = shutdownErr
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintf(stdout, "✓ Migrated %d entries into %s\n", n, dataDir)
	return nil
}

// loadConfig reads the config file unless only --data-dir was given
func loadConfig(opts *options) (*config.Config, error) {
	if opts.dataDir != "" && opts.configPath == "" {
		cfg := config.Default()
		cfg.DataDir = opts.dataDir
		return cfg, nil
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	return cfg, nil
}
