package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/RhyVis/meta-manager/pkg/archive"
	"github.com/RhyVis/meta-manager/pkg/config"
	"github.com/RhyVis/meta-manager/pkg/deploy"
	"github.com/RhyVis/meta-manager/pkg/library"
	"github.com/RhyVis/meta-manager/pkg/log"
	"github.com/RhyVis/meta-manager/pkg/metrics"
	"github.com/RhyVis/meta-manager/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// skipConfig marks commands that run without loading config.toml
const skipConfig = "skip-config"

func main() {
	if err := execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand of one invocation
type app struct {
	configPath      string
	logJSON         bool
	logLevel        string
	metricsTextfile string
	allowRedeploy   bool

	stderr io.Writer
	cfg    *config.Config
	mgr    *library.Manager
}

// execute runs one CLI invocation. Errors are returned as plain text
// values; their kind never crosses this boundary.
func execute(args []string, stdout, stderr io.Writer) error {
	a := &app{stderr: stderr}
	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.New(err.Error())
	}
	return nil
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "metamgr",
		Short: "meta-manager - archive catalogue and deployment manager",
		Long: `meta-manager keeps a catalogue of archived games, comics, novels,
music and anime. Each entry points at an archive (.zip, .rar, .7z, a plain
file or a directory) that can be deployed to a folder and removed again.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.SetVersionTemplate(fmt.Sprintf(
		"meta-manager version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default ./config.toml)")
	flags.BoolVar(&a.logJSON, "log-json", false, "Log as JSON")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		a.newListCmd(),
		a.newGetCmd(),
		a.newAddCmd(),
		a.newApplyCmd(),
		a.newDeleteCmd(),
		a.newDeployCmd(),
		a.newUndeployCmd(),
		a.newCreateCmd(),
		a.newCompressCmd(),
		a.newExportCmd(),
		a.newImportCmd(),
		a.newDoctorCmd(),
		a.newConfigCmd(),
	)
	return root
}

// setup loads configuration and initializes logging
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipConfig] == "true" {
		log.Init(log.Config{Level: log.Level(a.logLevel), JSONOutput: a.logJSON, Output: a.stderr})
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: a.logJSON || cfg.Log.JSON,
		Output:     a.stderr,
	})
	return nil
}

// manager opens the library on first use
func (a *app) manager() (*library.Manager, error) {
	if a.mgr != nil {
		return a.mgr, nil
	}

	dataDir, err := a.cfg.EnsureDataDir()
	if err != nil {
		return nil, err
	}

	opts := storage.DefaultOptions()
	opts.BackupKeep = a.cfg.Backup.Keep

	mgr, err := library.NewManager(&library.Config{
		DataDir:          dataDir,
		CompressionLevel: a.cfg.Archive.CompressionLevel,
		Store:            opts,
		Archive: archive.Options{
			PreferExternal: a.cfg.Archive.PreferExternal,
			SevenZipBinary: a.cfg.Archive.SevenZipBinary,
		},
		Deploy: deploy.Options{AllowRedeploy: a.allowRedeploy},
	})
	if err != nil {
		return nil, err
	}
	if err := mgr.WarmUp(); err != nil {
		_ = mgr.Shutdown()
		return nil, err
	}

	a.mgr = mgr
	return mgr, nil
}

// close refreshes gauges, writes the metrics textfile and releases the store
func (a *app) close() error {
	if a.mgr == nil {
		return a.writeMetrics()
	}

	if err := a.mgr.RefreshMetrics(); err != nil {
		log.Logger.Warn().Err(err).Msg("Failed to refresh metrics")
	}
	err := a.mgr.Shutdown()
	a.mgr = nil

	if metricsErr := a.writeMetrics(); err == nil {
		err = metricsErr
	}
	return err
}

func (a *app) writeMetrics() error {
	if a.metricsTextfile == "" {
		return nil
	}
	return metrics.WriteTextfile(a.metricsTextfile)
}
