package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RhyVis/meta-manager/pkg/archive"
	"github.com/RhyVis/meta-manager/pkg/config"
	"github.com/RhyVis/meta-manager/pkg/health"
)

func (a *app) newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the data directory, the store and the 7z tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}

			checks := []health.Named{
				{Name: "data dir", Checker: health.NewDataDirChecker(mgr.DataDir())},
				{Name: "store", Checker: health.NewStoreChecker(mgr.Store())},
				{Name: "7z tool", Checker: health.NewSevenZipChecker(a.sevenZipBinary()), Optional: true},
			}

			reports, healthy := health.Run(cmd.Context(), health.DefaultConfig(), checks)
			out := cmd.OutOrStdout()
			for _, r := range reports {
				mark := okMark
				switch {
				case r.Result.Healthy:
				case r.Optional:
					mark = warnMark
				default:
					mark = failMark
				}
				fmt.Fprintf(out, "  %s %-10s %s\n", mark, r.Name, r.Result.Message)
			}

			backend := archive.NewSevenZip(a.cfg.Archive.SevenZipBinary, a.cfg.Archive.PreferExternal).Backend()
			fmt.Fprintf(out, "  %s %-10s %s\n", okMark, "7z codec", backend.Name())

			if !healthy {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}

func (a *app) sevenZipBinary() string {
	if a.cfg.Archive.SevenZipBinary != "" {
		return a.cfg.Archive.SevenZipBinary
	}
	return "7z"
}

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage config.toml",
	}

	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a default config.toml unless one exists",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if path == "" {
				path = config.FileName
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}

			written, err := config.WriteDefault(abs)
			if err != nil {
				return err
			}
			if !written {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Config already exists: %s\n", warnMark, abs)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Config written: %s\n", okMark, abs)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := a.cfg.DataDirPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "data_dir                   = %s\n", dataDir)
			fmt.Fprintf(out, "log.level                  = %s\n", a.cfg.Log.Level)
			fmt.Fprintf(out, "log.json                   = %t\n", a.cfg.Log.JSON)
			fmt.Fprintf(out, "archive.compression_level  = %d\n", a.cfg.Archive.CompressionLevel)
			fmt.Fprintf(out, "archive.prefer_external    = %t\n", a.cfg.Archive.PreferExternal)
			fmt.Fprintf(out, "archive.seven_zip_binary   = %s\n", a.cfg.Archive.SevenZipBinary)
			fmt.Fprintf(out, "backup.keep                = %d\n", a.cfg.Backup.Keep)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
