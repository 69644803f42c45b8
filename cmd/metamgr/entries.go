package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RhyVis/meta-manager/pkg/library"
	"github.com/RhyVis/meta-manager/pkg/types"
)

func (a *app) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List catalogue entries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			recs, err := mgr.List()
			if err != nil {
				return err
			}
			renderRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}

func (a *app) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			rec, err := resolve(mgr, args[0])
			if err != nil {
				return err
			}
			renderRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}
}

func (a *app) newAddCmd() *cobra.Command {
	var (
		title       string
		platform    string
		platformID  string
		password    string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "add ARCHIVE",
		Short: "Add an entry for an existing archive",
		Long: `Add an entry pointing at an existing archive. The archive may be a
.zip, .rar or .7z file, any other single file, or a directory.

Examples:
  metamgr add --title "Portal 2" --platform Steam --platform-id 620 ./portal2.7z
  metamgr add --title "Sketches" --type Comic ./sketches/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := parseContentType(contentType)
			if err != nil {
				return err
			}
			mgr, err := a.manager()
			if err != nil {
				return err
			}

			rec := types.NewRecord(title, types.ParsePlatform(platform), platformID, args[0])
			rec.ArchivePassword = password
			rec.ContentType = ct
			if err := mgr.AddArchive(rec); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Entry added: %s (ID: %s, %s)\n",
				okMark, rec.Title, rec.ID, sizeLabel(rec))
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Entry title (required)")
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "Platform: Steam, DLSite or any other name")
	cmd.Flags().StringVar(&platformID, "platform-id", "", "Identifier on the platform")
	cmd.Flags().StringVar(&password, "password", "", "Archive password")
	cmd.Flags().StringVar(&contentType, "type", string(types.ContentTypeUnknown), "Content type")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func (a *app) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete an entry (deployed files are kept)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			rec, err := resolve(mgr, args[0])
			if err != nil {
				return err
			}
			if err := mgr.Delete(rec.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Entry deleted: %s\n", okMark, rec.Title)
			return nil
		},
	}
}

func (a *app) newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy ID TARGET",
		Short: "Extract an entry's archive into TARGET",
		Long: `Extract an entry's archive into TARGET. TARGET is created when missing
and must be empty for directories and .zip/.rar/.7z archives. Any other
file is copied into TARGET.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			rec, err := resolve(mgr, args[0])
			if err != nil {
				return err
			}
			rec, err = mgr.Deploy(rec.ID, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deployed %s to %s (%s)\n",
				okMark, rec.Title, rec.DeployedPath, rec.DeployedType)
			return nil
		},
	}
	cmd.Flags().BoolVar(&a.allowRedeploy, "force", false, "Deploy even if the entry is already deployed")
	return cmd
}

func (a *app) newUndeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undeploy ID",
		Short: "Remove an entry's deployed files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			rec, err := resolve(mgr, args[0])
			if err != nil {
				return err
			}
			path := rec.DeployedPath
			if _, err := mgr.DeployOff(rec.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Removed deployment of %s from %s\n", okMark, rec.Title, path)
			return nil
		},
	}
}

func (a *app) newCreateCmd() *cobra.Command {
	var (
		title      string
		platform   string
		platformID string
		password   string
	)

	cmd := &cobra.Command{
		Use:   "create FOLDER",
		Short: "Pack a folder into a new .7z archive and add it",
		Long: `Pack FOLDER into <data_dir>/archive/<platform>/<platform id>.7z at the
maximum compression level and add an entry for it. Without a platform id
the archive is named ANONYMOUS-<timestamp>.7z.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			rec, err := mgr.CreateFromFolder(title, types.ParsePlatform(platform), platformID, args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Archive created: %s (%s)\n", okMark, rec.ArchivePath, sizeLabel(rec))
			fmt.Fprintf(cmd.OutOrStdout(), "%s Entry added: %s (ID: %s)\n", okMark, rec.Title, rec.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Entry title (required)")
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "Platform: Steam, DLSite or any other name")
	cmd.Flags().StringVar(&platformID, "platform-id", "", "Identifier on the platform")
	cmd.Flags().StringVar(&password, "password", "", "Encrypt the archive with this password")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func (a *app) newCompressCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "compress FOLDER ARCHIVE.7z",
		Short: "Pack a folder into a .7z archive without adding an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if err := mgr.Compress(args[0], args[1], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Archive written: %s\n", okMark, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Encrypt the archive with this password")
	return cmd
}

func (a *app) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write every entry to library.json in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			path, err := mgr.Export()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Library exported to %s\n", okMark, path)
			return nil
		},
	}
}

func (a *app) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Upsert every entry of library.json in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			imported, err := mgr.Import()
			if err != nil {
				return err
			}
			if !imported {
				fmt.Fprintf(cmd.OutOrStdout(), "%s No export file found, nothing imported\n", warnMark)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Library imported\n", okMark)
			return nil
		},
	}
}

// resolve finds an entry by full id or by a unique id prefix
func resolve(mgr *library.Manager, id string) (*types.Record, error) {
	rec, err := mgr.Get(id)
	if err == nil || !errors.Is(err, types.ErrNotFound) {
		return rec, err
	}

	recs, listErr := mgr.List()
	if listErr != nil {
		return nil, listErr
	}
	var match *types.Record
	for _, r := range recs {
		if !strings.HasPrefix(r.ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("id prefix %q is ambiguous", id)
		}
		match = r
	}
	if match == nil {
		return nil, fmt.Errorf("%w: entry %s", types.ErrNotFound, id)
	}
	return match, nil
}

func parseContentType(s string) (types.ContentType, error) {
	for _, ct := range types.ContentTypes {
		if strings.EqualFold(string(ct), s) {
			return ct, nil
		}
	}
	names := make([]string, 0, len(types.ContentTypes))
	for _, ct := range types.ContentTypes {
		names = append(names, string(ct))
	}
	return "", fmt.Errorf("unknown content type %q (one of %s)", s, strings.Join(names, ", "))
}
