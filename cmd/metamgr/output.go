package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/RhyVis/meta-manager/pkg/types"
)

var (
	okMark   = color.GreenString("✓")
	failMark = color.RedString("✗")
	warnMark = color.YellowString("!")
)

func renderRecords(w io.Writer, recs []*types.Record) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	tw.SetStyle(style)
	tw.AppendHeader(table.Row{"ID", "Title", "Type", "Platform", "Size", "Deployed"})

	for _, rec := range recs {
		tw.AppendRow(table.Row{
			shortID(rec.ID),
			rec.Title,
			string(rec.ContentType),
			platformLabel(rec),
			sizeLabel(rec),
			deployedLabel(rec),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d entries", len(recs))})
	tw.Render()
}

func renderRecord(w io.Writer, rec *types.Record) {
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(w, "  %-16s %s\n", name+":", value)
		}
	}

	fmt.Fprintf(w, "%s\n", color.New(color.Bold).Sprint(rec.Title))
	field("id", rec.ID)
	field("original title", rec.OriginalTitle)
	field("content type", string(rec.ContentType))
	field("platform", platformLabel(rec))
	field("version", rec.Version)
	field("developer", rec.Developer)
	field("publisher", rec.Publisher)
	field("release date", rec.ReleaseDate)
	field("description", rec.Description)
	field("archive", rec.ArchivePath)
	if rec.ArchivePassword != "" {
		field("password", "set")
	}
	field("size", sizeLabel(rec))
	if rec.IsDeployed() {
		field("deployed", fmt.Sprintf("%s %s (%s)", okMark, rec.DeployedPath, rec.DeployedType))
	} else {
		field("deployed", "no")
	}
	if len(rec.Tags) > 0 {
		tags := make([]string, 0, len(rec.Tags))
		for _, tag := range rec.Tags {
			if tag.Category != "" {
				tags = append(tags, tag.Category+":"+tag.Name)
			} else {
				tags = append(tags, tag.Name)
			}
		}
		field("tags", strings.Join(tags, ", "))
	}
	field("created", humanize.Time(rec.DateCreated))
	field("updated", humanize.Time(rec.DateUpdated))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func platformLabel(rec *types.Record) string {
	if rec.PlatformID == "" {
		return rec.Platform.String()
	}
	return rec.Platform.String() + " " + rec.PlatformID
}

func sizeLabel(rec *types.Record) string {
	size, ok := rec.Size()
	if !ok {
		return "-"
	}
	return humanize.IBytes(size)
}

func deployedLabel(rec *types.Record) string {
	if !rec.IsDeployed() {
		return ""
	}
	return okMark + " " + rec.DeployedPath
}
