package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/markrec/pkg/recovery"
	"github.com/Sumatoshi-tech/markrec/pkg/safeconv"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

const irregularRate = "Irregular"

func newTable(out io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(out)
	tbl.SetStyle(table.StyleLight)

	return tbl
}

// renderStreams prints one row per stream.
func renderStreams(out io.Writer, descs []stream.SourceDescriptor) {
	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"Key", "Name", "Kind", "Channels", "Rate", "Status"})

	for _, desc := range descs {
		tbl.AppendRow(table.Row{desc.Key, desc.Name, desc.Kind, desc.ChannelCount, formatRate(desc), desc.Status})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d streams", len(descs))})
	tbl.Render()
}

func formatRate(desc stream.SourceDescriptor) string {
	if desc.Irregular() {
		return irregularRate
	}

	return strconv.FormatFloat(desc.NominalRate, 'f', -1, 64) + " Hz"
}

// renderBackups prints one row per backup found on disk.
func renderBackups(out io.Writer, candidates []recovery.Candidate) {
	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"#", "Backup", "Size", "Modified", "Samples", "Problem"})

	for i, c := range candidates {
		problem := ""
		if c.Err != nil {
			problem = c.Err.Error()
		}

		tbl.AppendRow(table.Row{
			i + 1,
			filepath.Base(c.Path),
			humanize.Bytes(safeconv.NonNegativeUint64(c.Size)),
			humanize.Time(c.ModTime),
			c.Samples,
			problem,
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d backups", len(candidates))})
	tbl.Render()
}
