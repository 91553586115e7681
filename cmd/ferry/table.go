package main

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. A positive maxWidth trims long cells
// (errors, check details) so rows stay on one terminal line.
type column struct {
	title    string
	align    text.Align
	maxWidth int
	wrap     bool
}

func countColumns(label string) []column {
	return []column{{title: label}, {title: "Count", align: text.AlignRight}}
}

var (
	failedColumns = []column{
		{title: "ID", align: text.AlignRight},
		{title: "Path"},
		{title: "Retries", align: text.AlignRight},
		{title: "Updated"},
		{title: "Last Error", maxWidth: 80},
	}
	missingColumns = []column{
		{title: "Local Path"},
		{title: "Key"},
		{title: "Reason", maxWidth: 60},
	}
	checkColumns = []column{
		{title: "Check"},
		{title: "Status"},
		{title: "Detail", maxWidth: 72, wrap: true},
	}
	settingColumns = []column{
		{title: "Setting"},
		{title: "Value"},
	}
)

// renderTable writes rows under columns to w. Missing cells render empty.
func renderTable(w io.Writer, columns []column, rows [][]string) {
	if len(columns) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       col.align,
			AlignHeader: text.AlignLeft,
		}
		if col.maxWidth > 0 {
			configs[i].WidthMax = col.maxWidth
			configs[i].WidthMaxEnforcer = text.Trim
			if col.wrap {
				configs[i].WidthMaxEnforcer = text.WrapSoft
			}
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	tw.Render()
}

// oneLine collapses runs of whitespace, including newlines from wrapped SDK
// errors, into single spaces.
func oneLine(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
