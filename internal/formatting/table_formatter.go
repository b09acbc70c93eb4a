package formatting

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"incidentrelay/internal/hub"
	"incidentrelay/internal/incident"
)

const maxDescriptionWidth = 60

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) *TableFormatter {
	return &TableFormatter{options: options}
}

// FormatIncidents writes records as a table followed by a total line.
func (f *TableFormatter) FormatIncidents(w io.Writer, records []incident.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, f.formatEmptyMessage("📋", "No incidents found"))
		return err
	}

	t := f.createTable(w)
	t.AppendHeader(table.Row{
		f.header("SYS_ID"),
		f.header("PRIORITY"),
		f.header("STATE"),
		f.header("OPENED"),
		f.header("DESCRIPTION"),
	})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.SysID,
			f.priority(r.Priority),
			r.State,
			r.OpenedAt,
			truncate(r.ShortDescription, maxDescriptionWidth),
		})
	}
	t.Render()

	if f.options.Quiet {
		return nil
	}
	_, err := fmt.Fprintf(w, "%s %s %s\n",
		f.paint(text.FgHiBlue, "Total:"),
		f.paint(text.FgHiWhite, fmt.Sprint(len(records))),
		f.paint(text.FgHiBlue, "incidents"))
	return err
}

// FormatNotification writes a one-line notification.
func (f *TableFormatter) FormatNotification(w io.Writer, n hub.Notification) error {
	icon := "🔔 "
	if f.options.Quiet {
		icon = ""
	}
	_, err := fmt.Fprintf(w, "%s%s %s\n", icon, f.paint(text.FgHiYellow, n.Title+":"), n.Body)
	return err
}

// FormatUser writes userinfo claims as key/value pairs, sorted by key.
func (f *TableFormatter) FormatUser(w io.Writer, info map[string]any) error {
	t := f.createTable(w)
	t.AppendHeader(table.Row{f.header("CLAIM"), f.header("VALUE")})

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		t.AppendRow(table.Row{f.paint(text.FgHiCyan, k), truncate(fmt.Sprintf("%v", info[k]), 100)})
	}
	t.Render()
	return nil
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	if f.options.Quiet {
		t.SetStyle(table.StyleLight)
	} else {
		t.SetStyle(table.StyleRounded)
	}
	return t
}

func (f *TableFormatter) header(s string) string {
	return f.paint(text.FgHiCyan, s)
}

// priority colors P1 and P2 so urgent incidents stand out.
func (f *TableFormatter) priority(p string) string {
	switch p {
	case "1":
		return f.paint(text.FgRed, p)
	case "2":
		return f.paint(text.FgYellow, p)
	default:
		return p
	}
}

func (f *TableFormatter) paint(c text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return c.Sprint(s)
}

// formatEmptyMessage formats empty result messages
func (f *TableFormatter) formatEmptyMessage(icon, message string) string {
	if f.options.Quiet {
		return message
	}
	return fmt.Sprintf("%s %s", f.paint(text.FgYellow, icon), f.paint(text.FgYellow, message))
}

// truncate flattens s onto one line and shortens it to max runes, "..." included.
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
