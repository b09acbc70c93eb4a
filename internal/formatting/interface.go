// Package formatting renders incident data for the command line.
//
// The same records can be written as a rich table, JSON or YAML so that
// the watch command is usable both interactively and in scripts.
package formatting

import (
	"fmt"
	"io"

	"incidentrelay/internal/hub"
	"incidentrelay/internal/incident"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool // Suppress decorative elements
	Color  bool // Enable colored output
}

// Formatter renders relay data to a writer.
type Formatter interface {
	FormatIncidents(w io.Writer, records []incident.Record) error
	FormatNotification(w io.Writer, n hub.Notification) error
	FormatUser(w io.Writer, info map[string]any) error
}

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (valid: table, json, yaml)", s)
	}
}

// New returns the formatter for options.Format.
func New(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return &JSONFormatter{options: options}
	case FormatYAML:
		return &YAMLFormatter{options: options}
	default:
		return &TableFormatter{options: options}
	}
}
