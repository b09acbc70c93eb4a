package formatting

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"incidentrelay/internal/hub"
	"incidentrelay/internal/incident"
)

// YAMLFormatter writes YAML documents separated by "---".
type YAMLFormatter struct {
	options Options
}

func (f *YAMLFormatter) FormatIncidents(w io.Writer, records []incident.Record) error {
	return f.encode(w, map[string]any{
		"incidents": records,
		"count":     len(records),
	})
}

func (f *YAMLFormatter) FormatNotification(w io.Writer, n hub.Notification) error {
	return f.encode(w, map[string]any{
		"title":    n.Title,
		"body":     n.Body,
		"count":    n.Count,
		"previous": n.Previous,
	})
}

func (f *YAMLFormatter) FormatUser(w io.Writer, info map[string]any) error {
	return f.encode(w, info)
}

func (f *YAMLFormatter) encode(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	_, err = fmt.Fprintf(w, "---\n%s", out)
	return err
}
