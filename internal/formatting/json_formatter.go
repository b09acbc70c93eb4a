package formatting

import (
	"encoding/json"
	"io"

	"incidentrelay/internal/hub"
	"incidentrelay/internal/incident"
)

// JSONFormatter writes one JSON document per call, suitable for jq.
type JSONFormatter struct {
	options Options
}

func (f *JSONFormatter) FormatIncidents(w io.Writer, records []incident.Record) error {
	if records == nil {
		records = []incident.Record{}
	}
	return f.encode(w, records)
}

func (f *JSONFormatter) FormatNotification(w io.Writer, n hub.Notification) error {
	return f.encode(w, n)
}

func (f *JSONFormatter) FormatUser(w io.Writer, info map[string]any) error {
	return f.encode(w, info)
}

func (f *JSONFormatter) encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if !f.options.Quiet {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
