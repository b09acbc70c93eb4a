package incident

import (
	"encoding/json"
	"strconv"
	"time"
)

// Defaults substituted for fields the upstream leaves empty.
const (
	DefaultShortDescription = "No Description"
	DefaultState            = "Unknown"
	DefaultPriority         = "3"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is a normalized incident.
type Record struct {
	SysID            string `json:"sys_id" yaml:"sys_id"`
	ShortDescription string `json:"short_description" yaml:"short_description"`
	State            string `json:"state" yaml:"state"`
	Priority         string `json:"priority" yaml:"priority"`
	OpenedAt         string `json:"opened_at" yaml:"opened_at"`
}

// Normalize converts one raw upstream record. Missing fields, nulls and empty
// strings are replaced with defaults; opened_at falls back to now.
func Normalize(raw map[string]any, now time.Time) Record {
	return Record{
		SysID:            stringify(raw["sys_id"]),
		ShortDescription: orDefault(stringify(raw["short_description"]), DefaultShortDescription),
		State:            orDefault(stringify(raw["state"]), DefaultState),
		Priority:         orDefault(stringify(raw["priority"]), DefaultPriority),
		OpenedAt:         orDefault(stringify(raw["opened_at"]), now.UTC().Format(TimestampLayout)),
	}
}

// NormalizeAll normalizes a batch, preserving order.
func NormalizeAll(raw []map[string]any, now time.Time) []Record {
	records := make([]Record, 0, len(raw))
	for _, r := range raw {
		records = append(records, Normalize(r, now))
	}
	return records
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// stringify renders scalar JSON values as strings. Reference fields returned with
// sysparm_display_value=all are objects; their display value is preferred.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		if dv := stringify(val["display_value"]); dv != "" {
			return dv
		}
		return stringify(val["value"])
	default:
		return ""
	}
}

// Snapshot is the immutable result of one fetch cycle.
type Snapshot struct {
	records   []Record
	fetchedAt time.Time
}

// NewSnapshot copies records into a new snapshot.
func NewSnapshot(records []Record, fetchedAt time.Time) *Snapshot {
	cp := make([]Record, len(records))
	copy(cp, records)
	return &Snapshot{records: cp, fetchedAt: fetchedAt}
}

// Records returns a copy of the snapshot's records in upstream order.
func (s *Snapshot) Records() []Record {
	if s == nil {
		return []Record{}
	}
	cp := make([]Record, len(s.records))
	copy(cp, s.records)
	return cp
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// FetchedAt returns when the snapshot was produced.
func (s *Snapshot) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}
