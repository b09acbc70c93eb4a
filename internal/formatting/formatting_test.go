package formatting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"incidentrelay/internal/hub"
	"incidentrelay/internal/incident"
)

var testRecords = []incident.Record{
	{SysID: "a1", ShortDescription: "Email down", State: "New", Priority: "1", OpenedAt: "2024-01-01T00:00:00.000Z"},
	{SysID: "b2", ShortDescription: incident.DefaultShortDescription, State: incident.DefaultState, Priority: incident.DefaultPriority, OpenedAt: "2024-01-02T00:00:00.000Z"},
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatTable, "table": FormatTable, "json": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestTableFormatter_Incidents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(Options{Format: FormatTable}).FormatIncidents(&buf, testRecords))

	out := buf.String()
	assert.Contains(t, out, "SYS_ID")
	assert.Contains(t, out, "Email down")
	assert.Contains(t, out, "No Description")
	assert.Contains(t, out, "Total: 2 incidents")
	assert.NotContains(t, out, "\x1b[", "no ANSI codes without Color")
}

func TestTableFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(Options{Quiet: true}).FormatIncidents(&buf, nil))
	assert.Equal(t, "No incidents found\n", buf.String())
}

func TestTableFormatter_TruncatesDescription(t *testing.T) {
	long := strings.Repeat("x", 100)
	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(Options{}).FormatIncidents(&buf, []incident.Record{{SysID: "c3", ShortDescription: long}}))
	assert.NotContains(t, buf.String(), long)
	assert.Contains(t, buf.String(), strings.Repeat("x", maxDescriptionWidth-3)+"...")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b c", truncate("a\n b\t\tc", 10))
	assert.Equal(t, "héllo w...", truncate("héllo wörld again", 10))
}

func TestTableFormatter_Notification(t *testing.T) {
	var buf bytes.Buffer
	n := hub.Notification{Title: "ServiceNow", Body: "Updated Incidents: 3", Count: 3, Previous: 1}
	require.NoError(t, New(Options{Quiet: true}).FormatNotification(&buf, n))
	assert.Equal(t, "ServiceNow: Updated Incidents: 3\n", buf.String())
}

func TestTableFormatter_UserSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(Options{}).FormatUser(&buf, map[string]any{"sub": "u1", "email": "a@b.c"}))
	out := buf.String()
	assert.Less(t, strings.Index(out, "email"), strings.Index(out, "sub"))
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := New(Options{Format: FormatJSON})
	require.NoError(t, f.FormatIncidents(&buf, testRecords))

	var got []incident.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, testRecords, got)

	buf.Reset()
	require.NoError(t, f.FormatIncidents(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(Options{Format: FormatYAML}).FormatIncidents(&buf, testRecords))
	require.True(t, strings.HasPrefix(buf.String(), "---\n"))

	var got struct {
		Incidents []incident.Record `yaml:"incidents"`
		Count     int               `yaml:"count"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, testRecords, got.Incidents)
}
