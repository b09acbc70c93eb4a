package incident

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 45, 123_000_000, time.FixedZone("CET", 3600))

	tests := []struct {
		name string
		raw  string
		want Record
	}{
		{
			name: "empty and null fields get defaults",
			raw:  `{"sys_id":"a1","short_description":"","state":null,"priority":null,"opened_at":null}`,
			want: Record{
				SysID:            "a1",
				ShortDescription: "No Description",
				State:            "Unknown",
				Priority:         "3",
				OpenedAt:         "2026-03-01T11:30:45.123Z",
			},
		},
		{
			name: "missing fields get defaults",
			raw:  `{"sys_id":"b2"}`,
			want: Record{
				SysID:            "b2",
				ShortDescription: "No Description",
				State:            "Unknown",
				Priority:         "3",
				OpenedAt:         "2026-03-01T11:30:45.123Z",
			},
		},
		{
			name: "present fields are kept",
			raw:  `{"sys_id":"c3","short_description":"Disk full","state":"2","priority":"1","opened_at":"2026-02-28 08:00:00"}`,
			want: Record{
				SysID:            "c3",
				ShortDescription: "Disk full",
				State:            "2",
				Priority:         "1",
				OpenedAt:         "2026-02-28 08:00:00",
			},
		},
		{
			name: "numbers are stringified",
			raw:  `{"sys_id":"d4","short_description":"x","state":7,"priority":2,"opened_at":"t"}`,
			want: Record{SysID: "d4", ShortDescription: "x", State: "7", Priority: "2", OpenedAt: "t"},
		},
		{
			name: "reference objects use display value",
			raw:  `{"sys_id":"e5","short_description":"x","state":{"display_value":"In Progress","value":"2"},"priority":{"value":"4"},"opened_at":"t"}`,
			want: Record{SysID: "e5", ShortDescription: "x", State: "In Progress", Priority: "4", OpenedAt: "t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw map[string]any
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &raw))
			assert.Equal(t, tt.want, Normalize(raw, now))
		})
	}
}

func TestNormalizeAll_PreservesOrder(t *testing.T) {
	raw := []map[string]any{{"sys_id": "1"}, {"sys_id": "2"}, {"sys_id": "3"}}
	records := NormalizeAll(raw, time.Now())

	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, raw[i]["sys_id"], r.SysID)
	}
}

func TestRecord_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Record{SysID: "a", ShortDescription: "b", State: "c", Priority: "d", OpenedAt: "e"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sys_id":"a","short_description":"b","state":"c","priority":"d","opened_at":"e"}`, string(data))
}

func TestSnapshot_IsImmutable(t *testing.T) {
	records := []Record{{SysID: "a"}, {SysID: "b"}}
	snap := NewSnapshot(records, time.Now())

	records[0].SysID = "mutated"
	got := snap.Records()
	assert.Equal(t, "a", got[0].SysID)

	got[1].SysID = "mutated"
	assert.Equal(t, "b", snap.Records()[1].SysID)
	assert.Equal(t, 2, snap.Len())

	var nilSnap *Snapshot
	assert.Equal(t, 0, nilSnap.Len())
	assert.NotNil(t, nilSnap.Records())
}
