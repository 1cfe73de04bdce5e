package upstream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		in     string
		wantOK bool
	}{
		{"epoch millis number", `1709649000000`, true},
		{"epoch seconds number", `1709649000`, true},
		{"epoch millis string", `"1709649000000"`, true},
		{"rfc3339", `"2024-03-05T14:30:00Z"`, true},
		{"rfc3339 offset", `"2024-03-05T16:30:00+02:00"`, true},
		{"naive with T", `"2024-03-05T14:30:00"`, true},
		{"naive with space", `"2024-03-05 14:30:00"`, true},
		{"zero", `0`, false},
		{"negative", `-5`, false},
		{"empty string", `""`, false},
		{"garbage", `"yesterday"`, false},
		{"null", `null`, false},
		{"object", `{"t":1}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(gjson.Parse(tt.in))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, want.Equal(got), "got %s", got)
			} else {
				assert.True(t, got.IsZero())
			}
		})
	}
}

func TestFirstTimestamp_FirstNonZeroWins(t *testing.T) {
	doc := gjson.Parse(`{"createdAt":0,"timestamp":"bad","sentAt":1709649000000,"deliveredAt":1709650000000}`)

	got, ok := FirstTimestamp(doc, "createdAt", "timestamp", "sentAt", "deliveredAt")
	require.True(t, ok)
	assert.Equal(t, int64(1709649000000), got.UnixMilli())

	_, ok = FirstTimestamp(doc, "missing", "createdAt")
	assert.False(t, ok)
}

func TestTimestamp_JSON(t *testing.T) {
	var a Automation
	err := json.Unmarshal([]byte(`{"id":"a1","status":"running","createdAt":1709649000000,"lastRunAt":"nope"}`), &a)
	require.NoError(t, err)

	assert.Equal(t, int64(1709649000000), a.CreatedAt.UnixMilli())
	assert.True(t, a.LastRunAt.IsZero())
	assert.True(t, a.NextRunAt.IsZero())

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"createdAt":"2024-03-05T14:30:00Z"`)
	assert.Contains(t, string(out), `"lastRunAt":null`)
}

func TestTimestamp_YAML(t *testing.T) {
	a := Automation{
		ID:        "a1",
		Status:    JobRunning,
		CreatedAt: Timestamp{time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)},
	}

	out, err := yaml.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(out), "created_at:")
	assert.Contains(t, string(out), "2024-03-05T14:30:00Z")
	assert.NotContains(t, string(out), "last_run_at")
}
