package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/relaydeck/upstream"
)

func TestParseEvent_FullPayload(t *testing.T) {
	ev := ParseEvent([]byte(`{
		"automationId": "a1",
		"executionId": "x1",
		"progress": 55,
		"status": "running",
		"message": "Processing 11 of 20",
		"current": 11,
		"total": 20
	}`))

	assert.Equal(t, "a1", ev.PrimaryID)
	assert.Equal(t, "x1", ev.SecondaryID)
	require.NotNil(t, ev.Progress)
	assert.InDelta(t, 55.0, *ev.Progress, 0.001)
	require.NotNil(t, ev.Status)
	assert.Equal(t, upstream.JobRunning, *ev.Status)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "Processing 11 of 20", *ev.Message)
	require.NotNil(t, ev.Current)
	assert.Equal(t, 11, *ev.Current)
	require.NotNil(t, ev.Total)
	assert.Equal(t, 20, *ev.Total)
	assert.True(t, ev.Valid())
}

func TestParseEvent_IDAliases(t *testing.T) {
	tests := []struct {
		in            string
		wantPrimary   string
		wantSecondary string
	}{
		{`{"primaryId":"a1","secondaryId":"x1"}`, "a1", "x1"},
		{`{"id":"a1","jobId":"x1"}`, "a1", "x1"},
		{`{"automationId":"a1","id":"ignored"}`, "a1", ""},
		{`{"id":42}`, "42", ""},
		{`{"automationId":"  ","id":"a1"}`, "a1", ""},
	}

	for _, tt := range tests {
		ev := ParseEvent([]byte(tt.in))
		assert.Equal(t, tt.wantPrimary, ev.PrimaryID, tt.in)
		assert.Equal(t, tt.wantSecondary, ev.SecondaryID, tt.in)
	}
}

func TestParseEvent_AbsentFieldsStayNil(t *testing.T) {
	ev := ParseEvent([]byte(`{"automationId":"a1"}`))

	assert.Nil(t, ev.Progress)
	assert.Nil(t, ev.Status)
	assert.Nil(t, ev.Message)
	assert.Nil(t, ev.Current)
	assert.Nil(t, ev.Total)
}

func TestParseEvent_WrongTypesTreatedAsAbsent(t *testing.T) {
	ev := ParseEvent([]byte(`{"automationId":"a1","progress":"lots","status":3,"message":null,"current":{},"total":"NaN"}`))

	assert.Nil(t, ev.Progress)
	assert.Nil(t, ev.Status)
	assert.Nil(t, ev.Message)
	assert.Nil(t, ev.Current)
	assert.Nil(t, ev.Total)
}

func TestParseEvent_NumericStringsAndClamp(t *testing.T) {
	ev := ParseEvent([]byte(`{"automationId":"a1","progress":"140","current":"3"}`))

	require.NotNil(t, ev.Progress)
	assert.InDelta(t, 100.0, *ev.Progress, 0.001)
	require.NotNil(t, ev.Current)
	assert.Equal(t, 3, *ev.Current)

	ev = ParseEvent([]byte(`{"automationId":"a1","progress":-5}`))
	require.NotNil(t, ev.Progress)
	assert.InDelta(t, 0.0, *ev.Progress, 0.001)
}

func TestParseEvent_StatusNormalised(t *testing.T) {
	ev := ParseEvent([]byte(`{"automationId":"a1","status":"Completed"}`))
	require.NotNil(t, ev.Status)
	assert.Equal(t, upstream.JobCompleted, *ev.Status)
}

func TestParseEvent_EmptyMessageIsPresent(t *testing.T) {
	ev := ParseEvent([]byte(`{"automationId":"a1","message":""}`))
	require.NotNil(t, ev.Message)
	assert.Empty(t, *ev.Message)
}

func TestParseEvent_Malformed(t *testing.T) {
	for _, in := range []string{``, `not json`, `[1,2]`, `"a1"`, `{"progress":10}`} {
		ev := ParseEvent([]byte(in))
		assert.False(t, ev.Valid(), in)
	}
}
