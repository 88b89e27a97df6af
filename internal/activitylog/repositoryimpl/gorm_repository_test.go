package repositoryimpl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/prism/internal/activitylog"
)

func TestDetails_ValueScan(t *testing.T) {
	d := Details{"status": "DONE", "ignored": true, "git": map[string]any{"branch": "feat/x"}}
	v, err := d.Value()
	require.NoError(t, err)
	raw, ok := v.([]byte)
	require.True(t, ok, "jsonb is written as bytes")

	var fromBytes Details
	require.NoError(t, fromBytes.Scan(raw))
	assert.Equal(t, d, fromBytes)

	var fromString Details
	require.NoError(t, fromString.Scan(string(raw)))
	assert.Equal(t, d, fromString)
}

func TestDetails_Nil(t *testing.T) {
	v, err := Details(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	d := Details{"stale": "x"}
	require.NoError(t, d.Scan(nil))
	assert.Nil(t, d)
}

func TestDetails_ScanRejectsOtherTypes(t *testing.T) {
	var d Details
	assert.Error(t, d.Scan(42))
	assert.Error(t, d.Scan([]byte("not json")))
}

func TestActivityModel_RoundTrip(t *testing.T) {
	e := activitylog.NewEntry("T1", activitylog.ActionCommitApproved, map[string]any{"by": "user-1"},
		time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)).ByAgent("agent-1")
	assert.Equal(t, e, NewActivityModel(e).ToEntry())
}
