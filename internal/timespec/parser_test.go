package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAt(t *testing.T) {
	now := time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		spec    string
		want    time.Time
		wantErr string
	}{
		{spec: "1h", want: now.Add(-time.Hour)},
		{spec: "1h30m", want: now.Add(-90 * time.Minute)},
		{spec: "7d", want: now.AddDate(0, 0, -7)},
		{spec: "0d", want: now},
		{spec: "2025-10-29T13:00:00Z", want: time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)},
		{spec: "", wantErr: "empty time specification"},
		{spec: "-1h", wantErr: "negative duration"},
		{spec: "yesterday", wantErr: "invalid time specification"},
		{spec: "xd", wantErr: "invalid time specification"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseAt(tt.spec, now)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.UnixMilli(), got)
		})
	}
}

func TestParseRange(t *testing.T) {
	now := time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)

	since, until, err := ParseRange("2h", "1h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour).UnixMilli(), since)
	assert.Equal(t, now.Add(-time.Hour).UnixMilli(), until)

	since, until, err = ParseRange("", "", now)
	require.NoError(t, err)
	assert.Zero(t, since)
	assert.Zero(t, until)

	_, _, err = ParseRange("1h", "2h", now)
	assert.ErrorContains(t, err, "--since must be before --until")

	_, _, err = ParseRange("bogus", "", now)
	assert.ErrorContains(t, err, "invalid --since")

	_, _, err = ParseRange("", "bogus", now)
	assert.ErrorContains(t, err, "invalid --until")
}
