package heartbeat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	ts, ok := parseTimestamp("current_leader=node-1:1700000000")
	require.True(t, ok)
	require.Equal(t, int64(1700000000), ts)
}

func TestParseTimestampRejectsMalformedValues(t *testing.T) {
	_, ok := parseTimestamp("no-colon-here")
	require.False(t, ok)

	_, ok = parseTimestamp("current_leader=node-1:not-a-number")
	require.False(t, ok)
}
