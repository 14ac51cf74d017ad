package dispatcher

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHandleClientPayloadWithNoTargetLogsAndReturns(t *testing.T) {
	e, err := New("127.0.0.1:0")
	require.NoError(t, err)
	defer e.Close()

	// No coordinator/follower registered yet: handleClientPayload must not
	// block waiting for a reply that will never come.
	e.handleClientPayload("hello", nil)
	require.Equal(t, "", e.routes.ChooseNextTarget())
}

func TestRelayReplyWithNoPendingClientIsANoop(t *testing.T) {
	e, err := New("127.0.0.1:0")
	require.NoError(t, err)
	defer e.Close()

	e.relayReply("some reply")
}

func TestRequestIDFromReply(t *testing.T) {
	want := uuid.New()
	reply := "Request ID: " + want.String() + "\nOriginal Message: hi\nAcknowledgments Received: 2\n"

	got, ok := requestIDFromReply(reply)
	require.True(t, ok)
	require.Equal(t, want, got)

	_, ok = requestIDFromReply("Not enough acknowledgments to proceed (Received: 1, Majority: 2).")
	require.False(t, ok)
}

func TestCorrelatedDispatcherRelayUnknownRequestIsDropped(t *testing.T) {
	e, err := NewCorrelated("127.0.0.1:0")
	require.NoError(t, err)
	defer e.Close()

	// No entry was ever recorded for this id: relay must not panic or block.
	e.relay(uuid.New(), "reply")
}

func TestCorrelatedDispatcherForwardWithNoTargetRecordsNothing(t *testing.T) {
	e, err := NewCorrelated("127.0.0.1:0")
	require.NoError(t, err)
	defer e.Close()

	// No target registered: forward should log and return without blocking.
	e.forward("hello", nil)
	require.Empty(t, e.pending)
}
