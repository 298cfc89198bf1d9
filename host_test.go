package surge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostCursorPrimaryHostNaming(t *testing.T) {
	hc := NewHostCursor("", "")
	require.Equal(t, "realtime.surgemsg.io", hc.primaryHost())

	hc = NewHostCursor("sandbox", "")
	require.Equal(t, "sandbox-realtime.surgemsg.io", hc.primaryHost())

	hc = NewHostCursor("", "my.custom.host")
	require.Equal(t, "my.custom.host", hc.primaryHost())
}

func TestHostCursorNeverFallsBackForCustomHost(t *testing.T) {
	hc := NewHostCursor("", "my.custom.host")
	for i := 0; i < 5; i++ {
		require.Equal(t, "my.custom.host", hc.NextHost(StateDisconnected))
	}
}

func TestHostCursorNeverFallsBackForNamedEnvironment(t *testing.T) {
	hc := NewHostCursor("sandbox", "")
	for i := 0; i < 5; i++ {
		require.Equal(t, "sandbox-realtime.surgemsg.io", hc.NextHost(StateDisconnected))
	}
}

func TestHostCursorFallsBackOnlyAfterAPriorRetry(t *testing.T) {
	hc := NewHostCursor("", "")

	// Initial connect, then the first retry: both primary.
	require.Equal(t, "realtime.surgemsg.io", hc.NextHost(StateInitialized))
	require.Equal(t, "realtime.surgemsg.io", hc.NextHost(StateDisconnected))

	// One prior retry has now occurred; the next attempt may fall back.
	host := hc.NextHost(StateDisconnected)
	require.Contains(t, host, "-fallback.surgemsg.io")
}

func TestHostCursorResetsOnConnected(t *testing.T) {
	hc := NewHostCursor("", "")
	hc.NextHost(StateDisconnected)
	require.Contains(t, hc.NextHost(StateDisconnected), "-fallback.surgemsg.io")

	hc.ReportConnected()
	require.Equal(t, "realtime.surgemsg.io", hc.NextHost(StateDisconnected))
}
