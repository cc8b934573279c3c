package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoOp(t *testing.T) {
	var c *Collector
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.FrameReceived()
	c.FrameDropped()
	c.BroadcastAttempted(3)
}

func TestCountersAppearInScrape(t *testing.T) {
	c := New()
	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.FrameReceived()
	c.FrameDropped()
	c.BroadcastAttempted(5)
	c.BroadcastAttempted(0) // no-op

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	out := string(body)
	require.Contains(t, out, "minirc_connections_total 2")
	require.Contains(t, out, "minirc_connections_active 1")
	require.Contains(t, out, "minirc_frames_received_total 1")
	require.Contains(t, out, "minirc_frames_dropped_total 1")
	require.Contains(t, out, "minirc_messages_broadcast_total 5")
}
