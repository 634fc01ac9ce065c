package capture

import (
	"context"
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestNothingRequestedOpensNothing(t *testing.T) {
	c := NewCapturer(mediadevices.NewCodecSelector(), DefaultOptions())
	tracks, err := c.GetUserMedia(context.Background(), core.Constraints{})
	require.NoError(t, err)
	require.Empty(t, tracks)
}

func TestCancelledContextStopsCapture(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCapturer(mediadevices.NewCodecSelector(), DefaultOptions())
	_, err := c.GetUserMedia(ctx, core.Constraints{Audio: true})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAPICreatesPeerConnections(t *testing.T) {
	api := NewAPI(mediadevices.NewCodecSelector())
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	require.NoError(t, pc.Close())
}
