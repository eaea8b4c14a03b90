package markers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/markrec/pkg/markers"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
	"github.com/Sumatoshi-tech/markrec/pkg/stream/loopback"
)

func TestParseTimeOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Duration
	}{
		{"5s", 5 * time.Second},
		{"2m", 2 * time.Minute},
		{"1h", time.Hour},
		{"1.5", 1500 * time.Millisecond},
		{" 3 M ", 3 * time.Minute},
		{"", 0},
		{"abc", 0},
		{"-5s", 0},
		{"5d", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, markers.ParseTimeOffset(tt.in))
		})
	}
}

func TestFormatEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 1, 14, 30, 0, 123456000, time.UTC)
	on := true

	assert.Equal(t, "BREAK|Coffee|2025-03-01T14:30:00.123456", markers.FormatEvent("BREAK", "Coffee", at, nil))
	assert.Equal(t, "BREAK|Coffee|2025-03-01T14:30:00.123456|TOGGLE:True", markers.FormatEvent("BREAK", "Coffee", at, &on))
}

func TestStatusMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "RECORDING_STOPPED: a.xdf", markers.StatusMessage(markers.StatusStopped, "a.xdf"))
}

func TestPublisher_PublishesOnOwnOutlets(t *testing.T) {
	t.Parallel()

	network := loopback.NewNetwork()
	pub := markers.NewPublisher(network, nil)

	descs, err := network.ResolveAll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, stream.Key(markers.EventBoardName, markers.EventBoardOrigin), descs[0].Key)
	assert.Equal(t, stream.Key(markers.TextLoggerName, markers.TextLoggerOrigin), descs[1].Key)

	boardIn, err := network.Open(descs[0])
	require.NoError(t, err)

	textIn, err := network.Open(descs[1])
	require.NoError(t, err)

	require.NoError(t, pub.Log("hello world"))

	got, err := textIn.Pull(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Message())

	msg, err := pub.Toggle("TASK", "Reading", false, 0)
	require.NoError(t, err)
	assert.Contains(t, msg, "TASK_END|Reading|")
	assert.Contains(t, msg, "|TOGGLE:False")

	got, err = boardIn.Pull(time.Second)
	require.NoError(t, err)
	assert.Equal(t, msg, got.Message())

	require.NoError(t, pub.Close())
	require.ErrorIs(t, pub.Log("after close"), markers.ErrOutletUnavailable)

	_, err = pub.Event("X", "x", 0)
	require.ErrorIs(t, err, markers.ErrOutletUnavailable)
}

func TestPublisher_DuplicateOutlet(t *testing.T) {
	t.Parallel()

	network := loopback.NewNetwork()

	_, err := network.NewOutlet(markers.TextLoggerName, stream.KindMarkers, markers.TextLoggerOrigin, 1, 0)
	require.NoError(t, err)

	pub := markers.NewPublisher(network, nil)

	require.ErrorIs(t, pub.Log("x"), markers.ErrOutletUnavailable)

	_, err = pub.Event("E", "e", time.Second)
	require.NoError(t, err)
}
