package statusfeed_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/markrec/pkg/statusfeed"
)

func TestFeed_RecentIsBounded(t *testing.T) {
	t.Parallel()

	feed := statusfeed.New(3)

	for i := range 5 {
		feed.Info("line " + strconv.Itoa(i))
	}

	recent := feed.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "line 2", recent[0].Message)
	assert.Equal(t, "line 4", recent[2].Message)

	last := feed.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, "line 4", last[0].Message)
}

func TestFeed_SubscribeReceivesNewLines(t *testing.T) {
	t.Parallel()

	feed := statusfeed.New(0)
	feed.Info("before")

	lines, cancel := feed.Subscribe()
	defer cancel()

	feed.Warn("degraded")

	line := <-lines
	assert.Equal(t, statusfeed.LevelWarn, line.Level)
	assert.Equal(t, "degraded", line.Message)
}

func TestFeed_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	feed := statusfeed.New(0)

	_, cancel := feed.Subscribe()

	for range 100 {
		feed.Error("x")
	}

	assert.Positive(t, feed.Dropped())

	cancel()
	cancel()

	feed.Info("after cancel")
	assert.Len(t, feed.Recent(0), 101)
}
