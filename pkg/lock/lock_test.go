package lock_test

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/markrec/pkg/lock"
)

func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	_, portText, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	require.NoError(t, listener.Close())

	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	return port
}

func TestPortLock_SecondInstanceRefused(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	first := lock.NewPortLock(port)
	second := lock.NewPortLock(port)

	require.NoError(t, first.Acquire(context.Background()))
	require.NoError(t, first.Acquire(context.Background()))

	err := second.Acquire(context.Background())
	require.ErrorIs(t, err, lock.ErrAlreadyRunning)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	require.NoError(t, second.Acquire(context.Background()))
	require.NoError(t, second.Release())
}

func TestNewPortLock_DefaultPort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "127.0.0.1:13379", lock.NewPortLock(0).Addr())
}
