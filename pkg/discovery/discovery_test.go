package discovery_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/markrec/pkg/discovery"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
	"github.com/Sumatoshi-tech/markrec/pkg/stream/loopback"
)

const waitFor = 2 * time.Second

func desc(name, origin string) stream.SourceDescriptor {
	return stream.NewDescriptor(name, stream.KindMarkers, origin, 1, stream.IrregularRate)
}

func fastConfig() discovery.Config {
	return discovery.Config{
		Timeout:     10 * time.Millisecond,
		BackoffBase: time.Millisecond,
		BackoffMax:  4 * time.Millisecond,
		MaxFailures: 3,
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	a := discovery.NewCatalog([]stream.SourceDescriptor{desc("A", "1"), desc("B", "2")})
	b := discovery.NewCatalog([]stream.SourceDescriptor{desc("B", "2"), desc("C", "3")})

	change := discovery.Diff(a, b)

	require.Len(t, change.Added, 1)
	assert.Equal(t, "C_3", change.Added[0].Key)
	require.Len(t, change.Removed, 1)
	assert.Equal(t, "A_1", change.Removed[0].Key)
	assert.Equal(t, stream.StatusDisconnected, change.Removed[0].Status)
	assert.Equal(t, []string{"A_1"}, change.RemovedKeys())
	assert.True(t, change.Changed())

	same := discovery.Diff(b, b)
	assert.False(t, same.Changed())
}

func TestCatalog_IsACopy(t *testing.T) {
	t.Parallel()

	catalog := discovery.NewCatalog([]stream.SourceDescriptor{desc("B", "2"), desc("A", "1")})

	keys := catalog.Keys()
	assert.Equal(t, []string{"A_1", "B_2"}, keys)

	keys[0] = "mutated"
	assert.Equal(t, []string{"A_1", "B_2"}, catalog.Keys())

	got, ok := catalog.Get("B_2")
	require.True(t, ok)
	assert.Equal(t, "B", got.Name)
	assert.Equal(t, 2, catalog.Len())
	assert.Len(t, catalog.Descriptors(), 2)
}

func TestConfig_Backoff(t *testing.T) {
	t.Parallel()

	cfg := discovery.DefaultConfig()

	assert.Equal(t, 2*time.Second, cfg.Backoff(1))
	assert.Equal(t, 4*time.Second, cfg.Backoff(2))
	assert.Equal(t, 16*time.Second, cfg.Backoff(4))
	assert.Equal(t, 30*time.Second, cfg.Backoff(5))
	assert.Equal(t, 30*time.Second, cfg.Backoff(50))
}

func TestService_DiscoverOnce(t *testing.T) {
	t.Parallel()

	network := loopback.NewNetwork()
	svc := discovery.New(network, fastConfig())

	var notified []discovery.Change

	svc.Subscribe(func(c discovery.Change) { notified = append(notified, c) })

	out, err := network.CreateOutlet("A", stream.KindMarkers, "1", 1, 0)
	require.NoError(t, err)

	change, err := svc.DiscoverOnce(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, change.Added, 1)
	assert.Equal(t, 1, svc.Catalog().Len())

	require.NoError(t, out.Close())

	change, err = svc.DiscoverOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A_1"}, change.RemovedKeys())
	assert.Equal(t, 0, svc.Catalog().Len())
	assert.Len(t, notified, 2)

	_, err = svc.DiscoverOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, notified, 2, "unchanged polls do not notify")
}

func TestService_DiscoverOnceFailure(t *testing.T) {
	t.Parallel()

	network := loopback.NewNetwork()
	network.FailNext(1)

	var polled []error

	svc := discovery.New(network, fastConfig(), discovery.WithPollHook(func(_ context.Context, err error) {
		polled = append(polled, err)
	}))

	_, err := svc.DiscoverOnce(context.Background(), 0)
	require.ErrorIs(t, err, discovery.ErrDiscovery)
	require.ErrorIs(t, err, loopback.ErrResolveFailed)
	require.Len(t, polled, 1)
	require.Error(t, polled[0])
}

func TestService_ContinuousReportsChanges(t *testing.T) {
	t.Parallel()

	network := loopback.NewNetwork()
	svc := discovery.New(network, fastConfig())

	changes := make(chan discovery.Change, 8)

	require.NoError(t, svc.StartContinuous(context.Background(), 5*time.Millisecond, func(c discovery.Change) {
		changes <- c
	}))
	t.Cleanup(svc.Stop)

	require.ErrorIs(t, svc.StartContinuous(context.Background(), time.Millisecond, nil), discovery.ErrAlreadyRunning)

	_, err := network.CreateOutlet("A", stream.KindMarkers, "1", 1, 0)
	require.NoError(t, err)

	select {
	case change := <-changes:
		require.Len(t, change.Added, 1)
		assert.Equal(t, "A_1", change.Added[0].Key)
	case <-time.After(waitFor):
		t.Fatal("no change reported")
	}

	assert.True(t, svc.Running())
	svc.Stop()
	assert.False(t, svc.Running())
}

func TestService_DegradesAfterMaxFailures(t *testing.T) {
	t.Parallel()

	network := loopback.NewNetwork()
	network.FailNext(100)

	var (
		mu       sync.Mutex
		degraded []error
	)

	svc := discovery.New(network, fastConfig(), discovery.WithDegradedHandler(func(err error) {
		mu.Lock()
		defer mu.Unlock()

		degraded = append(degraded, err)
	}))

	require.NoError(t, svc.StartContinuous(context.Background(), time.Millisecond, nil))

	require.Eventually(t, svc.Degraded, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return !svc.Running() }, waitFor, time.Millisecond)

	mu.Lock()
	require.Len(t, degraded, 1)
	require.ErrorIs(t, degraded[0], discovery.ErrDegraded)
	mu.Unlock()

	network.FailNext(0)

	_, err := svc.DiscoverOnce(context.Background(), 0)
	require.NoError(t, err, "one-shot discovery works while continuous mode is degraded")

	require.NoError(t, svc.StartContinuous(context.Background(), time.Millisecond, nil), "restart after degrade")
	assert.False(t, svc.Degraded())
	svc.Stop()
}
