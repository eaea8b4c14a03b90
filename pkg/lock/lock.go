// Package lock keeps a single markrec instance per host by holding a
// localhost TCP port.
package lock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// DefaultPort is the port held by a running instance.
const DefaultPort = 13379

const loopbackHost = "127.0.0.1"

// ErrAlreadyRunning indicates another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Locker guards single-instance execution.
type Locker interface {
	// Acquire takes the lock or fails with ErrAlreadyRunning.
	Acquire(ctx context.Context) error
	// Release gives the lock back. Releasing an unheld lock is a no-op.
	Release() error
}

// PortLock is a Locker backed by a listening socket.
type PortLock struct {
	addr string

	mu       sync.Mutex
	listener net.Listener
}

// NewPortLock creates a lock on 127.0.0.1:port. Zero selects DefaultPort.
func NewPortLock(port int) *PortLock {
	if port == 0 {
		port = DefaultPort
	}

	return &PortLock{addr: net.JoinHostPort(loopbackHost, strconv.Itoa(port))}
}

// Addr returns the address the lock binds.
func (l *PortLock) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listener != nil {
		return l.listener.Addr().String()
	}

	return l.addr
}

// Acquire implements Locker.
func (l *PortLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listener != nil {
		return nil
	}

	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAlreadyRunning, l.addr, err)
	}

	l.listener = listener

	return nil
}

// Release implements Locker.
func (l *PortLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listener == nil {
		return nil
	}

	err := l.listener.Close()
	l.listener = nil

	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	return nil
}
