// Package testutil provides testing utilities for slotpool
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// ObservedLogger returns a logger that records entries at level and above
// so tests can assert on what was logged.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// TestContext creates a test context with a 30-second timeout.
// The cancel function is registered with t.Cleanup and also returned.
func TestContext(t *testing.T) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx, cancel
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// RequireNoError fails the test immediately if err is not nil.
// The msg parameter provides additional context in the failure message.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// NewPool creates an initialized pool whose log output goes to the test and
// registers Term with t.Cleanup.
func NewPool[T any](t *testing.T, capacity uint32, opts ...pool.Option) *pool.Pool[T] {
	t.Helper()
	opts = append([]pool.Option{pool.WithName(t.Name()), pool.WithLogger(TestLogger(t))}, opts...)
	p, err := pool.NewWithCapacity[T](capacity, opts...)
	RequireNoError(t, err, "init pool")
	t.Cleanup(p.Term)
	return p
}

// RequireConsistent fails the test if the pool's structural invariants do
// not hold or its counters disagree with each other.
func RequireConsistent[T any](t *testing.T, p *pool.Pool[T]) {
	t.Helper()
	RequireNoError(t, p.Validate(), "validate pool")

	s := p.Stats()
	if s.Used+s.Available != s.Capacity {
		t.Fatalf("used %d + available %d != capacity %d", s.Used, s.Available, s.Capacity)
	}
	if s.Allocations-s.Deallocations != uint64(s.Used) {
		t.Fatalf("allocations %d - deallocations %d != used %d", s.Allocations, s.Deallocations, s.Used)
	}
}
