package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// LongTestSuite provides base functionality for long-running pool tests
// such as stress runs. Embed it in a suite and run with suite.Run.
type LongTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *LongTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()
	s.T().Logf("suite started")
}

// TearDownSuite runs after all tests in the suite
func (s *LongTestSuite) TearDownSuite() {
	s.cancel()
	s.T().Logf("suite completed in %v", time.Since(s.startTime))
}

// Context returns the suite context
func (s *LongTestSuite) Context() context.Context {
	return s.ctx
}

// LongTest skips the calling test in short mode.
func LongTest(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping long-running test in short mode")
	}
}

// ScaledDuration returns d, or d/10 (at least 10ms) in short mode.
func ScaledDuration(d time.Duration) time.Duration {
	if !testing.Short() {
		return d
	}
	if d /= 10; d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}
