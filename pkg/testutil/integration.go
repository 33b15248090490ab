package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// IntegrationTestSuite gives suites that drive the CLI or a bench run end to
// end a shared temp directory, a suite-wide deadline and workers that exit
// with the test that created them.
type IntegrationTestSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	dir     string
	started time.Time
	workers []*recycler.Worker
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.started = time.Now()
	s.dir = s.T().TempDir()
}

// TearDownTest exits every worker created through NewWorker during the test.
func (s *IntegrationTestSuite) TearDownTest() {
	for _, w := range s.workers {
		w.Exit()
	}
	s.workers = s.workers[:0]
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	s.T().Logf("suite finished in %v", time.Since(s.started))
}

// Context is cancelled when the suite ends or after five minutes.
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// TempDir is removed when the suite ends.
func (s *IntegrationTestSuite) TempDir() string {
	return s.dir
}

// CreateTempFile writes content to name inside TempDir and returns its path.
func (s *IntegrationTestSuite) CreateTempFile(name string, content []byte) string {
	path := filepath.Join(s.dir, name)
	require.NoError(s.T(), os.WriteFile(path, content, 0o644))
	return path
}

// NewWorker registers a worker that exits when the current test ends.
func (s *IntegrationTestSuite) NewWorker(name string) *recycler.Worker {
	w := recycler.NewWorker(name)
	s.workers = append(s.workers, w)
	return w
}

// SkipIfShort skips slow tests under go test -short.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
}

// AllocationCheck runs a recycling loop and fails the test when it makes
// more heap allocations per cycle than allowed, or runs slower than the
// throughput floor.
type AllocationCheck struct {
	t             *testing.T
	name          string
	maxPerCycle   float64
	minThroughput float64
}

// NewAllocationCheck creates a check that allows no allocations by default.
func NewAllocationCheck(t *testing.T, name string) *AllocationCheck {
	return &AllocationCheck{t: t, name: name}
}

// AllowPerCycle sets the mean number of heap allocations allowed per cycle.
func (c *AllocationCheck) AllowPerCycle(n float64) *AllocationCheck {
	c.maxPerCycle = n
	return c
}

// MinThroughput sets the slowest acceptable rate in cycles per second.
func (c *AllocationCheck) MinThroughput(cyclesPerSec float64) *AllocationCheck {
	c.minThroughput = cyclesPerSec
	return c
}

// Run executes fn, which reports the number of cycles it completed, and
// checks the configured limits.
func (c *AllocationCheck) Run(fn func() (cycles int64)) {
	c.t.Helper()

	runtime.GC()
	before := readMem()
	start := time.Now()
	cycles := fn()
	elapsed := time.Since(start)
	after := readMem()

	require.Positive(c.t, cycles, "%s completed no cycles", c.name)
	mallocs := after.Mallocs - before.Mallocs
	perCycle := float64(mallocs) / float64(cycles)
	throughput := float64(cycles) / elapsed.Seconds()

	c.t.Logf("%s: %d cycles in %v (%.0f/s), %d mallocs (%.4f per cycle), heap %s",
		c.name, cycles, elapsed, throughput, mallocs, perCycle,
		formatBytes(int64(after.HeapAlloc)-int64(before.HeapAlloc)))

	if perCycle > c.maxPerCycle {
		c.t.Errorf("%s: %.4f allocations per cycle, limit %.4f", c.name, perCycle, c.maxPerCycle)
	}
	if c.minThroughput > 0 && throughput < c.minThroughput {
		c.t.Errorf("%s: %.0f cycles/sec below floor %.0f", c.name, throughput, c.minThroughput)
	}
}

func readMem() runtime.MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m
}

func formatBytes(n int64) string {
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%s%d B", sign, n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f %cB", sign, float64(n)/float64(div), "KMGTPE"[exp])
}
