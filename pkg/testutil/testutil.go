// Package testutil provides workers, loggers and suites shared by the
// recycler package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// TestLogger returns a logger writing to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// AssertEventually polls condition every 10ms and fails the test if it is
// still false after timeout.
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

// Worker registers a worker that exits when the test completes.
func Worker(t *testing.T, name string) *recycler.Worker {
	t.Helper()
	w := recycler.NewWorker(name)
	t.Cleanup(w.Exit)
	return w
}

// RunWorkers starts n workers, each on its own goroutine, and waits for all
// of them. Every worker exits after fn returns. A panic in fn is re-raised
// on the calling goroutine.
func RunWorkers(t *testing.T, n int, fn func(i int, w *recycler.Worker)) {
	t.Helper()

	var wg conc.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		w := recycler.NewWorker(fmt.Sprintf("%s-%d", t.Name(), i))
		wg.Go(func() {
			defer w.Exit()
			fn(i, w)
		})
	}
	wg.Wait()
}
