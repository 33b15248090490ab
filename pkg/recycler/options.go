package recycler

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/ajitpratap0/recycler/pkg/errors"
)

const (
	// DefaultMaxCapacityPerWorker bounds each worker's stack.
	DefaultMaxCapacityPerWorker = 4096
	// DefaultLinkCapacity is the number of handles per weak order queue link.
	DefaultLinkCapacity = 16
	// DefaultMaxSharedCapacityFactor divides the stack capacity to get the
	// budget shared by all queues feeding one stack.
	DefaultMaxSharedCapacityFactor = 2

	// initialCapacity is the starting size of a stack's local array; it grows
	// on demand up to the configured maximum.
	initialCapacity = 256
)

// DefaultMaxQueuesPerStack is the default cap on donor queues per stack.
var DefaultMaxQueuesPerStack = 2 * runtime.NumCPU()

type options struct {
	name                 string
	maxCapacity          int
	linkCapacity         int
	sharedCapacityFactor int
	maxQueuesPerStack    int
	logger               *zap.Logger
}

func defaultOptions() options {
	return options{
		name:                 "recycler",
		maxCapacity:          DefaultMaxCapacityPerWorker,
		linkCapacity:         DefaultLinkCapacity,
		sharedCapacityFactor: DefaultMaxSharedCapacityFactor,
		maxQueuesPerStack:    DefaultMaxQueuesPerStack,
	}
}

// Option configures a Recycler.
type Option func(*options)

// WithName names the recycler in logs, errors and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithMaxCapacityPerWorker sets how many idle objects one worker's stack
// may hold. Zero disables pooling: Get always constructs and Recycle only
// validates.
func WithMaxCapacityPerWorker(n int) Option {
	return func(o *options) {
		o.maxCapacity = n
	}
}

// WithLinkCapacity sets the size of weak order queue links. It is rounded up
// to a power of two.
func WithLinkCapacity(n int) Option {
	return func(o *options) {
		o.linkCapacity = n
	}
}

// WithMaxSharedCapacityFactor sets the divisor applied to the per-worker
// capacity to size the budget all donor queues of one stack share. The
// budget is never smaller than one link.
func WithMaxSharedCapacityFactor(n int) Option {
	return func(o *options) {
		o.sharedCapacityFactor = n
	}
}

// WithMaxQueuesPerStack caps how many distinct donor workers a stack accepts
// returns from. Zero means no cap.
func WithMaxQueuesPerStack(n int) Option {
	return func(o *options) {
		o.maxQueuesPerStack = n
	}
}

// WithLogger sets the logger used for diagnostics off the fast path.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func (o *options) validate() error {
	if o.maxCapacity < 0 {
		return errors.New(errors.ErrorTypeConfig, "max capacity per worker cannot be negative").
			WithDetail("max_capacity", o.maxCapacity)
	}
	if o.linkCapacity <= 0 {
		return errors.New(errors.ErrorTypeConfig, "link capacity must be positive").
			WithDetail("link_capacity", o.linkCapacity)
	}
	if o.linkCapacity > 1<<20 {
		return errors.New(errors.ErrorTypeConfig, "link capacity too large").
			WithDetail("link_capacity", o.linkCapacity)
	}
	if o.sharedCapacityFactor <= 0 {
		return errors.New(errors.ErrorTypeConfig, "shared capacity factor must be positive").
			WithDetail("shared_capacity_factor", o.sharedCapacityFactor)
	}
	if o.maxQueuesPerStack < 0 {
		return errors.New(errors.ErrorTypeConfig, "max queues per stack cannot be negative").
			WithDetail("max_queues_per_stack", o.maxQueuesPerStack)
	}
	return nil
}

// nextPowerOfTwo rounds n (> 0) up to a power of two.
func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
