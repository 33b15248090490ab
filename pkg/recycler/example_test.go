package recycler_test

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/recycler/pkg/recycler"
)

type frame struct {
	handle *recycler.Handle[*frame]
	data   []byte
}

func Example() {
	frames := recycler.MustNew(func(h *recycler.Handle[*frame]) *frame {
		return &frame{handle: h, data: make([]byte, 0, 1500)}
	}, recycler.WithName("frames"), recycler.WithLogger(zap.NewNop()))

	w := recycler.NewWorker("reader")
	defer w.Exit()

	f := frames.Get(w)
	f.data = append(f.data, "hello"...)

	f.data = f.data[:0]
	_ = f.handle.Recycle(w)

	again := frames.Get(w)
	fmt.Println(again == f)

	stats := frames.Stats()
	fmt.Println(stats.Gets, stats.Hits, stats.Allocations)
	// Output:
	// true
	// 2 1 1
}

func ExampleRecycler_Recycle_crossWorker() {
	frames := recycler.MustNew(func(h *recycler.Handle[*frame]) *frame {
		return &frame{handle: h}
	}, recycler.WithLogger(zap.NewNop()))

	owner := recycler.NewWorker("owner")
	defer owner.Exit()

	f := frames.Get(owner)

	done := make(chan struct{})
	go func() {
		defer close(done)
		other := recycler.NewWorker("other")
		defer other.Exit()
		_ = frames.Recycle(other, f, f.handle)
	}()
	<-done

	// The owner gets the object back once it has drained its queues.
	fmt.Println(frames.Queued(owner), frames.Get(owner) == f)
	// Output: 1 true
}

func ExampleRecycler_Recycle_twice() {
	frames := recycler.MustNew(func(h *recycler.Handle[*frame]) *frame {
		return &frame{handle: h}
	}, recycler.WithLogger(zap.NewNop()))

	w := recycler.NewWorker("main")
	defer w.Exit()

	f := frames.Get(w)
	fmt.Println(f.handle.Recycle(w))

	err := f.handle.Recycle(w)
	fmt.Println(errors.Is(err, recycler.ErrRecycledAlready))
	// Output:
	// <nil>
	// true
}
