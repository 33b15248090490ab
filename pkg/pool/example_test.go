// Package pool provides example usage of the pooled message and buffer types.
package pool_test

import (
	"fmt"

	"github.com/ajitpratap0/recycler/pkg/pool"
	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// Example demonstrates borrowing a message and releasing it after use.
func Example() {
	w := recycler.NewWorker("handler")
	defer w.Exit()

	msg := pool.NewMessage(w, "users", "lookup", []byte(`{"id":42}`))
	msg.SetMetadata("trace", "abc")

	fmt.Printf("%s.%s %s\n", msg.Directory, msg.Method, msg.Payload)

	if err := msg.Release(w); err != nil {
		fmt.Println("release failed:", err)
	}

	// Output:
	// users.lookup {"id":42}
}

// ExampleBufferPool_Get shows how requests map onto size buckets.
func ExampleBufferPool_Get() {
	w := recycler.NewWorker("reader")
	defer w.Exit()

	buf := pool.Buffers.Get(w, 2048)
	defer buf.Release(w)

	fmt.Println(len(buf.Value), cap(buf.Value))

	// Output:
	// 2048 4096
}

// ExampleNew demonstrates a custom typed pool.
func ExampleNew() {
	w := recycler.NewWorker("main")
	defer w.Exit()

	lines := pool.MustNew("lines",
		func() []string { return make([]string, 0, 16) },
		func(s *[]string) { *s = (*s)[:0] },
	)

	item := lines.Get(w)
	item.Value = append(item.Value, "a", "b")
	_ = item.Release(w)

	again := lines.Get(w)
	fmt.Println(again == item, len(again.Value), cap(again.Value))

	// Output:
	// true 0 16
}
