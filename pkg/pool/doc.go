// Package pool provides typed pooled objects built on the per-worker
// recycler. Where the recycler hands out raw objects that must carry their own
// handle, this package wraps values so any type can be pooled, and ships
// ready-made pools for request/response messages and byte buffers.
//
// Example usage:
//
//	w := recycler.NewWorker("handler")
//	defer w.Exit()
//
//	msg := pool.GetMessage(w)
//	defer msg.Release(w)
//
//	msg.Directory = "users"
//	msg.Method = "lookup"
//	msg.Payload = append(msg.Payload, body...)
//
// Architecture
//
// Every pool in this package is a thin typed layer over one
// recycler.Recycler. Borrowing and returning on the same worker never
// synchronizes; a value released by another worker travels back to its
// owner through the recycler's weak order queues.
//
// Core Types:
//
//   - Pool[T] and Item[T]: pooling for any value type
//   - Message: the request/response envelope with its global MessagePool
//   - BufferPool: byte buffers in power-of-two size buckets
//
// Creating a custom pool:
//
//	type scratch struct {
//		keys []string
//		seen map[string]bool
//	}
//
//	scratches := pool.MustNew("scratch",
//		func() scratch {
//			return scratch{keys: make([]string, 0, 32), seen: make(map[string]bool)}
//		},
//		func(s *scratch) {
//			s.keys = s.keys[:0]
//			clear(s.seen)
//		},
//		recycler.WithMaxCapacityPerWorker(128),
//	)
//
//	item := scratches.Get(w)
//	defer item.Release(w)
//
// Guidelines
//
//   - Release exactly once; a second Release returns an error and changes nothing
//   - Do not touch a value after releasing it
//   - Reset functions should keep allocated storage, not replace it
//   - Register long-lived custom pools so GetGlobalStats and the metrics
//     collector can see them
package pool
