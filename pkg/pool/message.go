package pool

import (
	"sync/atomic"

	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// Message is a pooled request/response envelope. A worker borrows one per
// request, fills it in and releases it once the response has been written,
// possibly from another worker.
type Message struct {
	// ID is assigned on every Get and is unique within the process.
	ID uint64 `json:"id"`
	// Directory names the service or resource the message addresses.
	Directory string `json:"directory"`
	// Method is the operation invoked on Directory.
	Method string `json:"method"`
	// Payload is the encoded body. Its capacity is kept across reuse.
	Payload []byte `json:"payload,omitempty"`
	// Metadata carries headers. The map is kept, and cleared, across reuse.
	Metadata map[string]string `json:"metadata,omitempty"`

	handle *recycler.Handle[*Message]
}

const (
	messagePayloadCapacity  = 512
	messageMetadataCapacity = 8
)

var messageIDs atomic.Uint64

// NewMessagePool creates a recycler of Messages, each pre-allocated with a
// 512-byte payload buffer and an 8-entry metadata map. Messages from any
// such recycler release to the recycler that built them.
func NewMessagePool(opts ...recycler.Option) (*recycler.Recycler[*Message], error) {
	return recycler.New(func(h *recycler.Handle[*Message]) *Message {
		return &Message{
			Payload:  make([]byte, 0, messagePayloadCapacity),
			Metadata: make(map[string]string, messageMetadataCapacity),
			handle:   h,
		}
	}, opts...)
}

// MessagePool is the process-wide Message recycler.
var MessagePool = mustMessagePool(recycler.WithName("message"))

func mustMessagePool(opts ...recycler.Option) *recycler.Recycler[*Message] {
	p, err := NewMessagePool(opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func init() {
	Register("message", MessagePool)
}

// GetMessage borrows a Message from MessagePool for w with a fresh ID.
//
// Example:
//
//	msg := pool.GetMessage(w)
//	defer msg.Release(w)
func GetMessage(w *recycler.Worker) *Message {
	return GetMessageFrom(MessagePool, w)
}

// GetMessageFrom borrows a Message from p for w with a fresh ID.
func GetMessageFrom(p *recycler.Recycler[*Message], w *recycler.Worker) *Message {
	m := p.Get(w)
	m.ID = messageIDs.Add(1)
	return m
}

// NewMessage borrows a Message and fills in its addressing and payload.
// The payload is copied.
func NewMessage(w *recycler.Worker, directory, method string, payload []byte) *Message {
	m := GetMessage(w)
	m.Directory = directory
	m.Method = method
	m.Payload = append(m.Payload, payload...)
	return m
}

// SetMetadata sets a header.
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string, messageMetadataCapacity)
	}
	m.Metadata[key] = value
}

// GetMetadata returns a header and whether it was set.
func (m *Message) GetMetadata(key string) (string, bool) {
	v, ok := m.Metadata[key]
	return v, ok
}

// Reset clears every field but keeps the payload and metadata storage.
// Payloads that grew past 64KB are dropped so one large message does not
// pin memory in a stack.
func (m *Message) Reset() {
	m.ID = 0
	m.Directory = ""
	m.Method = ""
	if cap(m.Payload) > 64*1024 {
		m.Payload = make([]byte, 0, messagePayloadCapacity)
	} else {
		m.Payload = m.Payload[:0]
	}
	clear(m.Metadata)
}

// Release resets the message and returns it to the recycler that built it
// on behalf of w. A second Release fails with an error matching
// recycler.ErrRecycledAlready.
func (m *Message) Release(w *recycler.Worker) error {
	if !m.handle.Pooled() {
		m.Reset()
	}
	return m.handle.Recycle(w)
}
