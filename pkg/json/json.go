// Package json provides JSON serialization backed by goccy/go-json, with
// message encoding into pooled buffers.
package json

import (
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/recycler/pkg/errors"
	"github.com/ajitpratap0/recycler/pkg/pool"
	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// Marshal encodes v.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent encodes v with one element per line, as bench reports are
// written.
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// MarshalToWriter encodes v to w followed by a newline. HTML characters are
// not escaped.
func MarshalToWriter(w io.Writer, v interface{}) error {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// EncodeMessage encodes m into a buffer borrowed from pool.Buffers on behalf
// of w. The item's Value holds exactly the encoded bytes; release it once
// they have been written out.
func EncodeMessage(w *recycler.Worker, m *pool.Message) (*pool.Item[[]byte], error) {
	data, err := gojson.MarshalNoEscape(m)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to encode message").
			WithDetail("message", m.ID)
	}

	buf := pool.Buffers.Get(w, len(data))
	copy(buf.Value, data)
	return buf, nil
}

// DecodeMessage borrows a Message for w and fills it from data. The message
// keeps the decoded ID. On error the message is released again.
func DecodeMessage(w *recycler.Worker, data []byte) (*pool.Message, error) {
	m := pool.GetMessage(w)
	if err := gojson.Unmarshal(data, m); err != nil {
		_ = m.Release(w)
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to decode message")
	}
	return m, nil
}
