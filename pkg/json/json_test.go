package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/recycler/pkg/errors"
	"github.com/ajitpratap0/recycler/pkg/pool"
	"github.com/ajitpratap0/recycler/pkg/recycler"
	"github.com/ajitpratap0/recycler/pkg/testutil"
)

func TestMessageRoundTripThroughPooledBuffer(t *testing.T) {
	w := testutil.Worker(t, "codec")

	m := pool.NewMessage(w, "orders", "create", []byte("<payload>"))
	m.SetMetadata("trace", "abc")

	buf, err := EncodeMessage(w, m)
	require.NoError(t, err)
	assert.Contains(t, string(buf.Value), `"directory":"orders"`)
	assert.Equal(t, 512, cap(buf.Value), "a small message fits the smallest bucket")

	decoded, err := DecodeMessage(w, buf.Value)
	require.NoError(t, err)
	assert.NotSame(t, m, decoded)
	assert.Equal(t, m.ID, decoded.ID)
	assert.Equal(t, "orders", decoded.Directory)
	assert.Equal(t, "create", decoded.Method)
	assert.Equal(t, []byte("<payload>"), decoded.Payload)
	v, ok := decoded.GetMetadata("trace")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, buf.Release(w))
	require.NoError(t, decoded.Release(w))
	require.NoError(t, m.Release(w))
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	w := testutil.Worker(t, "codec")
	before := pool.MessagePool.LocalSize(w)

	_, err := DecodeMessage(w, []byte(`{"id":`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	// The borrowed message went back to the pool.
	assert.Equal(t, before+1, pool.MessagePool.LocalSize(w))
}

func TestMarshalHelpers(t *testing.T) {
	data, err := Marshal(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	var out map[string]int
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, 1, out["a"])

	indented, err := MarshalIndent(out, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(indented), "\n  \"a\": 1")

	var buf bytes.Buffer
	require.NoError(t, MarshalToWriter(&buf, map[string]string{"h": "<b>"}))
	assert.Equal(t, "{\"h\":\"<b>\"}\n", buf.String())
}

func TestEncodedBufferIsReused(t *testing.T) {
	w := recycler.NewWorker("reuse")
	defer w.Exit()

	m := pool.GetMessage(w)
	defer m.Release(w)

	first, err := EncodeMessage(w, m)
	require.NoError(t, err)
	require.NoError(t, first.Release(w))

	second, err := EncodeMessage(w, m)
	require.NoError(t, err)
	assert.Same(t, first, second)
	require.NoError(t, second.Release(w))
}
