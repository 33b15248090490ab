package compression

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

var sample = bytes.Repeat([]byte("test data for compression "), 100)

func TestRoundTrip(t *testing.T) {
	w := testutil.Worker(t, "codec")

	for _, alg := range Algorithms {
		for _, level := range []Level{Fastest, Default, Better, Best} {
			t.Run(string(alg)+"/"+level.String(), func(t *testing.T) {
				c, err := NewCompressor(Config{Algorithm: alg, Level: level})
				require.NoError(t, err)

				compressed, err := c.Compress(w, sample)
				require.NoError(t, err)
				if alg != None {
					assert.Less(t, len(compressed.Value), len(sample))
				}

				decompressed, err := c.Decompress(w, compressed.Value)
				require.NoError(t, err)
				assert.Equal(t, sample, decompressed.Value)

				require.NoError(t, compressed.Release(w))
				require.NoError(t, decompressed.Release(w))
			})
		}
	}
}

func TestCodecIsReusedByTheSameWorker(t *testing.T) {
	w := testutil.Worker(t, "codec")
	c, err := NewCompressor(DefaultConfig())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		buf, err := c.Compress(w, sample)
		require.NoError(t, err)
		require.NoError(t, buf.Release(w))
	}

	stats := c.Stats()
	assert.Equal(t, uint64(10), stats.Gets)
	assert.Equal(t, uint64(1), stats.Allocations)
	assert.Equal(t, uint64(9), stats.Hits)
}

func TestEmptyInput(t *testing.T) {
	w := testutil.Worker(t, "codec")

	for _, alg := range Algorithms {
		c, err := NewCompressor(Config{Algorithm: alg})
		require.NoError(t, err)

		compressed, err := c.Compress(w, nil)
		require.NoError(t, err, alg)
		decompressed, err := c.Decompress(w, compressed.Value)
		require.NoError(t, err, alg)
		assert.Empty(t, decompressed.Value, alg)

		require.NoError(t, compressed.Release(w))
		require.NoError(t, decompressed.Release(w))
	}
}

func TestDecompressEnforcesSizeLimit(t *testing.T) {
	w := testutil.Worker(t, "codec")

	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			writer, err := NewCompressor(Config{Algorithm: alg})
			require.NoError(t, err)
			reader, err := NewCompressor(Config{Algorithm: alg, MaxDecodedSize: 100})
			require.NoError(t, err)

			compressed, err := writer.Compress(w, sample)
			require.NoError(t, err)
			defer compressed.Release(w)

			_, err = reader.Decompress(w, compressed.Value)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}

func TestDecompressRejectsCorruptInput(t *testing.T) {
	w := testutil.Worker(t, "codec")

	for _, alg := range []Algorithm{Gzip, Snappy, LZ4, Zstd} {
		c, err := NewCompressor(Config{Algorithm: alg})
		require.NoError(t, err)

		_, err = c.Decompress(w, []byte("this is not compressed"))
		require.Error(t, err, alg)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), alg)
	}
}

func TestBuffersTravelBetweenWorkers(t *testing.T) {
	c, err := NewCompressor(Config{Algorithm: LZ4})
	require.NoError(t, err)

	const n = 4
	inboxes := make([]chan *pool.Item[[]byte], n)
	for i := range inboxes {
		inboxes[i] = make(chan *pool.Item[[]byte], 1)
	}

	testutil.RunWorkers(t, n, func(i int, w *recycler.Worker) {
		compressed, err := c.Compress(w, sample)
		assert.NoError(t, err)
		inboxes[(i+1)%n] <- compressed

		in := <-inboxes[i]
		if in == nil {
			return
		}
		decompressed, err := c.Decompress(w, in.Value)
		if assert.NoError(t, err) {
			assert.Equal(t, sample, decompressed.Value)
			assert.NoError(t, decompressed.Release(w))
		}
		// Released by the worker that did not borrow it.
		assert.NoError(t, in.Release(w))
	})

	assert.Equal(t, uint64(2*n), c.Stats().Gets)
	assert.Equal(t, uint64(n), c.Stats().Allocations)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, a)

	_, err = ParseAlgorithm("brotli")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = NewCompressor(Config{Algorithm: "brotli"})
	assert.Error(t, err)
}
