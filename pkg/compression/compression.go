// Package compression compresses byte slices into pooled buffers.
//
// Codec state such as zstd encoders, lz4 frame writers and gzip writers is
// expensive to build, so every Compressor keeps it in a per-worker recycler:
// a worker that compresses repeatedly reuses the same encoder without any
// synchronization.
//
// # Algorithm Selection
//
//   - Snappy/S2: best for speed, moderate compression
//   - LZ4: extremely fast, decent compression
//   - Zstd: best compression ratio, good speed
//   - Gzip/Deflate: wide compatibility
//
// # Basic Usage
//
//	c, err := compression.NewCompressor(compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Better,
//	})
//
//	buf, err := c.Compress(w, data)
//	defer buf.Release(w)
//
//	out, err := c.Decompress(w, buf.Value)
//	defer out.Release(w)
package compression

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/recycler/pkg/errors"
	"github.com/ajitpratap0/recycler/pkg/pool"
	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None copies data unchanged
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Deflate represents raw deflate compression
	Deflate Algorithm = "deflate"
	// Snappy represents snappy block compression
	Snappy Algorithm = "snappy"
	// S2 represents s2 block compression (Snappy compatible)
	S2 Algorithm = "s2"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{None, Gzip, Deflate, Snappy, S2, LZ4, Zstd}

// ParseAlgorithm returns the algorithm named s, ignoring case. An empty
// name means None.
func ParseAlgorithm(s string) (Algorithm, error) {
	if s == "" {
		return None, nil
	}
	a := Algorithm(strings.ToLower(s))
	for _, known := range Algorithms {
		if a == known {
			return a, nil
		}
	}
	return "", errors.New(errors.ErrorTypeConfig, "unsupported compression algorithm").
		WithDetail("algorithm", s)
}

// Level controls the trade-off between speed and ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio
	Fastest Level = 1
	// Default balances speed and compression
	Default Level = 5
	// Better improves compression at cost of speed
	Better Level = 7
	// Best maximizes compression ratio
	Best Level = 9
)

func (l Level) String() string {
	switch l {
	case Fastest:
		return "fastest"
	case Default:
		return "default"
	case Better:
		return "better"
	case Best:
		return "best"
	default:
		return "unknown"
	}
}

// DefaultMaxDecodedSize bounds the output of Decompress when Config leaves
// it unset.
const DefaultMaxDecodedSize = 64 << 20

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm
	Level     Level
	// MaxDecodedSize bounds the output of Decompress; 0 uses DefaultMaxDecodedSize
	MaxDecodedSize int
}

// DefaultConfig returns zstd at the default level.
func DefaultConfig() Config {
	return Config{
		Algorithm:      Zstd,
		Level:          Default,
		MaxDecodedSize: DefaultMaxDecodedSize,
	}
}

// Compressor compresses and decompresses into buffers borrowed from
// pool.Buffers. It is safe for concurrent use by any number of workers.
type Compressor struct {
	cfg     Config
	codecs  *pool.Pool[codec]
	buffers *pool.BufferPool
}

// NewCompressor creates a compressor. The recycler options size the
// per-worker codec stacks; by default every worker keeps up to 4 codecs.
func NewCompressor(cfg Config, opts ...recycler.Option) (*Compressor, error) {
	alg, err := ParseAlgorithm(string(cfg.Algorithm))
	if err != nil {
		return nil, err
	}
	cfg.Algorithm = alg
	if cfg.Level == 0 {
		cfg.Level = Default
	}
	if cfg.MaxDecodedSize <= 0 {
		cfg.MaxDecodedSize = DefaultMaxDecodedSize
	}

	opts = append([]recycler.Option{recycler.WithMaxCapacityPerWorker(4)}, opts...)
	codecs, err := pool.New("codec_"+string(alg),
		func() codec { return codec{} },
		(*codec).reset,
		opts...)
	if err != nil {
		return nil, err
	}
	return &Compressor{cfg: cfg, codecs: codecs, buffers: pool.Buffers}, nil
}

// Algorithm returns the configured algorithm.
func (c *Compressor) Algorithm() Algorithm {
	return c.cfg.Algorithm
}

// Level returns the configured level.
func (c *Compressor) Level() Level {
	return c.cfg.Level
}

// Stats returns the counters of the codec recycler.
func (c *Compressor) Stats() recycler.Stats {
	return c.codecs.Stats()
}

// Compress compresses data on behalf of w. The returned buffer holds
// exactly the compressed bytes; release it once they have been consumed.
// data is not retained.
func (c *Compressor) Compress(w *recycler.Worker, data []byte) (*pool.Item[[]byte], error) {
	item := c.codecs.Get(w)
	defer func() { _ = item.Release(w) }()

	out, err := item.Value.compress(c.cfg, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "compression failed").
			WithDetail("algorithm", c.cfg.Algorithm)
	}
	return c.copyOut(w, out), nil
}

// Decompress reverses Compress on behalf of w. Input that would decode to
// more than Config.MaxDecodedSize bytes is rejected with a validation
// error.
func (c *Compressor) Decompress(w *recycler.Worker, data []byte) (*pool.Item[[]byte], error) {
	item := c.codecs.Get(w)
	defer func() { _ = item.Release(w) }()

	out, err := item.Value.decompress(c.cfg, data)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeValidation) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "decompression failed").
			WithDetail("algorithm", c.cfg.Algorithm)
	}
	return c.copyOut(w, out), nil
}

func (c *Compressor) copyOut(w *recycler.Worker, data []byte) *pool.Item[[]byte] {
	buf := c.buffers.Get(w, len(data))
	copy(buf.Value, data)
	return buf
}

// codec is the reusable state of one worker's compressor. Encoders are
// created on first use. Slices returned by compress and decompress alias
// the codec's scratch space and are valid until its next use.
type codec struct {
	scratch []byte
	out     bytes.Buffer
	src     bytes.Reader

	zenc *zstd.Encoder
	zdec *zstd.Decoder
	lzw  *lz4.Writer
	lzr  *lz4.Reader
	gzw  *gzip.Writer
	gzr  *gzip.Reader
	flw  *flate.Writer
	flr  io.ReadCloser
}

// scratchLimit is the largest scratch space kept across reuse.
const scratchLimit = 1 << 20

func (c *codec) reset() {
	if cap(c.scratch) > scratchLimit {
		c.scratch = nil
	}
	if c.out.Cap() > scratchLimit {
		c.out = bytes.Buffer{}
	}
	c.out.Reset()
	c.src.Reset(nil)
}

func (c *codec) compress(cfg Config, data []byte) ([]byte, error) {
	switch cfg.Algorithm {
	case None:
		return data, nil

	case Snappy:
		n := snappy.MaxEncodedLen(len(data))
		if n < 0 {
			return nil, snappy.ErrTooLarge
		}
		c.scratch = grow(c.scratch, n)
		return snappy.Encode(c.scratch, data), nil

	case S2:
		n := s2.MaxEncodedLen(len(data))
		if n < 0 {
			return nil, s2.ErrTooLarge
		}
		c.scratch = grow(c.scratch, n)
		return s2.Encode(c.scratch, data), nil

	case Zstd:
		if c.zenc == nil {
			enc, err := zstd.NewWriter(nil,
				zstd.WithEncoderLevel(zstdLevel(cfg.Level)),
				zstd.WithEncoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			c.zenc = enc
		}
		c.scratch = c.zenc.EncodeAll(data, c.scratch[:0])
		return c.scratch, nil

	case LZ4:
		c.out.Reset()
		if c.lzw == nil {
			lw := lz4.NewWriter(nil)
			if err := lw.Apply(lz4.CompressionLevelOption(lz4Level(cfg.Level))); err != nil {
				return nil, err
			}
			c.lzw = lw
		}
		c.lzw.Reset(&c.out)
		return c.finish(c.lzw, data)

	case Gzip:
		c.out.Reset()
		if c.gzw == nil {
			gw, err := gzip.NewWriterLevel(&c.out, gzipLevel(cfg.Level))
			if err != nil {
				return nil, err
			}
			c.gzw = gw
		} else {
			c.gzw.Reset(&c.out)
		}
		return c.finish(c.gzw, data)

	case Deflate:
		c.out.Reset()
		if c.flw == nil {
			fw, err := flate.NewWriter(&c.out, gzipLevel(cfg.Level))
			if err != nil {
				return nil, err
			}
			c.flw = fw
		} else {
			c.flw.Reset(&c.out)
		}
		return c.finish(c.flw, data)
	}
	return nil, errors.New(errors.ErrorTypeConfig, "unsupported compression algorithm").
		WithDetail("algorithm", cfg.Algorithm)
}

// finish writes data through a stream writer into c.out and closes it.
func (c *codec) finish(w io.WriteCloser, data []byte) ([]byte, error) {
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return c.out.Bytes(), nil
}

func (c *codec) decompress(cfg Config, data []byte) ([]byte, error) {
	limit := cfg.MaxDecodedSize

	switch cfg.Algorithm {
	case None:
		if len(data) > limit {
			return nil, tooLarge(limit)
		}
		return data, nil

	case Snappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, err
		}
		if n > limit {
			return nil, tooLarge(limit)
		}
		c.scratch = grow(c.scratch, n)
		return snappy.Decode(c.scratch, data)

	case S2:
		n, err := s2.DecodedLen(data)
		if err != nil {
			return nil, err
		}
		if n > limit {
			return nil, tooLarge(limit)
		}
		c.scratch = grow(c.scratch, n)
		return s2.Decode(c.scratch, data)

	case Zstd:
		// EncodeAll writes no frame for empty input.
		if len(data) == 0 {
			return c.scratch[:0], nil
		}
		if c.zdec == nil {
			dec, err := zstd.NewReader(nil,
				zstd.WithDecoderConcurrency(1),
				zstd.WithDecoderMaxMemory(uint64(limit)))
			if err != nil {
				return nil, err
			}
			c.zdec = dec
		}
		out, err := c.zdec.DecodeAll(data, c.scratch[:0])
		if err != nil {
			if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
				return nil, tooLarge(limit)
			}
			return nil, err
		}
		if len(out) > limit {
			return nil, tooLarge(limit)
		}
		c.scratch = out
		return out, nil

	case LZ4:
		c.src.Reset(data)
		if c.lzr == nil {
			c.lzr = lz4.NewReader(&c.src)
		} else {
			c.lzr.Reset(&c.src)
		}
		return c.readAll(c.lzr, limit)

	case Gzip:
		c.src.Reset(data)
		if c.gzr == nil {
			gr, err := gzip.NewReader(&c.src)
			if err != nil {
				return nil, err
			}
			c.gzr = gr
		} else if err := c.gzr.Reset(&c.src); err != nil {
			return nil, err
		}
		return c.readAll(c.gzr, limit)

	case Deflate:
		c.src.Reset(data)
		if c.flr == nil {
			c.flr = flate.NewReader(&c.src)
		} else if err := c.flr.(flate.Resetter).Reset(&c.src, nil); err != nil {
			return nil, err
		}
		return c.readAll(c.flr, limit)
	}
	return nil, errors.New(errors.ErrorTypeConfig, "unsupported compression algorithm").
		WithDetail("algorithm", cfg.Algorithm)
}

// readAll decodes r into c.out, failing once more than limit bytes come out.
func (c *codec) readAll(r io.Reader, limit int) ([]byte, error) {
	c.out.Reset()
	n, err := c.out.ReadFrom(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if n > int64(limit) {
		return nil, tooLarge(limit)
	}
	return c.out.Bytes(), nil
}

func tooLarge(limit int) error {
	return errors.New(errors.ErrorTypeValidation, "decompressed data exceeds the size limit").
		WithDetail("limit", limit)
}

// grow returns b with length n, reallocating only when its capacity is short.
func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

func gzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func lz4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Better:
		return lz4.Level7
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func zstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
