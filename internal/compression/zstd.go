package compression

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
)

// ZstdName is the gRPC content-coding registered for zstd.
const ZstdName = "zstd"

func init() {
	encoding.RegisterCompressor(&zstdCompressor{})
}

// zstdCompressor implements grpc encoding.Compressor for zstd.
type zstdCompressor struct{}

func (c *zstdCompressor) Name() string {
	return ZstdName
}

var zstdEncoderPool = sync.Pool{
	New: func() interface{} {
		compressionPoolNews.Add(1)
		w, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return w
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() interface{} {
		compressionPoolNews.Add(1)
		r, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return r
	},
}

type pooledEncoder struct {
	*zstd.Encoder
}

func (p *pooledEncoder) Close() error {
	err := p.Encoder.Close()
	p.Encoder.Reset(nil)
	zstdEncoderPool.Put(p.Encoder)
	compressionPoolPuts.Add(1)
	return err
}

type pooledDecoder struct {
	dec *zstd.Decoder
}

// Read returns the decoder to the pool once the stream is exhausted.
func (p *pooledDecoder) Read(b []byte) (int, error) {
	if p.dec == nil {
		return 0, io.EOF
	}
	n, err := p.dec.Read(b)
	if err == io.EOF {
		_ = p.dec.Reset(nil)
		zstdDecoderPool.Put(p.dec)
		compressionPoolPuts.Add(1)
		p.dec = nil
	}
	return n, err
}

func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	compressionPoolGets.Add(1)
	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	enc.Reset(w)
	return &pooledEncoder{Encoder: enc}, nil
}

func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	compressionPoolGets.Add(1)
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	if err := dec.Reset(r); err != nil {
		zstdDecoderPool.Put(dec)
		compressionPoolDiscards.Add(1)
		return nil, err
	}
	return &pooledDecoder{dec: dec}, nil
}
