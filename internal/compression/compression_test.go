package compression

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"google.golang.org/grpc/encoding"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", TypeNone, false},
		{"none", TypeNone, false},
		{"GZIP", TypeGzip, false},
		{" zstd ", TypeZstd, false},
		{"zstandard", TypeZstd, false},
		{"snappy", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseType(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCallOptions(t *testing.T) {
	if opts := TypeNone.CallOptions(); opts != nil {
		t.Errorf("TypeNone.CallOptions() = %v, want nil", opts)
	}
	if len(TypeGzip.CallOptions()) != 1 || len(TypeZstd.CallOptions()) != 1 {
		t.Error("gzip and zstd should each yield one call option")
	}
}

func TestZstdRegistered(t *testing.T) {
	c := encoding.GetCompressor(ZstdName)
	if c == nil {
		t.Fatal("zstd compressor not registered")
	}
	if c.Name() != ZstdName {
		t.Errorf("Name() = %q", c.Name())
	}
}

func roundTrip(c encoding.Compressor, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := c.Compress(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	r, err := c.Decompress(&buf)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func TestZstdRoundTrip(t *testing.T) {
	c := encoding.GetCompressor(ZstdName)
	payload := []byte(strings.Repeat("weather,collector_id=c1 temperature=21.5 ", 200))

	for i := 0; i < 3; i++ {
		got, err := roundTrip(c, payload)
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round %d: payload mismatch (%d vs %d bytes)", i, len(got), len(payload))
		}
	}
	if compressionPoolGets.Load() == 0 || compressionPoolPuts.Load() == 0 {
		t.Error("pool counters not updated")
	}
}

func TestZstdConcurrent(t *testing.T) {
	c := encoding.GetCompressor(ZstdName)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte(g)}, 4096+g)
			for i := 0; i < 20; i++ {
				got, err := roundTrip(c, payload)
				if err != nil || !bytes.Equal(got, payload) {
					t.Errorf("goroutine %d: round trip failed: %v", g, err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}
