// Package compression selects and registers gRPC message compressors.
package compression

import (
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding/gzip"
)

// Type represents a compression algorithm.
type Type string

const (
	// TypeNone means no compression.
	TypeNone Type = "none"
	// TypeGzip uses gzip compression.
	TypeGzip Type = "gzip"
	// TypeZstd uses zstd compression.
	TypeZstd Type = "zstd"
)

// ParseType parses a compression type string.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TypeNone, nil
	case "gzip":
		return TypeGzip, nil
	case "zstd", "zstandard":
		return TypeZstd, nil
	default:
		return "", fmt.Errorf("unknown compression type: %s", s)
	}
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// CallOptions returns the per-call options that make a client compress its
// messages with t. TypeNone returns nil.
func (t Type) CallOptions() []grpc.CallOption {
	switch t {
	case TypeGzip:
		return []grpc.CallOption{grpc.UseCompressor(gzip.Name)}
	case TypeZstd:
		return []grpc.CallOption{grpc.UseCompressor(ZstdName)}
	default:
		return nil
	}
}
