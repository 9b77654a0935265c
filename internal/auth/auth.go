// Package auth carries credentials on the ingest stream.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ServerConfig holds authentication configuration for the ingest receiver.
type ServerConfig struct {
	// Enabled enables authentication for the server.
	Enabled bool `yaml:"enabled"`
	// BearerToken is the expected bearer token for authentication.
	BearerToken string `yaml:"bearer_token"`
	// BasicAuthUsername is the username for basic authentication.
	BasicAuthUsername string `yaml:"basic_username"`
	// BasicAuthPassword is the password for basic authentication.
	BasicAuthPassword string `yaml:"basic_password"`
}

// ClientConfig holds authentication configuration for the inserter.
type ClientConfig struct {
	// BearerToken is the bearer token to send on every stream.
	BearerToken string `yaml:"bearer_token"`
	// BasicAuthUsername is the username for basic authentication.
	BasicAuthUsername string `yaml:"basic_username"`
	// BasicAuthPassword is the password for basic authentication.
	BasicAuthPassword string `yaml:"basic_password"`
	// Headers is a map of custom metadata to send on every stream.
	Headers map[string]string `yaml:"headers"`
}

// StreamServerInterceptor rejects streams whose metadata does not carry the
// configured credentials.
func StreamServerInterceptor(cfg ServerConfig) grpc.StreamServerInterceptor {
	var expectedBasic string
	if cfg.BasicAuthUsername != "" && cfg.BasicAuthPassword != "" {
		expectedBasic = "Basic " + basicAuthEncoded(cfg.BasicAuthUsername, cfg.BasicAuthPassword)
	}

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !cfg.Enabled {
			return handler(srv, ss)
		}

		md, ok := metadata.FromIncomingContext(ss.Context())
		if !ok {
			return status.Error(codes.Unauthenticated, "missing metadata")
		}
		if err := validate(md, cfg.BearerToken, expectedBasic); err != nil {
			return status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(srv, ss)
	}
}

func validate(md metadata.MD, bearer, expectedBasic string) error {
	if bearer == "" && expectedBasic == "" {
		return nil
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return errors.New("missing authorization header")
	}
	header := values[0]

	if bearer != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return errors.New("invalid authorization header format")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(bearer)) != 1 {
			return errors.New("invalid bearer token")
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(header), []byte(expectedBasic)) != 1 {
		return errors.New("invalid basic auth credentials")
	}
	return nil
}

// OutgoingMetadata returns the metadata a client attaches for cfg.
func OutgoingMetadata(cfg ClientConfig) metadata.MD {
	md := metadata.MD{}
	for k, v := range cfg.Headers {
		md.Set(k, v)
	}
	if cfg.BearerToken != "" {
		md.Set("authorization", "Bearer "+cfg.BearerToken)
	}
	if cfg.BasicAuthUsername != "" && cfg.BasicAuthPassword != "" {
		md.Set("authorization", "Basic "+basicAuthEncoded(cfg.BasicAuthUsername, cfg.BasicAuthPassword))
	}
	return md
}

// StreamClientInterceptor attaches cfg's credentials and headers to every
// outgoing stream.
func StreamClientInterceptor(cfg ClientConfig) grpc.StreamClientInterceptor {
	md := OutgoingMetadata(cfg)
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		if len(md) > 0 {
			ctx = metadata.NewOutgoingContext(ctx, metadata.Join(md, outgoing(ctx)))
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}

func outgoing(ctx context.Context) metadata.MD {
	md, _ := metadata.FromOutgoingContext(ctx)
	return md
}

// basicAuthEncoded returns the base64 encoded basic auth string.
func basicAuthEncoded(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
