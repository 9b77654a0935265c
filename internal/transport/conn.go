package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/szibis/stream-inserter/internal/auth"
	"github.com/szibis/stream-inserter/internal/compression"
	"github.com/szibis/stream-inserter/internal/logging"
	tlspkg "github.com/szibis/stream-inserter/internal/tls"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

const (
	// DefaultProbeTimeout bounds a blocking channel state probe.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultOpenTimeout bounds waiting for the connection when a stream opens.
	DefaultOpenTimeout = 30 * time.Second
)

// Config holds connection settings.
type Config struct {
	// Endpoint is the server address (host:port).
	Endpoint string
	// TLS configuration; plaintext when disabled.
	TLS tlspkg.ClientConfig
	// Auth credentials attached to every stream.
	Auth auth.ClientConfig
	// Compression applied to every message.
	Compression compression.Type
	// ProbeTimeout bounds ChannelState(true).
	ProbeTimeout time.Duration
	// OpenTimeout bounds how long opening a stream waits for the channel.
	OpenTimeout time.Duration
}

// Conn is a gRPC connection streams are opened on.
type Conn struct {
	cc       *grpc.ClientConn
	cfg      Config
	callOpts []grpc.CallOption
}

// Dial creates a connection. Like grpc.NewClient it does not block; the
// channel connects when the first stream opens.
func Dial(cfg Config) (*Conn, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("transport: empty endpoint")
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}

	creds, err := tlspkg.ClientCredentials(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithUserAgent("stream-inserter"),
		grpc.WithStreamInterceptor(auth.StreamClientInterceptor(cfg.Auth)),
	}

	cc, err := grpc.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, err
	}

	callOpts := []grpc.CallOption{grpc.WaitForReady(true)}
	callOpts = append(callOpts, cfg.Compression.CallOptions()...)

	logging.Info("connection created", logging.F(
		"endpoint", cfg.Endpoint,
		"tls", cfg.TLS.Enabled,
		"compression", cfg.Compression.String(),
	))
	return &Conn{cc: cc, cfg: cfg, callOpts: callOpts}, nil
}

// Open starts a new write stream on the connection.
func (c *Conn) Open() (*GRPCStream, error) {
	return c.OpenContext(context.Background())
}

// OpenContext starts a new write stream that is cancelled with ctx. Streams
// reopened after a failure stay bound to ctx.
func (c *Conn) OpenContext(ctx context.Context) (*GRPCStream, error) {
	s := &GRPCStream{conn: c, parent: ctx}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// State returns the raw connectivity state.
func (c *Conn) State() connectivity.State {
	return c.cc.GetState()
}

// Target returns the dialed endpoint.
func (c *Conn) Target() string {
	return c.cc.Target()
}

// Close tears down the connection and every stream on it.
func (c *Conn) Close() error {
	return c.cc.Close()
}

func (c *Conn) channelState(block bool) ChannelState {
	state := c.cc.GetState()
	if block {
		if state == connectivity.Idle {
			c.cc.Connect()
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ProbeTimeout)
		c.cc.WaitForStateChange(ctx, state)
		cancel()
		state = c.cc.GetState()
	}
	return toChannelState(state)
}

func toChannelState(state connectivity.State) ChannelState {
	switch state {
	case connectivity.Ready:
		return StateReady
	case connectivity.TransientFailure:
		return StateTransientFailure
	default:
		return StateOther
	}
}
