// Package client binds a database name to a connection and hands out
// stream inserters for it.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/szibis/stream-inserter/internal/batcher"
	"github.com/szibis/stream-inserter/internal/inserter"
	"github.com/szibis/stream-inserter/internal/logging"
	"github.com/szibis/stream-inserter/internal/request"
	"github.com/szibis/stream-inserter/internal/transport"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/grpc/connectivity"
)

var (
	// ErrNoDatabase is returned by Dial when Config.Database is empty.
	ErrNoDatabase = errors.New("client: database name is required")
	// ErrNoUnits is returned by Insert when there is nothing to write.
	ErrNoUnits = errors.New("client: no units to insert")
)

// Config holds the database and connection settings.
type Config struct {
	Database  string
	Transport transport.Config
}

// Client owns one connection to a database endpoint. It is safe for
// concurrent use; each inserter gets its own stream.
type Client struct {
	database string
	conn     *transport.Conn
}

// Dial creates the connection. It does not wait for the server.
func Dial(cfg Config) (*Client, error) {
	if cfg.Database == "" {
		return nil, ErrNoDatabase
	}
	conn, err := transport.Dial(cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return &Client{database: cfg.Database, conn: conn}, nil
}

// Database returns the database every inserter writes to.
func (c *Client) Database() string {
	return c.database
}

// NewStreamInserter opens a write stream and returns a running inserter on
// it. The caller must end it with WriteDone and Finish.
func (c *Client) NewStreamInserter(opts ...inserter.Option) (*inserter.Inserter, error) {
	stream, err := c.conn.Open()
	if err != nil {
		return nil, fmt.Errorf("client: open stream: %w", err)
	}
	logging.Debug("stream inserter opened", logging.F("database", c.database, "endpoint", c.conn.Target()))
	return inserter.New(stream, c.database, opts...), nil
}

// Insert writes units as a single envelope on a stream of its own and waits
// for the server's reply. The envelope is not split by the batch ceiling and
// a failed write is not retried. Use a stream inserter for continuous writes.
func (c *Client) Insert(ctx context.Context, units []request.Unit) (*colmetricspb.ExportMetricsServiceResponse, error) {
	if len(units) == 0 {
		return nil, ErrNoUnits
	}
	stream, err := c.conn.OpenContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: open stream: %w", err)
	}

	env := batcher.Build(units, c.database)
	// A failed write leaves the call status for Finish to report.
	_ = stream.Write(env.Request())
	if err := stream.Finish(); err != nil {
		return nil, err
	}
	logging.Debug("insert finished", logging.F("database", c.database, "rows", env.Rows(), "bytes", env.Size()))
	return stream.Response(), nil
}

// Ready is a readiness check: it fails while the channel is failing or shut
// down.
func (c *Client) Ready(_ context.Context) error {
	switch state := c.conn.State(); state {
	case connectivity.TransientFailure, connectivity.Shutdown:
		return fmt.Errorf("channel to %s is %s", c.conn.Target(), state)
	default:
		return nil
	}
}

// Close closes the connection and every stream on it.
func (c *Client) Close() error {
	return c.conn.Close()
}
