// Package receiver is an in-process ingest server for the write stream. The
// ingest-sink binary and the end-to-end tests run it in place of a database.
package receiver

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/szibis/stream-inserter/internal/auth"
	"github.com/szibis/stream-inserter/internal/batcher"
	_ "github.com/szibis/stream-inserter/internal/compression" // registers zstd and gzip
	"github.com/szibis/stream-inserter/internal/logging"
	"github.com/szibis/stream-inserter/internal/request"
	tlspkg "github.com/szibis/stream-inserter/internal/tls"
	"github.com/szibis/stream-inserter/internal/transport"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultMaxRecvMsgSize leaves headroom above the client's default envelope
// ceiling.
const DefaultMaxRecvMsgSize = 16 * 1024 * 1024

var log = logging.Component("receiver")

// Config holds the receiver settings.
type Config struct {
	// Addr is the listen address used by Start.
	Addr string
	// TLS for incoming connections.
	TLS tlspkg.ServerConfig
	// Auth credentials every stream must carry.
	Auth auth.ServerConfig
	// MaxRecvMsgSize caps one envelope; 0 uses DefaultMaxRecvMsgSize.
	MaxRecvMsgSize int
}

// Handler observes every envelope after it is counted. A non-nil error
// aborts the stream with that error as its status.
type Handler func(database string, req *colmetricspb.ExportMetricsServiceRequest) error

// Stats are the receiver totals since start.
type Stats struct {
	Streams        int64
	Envelopes      int64
	Rows           map[string]int64 // by database
	RejectedPoints int64
}

// GRPCReceiver serves the client-streaming write RPC.
type GRPCReceiver struct {
	server  *grpc.Server
	addr    string
	handler Handler

	mu    sync.Mutex
	stats Stats
}

// New builds a receiver; it does not listen until Start or Serve.
func New(cfg Config) (*GRPCReceiver, error) {
	maxMsg := cfg.MaxRecvMsgSize
	if maxMsg <= 0 {
		maxMsg = DefaultMaxRecvMsgSize
	}
	opts := []grpc.ServerOption{grpc.MaxRecvMsgSize(maxMsg)}

	creds, err := tlspkg.ServerCredentials(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	}
	if cfg.Auth.Enabled {
		opts = append(opts, grpc.StreamInterceptor(auth.StreamServerInterceptor(cfg.Auth)))
	}

	r := &GRPCReceiver{
		server: grpc.NewServer(opts...),
		addr:   cfg.Addr,
		stats:  Stats{Rows: make(map[string]int64)},
	}
	transport.RegisterIngestServer(r.server, r)
	return r, nil
}

// SetHandler installs h. Call it before serving.
func (r *GRPCReceiver) SetHandler(h Handler) {
	r.handler = h
}

// Start listens on the configured address and serves until Stop.
func (r *GRPCReceiver) Start() error {
	lis, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	return r.Serve(lis)
}

// Serve serves on lis until Stop.
func (r *GRPCReceiver) Serve(lis net.Listener) error {
	log.Info("ingest receiver started", logging.F("addr", lis.Addr().String()))
	err := r.server.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop waits for open streams to finish, then stops.
func (r *GRPCReceiver) Stop() {
	r.server.GracefulStop()
}

// Stats returns a copy of the totals.
func (r *GRPCReceiver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Rows = make(map[string]int64, len(r.stats.Rows))
	for db, n := range r.stats.Rows {
		s.Rows[db] = n
	}
	return s
}

// HandleRequests reads envelopes until the client half-closes, then replies
// once. Units without a table name are rejected as a partial success; an
// envelope without a database aborts the stream.
func (r *GRPCReceiver) HandleRequests(stream grpc.ServerStream) (err error) {
	defer func() {
		receiverStreamsTotal.WithLabelValues(status.Code(err).String()).Inc()
	}()

	r.mu.Lock()
	r.stats.Streams++
	r.mu.Unlock()

	var rejected int64
	for {
		req := new(colmetricspb.ExportMetricsServiceRequest)
		if err := stream.RecvMsg(req); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		receiverRequestsTotal.Inc()

		database, err := envelopeDatabase(req)
		if err != nil {
			log.Warn("rejecting stream", logging.F("error", err.Error()))
			return err
		}
		rows, points := countRows(req)
		rejected += points

		r.mu.Lock()
		r.stats.Envelopes++
		r.stats.Rows[database] += rows
		r.stats.RejectedPoints += points
		r.mu.Unlock()
		receiverRowsTotal.WithLabelValues(database).Add(float64(rows))
		receiverRejectedPointsTotal.Add(float64(points))

		if r.handler != nil {
			if err := r.handler(database, req); err != nil {
				return err
			}
		}
	}

	resp := &colmetricspb.ExportMetricsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &colmetricspb.ExportMetricsPartialSuccess{
			RejectedDataPoints: rejected,
			ErrorMessage:       "units without a table name were rejected",
		}
	}
	return stream.SendMsg(resp)
}

// envelopeDatabase returns the database every unit of req is stamped with.
func envelopeDatabase(req *colmetricspb.ExportMetricsServiceRequest) (string, error) {
	if len(req.ResourceMetrics) == 0 {
		return "", status.Error(codes.InvalidArgument, "empty envelope")
	}
	database := ""
	for _, rm := range req.ResourceMetrics {
		db := request.Attribute(rm.GetResource().GetAttributes(), batcher.DatabaseAttribute)
		if db == "" {
			return "", status.Error(codes.InvalidArgument, "envelope without database name")
		}
		if database != "" && db != database {
			return "", status.Errorf(codes.InvalidArgument, "envelope mixes databases %q and %q", database, db)
		}
		database = db
	}
	return database, nil
}

// countRows counts accepted rows (the data points of a unit's first
// metric) and the data points of units without a table name.
func countRows(req *colmetricspb.ExportMetricsServiceRequest) (rows, rejectedPoints int64) {
	for _, rm := range req.ResourceMetrics {
		table := request.Attribute(rm.GetResource().GetAttributes(), request.TableAttribute)
		first, total := true, int64(0)
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				n := int64(len(m.GetGauge().GetDataPoints()) + len(m.GetSum().GetDataPoints()))
				if first && table != "" {
					rows += n
					first = false
				}
				total += n
			}
		}
		if table == "" {
			rejectedPoints += total
		}
	}
	return rows, rejectedPoints
}

var _ transport.IngestServer = (*GRPCReceiver)(nil)
