package config

import (
	"errors"
	"fmt"

	"github.com/szibis/stream-inserter/internal/cardinality"
	"github.com/szibis/stream-inserter/internal/compression"
	"github.com/szibis/stream-inserter/internal/logging"
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Endpoint == "" {
		add("endpoint: must not be empty")
	}
	if c.Database == "" {
		add("database: must not be empty")
	}
	if c.BufferCapacity <= 0 {
		add("buffer-capacity: must be positive, got %d", c.BufferCapacity)
	}
	if c.MaxBatchBytes <= 0 {
		add("max-batch-bytes: must be positive, got %d", c.MaxBatchBytes)
	}
	if c.OpenTimeout < 0 || c.ProbeTimeout < 0 {
		add("timeouts: must not be negative")
	}
	if _, err := compression.ParseType(c.Compression); err != nil {
		add("compression: %v", err)
	}
	if _, err := cardinality.ParseMode(c.CardinalityMode); err != nil {
		add("cardinality-mode: %v", err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add("log-level: %v", err)
	}
	if c.MemoryLimitRatio < 0 || c.MemoryLimitRatio > 1 {
		add("memory-limit-ratio: must be within [0, 1], got %g", c.MemoryLimitRatio)
	}
	if c.StatsAddr != "" && c.StatsInterval <= 0 {
		add("stats-interval: must be positive")
	}
	if c.TelemetryEndpoint != "" && c.TelemetryProtocol != "grpc" && c.TelemetryProtocol != "http" {
		add("telemetry-protocol: must be grpc or http, got %q", c.TelemetryProtocol)
	}
	if c.Producers <= 0 {
		add("producers: must be positive, got %d", c.Producers)
	}
	if c.Records < 0 || c.RowsPerInsert <= 0 {
		add("records/rows-per-insert: records must not be negative and rows-per-insert must be positive")
	}
	if c.Insecure && (c.TLS.CAFile != "" || c.TLS.CertFile != "") {
		add("tls: certificate files are set but -insecure is true")
	}
	if c.ReceiverTLS.Enabled && (c.ReceiverTLS.CertFile == "" || c.ReceiverTLS.KeyFile == "") {
		add("receiver-tls: cert and key files are required")
	}
	return errors.Join(errs...)
}
