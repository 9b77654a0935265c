// Package config loads stream-inserter settings from command-line flags and an
// optional YAML file. Flags set explicitly on the command line win.
package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/szibis/stream-inserter/internal/auth"
	"github.com/szibis/stream-inserter/internal/batcher"
	"github.com/szibis/stream-inserter/internal/buffer"
	"github.com/szibis/stream-inserter/internal/cardinality"
	"github.com/szibis/stream-inserter/internal/client"
	"github.com/szibis/stream-inserter/internal/compression"
	"github.com/szibis/stream-inserter/internal/receiver"
	"github.com/szibis/stream-inserter/internal/telemetry"
	tlspkg "github.com/szibis/stream-inserter/internal/tls"
	"github.com/szibis/stream-inserter/internal/transport"
)

// version is set at build time via ldflags
var version = "dev"

// Version returns the build version.
func Version() string { return version }

// Config holds the settings of both binaries. The writer uses the client,
// inserter and demo fields; the sink uses Listen and the receiver fields.
type Config struct {
	// Client connection
	Endpoint     string
	Database     string
	Insecure     bool
	OpenTimeout  time.Duration
	ProbeTimeout time.Duration
	Compression  string
	TLS          tlspkg.ClientConfig
	Auth         auth.ClientConfig

	// Inserter
	BufferCapacity int
	MaxBatchBytes  int64

	// Stats and cardinality
	StatsAddr       string
	StatsInterval   time.Duration
	CardinalityMode string
	ExpectedSeries  uint

	// Process
	LogLevel         string
	MemoryLimitRatio float64

	// Self-telemetry
	TelemetryEndpoint     string
	TelemetryProtocol     string
	TelemetryInsecure     bool
	TelemetryPushInterval time.Duration

	// Demo writer
	Records       int
	Producers     int
	RowsPerInsert int

	// Ingest sink
	Listen       string
	ReceiverTLS  tlspkg.ServerConfig
	ReceiverAuth auth.ServerConfig

	ConfigFile  string
	ShowHelp    bool
	ShowVersion bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:              "localhost:4001",
		Database:              "public",
		Insecure:              true,
		OpenTimeout:           transport.DefaultOpenTimeout,
		ProbeTimeout:          transport.DefaultProbeTimeout,
		Compression:           string(compression.TypeNone),
		BufferCapacity:        buffer.DefaultCapacity,
		MaxBatchBytes:         batcher.DefaultMaxBatchBytes,
		StatsAddr:             ":9090",
		StatsInterval:         30 * time.Second,
		CardinalityMode:       cardinality.ModeBloom.String(),
		ExpectedSeries:        cardinality.DefaultConfig().ExpectedItems,
		LogLevel:              "info",
		MemoryLimitRatio:      0.9,
		TelemetryProtocol:     "grpc",
		TelemetryInsecure:     true,
		TelemetryPushInterval: telemetry.DefaultPushInterval,
		Records:               1000,
		Producers:             4,
		RowsPerInsert:         10,
		Listen:                ":4001",
	}
}

// bindFlags registers every flag on fs, storing into cfg.
func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.ConfigFile, "config", "", "Path to YAML configuration file")

	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Database gRPC endpoint (host:port)")
	fs.StringVar(&cfg.Database, "database", cfg.Database, "Database name stamped on every envelope")
	fs.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "Use a plaintext connection")
	fs.DurationVar(&cfg.OpenTimeout, "open-timeout", cfg.OpenTimeout, "How long opening a stream waits for the channel")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "How long a failed write waits for a channel state change")
	fs.StringVar(&cfg.Compression, "compression", cfg.Compression, "Message compression: none, gzip or zstd")

	fs.StringVar(&cfg.TLS.CertFile, "tls-cert", "", "Client certificate file (mTLS)")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key", "", "Client private key file (mTLS)")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca", "", "CA certificate file for server verification")
	fs.StringVar(&cfg.TLS.ServerName, "tls-server-name", "", "Override the server name for verification")
	fs.BoolVar(&cfg.TLS.InsecureSkipVerify, "tls-insecure-skip-verify", false, "Skip server certificate verification")

	fs.StringVar(&cfg.Auth.BearerToken, "auth-bearer-token", "", "Bearer token sent on every stream")
	fs.StringVar(&cfg.Auth.BasicAuthUsername, "auth-basic-username", "", "Basic auth username")
	fs.StringVar(&cfg.Auth.BasicAuthPassword, "auth-basic-password", "", "Basic auth password")

	fs.IntVar(&cfg.BufferCapacity, "buffer-capacity", cfg.BufferCapacity, "Maximum buffered work units")
	fs.Int64Var(&cfg.MaxBatchBytes, "max-batch-bytes", cfg.MaxBatchBytes, "Envelope payload ceiling in bytes")

	fs.StringVar(&cfg.StatsAddr, "stats-addr", cfg.StatsAddr, "Address for /metrics, /live and /ready (empty disables)")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "Stats summary log interval")
	fs.StringVar(&cfg.CardinalityMode, "cardinality-mode", cfg.CardinalityMode, "Series tracker: bloom, hll or exact")
	fs.UintVar(&cfg.ExpectedSeries, "cardinality-expected-series", cfg.ExpectedSeries, "Bloom filter sizing")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Minimum log level: debug, info, warn or error")
	fs.Float64Var(&cfg.MemoryLimitRatio, "memory-limit-ratio", cfg.MemoryLimitRatio, "GOMEMLIMIT as a ratio of the cgroup limit (0 disables)")

	fs.StringVar(&cfg.TelemetryEndpoint, "telemetry-endpoint", "", "OTLP endpoint for self-telemetry (empty disables)")
	fs.StringVar(&cfg.TelemetryProtocol, "telemetry-protocol", cfg.TelemetryProtocol, "Self-telemetry protocol: grpc or http")
	fs.BoolVar(&cfg.TelemetryInsecure, "telemetry-insecure", cfg.TelemetryInsecure, "Plaintext self-telemetry")
	fs.DurationVar(&cfg.TelemetryPushInterval, "telemetry-push-interval", cfg.TelemetryPushInterval, "Self-telemetry push interval")

	fs.IntVar(&cfg.Records, "records", cfg.Records, "Demo: weather records per producer")
	fs.IntVar(&cfg.Producers, "producers", cfg.Producers, "Demo: concurrent producers")
	fs.IntVar(&cfg.RowsPerInsert, "rows-per-insert", cfg.RowsPerInsert, "Demo: rows per work unit")

	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "Sink: gRPC listen address")
	fs.BoolVar(&cfg.ReceiverTLS.Enabled, "receiver-tls-enabled", false, "Sink: enable TLS")
	fs.StringVar(&cfg.ReceiverTLS.CertFile, "receiver-tls-cert", "", "Sink: server certificate file")
	fs.StringVar(&cfg.ReceiverTLS.KeyFile, "receiver-tls-key", "", "Sink: server private key file")
	fs.StringVar(&cfg.ReceiverTLS.CAFile, "receiver-tls-ca", "", "Sink: CA for client verification")
	fs.BoolVar(&cfg.ReceiverTLS.ClientAuth, "receiver-tls-client-auth", false, "Sink: require client certificates")
	fs.BoolVar(&cfg.ReceiverAuth.Enabled, "receiver-auth-enabled", false, "Sink: require credentials")
	fs.StringVar(&cfg.ReceiverAuth.BearerToken, "receiver-auth-bearer-token", "", "Sink: expected bearer token")
	fs.StringVar(&cfg.ReceiverAuth.BasicAuthUsername, "receiver-auth-basic-username", "", "Sink: basic auth username")
	fs.StringVar(&cfg.ReceiverAuth.BasicAuthPassword, "receiver-auth-basic-password", "", "Sink: basic auth password")

	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version")
}

// Load parses args. When -config names a file, its values replace the
// defaults and flags set explicitly on the command line are applied on top.
// -help prints usage to output and returns flag.ErrHelp.
func Load(name string, args []string, output io.Writer) (*Config, error) {
	flagCfg := DefaultConfig()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "%s %s\n\nUsage of %s:\n", name, version, name)
		fs.PrintDefaults()
	}
	bindFlags(fs, flagCfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if flagCfg.ShowHelp {
		fs.Usage()
		return nil, flag.ErrHelp
	}
	if flagCfg.ConfigFile == "" {
		return flagCfg, nil
	}

	y, err := LoadYAML(flagCfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", flagCfg.ConfigFile, err)
	}
	cfg := y.ToConfig()
	applyFlagOverrides(fs, cfg, flagCfg)
	return cfg, nil
}

// applyFlagOverrides copies every explicitly set flag from src to dst.
func applyFlagOverrides(fs *flag.FlagSet, dst, src *Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config":
			dst.ConfigFile = src.ConfigFile
		case "endpoint":
			dst.Endpoint = src.Endpoint
		case "database":
			dst.Database = src.Database
		case "insecure":
			dst.Insecure = src.Insecure
		case "open-timeout":
			dst.OpenTimeout = src.OpenTimeout
		case "probe-timeout":
			dst.ProbeTimeout = src.ProbeTimeout
		case "compression":
			dst.Compression = src.Compression
		case "tls-cert":
			dst.TLS.CertFile = src.TLS.CertFile
		case "tls-key":
			dst.TLS.KeyFile = src.TLS.KeyFile
		case "tls-ca":
			dst.TLS.CAFile = src.TLS.CAFile
		case "tls-server-name":
			dst.TLS.ServerName = src.TLS.ServerName
		case "tls-insecure-skip-verify":
			dst.TLS.InsecureSkipVerify = src.TLS.InsecureSkipVerify
		case "auth-bearer-token":
			dst.Auth.BearerToken = src.Auth.BearerToken
		case "auth-basic-username":
			dst.Auth.BasicAuthUsername = src.Auth.BasicAuthUsername
		case "auth-basic-password":
			dst.Auth.BasicAuthPassword = src.Auth.BasicAuthPassword
		case "buffer-capacity":
			dst.BufferCapacity = src.BufferCapacity
		case "max-batch-bytes":
			dst.MaxBatchBytes = src.MaxBatchBytes
		case "stats-addr":
			dst.StatsAddr = src.StatsAddr
		case "stats-interval":
			dst.StatsInterval = src.StatsInterval
		case "cardinality-mode":
			dst.CardinalityMode = src.CardinalityMode
		case "cardinality-expected-series":
			dst.ExpectedSeries = src.ExpectedSeries
		case "log-level":
			dst.LogLevel = src.LogLevel
		case "memory-limit-ratio":
			dst.MemoryLimitRatio = src.MemoryLimitRatio
		case "telemetry-endpoint":
			dst.TelemetryEndpoint = src.TelemetryEndpoint
		case "telemetry-protocol":
			dst.TelemetryProtocol = src.TelemetryProtocol
		case "telemetry-insecure":
			dst.TelemetryInsecure = src.TelemetryInsecure
		case "telemetry-push-interval":
			dst.TelemetryPushInterval = src.TelemetryPushInterval
		case "records":
			dst.Records = src.Records
		case "producers":
			dst.Producers = src.Producers
		case "rows-per-insert":
			dst.RowsPerInsert = src.RowsPerInsert
		case "listen":
			dst.Listen = src.Listen
		case "receiver-tls-enabled":
			dst.ReceiverTLS.Enabled = src.ReceiverTLS.Enabled
		case "receiver-tls-cert":
			dst.ReceiverTLS.CertFile = src.ReceiverTLS.CertFile
		case "receiver-tls-key":
			dst.ReceiverTLS.KeyFile = src.ReceiverTLS.KeyFile
		case "receiver-tls-ca":
			dst.ReceiverTLS.CAFile = src.ReceiverTLS.CAFile
		case "receiver-tls-client-auth":
			dst.ReceiverTLS.ClientAuth = src.ReceiverTLS.ClientAuth
		case "receiver-auth-enabled":
			dst.ReceiverAuth.Enabled = src.ReceiverAuth.Enabled
		case "receiver-auth-bearer-token":
			dst.ReceiverAuth.BearerToken = src.ReceiverAuth.BearerToken
		case "receiver-auth-basic-username":
			dst.ReceiverAuth.BasicAuthUsername = src.ReceiverAuth.BasicAuthUsername
		case "receiver-auth-basic-password":
			dst.ReceiverAuth.BasicAuthPassword = src.ReceiverAuth.BasicAuthPassword
		case "help":
			dst.ShowHelp = src.ShowHelp
		case "version":
			dst.ShowVersion = src.ShowVersion
		}
	})
}

// TransportConfig returns the client connection settings.
func (c *Config) TransportConfig() (transport.Config, error) {
	comp, err := compression.ParseType(c.Compression)
	if err != nil {
		return transport.Config{}, err
	}
	tlsCfg := c.TLS
	tlsCfg.Enabled = !c.Insecure
	return transport.Config{
		Endpoint:     c.Endpoint,
		TLS:          tlsCfg,
		Auth:         c.Auth,
		Compression:  comp,
		ProbeTimeout: c.ProbeTimeout,
		OpenTimeout:  c.OpenTimeout,
	}, nil
}

// ClientConfig returns the database client settings.
func (c *Config) ClientConfig() (client.Config, error) {
	tc, err := c.TransportConfig()
	if err != nil {
		return client.Config{}, err
	}
	return client.Config{Database: c.Database, Transport: tc}, nil
}

// ReceiverConfig returns the ingest sink settings.
func (c *Config) ReceiverConfig() receiver.Config {
	return receiver.Config{
		Addr: c.Listen,
		TLS:  c.ReceiverTLS,
		Auth: c.ReceiverAuth,
	}
}

// CardinalityConfig returns the series tracker settings.
func (c *Config) CardinalityConfig() (cardinality.Config, error) {
	mode, err := cardinality.ParseMode(c.CardinalityMode)
	if err != nil {
		return cardinality.Config{}, err
	}
	cfg := cardinality.DefaultConfig()
	cfg.Mode = mode
	if c.ExpectedSeries > 0 {
		cfg.ExpectedItems = c.ExpectedSeries
	}
	return cfg, nil
}

// TelemetryConfig returns the self-telemetry settings.
func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Endpoint:     c.TelemetryEndpoint,
		Protocol:     c.TelemetryProtocol,
		Insecure:     c.TelemetryInsecure,
		PushInterval: c.TelemetryPushInterval,
	}
}
