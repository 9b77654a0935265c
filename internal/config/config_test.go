package config

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/szibis/stream-inserter/internal/cardinality"
	"github.com/szibis/stream-inserter/internal/compression"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("stream-inserter", nil, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BufferCapacity != 1_000_000 || cfg.MaxBatchBytes != 2_981_328 {
		t.Errorf("capacity=%d max-batch-bytes=%d", cfg.BufferCapacity, cfg.MaxBatchBytes)
	}
	if cfg.Database != "public" || !cfg.Insecure {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := Load("stream-inserter", []string{
		"-endpoint", "db:4001",
		"-database", "weather",
		"-compression", "zstd",
		"-buffer-capacity", "64",
		"-probe-timeout", "2s",
		"-auth-bearer-token", "tok",
	}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != "db:4001" || cfg.Database != "weather" || cfg.BufferCapacity != 64 {
		t.Errorf("flags not applied: %+v", cfg)
	}

	tc, err := cfg.TransportConfig()
	if err != nil {
		t.Fatal(err)
	}
	if tc.Compression != compression.TypeZstd || tc.ProbeTimeout != 2*time.Second || tc.Auth.BearerToken != "tok" {
		t.Errorf("TransportConfig() = %+v", tc)
	}
	if tc.TLS.Enabled {
		t.Error("TLS enabled while -insecure is true")
	}
}

func TestLoad_YAMLWithFlagOverride(t *testing.T) {
	path := writeFile(t, `
client:
  endpoint: yaml-db:4001
  database: metrics
  insecure: false
  probe_timeout: 1s
  tls:
    ca_file: /etc/ca.pem
inserter:
  buffer_capacity: 500
  max_batch_bytes: 1Mi
cardinality:
  mode: hll
log:
  level: debug
demo:
  producers: 8
`)
	cfg, err := Load("stream-inserter", []string{"-config", path, "-database", "override"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != "yaml-db:4001" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.Database != "override" {
		t.Errorf("explicit flag should win, Database = %q", cfg.Database)
	}
	if cfg.BufferCapacity != 500 || cfg.MaxBatchBytes != 1<<20 || cfg.Producers != 8 {
		t.Errorf("yaml not applied: %+v", cfg)
	}
	if cfg.StatsAddr != ":9090" || cfg.Records != 1000 {
		t.Errorf("omitted keys should keep defaults: %+v", cfg)
	}

	tc, err := cfg.TransportConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !tc.TLS.Enabled || tc.TLS.CAFile != "/etc/ca.pem" {
		t.Errorf("TLS = %+v", tc.TLS)
	}
	cc, err := cfg.CardinalityConfig()
	if err != nil || cc.Mode != cardinality.ModeHLL {
		t.Errorf("CardinalityConfig() = %+v, %v", cc, err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load("x", []string{"-no-such-flag"}, io.Discard); err == nil {
		t.Error("expected unknown flag error")
	}
	if _, err := Load("x", []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, io.Discard); err == nil {
		t.Error("expected missing file error")
	}
	path := writeFile(t, "client:\n  endpont: typo\n")
	if _, err := Load("x", []string{"-config", path}, io.Discard); err == nil {
		t.Error("expected unknown key error")
	}
}

func TestLoad_Help(t *testing.T) {
	var out bytes.Buffer
	cfg, err := Load("stream-inserter", []string{"-help"}, &out)
	if !errors.Is(err, flag.ErrHelp) || cfg != nil {
		t.Fatalf("Load(-help) = %v, %v", cfg, err)
	}
	if !strings.Contains(out.String(), "-endpoint") {
		t.Errorf("usage does not list flags:\n%s", out.String())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty database", func(c *Config) { c.Database = "" }, "database"},
		{"zero capacity", func(c *Config) { c.BufferCapacity = 0 }, "buffer-capacity"},
		{"negative ceiling", func(c *Config) { c.MaxBatchBytes = -1 }, "max-batch-bytes"},
		{"bad compression", func(c *Config) { c.Compression = "lz4" }, "compression"},
		{"bad cardinality", func(c *Config) { c.CardinalityMode = "cuckoo" }, "cardinality-mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log-level"},
		{"bad ratio", func(c *Config) { c.MemoryLimitRatio = 1.5 }, "memory-limit-ratio"},
		{"no producers", func(c *Config) { c.Producers = 0 }, "producers"},
		{"tls files with insecure", func(c *Config) { c.TLS.CAFile = "ca.pem" }, "tls"},
		{"receiver tls without cert", func(c *Config) { c.ReceiverTLS.Enabled = true }, "receiver-tls"},
		{"telemetry protocol", func(c *Config) {
			c.TelemetryEndpoint = "otel:4317"
			c.TelemetryProtocol = "udp"
		}, "telemetry-protocol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database = ""
	cfg.BufferCapacity = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "database") || !strings.Contains(err.Error(), "buffer-capacity") {
		t.Errorf("Validate() = %v", err)
	}
}

func TestTelemetryConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TelemetryEndpoint = "otel:4317"
	tc := cfg.TelemetryConfig()
	if tc.Endpoint != "otel:4317" || tc.Protocol != "grpc" || !tc.Insecure {
		t.Errorf("TelemetryConfig() = %+v", tc)
	}
}

func TestClientAndReceiverConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database = "weather"
	cfg.Listen = "127.0.0.1:0"
	cfg.ReceiverAuth.Enabled = true

	cc, err := cfg.ClientConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cc.Database != "weather" || cc.Transport.Endpoint != cfg.Endpoint {
		t.Errorf("ClientConfig() = %+v", cc)
	}
	rc := cfg.ReceiverConfig()
	if rc.Addr != "127.0.0.1:0" || !rc.Auth.Enabled {
		t.Errorf("ReceiverConfig() = %+v", rc)
	}

	cfg.Compression = "lz4"
	if _, err := cfg.ClientConfig(); err == nil {
		t.Error("expected compression error")
	}
}
