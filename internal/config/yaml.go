package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/szibis/stream-inserter/internal/auth"
	tlspkg "github.com/szibis/stream-inserter/internal/tls"
	"gopkg.in/yaml.v3"
)

// YAMLConfig is the configuration file layout. Omitted values keep their
// defaults.
type YAMLConfig struct {
	Client      ClientYAMLConfig      `yaml:"client"`
	Inserter    InserterYAMLConfig    `yaml:"inserter"`
	Stats       StatsYAMLConfig       `yaml:"stats"`
	Cardinality CardinalityYAMLConfig `yaml:"cardinality"`
	Log         LogYAMLConfig         `yaml:"log"`
	Memory      MemoryYAMLConfig      `yaml:"memory"`
	Telemetry   TelemetryYAMLConfig   `yaml:"telemetry"`
	Demo        DemoYAMLConfig        `yaml:"demo"`
	Sink        SinkYAMLConfig        `yaml:"sink"`
}

type ClientYAMLConfig struct {
	Endpoint     string              `yaml:"endpoint"`
	Database     string              `yaml:"database"`
	Insecure     *bool               `yaml:"insecure"`
	OpenTimeout  Duration            `yaml:"open_timeout"`
	ProbeTimeout Duration            `yaml:"probe_timeout"`
	Compression  string              `yaml:"compression"`
	TLS          tlspkg.ClientConfig `yaml:"tls"`
	Auth         auth.ClientConfig   `yaml:"auth"`
}

type InserterYAMLConfig struct {
	BufferCapacity int      `yaml:"buffer_capacity"`
	MaxBatchBytes  ByteSize `yaml:"max_batch_bytes"`
}

type StatsYAMLConfig struct {
	Address  *string  `yaml:"address"`
	Interval Duration `yaml:"interval"`
}

type CardinalityYAMLConfig struct {
	Mode           string `yaml:"mode"`
	ExpectedSeries uint   `yaml:"expected_series"`
}

type LogYAMLConfig struct {
	Level string `yaml:"level"`
}

// MemoryYAMLConfig sets GOMEMLIMIT relative to the container limit.
type MemoryYAMLConfig struct {
	LimitRatio *float64 `yaml:"limit_ratio"`
}

type TelemetryYAMLConfig struct {
	Endpoint     string   `yaml:"endpoint"`
	Protocol     string   `yaml:"protocol"`
	Insecure     *bool    `yaml:"insecure"`
	PushInterval Duration `yaml:"push_interval"`
}

type DemoYAMLConfig struct {
	Records       int `yaml:"records"`
	Producers     int `yaml:"producers"`
	RowsPerInsert int `yaml:"rows_per_insert"`
}

type SinkYAMLConfig struct {
	Listen string              `yaml:"listen"`
	TLS    tlspkg.ServerConfig `yaml:"tls"`
	Auth   auth.ServerConfig   `yaml:"auth"`
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize accepts a plain byte count or a Ki, Mi or Gi suffixed value.
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return FormatByteSize(int64(b)), nil
}

var byteSuffixes = []struct {
	name string
	mult int64
}{
	{"Gi", 1 << 30},
	{"Mi", 1 << 20},
	{"Ki", 1 << 10},
}

// ParseByteSize parses "2843Ki", "1.5Mi" or a plain integer.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for _, sf := range byteSuffixes {
		if !strings.HasSuffix(s, sf.name) {
			continue
		}
		var f float64
		num := strings.TrimSpace(strings.TrimSuffix(s, sf.name))
		if _, err := fmt.Sscanf(num, "%g", &f); err != nil || f < 0 {
			return 0, fmt.Errorf("invalid byte size: %q", s)
		}
		return int64(f * float64(sf.mult)), nil
	}
	var n int64
	var trail string
	if c, _ := fmt.Sscanf(s, "%d%s", &n, &trail); c == 2 {
		return 0, fmt.Errorf("invalid byte size: %q (use Ki, Mi or Gi suffixes)", s)
	}
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	return n, nil
}

// FormatByteSize uses the largest suffix that divides b exactly.
func FormatByteSize(b int64) string {
	for _, sf := range byteSuffixes {
		if b >= sf.mult && b%sf.mult == 0 {
			return fmt.Sprintf("%d%s", b/sf.mult, sf.name)
		}
	}
	return fmt.Sprintf("%d", b)
}

// LoadYAML reads and parses a configuration file.
func LoadYAML(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}

// ParseYAML parses a configuration document. Unknown keys are an error.
func ParseYAML(data []byte) (*YAMLConfig, error) {
	y := &YAMLConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(y); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return y, nil
}

// ToConfig overlays the file's values on DefaultConfig.
func (y *YAMLConfig) ToConfig() *Config {
	cfg := DefaultConfig()

	setString(&cfg.Endpoint, y.Client.Endpoint)
	setString(&cfg.Database, y.Client.Database)
	setBool(&cfg.Insecure, y.Client.Insecure)
	setDuration(&cfg.OpenTimeout, y.Client.OpenTimeout)
	setDuration(&cfg.ProbeTimeout, y.Client.ProbeTimeout)
	setString(&cfg.Compression, y.Client.Compression)
	cfg.TLS = y.Client.TLS
	cfg.Auth = y.Client.Auth

	if y.Inserter.BufferCapacity != 0 {
		cfg.BufferCapacity = y.Inserter.BufferCapacity
	}
	if y.Inserter.MaxBatchBytes != 0 {
		cfg.MaxBatchBytes = int64(y.Inserter.MaxBatchBytes)
	}

	if y.Stats.Address != nil {
		cfg.StatsAddr = *y.Stats.Address
	}
	setDuration(&cfg.StatsInterval, y.Stats.Interval)
	setString(&cfg.CardinalityMode, y.Cardinality.Mode)
	if y.Cardinality.ExpectedSeries != 0 {
		cfg.ExpectedSeries = y.Cardinality.ExpectedSeries
	}

	setString(&cfg.LogLevel, y.Log.Level)
	if y.Memory.LimitRatio != nil {
		cfg.MemoryLimitRatio = *y.Memory.LimitRatio
	}

	setString(&cfg.TelemetryEndpoint, y.Telemetry.Endpoint)
	setString(&cfg.TelemetryProtocol, y.Telemetry.Protocol)
	setBool(&cfg.TelemetryInsecure, y.Telemetry.Insecure)
	setDuration(&cfg.TelemetryPushInterval, y.Telemetry.PushInterval)

	if y.Demo.Records != 0 {
		cfg.Records = y.Demo.Records
	}
	if y.Demo.Producers != 0 {
		cfg.Producers = y.Demo.Producers
	}
	if y.Demo.RowsPerInsert != 0 {
		cfg.RowsPerInsert = y.Demo.RowsPerInsert
	}

	setString(&cfg.Listen, y.Sink.Listen)
	cfg.ReceiverTLS = y.Sink.TLS
	cfg.ReceiverAuth = y.Sink.Auth
	return cfg
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v Duration) {
	if v != 0 {
		*dst = time.Duration(v)
	}
}
