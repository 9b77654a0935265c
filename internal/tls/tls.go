// Package tls turns file-based TLS settings into gRPC transport credentials.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ServerConfig holds TLS configuration for the ingest receiver.
type ServerConfig struct {
	// Enabled enables TLS for the server.
	Enabled bool `yaml:"enabled"`
	// CertFile is the path to the server certificate file.
	CertFile string `yaml:"cert_file"`
	// KeyFile is the path to the server private key file.
	KeyFile string `yaml:"key_file"`
	// CAFile is the path to the CA certificate file for client verification (mTLS).
	CAFile string `yaml:"ca_file"`
	// ClientAuth requires clients to present a certificate signed by CAFile.
	ClientAuth bool `yaml:"client_auth"`
}

// ClientConfig holds TLS configuration for the inserter's connection.
type ClientConfig struct {
	// Enabled enables TLS for the client.
	Enabled bool `yaml:"enabled"`
	// CertFile is the path to the client certificate file (for mTLS).
	CertFile string `yaml:"cert_file"`
	// KeyFile is the path to the client private key file (for mTLS).
	KeyFile string `yaml:"key_file"`
	// CAFile is the path to the CA certificate file for server verification.
	CAFile string `yaml:"ca_file"`
	// InsecureSkipVerify skips server certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
	// ServerName overrides the server name for certificate verification.
	ServerName string `yaml:"server_name"`
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("failed to parse CA certificate %s", path)
	}
	return pool, nil
}

// NewServerTLSConfig creates a TLS configuration for servers. It returns nil
// when TLS is disabled.
func NewServerTLSConfig(cfg ServerConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.ClientAuth {
		if cfg.CAFile == "" {
			return nil, fmt.Errorf("client auth requires a CA file")
		}
		pool, err := loadCertPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsConfig, nil
}

// NewClientTLSConfig creates a TLS configuration for clients. It returns nil
// when TLS is disabled.
func NewClientTLSConfig(cfg ClientConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		ServerName:         cfg.ServerName,
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		pool, err := loadCertPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// ClientCredentials returns gRPC transport credentials for cfg, falling back
// to plaintext when TLS is disabled.
func ClientCredentials(cfg ClientConfig) (credentials.TransportCredentials, error) {
	tlsConfig, err := NewClientTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	if tlsConfig == nil {
		return insecure.NewCredentials(), nil
	}
	return credentials.NewTLS(tlsConfig), nil
}

// ServerCredentials returns gRPC server credentials for cfg, or nil when TLS
// is disabled.
func ServerCredentials(cfg ServerConfig) (credentials.TransportCredentials, error) {
	tlsConfig, err := NewServerTLSConfig(cfg)
	if err != nil || tlsConfig == nil {
		return nil, err
	}
	return credentials.NewTLS(tlsConfig), nil
}
