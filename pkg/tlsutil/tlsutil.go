// Package tlsutil builds client-side TLS configurations for transport
// providers. The SDK only ever dials, so there is no server half here.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/twinstreams/errors"
)

// ClientConfig describes how a transport provider verifies and presents
// certificates. The zero value yields system trust roots and TLS 1.2+.
type ClientConfig struct {
	// CAFiles are additional trusted CA certificates in PEM form, appended
	// to the system pool. For backends with private PKI.
	CAFiles []string `json:"ca_files,omitempty" yaml:"ca_files,omitempty"`

	// CertFile and KeyFile enable mutual TLS when both are set.
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`

	// ServerName overrides the hostname used for certificate verification.
	ServerName string `json:"server_name,omitempty" yaml:"server_name,omitempty"`

	// MinVersion is "1.2" or "1.3". Empty or unknown falls back to 1.2.
	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty"`

	// InsecureSkipVerify disables certificate verification. Test setups
	// only; operators opting in know the implications.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

// IsZero reports whether the config requests nothing beyond defaults, which
// lets callers skip TLS entirely for plaintext endpoints.
func (c ClientConfig) IsZero() bool {
	return len(c.CAFiles) == 0 && c.CertFile == "" && c.KeyFile == "" &&
		c.ServerName == "" && c.MinVersion == "" && !c.InsecureSkipVerify
}

// LoadClientTLS creates a tls.Config from the client config. The system CA
// bundle is always the base; CAFiles add to it.
func LoadClientTLS(cfg ClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
		ServerName: cfg.ServerName,
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		// System pool unavailable, start from an empty pool.
		rootCAs = x509.NewCertPool()
	}

	for _, caFile := range cfg.CAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLS", fmt.Sprintf("read CA file %s", caFile))
		}
		if !rootCAs.AppendCertsFromPEM(caPEM) {
			return nil, errors.WrapFatal(
				fmt.Errorf("invalid PEM data"),
				"tlsutil",
				"LoadClientTLS",
				fmt.Sprintf("parse CA certificate from %s", caFile),
			)
		}
	}

	tlsConfig.RootCAs = rootCAs

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		clientCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLS", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}

// parseTLSVersion converts version string to crypto/tls constant
// Returns tls.VersionTLS12 if empty or invalid
func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	case "1.2":
		return tls.VersionTLS12
	default:
		return tls.VersionTLS12 // Safe default
	}
}
