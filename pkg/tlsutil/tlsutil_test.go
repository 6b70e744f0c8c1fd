package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateTestCert creates a self-signed certificate for testing
func generateTestCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   "localhost",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})

	keyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	return certPEM, keyPEM
}

// setupTestFiles creates temporary cert/key files for testing
func setupTestFiles(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()

	tmpDir := t.TempDir()

	certPEM, keyPEM := generateTestCert(t)

	certFile = filepath.Join(tmpDir, "cert.pem")
	keyFile = filepath.Join(tmpDir, "key.pem")
	caFile = filepath.Join(tmpDir, "ca.pem")

	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0644)) // Use same cert as CA for testing

	return certFile, keyFile, caFile
}

func TestLoadClientTLS_Defaults(t *testing.T) {
	cfg, err := LoadClientTLS(ClientConfig{})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotNil(t, cfg.RootCAs, "system pool or empty pool is always set")
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Empty(t, cfg.Certificates)
}

func TestLoadClientTLS_AdditionalCAs(t *testing.T) {
	_, _, caFile := setupTestFiles(t)

	cfg, err := LoadClientTLS(ClientConfig{
		CAFiles:    []string{caFile},
		MinVersion: "1.3",
		ServerName: "twin.example.org",
	})
	require.NoError(t, err)

	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.Equal(t, "twin.example.org", cfg.ServerName)
	assert.NotNil(t, cfg.RootCAs)
}

func TestLoadClientTLS_MutualTLS(t *testing.T) {
	certFile, keyFile, _ := setupTestFiles(t)

	cfg, err := LoadClientTLS(ClientConfig{
		CertFile: certFile,
		KeyFile:  keyFile,
	})
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
}

func TestLoadClientTLS_Errors(t *testing.T) {
	certFile, _, _ := setupTestFiles(t)
	badPEM := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(badPEM, []byte("not a certificate"), 0644))

	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{"missing CA file", ClientConfig{CAFiles: []string{"/nonexistent/ca.pem"}}},
		{"invalid CA PEM", ClientConfig{CAFiles: []string{badPEM}}},
		{"missing key file", ClientConfig{CertFile: certFile, KeyFile: "/nonexistent/key.pem"}},
		{"cert without key", ClientConfig{CertFile: certFile}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := LoadClientTLS(test.cfg)
			assert.Error(t, err)
		})
	}
}

func TestLoadClientTLS_InsecureSkipVerify(t *testing.T) {
	cfg, err := LoadClientTLS(ClientConfig{InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
}

func TestClientConfig_IsZero(t *testing.T) {
	assert.True(t, ClientConfig{}.IsZero())
	assert.False(t, ClientConfig{MinVersion: "1.3"}.IsZero())
	assert.False(t, ClientConfig{InsecureSkipVerify: true}.IsZero())
	assert.False(t, ClientConfig{CAFiles: []string{"ca.pem"}}.IsZero())
}

func TestParseTLSVersion(t *testing.T) {
	tests := []struct {
		version string
		want    uint16
	}{
		{"1.2", tls.VersionTLS12},
		{"1.3", tls.VersionTLS13},
		{"", tls.VersionTLS12},
		{"1.0", tls.VersionTLS12},
		{"garbage", tls.VersionTLS12},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, parseTLSVersion(test.version), "version %q", test.version)
	}
}
