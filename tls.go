// ABOUTME: TLS settings of the update server listener.
// ABOUTME: Server certificate, plus required client certificates when a CA is configured.

package dyndns

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// tlsConfig mirrors the Corefile "tls CERT KEY [CA]" directive.
type tlsConfig struct {
	cert string
	key  string
	ca   string
}

// build loads the key pair and, when set, the client CA. Clients then have
// to present a certificate signed by it on top of their Basic credentials.
func (c *tlsConfig) build() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.cert, c.key)
	if err != nil {
		return nil, fmt.Errorf("loading TLS keypair: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if c.ca == "" {
		return cfg, nil
	}

	pool, err := loadCertPool(c.ca)
	if err != nil {
		return nil, err
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return cfg, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CA file %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA file %s contains no valid certificates", path)
	}
	return pool, nil
}
