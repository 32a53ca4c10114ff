package imap

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	certPoolOnce sync.Once
	certPool     *x509.CertPool
	certPoolErr  error
)

// loadCertPool reads every *.pem/*.crt file under dir once per process
// and merges it into the system root pool. Operators mount
// provider-specific intermediate CAs (self-hosted IMAP, corporate MITM
// proxies) there; the result is cached because re-reading and
// re-parsing a CA bundle on every connection is wasted work under
// sync concurrency (§5: many accounts reconnect per tick).
func loadCertPool(dir string) (*x509.CertPool, error) {
	certPoolOnce.Do(func() {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if dir == "" {
			certPool = pool
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			certPoolErr = fmt.Errorf("reading CERTS_DIR %s: %w", dir, err)
			return
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := filepath.Ext(entry.Name())
			if ext != ".pem" && ext != ".crt" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				certPoolErr = fmt.Errorf("reading cert %s: %w", entry.Name(), err)
				return
			}
			pool.AppendCertsFromPEM(data)
		}
		certPool = pool
	})
	return certPool, certPoolErr
}

// tlsConfig builds the *tls.Config used for every IMAP connection.
// rejectUnauthorized=false turns off certificate verification in any
// environment (matches Node-ecosystem TLS_REJECT_UNAUTHORIZED semantics
// referenced in §6) and must never be set in production.
func tlsConfig(host, certsDir string, rejectUnauthorized bool) (*tls.Config, error) {
	pool, err := loadCertPool(certsDir)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		ServerName:         host,
		RootCAs:            pool,
		InsecureSkipVerify: !rejectUnauthorized,
		MinVersion:         tls.VersionTLS12,
	}, nil
}
