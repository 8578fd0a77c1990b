package catalog

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewHTTPTransport builds the shared *http.Client every HTTPClient is built
// around (§5 "shared HTTP client pool for catalog calls"), honoring §6's
// verifySsl/httpTimeoutSeconds knobs and the HTTP_PROXY/HTTPS_PROXY/NO_PROXY
// environment variables.
func NewHTTPTransport(timeout time.Duration, verifySSL bool) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !verifySSL,
		},
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}
