package publish

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// newHTTPClient creates an HTTP client with HTTP/2 enabled on its transport.
// One artifact is uploaded per run, so the pool is kept small.
func newHTTPClient() (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// Enable HTTP/2
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to configure HTTP/2: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   120 * time.Second,
	}, nil
}
