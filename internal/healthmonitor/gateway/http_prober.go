package gateway

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// HTTPProber is the default Prober backed by net/http.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates an HTTPProber. The timeout is set per-call via the
// context passed to Probe, so the client itself carries no default timeout.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Probe issues a single POST request and reports the elapsed time regardless
// of outcome. It never returns an error for ordinary HTTP/network failures —
// those are folded into ProbeHTTPResult so the caller can classify them.
func (p *HTTPProber) Probe(ctx context.Context, endpoint string, headers map[string]string, body []byte, timeout time.Duration) (*ProbeHTTPResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	elapsedMs := float64(elapsed.Microseconds()) / 1000.0

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &ProbeHTTPResult{ResponseTimeMs: elapsedMs, Timeout: true}, nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return &ProbeHTTPResult{ResponseTimeMs: elapsedMs, Timeout: true}, nil
		}
		return &ProbeHTTPResult{ResponseTimeMs: elapsedMs, NetworkError: err}, nil
	}
	defer resp.Body.Close()

	return &ProbeHTTPResult{StatusCode: resp.StatusCode, ResponseTimeMs: elapsedMs}, nil
}
