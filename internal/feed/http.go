package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPSource fetches the feed with a single GET.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource returns a source for url. A zero timeout leaves the request
// bounded only by ctx.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

var _ Source = (*HTTPSource)(nil)

func (s *HTTPSource) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode > 300 {
		return "", &StatusError{URL: s.url, StatusCode: resp.StatusCode}
	}
	body, err := readAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", s.url, err)
	}
	return body, nil
}
