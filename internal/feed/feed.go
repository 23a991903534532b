// Package feed fetches the plain-text, newline-delimited list of disposable
// e-mail domains from a remote source.
package feed

import (
	"context"
	"fmt"
	"io"
)

// MaxBytes caps how much of a feed is read.
const MaxBytes = 64 << 20

// Source fetches the raw feed body.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// StatusError reports a non-2xx response from an HTTP feed.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func readAll(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return "", err
	}
	if len(b) > MaxBytes {
		return "", fmt.Errorf("feed exceeds %d bytes", MaxBytes)
	}
	return string(b), nil
}
