package netinfo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned when the device's network address cannot be
// determined. Callers treat this as fatal to the operation in flight; the
// address is required on every session and scan record for audit.
var ErrUnavailable = errors.New("network address unavailable")

// Lookup resolves the device's current IP address.
type Lookup interface {
	CurrentIP(ctx context.Context) (string, error)
}

// Client calls the network-info microservice, which answers with the caller's
// IP as a plain-text body.
type Client struct {
	BaseURL  string
	StaticIP string
	HTTP     *http.Client
}

// New creates a client. When staticIP is non-empty it is returned without any
// network call (dev and test environments).
func New(baseURL, staticIP string) *Client {
	return &Client{
		BaseURL:  baseURL,
		StaticIP: staticIP,
		HTTP:     &http.Client{Timeout: 5 * time.Second},
	}
}

// CurrentIP returns the device's current IP address or ErrUnavailable.
func (c *Client) CurrentIP(ctx context.Context) (string, error) {
	if c.StaticIP != "" {
		return c.StaticIP, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return ip, nil
}
