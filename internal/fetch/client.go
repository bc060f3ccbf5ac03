package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"
)

// Client performs the outbound read. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func NewClient(cfg Config, hc *http.Client) *Client {
	cfg = cfg.withDefaults()
	if hc == nil {
		hc = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	c := &Client{http: hc, userAgent: cfg.UserAgent}
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return c
}

// Records GETs url and decodes a JSON array of objects. Each element is kept verbatim so
// object key order survives the round trip.
func (c *Client) Records(ctx context.Context, url string) ([]json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrNetwork, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: unexpected status %s", ErrNetwork, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrPayload, maxBodyBytes)
	}
	return decodeRecords(body)
}

func decodeRecords(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrPayload)
	}
	records := []json.RawMessage{}
	if err := sonic.ConfigStd.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	for i, r := range records {
		if r = bytes.TrimSpace(r); len(r) == 0 || r[0] != '{' {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrPayload, i)
		}
	}
	return records, nil
}

// encodeRecords renders records as a 2-space indented JSON array. Equal input
// always yields identical bytes.
func encodeRecords(records []json.RawMessage) ([]byte, error) {
	if records == nil {
		records = []json.RawMessage{}
	}
	return sonic.ConfigStd.MarshalIndent(records, "", "  ")
}
