package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/newsnexus/horosafe"
)

const maxHTTPResponseBody int64 = 10 << 20

type httpConfig struct {
	TimeoutMs   int64  `json:"timeout_ms"`
	ContentType string `json:"content_type"`
}

type httpFactoryOpts struct {
	validate func(string) error
	client   *http.Client
}

// HTTPOption configures HTTPFactory.
type HTTPOption func(*httpFactoryOpts)

// WithEndpointValidator replaces the SSRF check run on each endpoint.
// Tests pass a no-op to reach httptest servers on loopback.
func WithEndpointValidator(fn func(string) error) HTTPOption {
	return func(o *httpFactoryOpts) { o.validate = fn }
}

// WithHTTPClient overrides the client. Its Timeout is replaced when the
// route config sets timeout_ms.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *httpFactoryOpts) { o.client = c }
}

// HTTPFactory creates Handlers that POST the payload to the route endpoint.
// Per-route config JSON may set timeout_ms and content_type.
func HTTPFactory(opts ...HTTPOption) TransportFactory {
	o := httpFactoryOpts{validate: horosafe.ValidateURL}
	for _, fn := range opts {
		fn(&o)
	}

	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if err := o.validate(endpoint); err != nil {
			return nil, nil, fmt.Errorf("connectivity/http: %w", err)
		}

		var cfg httpConfig
		if len(config) > 0 {
			_ = json.Unmarshal(config, &cfg)
		}
		contentType := "application/json"
		if cfg.ContentType != "" {
			contentType = cfg.ContentType
		}

		client := &http.Client{Timeout: 30 * time.Second}
		if o.client != nil {
			c := *o.client
			client = &c
		}
		if cfg.TimeoutMs > 0 {
			client.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", contentType)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := horosafe.LimitedReadAll(resp.Body, maxHTTPResponseBody)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, &ErrRemoteStatus{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
			}
			return body, nil
		}

		return handler, client.CloseIdleConnections, nil
	}
}
