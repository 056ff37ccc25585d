// Package scoring triggers the external semantic scorer when the feed
// provider throttles us. The call goes through the connectivity router
// under the service name "semantic_scorer": an http route when an endpoint
// is configured, a logging local handler otherwise.
package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/newsnexus/connectivity"
)

// ServiceName is the routed service name of the scorer.
const ServiceName = "semantic_scorer"

// Trigger is a no-argument asynchronous action awaited by the caller.
type Trigger interface {
	Trigger(ctx context.Context) error
}

// Caller dispatches a named service call.
type Caller interface {
	Call(ctx context.Context, service string, payload []byte) ([]byte, error)
}

// Config configures the scorer route.
type Config struct {
	// Endpoint, when set, routes calls over http to this URL.
	Endpoint string
	// Strategy overrides the route strategy: "local", "http" or "noop".
	Strategy   string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

func (c *Config) defaults() {
	if c.Strategy == "" {
		c.Strategy = "local"
		if c.Endpoint != "" {
			c.Strategy = "http"
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
}

type payload struct {
	Reason      string `json:"reason"`
	TriggeredAt string `json:"triggered_at"`
}

// RouterTrigger calls the scorer through a Caller with timeout and retry.
type RouterTrigger struct {
	call   connectivity.Handler
	logger *slog.Logger
	now    func() time.Time
}

// NewTrigger wraps c with logging, per-call timeout and retry.
func NewTrigger(c Caller, cfg Config, logger *slog.Logger) *RouterTrigger {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	base := func(ctx context.Context, p []byte) ([]byte, error) {
		return c.Call(ctx, ServiceName, p)
	}
	return &RouterTrigger{
		call: connectivity.Chain(
			connectivity.Logging(logger, ServiceName),
			connectivity.WithRetry(cfg.MaxRetries, cfg.Backoff, logger),
			connectivity.WithTimeout(cfg.Timeout),
			connectivity.Recovery(logger),
		)(base),
		logger: logger,
		now:    time.Now,
	}
}

// Trigger runs the scorer and waits for it to finish.
func (t *RouterTrigger) Trigger(ctx context.Context) error {
	body, err := json.Marshal(payload{Reason: "rate_limited", TriggeredAt: t.now().UTC().Format(time.RFC3339)})
	if err != nil {
		return err
	}
	t.logger.Info("scoring: triggering semantic scorer")
	if _, err := t.call(ctx, body); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	return nil
}

// Setup registers the scorer transports and local handler on r, writes
// the route for cfg into the routes table and reloads r.
func Setup(ctx context.Context, db *sql.DB, r *connectivity.Router, cfg Config, logger *slog.Logger, opts ...connectivity.HTTPOption) error {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := connectivity.Init(db); err != nil {
		return fmt.Errorf("scoring: init routes: %w", err)
	}
	r.RegisterTransport("http", connectivity.HTTPFactory(opts...))
	r.RegisterLocal(ServiceName, LocalHandler(logger))

	routeCfg := fmt.Sprintf(`{"timeout_ms":%d}`, cfg.Timeout.Milliseconds())
	if err := connectivity.SetRoute(ctx, db, ServiceName, cfg.Strategy, cfg.Endpoint, routeCfg); err != nil {
		return err
	}
	return r.Reload(ctx, db)
}

// LocalHandler is the in-process scorer used when no endpoint is set. It
// only records the request.
func LocalHandler(logger *slog.Logger) connectivity.Handler {
	return func(ctx context.Context, p []byte) ([]byte, error) {
		var req payload
		_ = json.Unmarshal(p, &req)
		logger.InfoContext(ctx, "scoring: no scorer endpoint configured, skipping", "reason", req.Reason)
		return []byte(`{"status":"skipped"}`), nil
	}
}
