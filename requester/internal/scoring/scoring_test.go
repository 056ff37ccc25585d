package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/newsnexus/connectivity"
	"github.com/hazyhaar/newsnexus/dbopen"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type countingCaller struct {
	calls   atomic.Int32
	failFor int32
	service string
}

func (c *countingCaller) Call(_ context.Context, service string, _ []byte) ([]byte, error) {
	c.service = service
	if n := c.calls.Add(1); n <= c.failFor {
		return nil, errors.New("scorer busy")
	}
	return []byte("ok"), nil
}

func TestTrigger_RetriesThenSucceeds(t *testing.T) {
	c := &countingCaller{failFor: 1}
	tr := NewTrigger(c, Config{MaxRetries: 2, Backoff: time.Millisecond}, quiet())
	if err := tr.Trigger(context.Background()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if c.calls.Load() != 2 || c.service != ServiceName {
		t.Fatalf("calls=%d service=%q", c.calls.Load(), c.service)
	}
}

func TestTrigger_ReturnsError(t *testing.T) {
	c := &countingCaller{failFor: 10}
	tr := NewTrigger(c, Config{MaxRetries: 1, Backoff: time.Millisecond}, quiet())
	if err := tr.Trigger(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSetup_LocalByDefault(t *testing.T) {
	// WHAT: Without an endpoint the local handler answers the call.
	// WHY: A fresh install has no scorer; rate limiting must still complete.
	db := dbopen.OpenMemory(t)
	r := connectivity.New(connectivity.WithLogger(quiet()))
	if err := Setup(context.Background(), db, r, Config{}, quiet()); err != nil {
		t.Fatal(err)
	}
	if got := r.Strategy(ServiceName); got != "local" {
		t.Fatalf("strategy: got %q", got)
	}
	resp, err := r.Call(context.Background(), ServiceName, []byte(`{}`))
	if err != nil || string(resp) != `{"status":"skipped"}` {
		t.Fatalf("resp=%q err=%v", resp, err)
	}
}

func TestSetup_HTTPEndpoint(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"status":"done"}`))
	}))
	defer srv.Close()

	db := dbopen.OpenMemory(t)
	r := connectivity.New(connectivity.WithLogger(quiet()))
	err := Setup(context.Background(), db, r, Config{Endpoint: srv.URL}, quiet(),
		connectivity.WithEndpointValidator(func(string) error { return nil }))
	if err != nil {
		t.Fatal(err)
	}

	tr := NewTrigger(r, Config{}, quiet())
	if err := tr.Trigger(context.Background()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if got.Reason != "rate_limited" || got.TriggeredAt == "" {
		t.Fatalf("payload: got %+v", got)
	}
}

func TestSetup_Noop(t *testing.T) {
	db := dbopen.OpenMemory(t)
	r := connectivity.New(connectivity.WithLogger(quiet()))
	if err := Setup(context.Background(), db, r, Config{Strategy: "noop"}, quiet()); err != nil {
		t.Fatal(err)
	}
	resp, err := r.Call(context.Background(), ServiceName, nil)
	if err != nil || resp != nil {
		t.Fatalf("noop: resp=%q err=%v", resp, err)
	}
}
