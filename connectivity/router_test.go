package connectivity

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

	"github.com/hazyhaar/newsnexus/dbopen"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRoutes(t *testing.T) *Router {
	t.Helper()
	return New(WithLogger(quietLogger()))
}

func TestCall_LocalWithoutRoute(t *testing.T) {
	// WHAT: A service with no routes row falls back to its local handler.
	// WHY: Fresh installs have an empty routes table; scoring must still run.
	r := setupRoutes(t)
	var calls atomic.Int32
	r.RegisterLocal("semantic_scorer", func(ctx context.Context, payload []byte) ([]byte, error) {
		calls.Add(1)
		return payload, nil
	})

	resp, err := r.Call(context.Background(), "semantic_scorer", []byte("go"))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp) != "go" || calls.Load() != 1 {
		t.Fatalf("got %q after %d calls", resp, calls.Load())
	}
}

func TestCall_ServiceNotFound(t *testing.T) {
	r := setupRoutes(t)
	_, err := r.Call(context.Background(), "missing", nil)
	var snf *ErrServiceNotFound
	if !errors.As(err, &snf) || snf.Service != "missing" {
		t.Fatalf("err: got %v, want ErrServiceNotFound{missing}", err)
	}
}

func TestReload_NoopSilencesLocal(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()
	r := setupRoutes(t)
	var calls atomic.Int32
	r.RegisterLocal("semantic_scorer", func(context.Context, []byte) ([]byte, error) {
		calls.Add(1)
		return nil, nil
	})

	if err := SetRoute(ctx, db, "semantic_scorer", "noop", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(ctx, db); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Call(ctx, "semantic_scorer", nil); err != nil {
		t.Fatalf("noop call: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("local handler called %d times under noop", calls.Load())
	}
	if got := r.Strategy("semantic_scorer"); got != "noop" {
		t.Fatalf("strategy: got %q", got)
	}
}

func TestReload_RemoteOverridesLocalAndReuses(t *testing.T) {
	// WHAT: An http route wins over the local handler; unchanged routes keep
	// their handler across reloads, changed ones are rebuilt and the old closed.
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()
	r := setupRoutes(t)
	r.RegisterLocal("semantic_scorer", func(context.Context, []byte) ([]byte, error) {
		return []byte("local"), nil
	})

	var built, closed atomic.Int32
	r.RegisterTransport("http", func(endpoint string, _ json.RawMessage) (Handler, func(), error) {
		built.Add(1)
		return func(context.Context, []byte) ([]byte, error) {
			return []byte(endpoint), nil
		}, func() { closed.Add(1) }, nil
	})

	SetRoute(ctx, db, "semantic_scorer", "http", "https://scorer.example/a", "")
	r.Reload(ctx, db)
	resp, _ := r.Call(ctx, "semantic_scorer", nil)
	if string(resp) != "https://scorer.example/a" {
		t.Fatalf("resp: got %q", resp)
	}

	r.Reload(ctx, db)
	if built.Load() != 1 {
		t.Fatalf("unchanged route rebuilt: built=%d", built.Load())
	}

	SetRoute(ctx, db, "semantic_scorer", "http", "https://scorer.example/b", "")
	r.Reload(ctx, db)
	if built.Load() != 2 || closed.Load() != 1 {
		t.Fatalf("after change: built=%d closed=%d, want 2/1", built.Load(), closed.Load())
	}

	SetRoute(ctx, db, "semantic_scorer", "local", "", "")
	r.Reload(ctx, db)
	resp, _ = r.Call(ctx, "semantic_scorer", nil)
	if string(resp) != "local" || closed.Load() != 2 {
		t.Fatalf("back to local: resp=%q closed=%d", resp, closed.Load())
	}
}

func TestReload_NoFactoryFallsBackToLocal(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()
	r := setupRoutes(t)
	r.RegisterLocal("semantic_scorer", func(context.Context, []byte) ([]byte, error) {
		return []byte("local"), nil
	})
	SetRoute(ctx, db, "semantic_scorer", "http", "https://scorer.example", "")
	if err := r.Reload(ctx, db); err != nil {
		t.Fatal(err)
	}
	resp, err := r.Call(ctx, "semantic_scorer", nil)
	if err != nil || string(resp) != "local" {
		t.Fatalf("got %q, %v", resp, err)
	}
}

func TestWithRetry(t *testing.T) {
	var n atomic.Int32
	h := WithRetry(2, time.Millisecond, nil)(func(context.Context, []byte) ([]byte, error) {
		if n.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return []byte("ok"), nil
	})
	resp, err := h(context.Background(), nil)
	if err != nil || string(resp) != "ok" || n.Load() != 3 {
		t.Fatalf("resp=%q err=%v attempts=%d", resp, err, n.Load())
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	h := WithRetry(5, 50*time.Millisecond, nil)(func(context.Context, []byte) ([]byte, error) {
		n.Add(1)
		cancel()
		return nil, errors.New("down")
	})
	if _, err := h(ctx, nil); err == nil {
		t.Fatal("expected error")
	}
	if n.Load() != 1 {
		t.Fatalf("attempts after cancel: got %d, want 1", n.Load())
	}
}

func TestWithTimeout(t *testing.T) {
	h := WithTimeout(10 * time.Millisecond)(func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := h(context.Background(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err: got %v", err)
	}
}

func TestChainAndRecovery(t *testing.T) {
	var order []string
	mark := func(name string) HandlerMiddleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, p []byte) ([]byte, error) {
				order = append(order, name)
				return next(ctx, p)
			}
		}
	}
	h := Chain(mark("a"), mark("b"), Recovery(quietLogger()))(func(context.Context, []byte) ([]byte, error) {
		panic("boom")
	})
	_, err := h(context.Background(), nil)
	var p *ErrPanic
	if !errors.As(err, &p) {
		t.Fatalf("err: got %v, want ErrPanic", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order: got %v", order)
	}
}

func TestHTTPFactory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) == `{"fail":true}` {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"scored":3}`))
	}))
	defer srv.Close()

	factory := HTTPFactory(WithEndpointValidator(func(string) error { return nil }))
	h, closeFn, err := factory(srv.URL, json.RawMessage(`{"timeout_ms":2000}`))
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	resp, err := h(context.Background(), []byte(`{}`))
	if err != nil || string(resp) != `{"scored":3}` {
		t.Fatalf("resp=%q err=%v", resp, err)
	}

	_, err = h(context.Background(), []byte(`{"fail":true}`))
	var rs *ErrRemoteStatus
	if !errors.As(err, &rs) || rs.StatusCode != http.StatusBadGateway {
		t.Fatalf("err: got %v, want ErrRemoteStatus 502", err)
	}
}

func TestHTTPFactory_RejectsPrivateURL(t *testing.T) {
	_, _, err := HTTPFactory()("http://127.0.0.1:9999/score", nil)
	if err == nil {
		t.Fatal("expected SSRF rejection")
	}
}
