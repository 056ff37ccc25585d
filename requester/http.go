package requester

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hazyhaar/newsnexus/kit"
)

// Routes returns the HTTP API.
func (svc *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(svc.accessLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/requests", func(w http.ResponseWriter, r *http.Request) {
			list, err := svc.ListRequests(r.Context(), queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, orEmpty(list))
		})

		r.Get("/articles", func(w http.ResponseWriter, r *http.Request) {
			list, err := svc.ListArticles(r.Context(), r.URL.Query().Get("request_id"), queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, orEmpty(list))
		})

		r.Get("/articles/{id}/content", func(w http.ResponseWriter, r *http.Request) {
			c, err := svc.GetArticleContent(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			if c == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no content"})
				return
			}
			writeJSON(w, http.StatusOK, c)
		})

		r.Route("/query-sets", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				list, err := svc.ListQuerySets(r.Context())
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, orEmpty(list))
			})
			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				var req addQuerySetReq
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
					return
				}
				qs, err := svc.AddQuerySet(r.Context(), req.And, req.Or, req.Not, req.StartDate)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, qs)
			})
			r.Patch("/{id}", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Enabled *bool `json:"enabled"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "enabled is required"})
					return
				}
				id := chi.URLParam(r, "id")
				if err := svc.SetQuerySetEnabled(r.Context(), id, *req.Enabled); err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": *req.Enabled})
			})
		})

		r.Post("/run", func(w http.ResponseWriter, r *http.Request) {
			var prm Params
			if err := json.NewDecoder(r.Body).Decode(&prm); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
				return
			}
			prm.Automated = false
			out, err := svc.RunOnce(r.Context(), prm)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			list, err := svc.Metrics(r.Context(), r.URL.Query().Get("name"), queryInt(r, "limit", 100))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, orEmpty(list))
		})

		r.Post("/run-all", func(w http.ResponseWriter, r *http.Request) {
			results, err := svc.RunAll(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, orEmpty(results))
		})
	})
	return r
}

// requestID copies the id set by middleware.RequestID (the client's
// X-Request-ID, or a generated one) into the kit context and echoes it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = kit.WithRequestID(ctx, id)
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (svc *Service) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		svc.logger.DebugContext(r.Context(), "requester: http",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"request_id", kit.GetRequestID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	var ide *InvalidDateError
	switch {
	case errors.As(err, &ide), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrSourceNotFound), errors.Is(err, ErrNoEntity):
		return http.StatusNotFound
	case errors.Is(err, ErrLocked), errors.Is(err, ErrDuplicateQuerySet):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// orEmpty keeps empty lists encoded as [] rather than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
