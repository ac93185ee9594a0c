// Package middleware holds the HTTP middleware chain shared by the API
// router.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// ActorHeader carries the authenticated employee id set by the gateway.
const ActorHeader = "X-Actor-ID"

type actorKey struct{}

// Actor copies the X-Actor-ID header into the request context.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(ActorHeader)); id != "" {
			r = r.WithContext(WithActor(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// WithActor returns ctx carrying actorID.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns the actor id on ctx, or "".
func ActorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}

// Logger logs one line per request.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				ev := log.Info()
				if status >= http.StatusInternalServerError {
					ev = log.Error()
				} else if status >= http.StatusBadRequest {
					ev = log.Warn()
				}
				ev.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Str("actor_id", ActorFrom(r.Context())).
					Msg("HTTP request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// CORS applies an origin allowlist; "*" allows any origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", ActorHeader, "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         600,
	})
}

// Stack is the API router chain, outermost first.
func Stack(log zerolog.Logger, origins []string, timeout time.Duration) chi.Middlewares {
	return chi.Middlewares{
		chimw.RequestID,
		chimw.RealIP,
		Logger(log),
		chimw.Recoverer,
		CORS(origins),
		Actor,
		chimw.Timeout(timeout),
	}
}
