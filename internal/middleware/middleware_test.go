package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor(t *testing.T) {
	var got string
	h := Actor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ActorFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, " E99 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "E99", got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, got)
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	h := Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/documents/1/act", nil))
	require.NotEmpty(t, buf.String())
	assert.Contains(t, buf.String(), `"status":409`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://hr.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/policies", nil)
	req.Header.Set("Origin", "https://hr.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", ActorHeader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://hr.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), ActorHeader)

	req = httptest.NewRequest(http.MethodGet, "/policies", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStack(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(Stack(zerolog.New(&buf), []string{"*"}, time.Second)...)
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ActorFrom(r.Context())))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"status":500`)
	assert.Contains(t, buf.String(), `"request_id":`)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(ActorHeader, "E99")
	req.Header.Set("Origin", "https://hr.example.com")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "E99", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
