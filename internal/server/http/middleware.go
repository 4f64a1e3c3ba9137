package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/and161185/cookiepool/internal/auth"
	"github.com/and161185/cookiepool/internal/errs"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type ctxKey string

const reqIDKey ctxKey = "cookiepool.reqID"

// requestID propagates an incoming X-Request-ID or assigns a UUIDv4.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.Must(uuid.NewV4()).String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), reqIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey).(string)
	return id
}

// requestLogger logs method, path, status and latency; never bodies.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("request_id", requestIDFrom(r.Context())),
		)
	})
}

// adminOnly requires a valid admin bearer token.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeServiceError(w, s.log, errs.ErrUnauthorized)
			return
		}
		id, err := s.tokens.Verify(tok)
		if err != nil {
			writeServiceError(w, s.log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithAdmin(r.Context(), id)))
	})
}
