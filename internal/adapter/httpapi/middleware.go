package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// authMiddleware enforces the static bearer token on every API route except
// the health check. An empty configured token disables the check entirely.
func authMiddleware(next http.Handler, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" || r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			WriteError(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}

		provided := strings.TrimPrefix(header, "Bearer ")
		if provided == header || provided != token {
			WriteError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs one line per request with method, path, status
// and duration.
func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func applyMiddleware(mux *http.ServeMux, logger *zap.Logger, token string) http.Handler {
	var handler http.Handler = mux
	handler = authMiddleware(handler, token)
	handler = loggingMiddleware(handler, logger)
	return handler
}
