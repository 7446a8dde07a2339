package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/rehearsal-scheduler/internal/application"
)

// MemberIDHeader carries the member identity asserted by the upstream gateway.
const MemberIDHeader = "X-Member-ID"

// RequireMember rejects requests without a member identity and stores the
// principal in the request context.
func RequireMember(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger, "")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			memberID := strings.TrimSpace(r.Header.Get(MemberIDHeader))
			if memberID == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingMemberID)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), application.Principal{MemberID: memberID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// RequestLogger attaches a logger with a request id to every request and logs
// its outcome.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(rec, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", rec.status, "duration", time.Since(start))
		})
	}
}
