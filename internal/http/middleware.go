package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dineflow/internal/audit"
	"dineflow/internal/tenant"
)

// TokenResolver turns a bearer token into a tenant context
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (tenant.Context, error)
}

// Authenticate resolves the bearer token once per request and attaches the tenant
// context and audit request metadata. Requests without a valid token get 401.
func Authenticate(resolver TokenResolver, logger *zap.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		tc, err := resolver.Resolve(r.Context(), token)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		ctx := tenant.WithContext(r.Context(), tc)
		ctx = audit.WithRequestMeta(ctx, audit.RequestMeta{
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		})
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request and turns panics into 500s.
func RequestLogger(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				logger.Error("Panic while serving request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", p),
				)
				writeJSON(rec, http.StatusInternalServerError, errorResponse{Error: ErrorBody{Code: "INTERNAL", Message: "internal server error"}})
			}
			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		}()
		next.ServeHTTP(rec, r)
	})
}
