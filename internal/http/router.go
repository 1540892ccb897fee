package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Router plain http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterOrderRoutes every order route requires a resolved tenant context
func (r *Router) RegisterOrderRoutes(h *OrderHandler, auth TokenResolver) {
	handler := Authenticate(auth, r.logger, h.ServeHTTP)
	r.Handle(ordersPath, handler)
	r.Handle(ordersPath+"/", handler)
}

func (r *Router) RegisterMembershipRoutes(h *MembershipHandler, auth TokenResolver) {
	handler := Authenticate(auth, r.logger, h.ServeHTTP)
	r.Handle(membershipsPath, handler)
	r.Handle(membershipsPath+"/", handler)
}

// HealthCheck one dependency check
type HealthCheck func(ctx context.Context) error

// RegisterHealthRoutes GET /healthz runs every check; any failure is 503.
func (r *Router) RegisterHealthRoutes(checks map[string]HealthCheck) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		status := http.StatusOK
		results := map[string]string{}
		for name, check := range checks {
			if err := check(req.Context()); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, map[string]any{"success": status == http.StatusOK, "checks": results})
	})
}
