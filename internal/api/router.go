// Package api serves the read-only dashboard JSON.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/store"
)

// Handlers reads everything from the local store.
type Handlers struct {
	store store.Store
}

// NewHandlers creates Handlers over st.
func NewHandlers(st store.Store) *Handlers {
	return &Handlers{store: st}
}

// NewRouter builds the dashboard routes. An empty origins list allows any
// origin.
func NewRouter(h *Handlers, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/", h.Dashboard)
			r.Get("/filters", h.Filters)
			r.Get("/historical", h.Historical)
			r.Get("/export.xlsx", h.Export)
			r.Get("/{client_code}", h.Client)
		})
		r.Get("/unmatched", h.Unmatched)
		r.Get("/weeks", h.Weeks)
		r.Get("/runs", h.Runs)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("latency", time.Since(start)),
		)
	})
}
