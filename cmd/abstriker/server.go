package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// reportStore holds the latest report of a watch loop for the HTTP handlers.
type reportStore struct {
	mu  sync.RWMutex
	rep *Report
}

func (s *reportStore) set(rep *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rep = rep
}

func (s *reportStore) get() *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rep
}

// newRouter serves the metrics gathered by g and the latest report.
func newRouter(g prometheus.Gatherer, store *reportStore, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.Get("/report", func(w http.ResponseWriter, req *http.Request) {
		rep := store.get()
		if rep == nil {
			http.Error(w, "no check has finished yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if rep.Violations() > 0 || rep.Failures() > 0 {
			w.Header().Set("X-Abstriker-Status", "failing")
		} else {
			w.Header().Set("X-Abstriker-Status", "passing")
		}
		if err := renderJSON(w, rep); err != nil {
			log.Warn().Err(err).Msg("writing report")
		}
	})
	return r
}

// requestLogger logs every request at debug level.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
