package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tg-lead-bot/internal/domain"
)

// Server — операционная поверхность процесса: здоровье, метрики, отчёты и
// ручной запуск дренажа дисковой очереди.
type Server struct {
	Router chi.Router
	log    zerolog.Logger
	srv    *http.Server
}

// NewServer создаёт HTTP сервер с базовыми middlewares.
func NewServer(logger zerolog.Logger, reporter domain.Reporter, overflow domain.OverflowStore, durable domain.Appender) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		date := time.Now()
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			date = parsed
		}
		summary, err := reporter.Summary(r.Context(), date)
		if err != nil {
			logger.Error().Err(err).Msg("не удалось собрать статистику")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"date":     date.Format("2006-01-02"),
			"buckets":  summary.Buckets,
			"total":    summary.Total,
			"overflow": summary.Overflow,
		})
	})
	r.Post("/restore", func(w http.ResponseWriter, r *http.Request) {
		restored, failed := overflow.Drain(r.Context(), durable)
		writeJSON(w, map[string]int{"restored": restored, "failed": failed})
	})

	return &Server{Router: r, log: logger}
}

// Start запускает сервер; блокируется до остановки.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("HTTP сервер запущен")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown корректно завершает работу сервера.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
