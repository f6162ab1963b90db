package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/evaluator"
	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/storage"
)

// Server is the HTTP server for the Oracle web API.
type Server struct {
	catalog *level.Catalog
	eval    *evaluator.Evaluator
	store   storage.Store
	tutors  *TutorManager
	router  chi.Router
	http    *http.Server
	log     *zap.Logger
}

// New creates a Server. A nil tutor factory disables the hint endpoints.
func New(catalog *level.Catalog, eval *evaluator.Evaluator, store storage.Store, factory TutorFactory, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		catalog: catalog,
		eval:    eval,
		store:   store,
		tutors:  NewTutorManager(factory, store),
		router:  chi.NewRouter(),
		log:     log.Named("server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		r.Get("/levels", s.handleListLevels)
		r.Get("/levels/{ref}", s.handleGetLevel)
		r.Post("/levels/{ref}/evaluate", s.handleEvaluate)
		r.Post("/levels/{ref}/hint", s.handleHint)
		r.Delete("/levels/{ref}/conversation", s.handleResetConversation)

		// WebSocket (no JSON content-type)
		r.Get("/levels/{ref}/ws", s.handleWebSocket)

		r.Get("/attempts", s.handleListAttempts)
		r.Get("/attempts/{id}", s.handleGetAttempt)
		r.Delete("/attempts/{id}", s.handleDeleteAttempt)

		r.Get("/progress", s.handleProgress)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request with its status and duration.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Start begins listening on the given port. It returns nil after Shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("oracle server starting", zap.String("url", "http://localhost"+addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")
	s.tutors.CloseAll()
	if s.http == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
