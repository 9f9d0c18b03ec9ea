package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	chitrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/go-chi/chi.v5"
)

// Server is responsible for the transport layer of the API.
type Server struct {
	Addr              string
	Logger            zerolog.Logger
	AsyncErrorHandler func(error)
	TraceExtractor    traceExtractor
	TemplateService   handlerTemplateService
	DocumentService   handlerDocumentService

	// DocumentRateLimit is the sustained requests per second accepted by the document routes. Zero disables it.
	DocumentRateLimit float64
	DocumentRateBurst int

	writer writer
	server http.Server
	router *chi.Mux
}

// Init the server internal state.
func (s *Server) Init() error {
	if s.AsyncErrorHandler == nil {
		return errors.New("missing 'AsyncErrorHandler'")
	}
	if s.TraceExtractor == nil {
		return errors.New("missing TraceExtractor")
	}
	if s.TemplateService == nil {
		return errors.New("missing TemplateService")
	}
	if s.DocumentService == nil {
		return errors.New("missing DocumentService")
	}
	if s.DocumentRateLimit < 0 {
		return errors.New("invalid DocumentRateLimit")
	}
	if s.DocumentRateLimit > 0 && s.DocumentRateBurst < 1 {
		return errors.New("DocumentRateBurst must be at least 1")
	}
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	return nil
}

// Start the server.
func (s *Server) Start() {
	s.router = s.handler()

	// Static timeouts, sized for the document routes that receive a whole PDF.
	s.server = http.Server{
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    maxBodySize,
		Addr:              s.Addr,
		Handler:           s.router,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.AsyncErrorHandler(fmt.Errorf("fail to start the http server: %w", err))
		}
	}()
}

// Stop the server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("fail to close the http server: %w", err)
	}
	return nil
}

func (s *Server) handler() *chi.Mux {
	router := chi.NewRouter()
	s.writer.logger = s.Logger
	s.writer.traceExtractor = s.TraceExtractor

	m := middleware{log: s.Logger, writer: s.writer, traceExtractor: s.TraceExtractor}
	router.Use(m.recoverer)
	router.Use(chitrace.Middleware(chitrace.WithServiceName("lazytemplate")))
	router.Use(chiMiddleware.NoCache)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.StripSlashes)
	router.Use(chiMiddleware.NewCompressor(5).Handler)
	router.Use(m.logger)

	h := handler{
		writer:          s.writer,
		logger:          s.Logger,
		traceExtractor:  s.TraceExtractor,
		templateService: s.TemplateService,
		documentService: s.DocumentService,
	}
	router.MethodNotAllowed(h.methodNotAllowed)
	router.NotFound(h.notFound)
	router.Get("/health", h.health)

	router.Route("/templates", func(r chi.Router) {
		r.Use(m.limitReader(maxBodySize))
		r.Get("/", h.templateList)
		r.Post("/save", h.templateSave)
		r.Get("/load/{name}", h.templateLoad)
		r.Get("/download/{name}", h.templateDownload)
		r.Delete("/{name}", h.templateDelete)
	})

	router.Route("/documents", func(r chi.Router) {
		r.Use(m.limitReader(maxDocumentSize))
		if s.DocumentRateLimit > 0 {
			r.Use(m.rateLimit(rate.NewLimiter(rate.Limit(s.DocumentRateLimit), s.DocumentRateBurst)))
		}
		r.Post("/text", h.documentText)
		r.Post("/viewport", h.documentViewport)
		r.Post("/preview", h.documentPreview)
	})

	return router
}
