// Package api exposes the extraction pipeline over HTTP.
//
// Routes:
//
//	POST /extract-text         multipart "file" (+ optional "lang") → {"filename","text",...}
//	POST /extract-text/stream  same input, Server-Sent Events: page*, then result | error
//	GET  /health               liveness + OCR engine breaker state
//	GET  /api/languages        default and installed language packs
//	GET  /api/metrics          recent metric summaries
//	     /mcp                  MCP streamable HTTP endpoint (optional)
//
// Fatal errors are written as {"error": message, "code": kind}. Internal
// failures never leak their detail; it goes to the request log instead.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/ocrapi/connectivity"
	"github.com/hazyhaar/ocrapi/docpipe"
	"github.com/hazyhaar/ocrapi/observability"
	"github.com/hazyhaar/ocrapi/shield"
)

// EngineStatus reports the state of the OCR engine. *ocr.Adapter
// implements it.
type EngineStatus interface {
	EngineName() string
	BreakerState() connectivity.BreakerState
}

// Config configures the HTTP surface.
type Config struct {
	// RequestTimeout bounds one extraction, queueing included
	// (default: 5m). Exceeding it answers 504.
	RequestTimeout time.Duration
	// MultipartMemory is the part of a multipart body kept in memory
	// before spilling to temp files (default: 32 MB).
	MultipartMemory int64
	// EnableMCP mounts the MCP endpoint on /mcp.
	EnableMCP bool
	Version   string
	Shield    shield.StackConfig
}

func (c *Config) defaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Minute
	}
	if c.MultipartMemory <= 0 {
		c.MultipartMemory = 32 << 20
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// Server is the HTTP boundary of the extraction pipeline.
type Server struct {
	cfg     Config
	pipe    *docpipe.Pipeline
	engine  EngineStatus
	metrics *observability.MetricsManager
	started time.Time
}

// New creates a Server. engine and metrics may be nil.
func New(pipe *docpipe.Pipeline, engine EngineStatus, metrics *observability.MetricsManager, cfg Config) *Server {
	cfg.defaults()
	return &Server{
		cfg:     cfg,
		pipe:    pipe,
		engine:  engine,
		metrics: metrics,
		started: time.Now(),
	}
}

// Handler builds the router with the shield middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.cfg.Shield) {
		r.Use(mw)
	}
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/extract-text", s.handleExtract)
	r.Post("/extract-text/stream", s.handleExtractStream)
	r.Get("/api/languages", s.handleLanguages)
	r.Get("/api/metrics", s.handleMetrics)

	if s.cfg.EnableMCP {
		srv := mcp.NewServer(&mcp.Implementation{Name: "ocrapi", Version: s.cfg.Version}, nil)
		s.pipe.RegisterMCP(srv)
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	body := map[string]any{
		"version":   s.cfg.Version,
		"uptime_s":  int64(time.Since(s.started).Seconds()),
		"languages": s.pipe.Config().Languages.String(),
	}
	if s.engine != nil {
		state := s.engine.BreakerState()
		body["engine"] = s.engine.EngineName()
		body["breaker"] = state.String()
		if state == connectivity.BreakerOpen {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	body["status"] = status
	writeJSON(w, code, body)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	info, err := s.pipe.Languages(r.Context())
	if err != nil {
		shield.GetLogger(r.Context()).Error("list languages", "error", err)
		writeError(w, http.StatusServiceUnavailable, string(docpipe.KindOCREngineFailure), "ocr engine unavailable")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusOK, map[string]any{"metrics": []observability.Summary{}})
		return
	}
	window := time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "since must be a positive duration, e.g. 15m")
			return
		}
		window = d
	}
	since := time.Now().Add(-window)

	s.metrics.Flush()
	if name := r.URL.Query().Get("name"); name != "" {
		points, err := s.metrics.Query(r.Context(), name, since, queryInt(r, "limit", 100))
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if points == nil {
			points = []*observability.Metric{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "points": points})
		return
	}

	summaries, err := s.metrics.Summarize(r.Context(), since)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []observability.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"since": since.UTC(), "metrics": summaries})
}

// extractContext bounds one extraction by RequestTimeout.
func (s *Server) extractContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
}

// fail maps a pipeline error to its status code and error envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := describe(err)
	logger := shield.GetLogger(r.Context())
	if status >= 500 {
		logger.Error("extraction failed", "code", code, "error", err)
	} else {
		logger.Info("extraction rejected", "code", code, "error", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeError(w, status, code, msg)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	shield.GetLogger(r.Context()).Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, string(docpipe.KindInternal), "internal error")
}

// describe returns the status, code and client message for err.
func describe(err error) (int, string, string) {
	kind := docpipe.KindOf(err)
	switch kind {
	case docpipe.KindUnsupportedFormat, docpipe.KindLanguageUnavailable:
		return http.StatusBadRequest, string(kind), err.Error()
	case docpipe.KindCorruptDocument:
		return http.StatusBadRequest, string(kind), docpipe.ErrCorruptDocument.Error()
	case docpipe.KindFileTooLarge:
		return http.StatusRequestEntityTooLarge, string(kind), "file too large"
	case docpipe.KindBusy:
		return http.StatusServiceUnavailable, string(kind), "server busy, retry later"
	case docpipe.KindOCREngineFailure:
		return http.StatusServiceUnavailable, string(kind), "ocr engine unavailable"
	case docpipe.KindCanceled:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "timeout", "extraction timed out"
		}
		return http.StatusGatewayTimeout, string(kind), "extraction canceled"
	default:
		return http.StatusInternalServerError, string(docpipe.KindInternal), "internal error"
	}
}
