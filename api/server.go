// Package api provides the HTTP API server for the diagram engine
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
	"github.com/tvqphuoc01/diagram-mcp/decision/generation"
	"github.com/tvqphuoc01/diagram-mcp/decision/matcher"
	diagerr "github.com/tvqphuoc01/diagram-mcp/pkg/errors"
	"github.com/tvqphuoc01/diagram-mcp/pkg/platform"
)

// Version is reported by the health endpoint
var Version = "dev"

// Pinger is a backing store the readiness probe checks
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server
type Server struct {
	httpServer  *http.Server
	engine      *generation.Engine
	store       Pinger
	loadReport  *catalog.LoadReport
	searchCache *lru.Cache[string, []ServiceResponse]
	config      *Config
	logger      zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxRequestSize  int64
	CORSOrigins     []string
	APIKey          string
	SearchCacheSize int
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		ReadTimeout:     time.Duration(platform.GetEnvInt("DIAGRAMS_READ_TIMEOUT_SECONDS", 30)) * time.Second,
		WriteTimeout:    time.Duration(platform.GetEnvInt("DIAGRAMS_WRITE_TIMEOUT_SECONDS", 60)) * time.Second,
		MaxRequestSize:  int64(platform.GetEnvInt("DIAGRAMS_MAX_REQUEST_BYTES", 1<<20)),
		CORSOrigins:     []string{"*"},
		SearchCacheSize: 1024,
	}
}

// NewServer creates a new API server
func NewServer(engine *generation.Engine, config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	size := config.SearchCacheSize
	if size <= 0 {
		size = DefaultConfig().SearchCacheSize
	}
	cache, err := lru.New[string, []ServiceResponse](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}

	return &Server{
		engine:      engine,
		searchCache: cache,
		config:      config,
		logger:      log.Logger,
	}, nil
}

// WithStore sets the store checked by /ready
func (s *Server) WithStore(p Pinger) *Server {
	s.store = p
	return s
}

// WithLoadReport attaches the catalog load report shown by /ready
func (s *Server) WithLoadReport(r *catalog.LoadReport) *Server {
	s.loadReport = r
	return s
}

// WithLogger sets the access and error logger
func (s *Server) WithLogger(l zerolog.Logger) *Server {
	s.logger = l
	return s
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.APIKeyMiddleware(s.config.APIKey))
		r.Use(middleware.RequestSize(s.config.MaxRequestSize))

		r.Get("/search", s.handleSearch)
		r.Post("/generate", s.handleGenerate)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/diagram-types", s.handleDiagramTypes)
	})
	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info().Int("port", s.config.Port).Msg("Diagram API server starting")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info().Msg("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// ReadyResponse reports what the server is serving from
type ReadyResponse struct {
	Status            string                      `json:"status"`
	CatalogSource     string                      `json:"catalog_source"`
	CatalogHash       string                      `json:"catalog_hash"`
	CatalogServices   int                         `json:"catalog_services"`
	Providers         []catalog.Provider          `json:"providers"`
	DegradedProviders map[catalog.Provider]string `json:"degraded_providers,omitempty"`
	SkippedEntries    int                         `json:"skipped_entries,omitempty"`
	RulesVersion      int                         `json:"rules_version"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "NOT_READY", "catalog store not ready")
			return
		}
	}

	cat := s.engine.Catalog()
	resp := ReadyResponse{
		Status:          "ready",
		CatalogSource:   cat.Source(),
		CatalogHash:     cat.Hash(),
		CatalogServices: cat.Len(),
		Providers:       cat.Providers(),
		RulesVersion:    s.engine.Rules().Version,
	}
	if s.loadReport != nil {
		resp.SkippedEntries = s.loadReport.Skipped
		if len(s.loadReport.ProviderErrors) > 0 {
			resp.DegradedProviders = s.loadReport.ProviderErrors
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// SEARCH AND CATALOG ENDPOINTS
// =============================================================================

// ServiceResponse is one catalog service in API output
type ServiceResponse struct {
	Provider    catalog.Provider `json:"provider"`
	Category    catalog.Category `json:"category"`
	Name        string           `json:"name"`
	Aliases     []string         `json:"aliases,omitempty"`
	ImportPath  string           `json:"import_path"`
	IconRef     string           `json:"icon_ref"`
	ServiceCode string           `json:"service_code,omitempty"`
	Score       float64          `json:"score,omitempty"`
	MatchKind   matcher.Kind     `json:"match_kind,omitempty"`
	MatchedOn   string           `json:"matched_on,omitempty"`
}

func serviceResponse(rec *catalog.ServiceRecord) ServiceResponse {
	return ServiceResponse{
		Provider:    rec.Provider,
		Category:    rec.Category,
		Name:        rec.Name,
		Aliases:     rec.Aliases,
		ImportPath:  rec.ImportPath,
		IconRef:     rec.IconRef,
		ServiceCode: rec.ServiceCode,
	}
}

// SearchResponse wraps ranked services
type SearchResponse struct {
	Query   string            `json:"query"`
	Results []ServiceResponse `json:"results"`
	Cached  bool              `json:"cached"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := generation.SearchRequest{
		Query:    q.Get("q"),
		Provider: q.Get("provider"),
		Category: q.Get("category"),
	}
	if req.Query == "" {
		req.Query = q.Get("query")
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.jsonError(w, http.StatusBadRequest, diagerr.ErrCodeInvalidRequest, "limit must be an integer")
			return
		}
		req.Limit = limit
	}

	key := searchKey(req)
	if cached, ok := s.searchCache.Get(key); ok {
		s.jsonResponse(w, http.StatusOK, SearchResponse{Query: req.Query, Results: cached, Cached: true})
		return
	}

	results, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.engineError(w, err)
		return
	}

	out := make([]ServiceResponse, 0, len(results))
	for _, m := range results {
		sr := serviceResponse(m.Record)
		sr.Score = m.Decimal().InexactFloat64()
		sr.MatchKind = m.Kind
		sr.MatchedOn = m.MatchedOn
		out = append(out, sr)
	}
	s.searchCache.Add(key, out)
	s.jsonResponse(w, http.StatusOK, SearchResponse{Query: req.Query, Results: out})
}

func searchKey(req generation.SearchRequest) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(req.Query)),
		strings.ToLower(strings.TrimSpace(req.Provider)),
		strings.ToLower(strings.TrimSpace(req.Category)),
		strconv.Itoa(req.Limit),
	}, "\x00")
}

// CatalogResponse lists catalog services
type CatalogResponse struct {
	Source     string             `json:"source"`
	Hash       string             `json:"hash"`
	Categories []catalog.Category `json:"categories,omitempty"`
	Services   []ServiceResponse  `json:"services"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.engine.Catalog()
	resp := CatalogResponse{
		Source:   cat.Source(),
		Hash:     cat.Hash(),
		Services: make([]ServiceResponse, 0),
	}

	records := cat.All()
	if raw := r.URL.Query().Get("provider"); raw != "" {
		p, err := catalog.ParseProvider(raw)
		if err != nil {
			s.jsonError(w, http.StatusBadRequest, diagerr.ErrCodeInvalidRequest, err.Error())
			return
		}
		records = cat.Records(p)
		resp.Categories = cat.Categories(p)
	}
	category := catalog.Category(strings.ToLower(r.URL.Query().Get("category")))
	for _, rec := range records {
		if category != "" && rec.Category != category {
			continue
		}
		resp.Services = append(resp.Services, serviceResponse(rec))
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// GENERATION ENDPOINTS
// =============================================================================

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, diagerr.ErrCodeInvalidRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	result, err := s.engine.Generate(r.Context(), req)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleDiagramTypes(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.engine.DiagramTypes())
}

// =============================================================================
// HELPERS
// =============================================================================

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps engine errors to HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, diagerr.ErrUnsupportedDiagramType), errors.Is(err, diagerr.ErrUnsupportedFormat),
		errors.Is(err, diagerr.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, diagerr.ErrEmptyArchitecture):
		return http.StatusUnprocessableEntity
	case errors.Is(err, diagerr.ErrCatalogLoad):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) engineError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	code := "INTERNAL_ERROR"
	message := err.Error()
	var de *diagerr.DiagramError
	if errors.As(err, &de) {
		code = de.Code
		message = de.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	s.jsonError(w, status, code, message)
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, code, message string) {
	s.jsonResponse(w, status, ErrorResponse{Error: code, Message: message})
}
