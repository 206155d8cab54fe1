// Package server exposes the scheduling core over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/feedback"
	"github.com/TobiSchelling/chronos/internal/logging"
	"github.com/TobiSchelling/chronos/internal/orchestrator"
	"github.com/TobiSchelling/chronos/internal/patterns"
	"github.com/TobiSchelling/chronos/internal/report"
)

//go:embed templates/report.html
var templateFS embed.FS

// defaultInsightDays is used when /api/v1/insights has no days parameter.
const defaultInsightDays = 7

// Deps are the components served over HTTP.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Analyzer     *patterns.Analyzer
	Processor    *feedback.Processor
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server provides HTTP endpoints for chronos.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	page   *template.Template
	cfg    config.Server
	logger *zap.Logger
	now    func() time.Time
}

// New creates a new Server.
func New(cfg config.Server, deps Deps) (*Server, error) {
	if deps.Orchestrator == nil || deps.Analyzer == nil || deps.Processor == nil {
		return nil, errors.New("orchestrator, analyzer and processor are required")
	}
	logger := logging.OrNop(deps.Logger)
	logger = logger.Named("server")
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	page, err := template.ParseFS(templateFS, "templates/report.html")
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	e.Pre(echo.WrapMiddleware(c.Handler))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{echo: e, deps: deps, page: page, cfg: cfg, logger: logger, now: time.Now}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/report", s.handleReport)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/schedule", s.handleSchedule)
	v1.POST("/feedback", s.handleFeedback)
	v1.GET("/patterns", s.handlePatterns)
	v1.POST("/patterns/:type/validate", s.handleValidate)
	v1.GET("/analytics/performance", s.handlePerformance)
	v1.GET("/insights", s.handleInsights)
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", SessionID: s.deps.Orchestrator.SessionID()})
}

func (s *Server) handleSchedule(c echo.Context) error {
	var req orchestrator.TaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.deps.Orchestrator.Orchestrate(c.Request().Context(), req)
	if err != nil {
		var verr *orchestrator.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleFeedback(c echo.Context) error {
	var ev feedback.Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(ev.TaskID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task_id is required")
	}

	res, err := s.deps.Processor.Process(c.Request().Context(), ev)
	if err != nil {
		if errors.Is(err, feedback.ErrInvalidRating) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// PatternsResponse is the response body for GET /api/v1/patterns.
type PatternsResponse struct {
	MinConfidence float64           `json:"min_confidence"`
	Patterns      []patterns.Stored `json:"patterns"`
}

func (s *Server) handlePatterns(c echo.Context) error {
	minConf := s.deps.Analyzer.Threshold()
	if v := c.QueryParam("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "min_confidence must be a number between 0 and 1")
		}
		minConf = f
	}

	stored, err := s.deps.Analyzer.CurrentPatternsAbove(c.Request().Context(), minConf)
	if err != nil {
		return err
	}
	if stored == nil {
		stored = []patterns.Stored{}
	}
	return c.JSON(http.StatusOK, PatternsResponse{MinConfidence: minConf, Patterns: stored})
}

// ValidateRequest is the request body for POST /api/v1/patterns/:type/validate.
type ValidateRequest struct {
	Result  *float64       `json:"result"`
	Context map[string]any `json:"context"`
}

func (s *Server) handleValidate(c echo.Context) error {
	t, err := patterns.ParseType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Result == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "result is required")
	}

	ok, err := s.deps.Analyzer.ValidatePattern(c.Request().Context(), t, *req.Result, req.Context)
	if err != nil {
		s.logger.Warn("pattern validation not stored", zap.String("pattern_type", string(t)), zap.Error(err))
	}
	return c.JSON(http.StatusOK, map[string]any{"pattern_type": t, "recorded": ok})
}

// PerformanceResponse is the response body for GET /api/v1/analytics/performance.
type PerformanceResponse struct {
	Performance patterns.Performance  `json:"performance"`
	Energy      patterns.EnergyCycles `json:"energy_patterns"`
	// Trends is an empty object when there was no recent feedback.
	Trends any `json:"feedback_trends"`
}

func (s *Server) handlePerformance(c echo.Context) error {
	ctx := c.Request().Context()
	perf, err := s.deps.Analyzer.RecentPerformance(ctx)
	if err != nil {
		return err
	}
	energy, err := s.deps.Analyzer.EnergyPatterns(ctx)
	if err != nil {
		return err
	}
	trends, err := s.deps.Processor.CalculateTrends(ctx)
	if err != nil {
		return err
	}
	resp := PerformanceResponse{Performance: perf, Energy: energy, Trends: struct{}{}}
	if trends != nil {
		resp.Trends = trends
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleInsights(c echo.Context) error {
	days, err := queryDays(c)
	if err != nil {
		return err
	}

	insights, err := s.deps.Processor.RecentInsights(c.Request().Context(), days)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"days": days, "insights": insights})
}

func (s *Server) handleReport(c echo.Context) error {
	days, err := queryDays(c)
	if err != nil {
		return err
	}

	in, err := report.Gather(c.Request().Context(), s.deps.Analyzer, s.deps.Processor, days, s.now())
	if err != nil {
		return err
	}
	body, err := report.HTML(report.Build(in))
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return s.page.Execute(c.Response(), map[string]any{
		"Body":      template.HTML(body),
		"SessionID": s.deps.Orchestrator.SessionID(),
	})
}

func queryDays(c echo.Context) (int, error) {
	v := c.QueryParam("days")
	if v == "" {
		return defaultInsightDays, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil || days <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "days must be a positive integer")
	}
	return days, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
