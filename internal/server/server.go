// Package server exposes the recorder over HTTP for browser and headless use. REST routes
// drive recording and playback; session events stream over a websocket.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"fieldmic/internal/domain"
	"fieldmic/internal/logging"
	"fieldmic/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

// Recorder is the recording lifecycle driven by the server.
type Recorder interface {
	Start(ctx context.Context) (bool, error)
	Abort() bool
	Status() domain.Status
}

// Reports covers analysis, the message log and playback slots.
type Reports interface {
	StopAndAnalyze(ctx context.Context) (domain.Report, bool, error)
	Latest() (domain.Report, bool)
	PlaySlot(ctx context.Context, slot string) error
	StopSlot(slot string)
	Messages(ctx context.Context, query string) ([]domain.Report, error)
	DeleteMessage(ctx context.Context, id string) error
	PlayMessage(ctx context.Context, id string) error
	StopMessage(id string)
}

// View receives visibility changes so level sampling can pause while nobody watches.
type View interface {
	SetVisible(visible bool)
}

// Config controls the listener and CORS policy.
type Config struct {
	Addr string
	// AllowedOrigins lists browser origins allowed to call the API. Empty allows all.
	AllowedOrigins []string
}

type Server struct {
	cfg      Config
	recorder Recorder
	reports  Reports
	view     View
	hub      *Hub
	logger   logging.Logger
	engine   *gin.Engine
}

func New(cfg Config, recorder Recorder, reports Reports, view View, hub *Hub, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	s := &Server{
		cfg:      cfg,
		recorder: recorder,
		reports:  reports,
		view:     view,
		hub:      hub,
		logger:   logger,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API and websocket.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Infof("http bridge listening addr=%s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(s.corsConfig()))

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/recording/start", s.handleStart)
	api.POST("/recording/stop", s.handleStop)
	api.POST("/recording/abort", s.handleAbort)
	api.POST("/playback/:slot/play", s.handlePlay)
	api.POST("/playback/:slot/stop", s.handleStopPlayback)
	api.GET("/messages", s.handleMessages)
	api.DELETE("/messages/:id", s.handleDeleteMessage)
	api.POST("/view", s.handleView)

	r.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	if len(s.cfg.AllowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.cfg.AllowedOrigins
	}
	return cfg
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugf("%s %s status=%d duration=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

type statusResponse struct {
	domain.Status
	Latest *domain.ReportView `json:"latest,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{Status: s.recorder.Status()}
	if report, ok := s.reports.Latest(); ok {
		view := report.View()
		resp.Latest = &view
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStart(c *gin.Context) {
	started, err := s.recorder.Start(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": started, "status": s.recorder.Status()})
}

func (s *Server) handleStop(c *gin.Context) {
	report, stopped, err := s.reports.StopAndAnalyze(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if !stopped {
		c.JSON(http.StatusOK, gin.H{"stopped": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true, "report": report.View()})
}

func (s *Server) handleAbort(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"aborted": s.recorder.Abort()})
}

func (s *Server) handlePlay(c *gin.Context) {
	slot := c.Param("slot")
	var err error
	if id, ok := strings.CutPrefix(slot, "message:"); ok {
		err = s.reports.PlayMessage(c.Request.Context(), id)
	} else {
		err = s.reports.PlaySlot(c.Request.Context(), slot)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleStopPlayback(c *gin.Context) {
	slot := c.Param("slot")
	if id, ok := strings.CutPrefix(slot, "message:"); ok {
		s.reports.StopMessage(id)
	} else {
		s.reports.StopSlot(slot)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMessages(c *gin.Context) {
	reports, err := s.reports.Messages(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]domain.ReportView, 0, len(reports))
	for _, report := range reports {
		views = append(views, report.View())
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleDeleteMessage(c *gin.Context) {
	if err := s.reports.DeleteMessage(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type viewRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

func (s *Server) handleView(c *gin.Context) {
	var req viewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": domain.ErrorCodeUnknown, "error": err.Error()})
		return
	}
	if s.view != nil {
		s.view.SetVisible(*req.Visible)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) fail(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"code": code, "error": err.Error()})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrEncodingUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrNetworkFailure):
		return http.StatusBadGateway
	case errors.Is(err, usecase.ErrNothingToPlay):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrUnknownMessage):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
