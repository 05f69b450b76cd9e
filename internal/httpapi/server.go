// Package httpapi exposes a device over HTTP through its worker.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rapiduino/rapiduino-go/internal/config"
	"github.com/rapiduino/rapiduino-go/pkg/board"
	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/pin"
	"github.com/rapiduino/rapiduino-go/pkg/worker"
)

// TokenHeader carries the component token on pin I/O requests.
const TokenHeader = "X-Rapiduino-Token"

// Options holds the optional collaborators of a Server.
type Options struct {
	MetricsPath string
	Metrics     http.Handler
	Ready       func() bool

	// Board resolves analog aliases such as "A0" in the :pin path segment.
	Board  *board.Board
	Logger *slog.Logger
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	srv    *http.Server
	w      *worker.Worker
	board  *board.Board
	logger *slog.Logger
}

// New builds the router and registers the health, metrics and /v1 routes.
func New(cfg config.HTTPConfig, w *worker.Worker, opts Options) *Server {
	s := &Server{w: w, board: opts.Board, logger: opts.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if opts.Ready == nil || opts.Ready() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if opts.Metrics != nil {
		r.GET(metricsPath, gin.WrapH(opts.Metrics))
	}

	v1 := r.Group("/v1")
	v1.GET("/device", s.getDevice)
	v1.GET("/pins", s.listPins)
	v1.POST("/pins/:pin/mode", s.setMode)
	v1.GET("/pins/:pin/digital", s.digitalRead)
	v1.PUT("/pins/:pin/digital", s.digitalWrite)
	v1.GET("/pins/:pin/analog", s.analogRead)
	v1.PUT("/pins/:pin/analog", s.analogWrite)
	v1.POST("/components", s.register)
	v1.DELETE("/components/:token", s.deregister)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until Shutdown (blocking).
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

type pinView struct {
	ID       int    `json:"id"`
	PWM      bool   `json:"pwm"`
	Analog   bool   `json:"analog"`
	Reserved bool   `json:"reserved"`
	Owner    string `json:"owner,omitempty"`
}

func (s *Server) getDevice(c *gin.Context) {
	d := s.w.Device()
	fw, err := s.w.Version(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connectionId": d.ConnectionID(),
		"firmware":     fw.String(),
		"minVersion":   d.MinVersion().String(),
	})
}

func (s *Server) listPins(c *gin.Context) {
	d := s.w.Device()
	owners := d.Registered()
	pins := d.Pins()
	out := make([]pinView, 0, len(pins))
	for _, p := range pins {
		out = append(out, pinView{
			ID:       p.ID,
			PWM:      p.PWM,
			Analog:   p.Analog,
			Reserved: p.Reserved,
			Owner:    owners[p.ID].String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"pins": out})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) setMode(c *gin.Context) {
	id, ok := s.pinParam(c)
	if !ok {
		return
	}
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode, err := pin.ParseMode(req.Mode)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.w.PinMode(c.Request.Context(), id, mode, accessOf(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pin": id, "mode": mode.String()})
}

func (s *Server) digitalRead(c *gin.Context) {
	id, ok := s.pinParam(c)
	if !ok {
		return
	}
	state, err := s.w.DigitalRead(c.Request.Context(), id, accessOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pin": id, "state": state.String()})
}

type stateRequest struct {
	State string `json:"state" binding:"required"`
}

func (s *Server) digitalWrite(c *gin.Context) {
	id, ok := s.pinParam(c)
	if !ok {
		return
	}
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	state, err := pin.ParseState(req.State)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.w.DigitalWrite(c.Request.Context(), id, state, accessOf(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pin": id, "state": state.String()})
}

func (s *Server) analogRead(c *gin.Context) {
	id, ok := s.pinParam(c)
	if !ok {
		return
	}
	v, err := s.w.AnalogRead(c.Request.Context(), id, accessOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pin": id, "value": v})
}

type valueRequest struct {
	Value *int `json:"value" binding:"required"`
}

func (s *Server) analogWrite(c *gin.Context) {
	id, ok := s.pinParam(c)
	if !ok {
		return
	}
	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.w.AnalogWrite(c.Request.Context(), id, *req.Value, accessOf(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pin": id, "value": *req.Value})
}

type claim struct {
	Pin    string `json:"pin" binding:"required"`
	PWM    bool   `json:"pwm"`
	Analog bool   `json:"analog"`
}

type registerRequest struct {
	Pins []claim `json:"pins" binding:"required,min=1"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reqs := make([]pin.Requirement, 0, len(req.Pins))
	ids := make([]int, 0, len(req.Pins))
	for _, p := range req.Pins {
		id, err := s.resolve(p.Pin)
		if err != nil {
			badRequest(c, err)
			return
		}
		reqs = append(reqs, pin.Requirement{ID: id, PWM: p.PWM, Analog: p.Analog})
		ids = append(ids, id)
	}
	sort.Ints(ids)

	token := device.NewToken()
	if err := s.w.Register(c.Request.Context(), token, reqs...); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token": token.String(),
		"pins":  ids,
	})
}

func (s *Server) deregister(c *gin.Context) {
	token := device.Token(c.Param("token"))
	ids, err := s.w.Deregister(c.Request.Context(), token)
	if err != nil {
		s.fail(c, err)
		return
	}
	if ids == nil {
		ids = []int{}
	}
	c.JSON(http.StatusOK, gin.H{"token": token.String(), "released": ids})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// accessOf returns the caller's token, or nil when the header is absent.
func accessOf(c *gin.Context) device.Access {
	if t := c.GetHeader(TokenHeader); t != "" {
		return device.Token(t)
	}
	return nil
}

func (s *Server) resolve(name string) (int, error) {
	if s.board != nil {
		return s.board.Resolve(name)
	}
	return strconv.Atoi(name)
}

func (s *Server) pinParam(c *gin.Context) (int, bool) {
	id, err := s.resolve(c.Param("pin"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": "invalid_pin_number"})
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "bad_request"})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": KindOf(err)})
}

// KindOf extends device.Kind with worker and context errors.
func KindOf(err error) string {
	switch {
	case errors.Is(err, worker.ErrStopped):
		return "stopped"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	}
	return device.Kind(err)
}

// StatusOf maps an error to the HTTP status the bridge answers with.
func StatusOf(err error) int {
	switch KindOf(err) {
	case "invalid_pin_number", "pin_does_not_exist":
		return http.StatusNotFound
	case "reserved_pin", "invalid_mode", "invalid_state", "range",
		"not_analog_pin", "not_pwm_pin", "empty_token", "argument":
		return http.StatusBadRequest
	case "protected_pin":
		return http.StatusForbidden
	case "pin_already_registered", "component_already_registered":
		return http.StatusConflict
	case "send", "receive", "firmware_incompatible":
		return http.StatusBadGateway
	case "closed", "stopped":
		return http.StatusServiceUnavailable
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
