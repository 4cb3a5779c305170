// Package web provides the live dashboard: display fields, report log,
// annotated preview, camera settings and metrics.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-piar/internal/log"
	"github.com/teslashibe/go-piar/pkg/camera"
	"github.com/teslashibe/go-piar/pkg/hub"
	"github.com/teslashibe/go-piar/pkg/protocol"
	"github.com/teslashibe/go-piar/pkg/report"
)

// maxReports is how many reports the dashboard keeps
const maxReports = 100

// Placeholder is the value of an empty display field
const Placeholder = "--"

// Options configures the dashboard server
type Options struct {
	Port      string
	StaticDir string          // Optional directory served at /
	Camera    *camera.Manager // Optional runtime camera settings
	Metrics   http.Handler    // Optional Prometheus handler
}

// Server is the web dashboard server
type Server struct {
	app  *fiber.App
	port string
	log  *slog.Logger

	camera *camera.Manager

	// State
	state   protocol.StatusData
	stateMu sync.RWMutex

	// Report buffer (last maxReports entries)
	reports   []protocol.ReportData
	sent      int
	reportsMu sync.RWMutex

	// ThrottleState reports the throttle state for /api/status
	ThrottleState func() report.State

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	reportHub *hub.Hub
	cameraHub *hub.Hub

	cancel context.CancelFunc
}

// NewServer creates a new web dashboard server
func NewServer(opts Options) *Server {
	s := &Server{
		port:      opts.Port,
		log:       log.Component("web"),
		camera:    opts.Camera,
		reports:   make([]protocol.ReportData, 0, maxReports),
		statusHub: hub.New("status"),
		reportHub: hub.New("reports"),
		cameraHub: hub.New("camera"),
		state: protocol.StatusData{
			Status: "Starting",
			Label:  Placeholder,
			Score:  Placeholder,
		},
	}

	app := fiber.New(fiber.Config{
		AppName:               "piar dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/reports", s.handleGetReports)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handleCameraPresets)

	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/reports", websocket.New(s.handleReportsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// Start runs the hubs and serves until Shutdown
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.statusHub.Run(ctx)
	go s.reportHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	s.log.Info("dashboard listening", "url", fmt.Sprintf("http://localhost:%s", s.port))
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.log.Error("web server stopped", "err", err)
		}
	}()
}

// App returns the fiber app (for tests)
func (s *Server) App() *fiber.App {
	return s.app
}

// Display sets the label and score fields. It never fails.
func (s *Server) Display(label, score string) error {
	s.stateMu.Lock()
	changed := s.state.Label != label || s.state.Score != score
	s.state.Label = label
	s.state.Score = score
	s.stateMu.Unlock()

	// The loop resets to "--" on every empty frame; only push changes
	if changed {
		s.broadcast(s.statusHub, protocol.TypeDisplay, protocol.DisplayData{Label: label, Score: score})
	}
	return nil
}

// SetStatus updates the status line
func (s *Server) SetStatus(status string) {
	s.updateState(func(st *protocol.StatusData) { st.Status = status })
}

// SetRunning marks the detection loop as running or stopped
func (s *Server) SetRunning(running bool) {
	s.updateState(func(st *protocol.StatusData) { st.Running = running })
}

func (s *Server) updateState(update func(*protocol.StatusData)) {
	s.stateMu.Lock()
	update(&s.state)
	s.stateMu.Unlock()

	s.broadcast(s.statusHub, protocol.TypeStatus, s.Status())
}

// Status returns a snapshot of the dashboard state
func (s *Server) Status() protocol.StatusData {
	s.stateMu.RLock()
	st := s.state
	s.stateMu.RUnlock()

	if s.ThrottleState != nil {
		st.Throttle = s.ThrottleState().String()
	}

	s.reportsMu.RLock()
	st.Reports = s.sent
	if n := len(s.reports); n > 0 {
		st.LastReport = s.reports[n-1].Message
	}
	s.reportsMu.RUnlock()

	st.Clients = s.statusHub.ClientCount() + s.reportHub.ClientCount() + s.cameraHub.ClientCount()
	return st
}

// AddReport records a sent report and broadcasts it
func (s *Server) AddReport(r report.Report) protocol.ReportData {
	entry := protocol.ReportData{
		ID:      uuid.NewString(),
		Class:   r.Class,
		Percent: r.Percent,
		Message: r.Message(),
		SentAt:  time.Now().UnixMilli(),
	}

	s.reportsMu.Lock()
	s.reports = append(s.reports, entry)
	if len(s.reports) > maxReports {
		s.reports = s.reports[1:]
	}
	s.sent++
	s.reportsMu.Unlock()

	s.broadcast(s.reportHub, protocol.TypeReport, entry)
	return entry
}

// Reports returns the recent reports, oldest first
func (s *Server) Reports() []protocol.ReportData {
	s.reportsMu.RLock()
	defer s.reportsMu.RUnlock()
	out := make([]protocol.ReportData, len(s.reports))
	copy(out, s.reports)
	return out
}

// WantsPreview reports whether any client is watching the preview.
func (s *Server) WantsPreview() bool {
	return s.cameraHub.ClientCount() > 0
}

// SendPreview broadcasts an encoded preview frame
func (s *Server) SendPreview(width, height int, format string, data []byte, frameID uint64) {
	if !s.WantsPreview() {
		return
	}
	msg, err := protocol.NewFrameMessage(width, height, format, data, frameID)
	if err != nil {
		return
	}
	s.send(s.cameraHub, msg)
}

func (s *Server) broadcast(h *hub.Hub, t protocol.MessageType, data interface{}) {
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		s.log.Warn("encode broadcast", "type", t, "err", err)
		return
	}
	s.send(h, msg)
}

func (s *Server) send(h *hub.Hub, msg *protocol.Message) {
	raw, err := msg.Bytes()
	if err != nil {
		return
	}
	h.Broadcast(hub.NewJSONMessage(raw))
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.app.Shutdown()
}
