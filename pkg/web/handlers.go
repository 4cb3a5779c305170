package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-piar/pkg/camera"
	"github.com/teslashibe/go-piar/pkg/hub"
	"github.com/teslashibe/go-piar/pkg/protocol"
)

// handleStatus returns the current state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleGetReports returns recent reports
func (s *Server) handleGetReports(c *fiber.Ctx) error {
	return c.JSON(s.Reports())
}

// handleGetCamera returns the camera configuration
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera settings not available"})
	}
	return c.JSON(s.camera.GetConfig())
}

// handleUpdateCamera applies a partial camera update, optionally with a preset
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera settings not available"})
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}

	if err := s.camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	cfg := s.camera.GetConfig()
	s.log.Info("camera config updated", "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return c.JSON(cfg)
}

// handleCameraPresets lists the camera presets
func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}

// handleStatusWS streams display and status changes, starting with a snapshot
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if msg, err := protocol.NewStatusMessage(s.Status()); err == nil {
		if raw, err := msg.Bytes(); err == nil {
			c.WriteMessage(websocket.TextMessage, raw)
		}
	}
	s.serve(s.statusHub, c)
}

// handleReportsWS streams reports, starting with the recent history
func (s *Server) handleReportsWS(c *websocket.Conn) {
	for _, entry := range s.Reports() {
		msg, err := protocol.NewReportMessage(entry)
		if err != nil {
			continue
		}
		if raw, err := msg.Bytes(); err == nil {
			c.WriteMessage(websocket.TextMessage, raw)
		}
	}
	s.serve(s.reportHub, c)
}

// handleCameraWS streams the annotated preview
func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.serve(s.cameraHub, c)
}

func (s *Server) serve(h *hub.Hub, c *websocket.Conn) {
	client := hub.NewClient(h, c)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
