package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-parallax/pkg/calibration"
	"github.com/teslashibe/go-parallax/pkg/camera"
	"github.com/teslashibe/go-parallax/pkg/frustum"
	"github.com/teslashibe/go-parallax/pkg/hub"
	"github.com/teslashibe/go-parallax/pkg/smoothing"
	"github.com/teslashibe/go-parallax/pkg/tracking"
)

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	tracking.Status
	PoseClients    int `json:"pose_clients"`
	PreviewClients int `json:"preview_clients"`
}

// handleStatus returns the tracker state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Status:         s.tracker.Status(),
		PoseClients:    s.poseHub.ClientCount(),
		PreviewClients: s.previewHub.ClientCount(),
	})
}

func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(s.tracker.GetTuningParams())
}

// handleSetTuning applies a partial tuning update
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	var params tracking.TuningParams
	if err := c.BodyParser(&params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	if err := s.tracker.SetTuningParams(c.UserContext(), params); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(s.tracker.GetTuningParams())
}

func (s *Server) handleCalibrationStatus(c *fiber.Ctx) error {
	return c.JSON(s.tracker.CalibrationStatus())
}

func (s *Server) handleCalibrationStart(c *fiber.Ctx) error {
	st, err := s.tracker.StartCalibration()
	if err != nil {
		return s.writeError(c, err)
	}
	s.broadcastCalibration(st)
	return c.JSON(st)
}

// handleCalibrationNext confirms the current step. The body carries the
// slider values and is only required for the sliders step.
func (s *Server) handleCalibrationNext(c *fiber.Ctx) error {
	var sliders calibration.Sliders
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&sliders); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, err)
		}
	}

	wasActive := s.tracker.CalibrationStatus().Active
	st, err := s.tracker.NextCalibration(c.UserContext(), sliders)
	if err != nil {
		// A commit whose save failed still ended the procedure
		if wasActive && !st.Active {
			s.broadcastCalibration(st)
		}
		return s.writeError(c, err)
	}
	s.broadcastCalibration(st)
	return c.JSON(st)
}

func (s *Server) handleCalibrationCancel(c *fiber.Ctx) error {
	st := s.tracker.CancelCalibration()
	s.broadcastCalibration(st)
	return c.JSON(st)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.cameras == nil {
		return errorJSON(c, fiber.StatusNotFound, errors.New("no camera configured"))
	}
	return c.JSON(fiber.Map{
		"config":  s.cameras.GetConfig(),
		"presets": camera.PresetNames(),
	})
}

// handleSetCamera applies a preset and/or individual camera fields
func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	if s.cameras == nil {
		return errorJSON(c, fiber.StatusNotFound, errors.New("no camera configured"))
	}

	var update camera.Update
	if err := c.BodyParser(&update); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	cfg, err := s.cameras.Apply(update)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"config": cfg})
}

func (s *Server) broadcastCalibration(st tracking.CalibrationStatus) {
	if err := s.poseHub.BroadcastJSON(hub.KindCalibration, st); err != nil {
		s.logger.Debug("calibration broadcast failed", "error", err)
	}
}

// handlePoseWS streams tracking output and settings changes.
// ?kinds=pose,calibration limits the envelopes sent.
func (s *Server) handlePoseWS(c *websocket.Conn) {
	client := hub.NewClient(s.poseHub, c, hub.WithKinds(hub.ParseKinds(c.Query("kinds"))...))
	if client == nil {
		return
	}
	client.Run()
}

// handlePreviewWS streams annotated JPEG frames
func (s *Server) handlePreviewWS(c *websocket.Conn) {
	client := hub.NewClient(s.previewHub, c)
	if client == nil {
		return
	}
	client.Run()
}

// writeError maps domain errors to HTTP status codes
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return errorJSON(c, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, calibration.ErrNotActive),
		errors.Is(err, calibration.ErrAlreadyActive):
		return fiber.StatusConflict
	case errors.Is(err, tracking.ErrNoFace),
		errors.Is(err, calibration.ErrDegenerateSeparation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, calibration.ErrInvalidSliders),
		errors.Is(err, calibration.ErrInvalidBounds),
		errors.Is(err, calibration.ErrInvalidFocalLength),
		errors.Is(err, calibration.ErrInvalidDistance),
		errors.Is(err, smoothing.ErrInvalidParams),
		errors.Is(err, frustum.ErrInvalidClip),
		errors.Is(err, frustum.ErrInvalidScreen),
		errors.Is(err, frustum.ErrInvalidRig),
		errors.Is(err, camera.ErrInvalidConfig):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func errorJSON(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
