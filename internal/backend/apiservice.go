package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jo-hoe/roadwatch/internal/backend/counter"
	"github.com/jo-hoe/roadwatch/internal/backend/database"
	"github.com/jo-hoe/roadwatch/internal/backend/detection"
	"github.com/jo-hoe/roadwatch/internal/backend/geocode"
	"github.com/jo-hoe/roadwatch/internal/core"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	maxFrameBytes = 16 << 20

	msgNoImage         = "No image provided"
	msgNoVideo         = "No video provided"
	msgLocationMissing = "Location data missing"
	msgInvalidLocation = "Invalid location data"
	msgInvalidImage    = "Invalid image"
	msgNoData          = "No data received"
	msgInvalidFrame    = "Invalid frame"
	msgLogWriteFailed  = "Error writing to location log file"
	msgReportNotFound  = "Report not found"
	msgDetectFailed    = "Detection failed"
)

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
	upgrader    websocket.Upgrader
}

type countResponse struct {
	PotholeCount int64 `json:"pothole_count"`
}

type videoResponse struct {
	Detections []detection.Detection `json:"detections"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// frames come from browser pages on any origin, as the REST endpoints allow
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.Use(s.requestMetrics)

	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})
	e.GET("/metrics", echo.WrapHandler(s.coreService.Metrics().Handler()))

	e.POST("/detect", s.detectHandler)
	e.POST("/detect/count", s.countHandler, middleware.BodyLimit(strconv.Itoa(maxFrameBytes>>20)+"M"))
	e.POST("/detect/video", s.videoHandler, middleware.BodyLimit(fmt.Sprintf("%dM", s.config.Video.MaxUploadMB)))
	e.GET("/ws", s.websocketHandler)

	e.GET("/reports", s.listReportsHandler)
	e.GET("/reports/:id", s.getReportHandler)
	e.GET("/reports/:id/image", s.getReportImageHandler)
	e.DELETE("/reports/:id", s.deleteReportHandler)
}

// requestMetrics counts handled requests per route and status code
func (s *APIService) requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		status := c.Response().Status
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Code
		}
		if c.Path() != "" {
			s.coreService.Metrics().ObserveRequest(c.Path(), status)
		}
		return err
	}
}

func jsonError(c echo.Context, code int, message string) error {
	return c.JSON(code, errorResponse{Error: message})
}

func (s *APIService) detectHandler(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, msgNoImage)
	}

	location, message := s.parseLocation(c)
	if message != "" {
		return jsonError(c, http.StatusBadRequest, message)
	}
	if err := c.Validate(&location); err != nil {
		slog.Warn("detectHandler: coordinates out of range", "latitude", location.Latitude, "longitude", location.Longitude, "error", err)
		return jsonError(c, http.StatusBadRequest, msgInvalidLocation)
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("detectHandler: failed to open uploaded file", "error", err, "filename", file.Filename)
		return jsonError(c, http.StatusInternalServerError, "Failed to open uploaded file")
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("detectHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	image, err := io.ReadAll(src)
	if err != nil {
		slog.Error("detectHandler: failed to read uploaded file", "error", err, "filename", file.Filename)
		return jsonError(c, http.StatusInternalServerError, "Failed to read uploaded file")
	}
	if len(image) == 0 {
		return jsonError(c, http.StatusBadRequest, msgNoImage)
	}

	result, err := s.coreService.DetectAndReport(c.Request().Context(), core.DetectionRequest{
		Image:    image,
		Filename: file.Filename,
		Location: location,
	})
	switch {
	case err == nil:
	case errors.Is(err, core.ErrInvalidImage):
		return jsonError(c, http.StatusBadRequest, msgInvalidImage)
	case errors.Is(err, core.ErrSightingLog):
		return jsonError(c, http.StatusInternalServerError, msgLogWriteFailed)
	default:
		slog.Error("detectHandler: detection failed", "error", err, "filename", file.Filename)
		return jsonError(c, http.StatusInternalServerError, msgDetectFailed)
	}

	c.Response().Header().Set("X-Report-Id", result.Report.ID)
	return c.Blob(http.StatusOK, "image/jpeg", result.Annotated)
}

// parseLocation reads latitude and longitude form fields, or an NMEA sentence in the nmea field.
// A non-empty message describes why the location is unusable.
func (s *APIService) parseLocation(c echo.Context) (geocode.Coordinates, string) {
	latitude := strings.TrimSpace(c.FormValue("latitude"))
	longitude := strings.TrimSpace(c.FormValue("longitude"))

	if latitude == "" && longitude == "" {
		sentence := c.FormValue("nmea")
		if sentence == "" {
			return geocode.Coordinates{}, msgLocationMissing
		}
		coordinates, err := geocode.ParseNMEA(sentence)
		if err != nil {
			slog.Warn("parseLocation: unusable NMEA sentence", "error", err)
			return geocode.Coordinates{}, msgInvalidLocation
		}
		return coordinates, ""
	}
	if latitude == "" || longitude == "" {
		return geocode.Coordinates{}, msgLocationMissing
	}

	lat, latErr := strconv.ParseFloat(latitude, 64)
	lon, lonErr := strconv.ParseFloat(longitude, 64)
	if latErr != nil || lonErr != nil {
		return geocode.Coordinates{}, msgInvalidLocation
	}
	return geocode.Coordinates{Latitude: lat, Longitude: lon}, ""
}

func (s *APIService) countHandler(c echo.Context) error {
	frame, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, msgNoData)
	}

	total, err := s.coreService.CountFrame(c.Request().Context(), frame)
	if err != nil {
		code, message := countError(err)
		return jsonError(c, code, message)
	}
	return c.JSON(http.StatusOK, countResponse{PotholeCount: total})
}

// countError maps counting failures to status code and client message
func countError(err error) (int, string) {
	switch {
	case errors.Is(err, counter.ErrEmptyFrame):
		return http.StatusBadRequest, msgNoData
	case errors.Is(err, core.ErrInvalidFrame):
		return http.StatusBadRequest, msgInvalidFrame
	default:
		slog.Error("frame counting failed", "error", err)
		return http.StatusInternalServerError, err.Error()
	}
}

func (s *APIService) videoHandler(c echo.Context) error {
	file, err := c.FormFile("video")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, msgNoVideo)
	}
	src, err := file.Open()
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	defer func() {
		_ = src.Close()
	}()

	detections, err := s.coreService.DetectVideo(c.Request().Context(), src, file.Filename)
	if err != nil {
		slog.Error("videoHandler: video detection failed", "error", err, "filename", file.Filename)
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, videoResponse{Detections: detections})
}

func (s *APIService) websocketHandler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("websocketHandler: upgrade failed", "error", err)
		return nil
	}
	defer func() {
		_ = conn.Close()
	}()
	conn.SetReadLimit(maxFrameBytes)

	sessionID := s.coreService.OpenSession()
	defer s.coreService.CloseSession(context.Background(), sessionID)
	slog.Info("websocket client connected", "session_id", sessionID, "remote", c.RealIP())

	ctx := c.Request().Context()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "session_id", sessionID, "error", err)
			}
			slog.Info("websocket client disconnected", "session_id", sessionID)
			return nil
		}

		var reply any
		frame, err := decodeMessage(messageType, data)
		if err != nil {
			reply = errorResponse{Error: msgInvalidFrame}
		} else if total, err := s.coreService.CountSessionFrame(ctx, sessionID, frame); err != nil {
			_, message := countError(err)
			reply = errorResponse{Error: message}
		} else {
			reply = countResponse{PotholeCount: total}
		}

		if err := conn.WriteJSON(reply); err != nil {
			slog.Warn("websocket write failed", "session_id", sessionID, "error", err)
			return nil
		}
	}
}

// decodeMessage returns the frame bytes of a websocket message. Binary messages are raw
// image bytes, text messages carry base64, optionally as a data URL.
func decodeMessage(messageType int, data []byte) ([]byte, error) {
	if messageType != websocket.TextMessage {
		return data, nil
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	if strings.HasPrefix(text, "data:") {
		_, payload, ok := strings.Cut(text, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data url")
		}
		text = payload
	}
	return base64.StdEncoding.DecodeString(text)
}

func (s *APIService) listReportsHandler(c echo.Context) error {
	reports, err := s.coreService.Reports()
	if err != nil {
		slog.Error("listReportsHandler: failed to list reports", "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to list reports")
	}
	return c.JSON(http.StatusOK, reports)
}

func (s *APIService) getReportHandler(c echo.Context) error {
	report, err := s.coreService.Report(c.Param("id"))
	if errors.Is(err, database.ErrReportNotFound) {
		return jsonError(c, http.StatusNotFound, msgReportNotFound)
	}
	if err != nil {
		slog.Error("getReportHandler: failed to load report", "id", c.Param("id"), "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to load report")
	}
	return c.JSON(http.StatusOK, report)
}

func (s *APIService) getReportImageHandler(c echo.Context) error {
	id := c.Param("id")
	data, err := s.coreService.ReportImage(c.Request().Context(), id)
	if errors.Is(err, database.ErrReportNotFound) {
		return jsonError(c, http.StatusNotFound, msgReportNotFound)
	}
	if err != nil {
		slog.Warn("getReportImageHandler: image not available", "id", id, "error", err)
		return jsonError(c, http.StatusNotFound, "Image not available")
	}
	return c.Blob(http.StatusOK, "image/jpeg", data)
}

func (s *APIService) deleteReportHandler(c echo.Context) error {
	id := c.Param("id")
	err := s.coreService.DeleteReport(id)
	if errors.Is(err, database.ErrReportNotFound) {
		return jsonError(c, http.StatusNotFound, msgReportNotFound)
	}
	if err != nil {
		slog.Error("deleteReportHandler: failed to delete report", "id", id, "error", err)
		return jsonError(c, http.StatusInternalServerError, "Failed to delete report")
	}
	return c.NoContent(http.StatusNoContent)
}
