// internal/api/handlers.go
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"fleet-monitor/internal/command"
	"fleet-monitor/internal/fleet"
	"fleet-monitor/internal/interfaces"
	"fleet-monitor/internal/models"
	"fleet-monitor/internal/notify"
	"fleet-monitor/internal/registry"
)

// Handler exposes the operator-facing HTTP surface: health, the live
// connection table, the notification feed and the outbound command triggers.
type Handler struct {
	registry *registry.Registry
	fleet    *fleet.Store
	router   *notify.Router
	commands *command.Service
	logger   interfaces.Logger
}

func NewHandler(
	reg *registry.Registry,
	fleetStore *fleet.Store,
	router *notify.Router,
	commands *command.Service,
	logger interfaces.Logger,
) *Handler {
	return &Handler{
		registry: reg,
		fleet:    fleetStore,
		router:   router,
		commands: commands,
		logger:   logger,
	}
}

// NewServer builds the echo instance with all routes registered.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/health", h.HealthCheck)
	e.GET("/connections", h.GetConnections)
	e.GET("/notifications", h.GetNotifications)

	e.POST("/reconnect", h.ReconnectAll)
	e.POST("/reconnect/:robotId/:section", h.ReconnectOne)
	e.POST("/refresh", h.RefreshFleet)
	e.POST("/publish", h.PublishButton)
	e.POST("/robots/:robotId/schedule", h.SendSchedule)
	e.POST("/robots/:robotId/timesync", h.SendTimeSync)

	return e
}

func createSuccessResponse(message string, data interface{}) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "success",
		"message": message,
	}
	if data != nil {
		response["data"] = data
	}
	return response
}

func createErrorResponse(message string) map[string]interface{} {
	return map[string]interface{}{
		"status":  "error",
		"message": message,
	}
}

func (h *Handler) HealthCheck(c echo.Context) error {
	total, connected := h.registry.Counts()

	response := map[string]interface{}{
		"status":          "healthy",
		"service":         "fleet-monitor",
		"timestamp":       time.Now().Unix(),
		"connectionCount": total,
		"connectedCount":  connected,
	}
	return c.JSON(http.StatusOK, response)
}

func (h *Handler) GetConnections(c echo.Context) error {
	conns := h.registry.Connections()

	items := make([]map[string]interface{}, 0, len(conns))
	for _, conn := range conns {
		items = append(items, map[string]interface{}{
			"robotId":     conn.RobotID,
			"robotName":   conn.RobotName,
			"sectionName": conn.SectionName,
			"status":      h.registry.Status(conn.RobotID, conn.SectionName),
			"lastSeen":    conn.LastSeen(),
		})
	}

	response := map[string]interface{}{
		"connections": items,
		"count":       len(items),
	}
	return c.JSON(http.StatusOK, response)
}

func (h *Handler) GetNotifications(c echo.Context) error {
	feed := h.router.Feed()

	response := map[string]interface{}{
		"notifications": feed,
		"count":         len(feed),
	}
	return c.JSON(http.StatusOK, response)
}

func (h *Handler) ReconnectAll(c echo.Context) error {
	h.registry.ReconnectAll(c.Request().Context())
	return c.JSON(http.StatusOK, createSuccessResponse("Reconnecting all broker connections", nil))
}

func (h *Handler) ReconnectOne(c echo.Context) error {
	robotID := models.ID(c.Param("robotId"))
	section := c.Param("section")

	if robotID.IsZero() || section == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Robot id and section are required")
	}

	h.registry.Reconnect(robotID, section)
	message := fmt.Sprintf("Reconnecting %s-%s", robotID, section)
	return c.JSON(http.StatusOK, createSuccessResponse(message, nil))
}

func (h *Handler) RefreshFleet(c echo.Context) error {
	if err := h.fleet.Refresh(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("Fleet refresh failed: %v", err))
	}
	return c.JSON(http.StatusOK, createSuccessResponse("Fleet snapshot refreshed", nil))
}

type publishRequest struct {
	RobotID     models.ID `json:"robotId"`
	SectionName string    `json:"sectionName"`
	Topic       string    `json:"topic"`
	Value       string    `json:"value"`
}

func (h *Handler) PublishButton(c echo.Context) error {
	var req publishRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if req.RobotID.IsZero() || req.SectionName == "" || req.Topic == "" || req.Value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "robotId, sectionName, topic and value are required")
	}

	if !h.commands.PressButton(c.Request().Context(), req.RobotID, req.SectionName, req.Topic, req.Value) {
		return c.JSON(http.StatusServiceUnavailable,
			createErrorResponse(fmt.Sprintf("No connected client for %s-%s", req.RobotID, req.SectionName)))
	}

	return c.JSON(http.StatusOK, createSuccessResponse("Command published", nil))
}

type scheduleRequest struct {
	Days   []string `json:"days"`
	Hour   int      `json:"hour"`
	Minute int      `json:"minute"`
}

func (h *Handler) SendSchedule(c echo.Context) error {
	robotID := models.ID(c.Param("robotId"))
	if robotID.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "Robot id is required")
	}

	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if req.Hour < 0 || req.Hour > 23 || req.Minute < 0 || req.Minute > 59 {
		return echo.NewHTTPError(http.StatusBadRequest, "Hour must be 0-23 and minute 0-59")
	}

	sched := command.Schedule{Days: req.Days, Hour: req.Hour, Minute: req.Minute}
	if err := h.commands.SendSchedule(c.Request().Context(), robotID, sched); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("Failed to send schedule: %v", err))
	}

	return c.JSON(http.StatusOK,
		createSuccessResponse("Schedule sent successfully via MQTT", map[string]interface{}{
			"message": sched.WireMessage(),
		}))
}

func (h *Handler) SendTimeSync(c echo.Context) error {
	robotID := models.ID(c.Param("robotId"))
	if robotID.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "Robot id is required")
	}

	if err := h.commands.SendTimeSync(c.Request().Context(), robotID); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("Failed to send time sync: %v", err))
	}

	return c.JSON(http.StatusOK, createSuccessResponse("Time sync sent", nil))
}
