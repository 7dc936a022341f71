package projection_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/internal/classify"
	"fleet-monitor/internal/di"
	"fleet-monitor/internal/models"
)

func seedContainer(t *testing.T, role, project string) (*di.Container, *di.MockBackend, *di.MockToaster) {
	t.Helper()

	c := di.NewMockContainer(role, project)
	backend := c.Backend.(*di.MockBackend)
	toaster := c.Toaster.(*di.MockToaster)

	backend.Robots = []*models.Robot{{
		ID:        "1",
		RobotName: "Cleaner-1",
		ProjectID: "10",
		Sections: map[string]*models.Section{
			models.SectionMain: {
				Voltage:        20,
				Cycles:         3,
				Status:         "idle",
				TopicSubscribe: "fleet/1/main/out",
				TopicMain:      "fleet/1/main/in",
				MqttURL:        "wss://broker.example.com",
				MqttUsername:   "u",
				MqttPassword:   "p",
			},
		},
	}}
	backend.Projects = []*models.Project{{ID: "10", ProjectName: "Mall North"}}
	backend.Users = []*models.User{{Email: "ops@example.com", ProjectName: "Mall North"}}

	require.NoError(t, c.Fleet.Refresh(context.Background()))
	return c, backend, toaster
}

func statusEvent(voltage int, mode string) *classify.Event {
	ev := &classify.Event{Kind: classify.KindStatusFields, Mode: mode}
	if voltage >= 0 {
		v := voltage
		ev.Voltage = &v
	}
	return ev
}

func TestApplyStatusHealthyVoltage(t *testing.T) {
	c, backend, toaster := seedContainer(t, models.RoleAdmin, "")
	ctx := context.Background()
	res := c.Fleet.Resolve("fleet/1/main/out")
	require.NotNil(t, res)

	err := c.Projector.ApplyStatus(ctx, res, statusEvent(22, ""), "fleet/1/main/out")
	require.NoError(t, err)

	update := backend.LastUpdate()
	require.NotNil(t, update)
	assert.Equal(t, 22, update.Sections[models.SectionMain].Voltage)

	toasts := toaster.Shown()
	require.Len(t, toasts, 1)
	assert.Equal(t, "success", toasts[0].Kind)
	assert.Equal(t, `✅ Voltage updated for robot "Cleaner-1" to 22V`, toasts[0].Title)

	// No alert path side effects for a healthy reading.
	assert.Empty(t, backend.Emails)
}

func TestApplyStatusMode(t *testing.T) {
	c, backend, toaster := seedContainer(t, models.RoleAdmin, "")
	ctx := context.Background()
	res := c.Fleet.Resolve("fleet/1/main/out")

	require.NoError(t, c.Projector.ApplyStatus(ctx, res, statusEvent(-1, "cleaning"), "fleet/1/main/out"))

	update := backend.LastUpdate()
	require.NotNil(t, update)
	assert.Equal(t, "cleaning", update.Sections[models.SectionMain].Status)
	// Untouched fields survive the read-modify-write.
	assert.Equal(t, 20, update.Sections[models.SectionMain].Voltage)

	toasts := toaster.Shown()
	require.Len(t, toasts, 1)
	assert.Equal(t, `🔄 Status updated for robot "Cleaner-1" to cleaning`, toasts[0].Title)
}

func TestApplyStatusLowVoltage(t *testing.T) {
	c, backend, toaster := seedContainer(t, models.RoleAdmin, "")
	ctx := context.Background()
	res := c.Fleet.Resolve("fleet/1/main/out")

	require.NoError(t, c.Projector.ApplyStatus(ctx, res, statusEvent(9, ""), "fleet/1/main/out"))

	// The danger toast fires instead of the updated toast.
	toasts := toaster.Shown()
	require.NotEmpty(t, toasts)
	assert.Equal(t, "error", toasts[0].Kind)
	assert.Contains(t, toasts[0].Title, "critically low (9V)")

	// Email fan-out to the robot's project members.
	require.Len(t, backend.Emails, 1)
	assert.Equal(t, "ops@example.com", backend.Emails[0].To)

	// The alert record lands in the notification sink.
	found := false
	for _, n := range backend.Notifications {
		if strings.Contains(n.Message, "critically low (9V)") {
			found = true
			assert.Equal(t, models.TypeAlert, n.Type)
		}
	}
	assert.True(t, found, "expected a persisted danger record")
}

func TestLowVoltageAlertDangerWindow(t *testing.T) {
	c, backend, _ := seedContainer(t, models.RoleAdmin, "")
	ctx := context.Background()
	res := c.Fleet.Resolve("fleet/1/main/out")

	c.Projector.LowVoltageAlert(ctx, res, 9, "fleet/1/main/out")
	emailsAfterFirst := len(backend.Emails)
	require.Equal(t, 1, emailsAfterFirst)

	// Same reading inside the window is suppressed entirely.
	c.Projector.LowVoltageAlert(ctx, res, 9, "fleet/1/main/out")
	assert.Equal(t, emailsAfterFirst, len(backend.Emails))

	// A different reading is a different condition.
	c.Projector.LowVoltageAlert(ctx, res, 8, "fleet/1/main/out")
	assert.Equal(t, 2, len(backend.Emails))
}

func TestApplyStatusFallbackOnWriteFailure(t *testing.T) {
	c, backend, _ := seedContainer(t, models.RoleAdmin, "")
	ctx := context.Background()
	res := c.Fleet.Resolve("fleet/1/main/out")

	backend.FailUpdateRobot = true
	err := c.Projector.ApplyStatus(ctx, res, statusEvent(22, "cleaning"), "fleet/1/main/out")
	assert.Error(t, err)
}

func TestHalfCycle(t *testing.T) {
	c, backend, toaster := seedContainer(t, models.RoleAdmin, "")
	ctx := context.Background()
	res := c.Fleet.Resolve("fleet/1/main/out")

	require.NoError(t, c.Projector.HalfCycle(ctx, res, "fleet/1/main/out"))

	update := backend.LastUpdate()
	require.NotNil(t, update)
	assert.Equal(t, models.Cycles(3.5), update.Sections[models.SectionMain].Cycles)

	// The snapshot reflects the new count.
	snap := c.Fleet.FindRobot("1")
	require.NotNil(t, snap)
	assert.Equal(t, models.Cycles(3.5), snap.Sections[models.SectionMain].Cycles)

	// Record + success toast.
	require.Len(t, backend.Notifications, 1)
	assert.Equal(t, "Half cycle finished for Cleaner-1. Cycles: 3.5", backend.Notifications[0].Message)

	toasts := toaster.Shown()
	require.Len(t, toasts, 1)
	assert.Equal(t, "success", toasts[0].Kind)
}

func TestHalfCycleIncrementsOnceInWindow(t *testing.T) {
	c, backend, _ := seedContainer(t, models.RoleAdmin, "")
	ctx := context.Background()
	res := c.Fleet.Resolve("fleet/1/main/out")

	require.NoError(t, c.Projector.HalfCycle(ctx, res, "fleet/1/main/out"))
	require.NoError(t, c.Projector.HalfCycle(ctx, res, "fleet/1/main/out"))

	assert.Len(t, backend.UpdateCalls, 1)
	assert.Equal(t, models.Cycles(3.5), backend.LastUpdate().Sections[models.SectionMain].Cycles)
}

func TestHalfCycleSkipsToastOutsideProject(t *testing.T) {
	c, backend, toaster := seedContainer(t, models.RoleUser, "Airport")
	backend.Projects = append(backend.Projects, &models.Project{ID: "20", ProjectName: "Airport"})
	ctx := context.Background()
	res := c.Fleet.Resolve("fleet/1/main/out")

	require.NoError(t, c.Projector.HalfCycle(ctx, res, "fleet/1/main/out"))

	// Cycles still advance; only the viewer-facing output is suppressed.
	assert.Equal(t, models.Cycles(3.5), backend.LastUpdate().Sections[models.SectionMain].Cycles)
	assert.Empty(t, toaster.Shown())
	assert.Empty(t, backend.Notifications)
}

func TestApplyStatusFollowUpWrites(t *testing.T) {
	c, backend, _ := seedContainer(t, models.RoleAdmin, "")
	ctx := context.Background()
	res := c.Fleet.Resolve("fleet/1/main/out")

	require.NoError(t, c.Projector.ApplyStatus(ctx, res, statusEvent(22, ""), "fleet/1/main/out"))

	// The per-field consistency pass lands shortly after the main write.
	time.Sleep(900 * time.Millisecond)
	assert.GreaterOrEqual(t, len(backend.UpdateCalls), 2)
}
