package notify_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/internal/cache"
	"fleet-monitor/internal/di"
	"fleet-monitor/internal/fleet"
	"fleet-monitor/internal/models"
	"fleet-monitor/internal/notify"
)

func newRouter(backend *di.MockBackend, role, project string) *notify.Router {
	return notify.NewRouter(backend, cache.NewMemoryCache(), di.NewMockLogger(), role, project, 0, 1000)
}

func resolutionFor(robot *models.Robot) *fleet.Resolution {
	return &fleet.Resolution{Robot: robot, SectionName: models.SectionMain}
}

func seededBackend() *di.MockBackend {
	backend := di.NewMockBackend()
	backend.Projects = []*models.Project{
		{ID: "10", ProjectName: "Mall North"},
		{ID: "20", ProjectName: "Airport"},
	}
	backend.Users = []*models.User{
		{Email: "a@example.com", ProjectName: "Mall North"},
		{Email: "b@example.com", ProjectName: "Mall North"},
		{Email: "c@example.com", ProjectName: "Airport"},
		{Email: "", ProjectName: "Mall North"},
	}
	return backend
}

func TestShouldShow(t *testing.T) {
	ctx := context.Background()
	robot := &models.Robot{ID: "1", RobotName: "Cleaner-1", ProjectID: "10"}

	t.Run("privileged roles always see", func(t *testing.T) {
		r := newRouter(seededBackend(), models.RoleAdmin, "")
		assert.True(t, r.ShouldShow(ctx, nil))
		assert.True(t, r.ShouldShow(ctx, resolutionFor(robot)))
	})

	t.Run("restricted viewer in the same project sees", func(t *testing.T) {
		r := newRouter(seededBackend(), models.RoleUser, "Mall North")
		assert.True(t, r.ShouldShow(ctx, resolutionFor(robot)))
	})

	t.Run("restricted viewer in another project does not", func(t *testing.T) {
		r := newRouter(seededBackend(), models.RoleUser, "Airport")
		assert.False(t, r.ShouldShow(ctx, resolutionFor(robot)))
	})

	t.Run("fail closed on missing links", func(t *testing.T) {
		r := newRouter(seededBackend(), models.RoleUser, "Mall North")

		assert.False(t, r.ShouldShow(ctx, nil))
		assert.False(t, r.ShouldShow(ctx, &fleet.Resolution{}))

		orphan := &models.Robot{ID: "2", RobotName: "Orphan"}
		assert.False(t, r.ShouldShow(ctx, resolutionFor(orphan)))

		noProject := newRouter(seededBackend(), models.RoleUser, "")
		assert.False(t, noProject.ShouldShow(ctx, resolutionFor(robot)))

		unknown := newRouter(seededBackend(), models.RoleUser, "No Such Project")
		assert.False(t, unknown.ShouldShow(ctx, resolutionFor(robot)))
	})

	t.Run("project name matching trims and ignores case", func(t *testing.T) {
		r := newRouter(seededBackend(), models.RoleUser, "  mall north ")
		assert.True(t, r.ShouldShow(ctx, resolutionFor(robot)))
	})
}

func TestSendAlertEmails(t *testing.T) {
	ctx := context.Background()

	t.Run("fans out to project members with addresses", func(t *testing.T) {
		backend := seededBackend()
		r := newRouter(backend, models.RoleAdmin, "")

		r.SendAlertEmails(ctx, "10", "Cleaner-1", 9)

		require.Len(t, backend.Emails, 2)
		assert.Equal(t, "a@example.com", backend.Emails[0].To)
		assert.Equal(t, "Alert: Robot Cleaner-1 Low Voltage", backend.Emails[0].Subject)
		assert.Contains(t, backend.Emails[0].Message, `critically low (9V)`)
	})

	t.Run("unknown project sends nothing", func(t *testing.T) {
		backend := seededBackend()
		r := newRouter(backend, models.RoleAdmin, "")

		r.SendAlertEmails(ctx, "404", "Cleaner-1", 9)
		assert.Empty(t, backend.Emails)
	})
}

func TestSaveAndRecord(t *testing.T) {
	ctx := context.Background()

	notif := func(msg string) *models.Notification {
		n := &models.Notification{
			TopicMain:   "fleet/1/main/in",
			Message:     msg,
			Type:        models.TypeInfo,
			RobotID:     "1",
			RobotName:   "Cleaner-1",
			SectionName: models.SectionMain,
			Date:        "2026-08-28",
			Time:        "10:00:00",
		}
		return n
	}

	t.Run("persists to both sinks and appends to the feed", func(t *testing.T) {
		backend := seededBackend()
		r := newRouter(backend, models.RoleAdmin, "")

		entry := r.SaveAndRecord(ctx, notif("brush replaced"))
		require.NotNil(t, entry)
		assert.Equal(t, "n-1", entry.NotificationID)
		assert.Equal(t, "mqtt", entry.Source)
		assert.Equal(t, "Cleaner-1 (main): brush replaced", entry.DisplayMessage)

		assert.Len(t, backend.Notifications, 1)
		assert.Len(t, backend.Logs, 1)
		assert.Len(t, r.Feed(), 1)
	})

	t.Run("log failure is non-fatal", func(t *testing.T) {
		backend := seededBackend()
		backend.FailLogs = true
		r := newRouter(backend, models.RoleAdmin, "")

		entry := r.SaveAndRecord(ctx, notif("still saved"))
		require.NotNil(t, entry)
		assert.Len(t, backend.Notifications, 1)
	})

	t.Run("notification failure aborts", func(t *testing.T) {
		backend := seededBackend()
		backend.FailNotifications = true
		r := newRouter(backend, models.RoleAdmin, "")

		assert.Nil(t, r.SaveAndRecord(ctx, notif("dropped")))
		assert.Empty(t, r.Feed())
	})

	t.Run("alert flag from message keywords", func(t *testing.T) {
		backend := seededBackend()
		r := newRouter(backend, models.RoleAdmin, "")

		entry := r.SaveAndRecord(ctx, notif("motor fault detected"))
		require.NotNil(t, entry)
		assert.True(t, entry.IsAlert)
	})
}

func TestFeed(t *testing.T) {
	ctx := context.Background()

	t.Run("newest first", func(t *testing.T) {
		r := newRouter(seededBackend(), models.RoleAdmin, "")

		for i := 0; i < 3; i++ {
			n := &models.Notification{Message: fmt.Sprintf("msg-%d", i), RobotID: "1"}
			n.StampNow(time.Now())
			require.NotNil(t, r.SaveAndRecord(ctx, n))
		}

		feed := r.Feed()
		require.Len(t, feed, 3)
		assert.Equal(t, "msg-2", feed[0].Message)
		assert.Equal(t, "msg-0", feed[2].Message)
	})

	t.Run("duplicate entries inside one second are dropped", func(t *testing.T) {
		r := newRouter(seededBackend(), models.RoleAdmin, "")

		n1 := &models.Notification{Message: "same", RobotID: "1", SectionName: "main", TopicMain: "t"}
		n2 := &models.Notification{Message: "same", RobotID: "1", SectionName: "main", TopicMain: "t"}
		require.NotNil(t, r.SaveAndRecord(ctx, n1))
		require.NotNil(t, r.SaveAndRecord(ctx, n2))

		assert.Len(t, r.Feed(), 1)
	})

	t.Run("capped at the configured length", func(t *testing.T) {
		backend := seededBackend()
		r := notify.NewRouter(backend, cache.NewMemoryCache(), di.NewMockLogger(), models.RoleAdmin, "", 0, 5)

		for i := 0; i < 8; i++ {
			n := &models.Notification{Message: fmt.Sprintf("m-%d", i), RobotID: "1"}
			require.NotNil(t, r.SaveAndRecord(ctx, n))
		}

		feed := r.Feed()
		require.Len(t, feed, 5)
		assert.Equal(t, "m-7", feed[0].Message)
	})
}

func TestIsAlertText(t *testing.T) {
	assert.True(t, notify.IsAlertText("motor FAULT detected"))
	assert.True(t, notify.IsAlertText("Danger: low voltage"))

	// Info keywords veto alert keywords.
	assert.False(t, notify.IsAlertText("error recovery completed"))
	assert.False(t, notify.IsAlertText("running normally"))
	assert.False(t, notify.IsAlertText(""))
}

func TestIsDangerText(t *testing.T) {
	assert.True(t, notify.IsDangerText(`⚠️ Danger Alert: Robot "X" voltage is critically low (9V)!`))
	assert.True(t, notify.IsDangerText("voltage is critically low"))
	assert.False(t, notify.IsDangerText("voltage: 20"))
}

func TestTruncation(t *testing.T) {
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'x'
	}

	assert.Len(t, notify.TruncateAlert(string(long)), 103)
	assert.Len(t, notify.TruncateInfo(string(long)), 83)
	assert.Equal(t, "short", notify.TruncateAlert("short"))
}
