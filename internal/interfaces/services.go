// internal/interfaces/services.go
package interfaces

import (
	"context"
	"time"

	"fleet-monitor/internal/models"
)

// BackendService is the REST surface of the dashboard backend consumed by
// the ingestion pipeline.
type BackendService interface {
	// Fleet snapshot
	GetRobots(ctx context.Context) ([]*models.Robot, error)
	GetRobot(ctx context.Context, id models.ID) (*models.Robot, error)
	UpdateRobot(ctx context.Context, robot *models.Robot) (*models.Robot, error)

	// Membership resolution
	GetProjects(ctx context.Context) ([]*models.Project, error)
	GetUsers(ctx context.Context) ([]*models.User, error)

	// Append-only event sinks
	CreateNotification(ctx context.Context, n *models.Notification) (string, error)
	CreateLog(ctx context.Context, n *models.Notification) error

	// One email per call
	SendEmail(ctx context.Context, email, message, subject string) error
}

// CacheService caches project/user lookups so the visibility check does not
// hit the backend on every inbound message.
type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Toast is a transient user-facing notification.
type Toast struct {
	Kind        string // "success" | "info" | "error"
	Title       string
	Description string
	Duration    time.Duration
}

// Toaster surfaces transient notifications; the production implementation
// logs and feeds the ops API, the dashboard renders its own.
type Toaster interface {
	Show(toast Toast)
}

// Logger is the subset of logrus the pipeline components depend on.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}
