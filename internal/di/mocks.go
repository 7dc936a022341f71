// internal/di/mocks.go
package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleet-monitor/internal/cache"
	"fleet-monitor/internal/classify"
	"fleet-monitor/internal/command"
	"fleet-monitor/internal/config"
	"fleet-monitor/internal/dedup"
	"fleet-monitor/internal/fleet"
	"fleet-monitor/internal/interfaces"
	"fleet-monitor/internal/models"
	"fleet-monitor/internal/notify"
	"fleet-monitor/internal/pipeline"
	"fleet-monitor/internal/projection"
)

// NewMockContainer builds a container around in-memory fakes for tests. The
// registry and one-shot publisher are left nil; tests drive the pipeline
// directly.
func NewMockContainer(viewerRole, viewerProject string) *Container {
	cfg := &config.Config{
		MQTTPort:      8884,
		LookupTTL:     time.Minute,
		ViewerRole:    viewerRole,
		ViewerProject: viewerProject,
		FeedCapacity:  1000,
		LogLevel:      "debug",
	}

	c := &Container{
		Config:  cfg,
		Logger:  NewMockLogger(),
		Backend: NewMockBackend(),
		Cache:   cache.NewMemoryCache(),
		Toaster: NewMockToaster(),
	}

	c.Fleet = fleet.NewStore(c.Backend, c.Logger)
	c.Guard = dedup.NewGuard(c.Logger)
	c.Classifier = classify.NewClassifier(cfg.ViewerRole)
	c.Router = notify.NewRouter(
		c.Backend, c.Cache, c.Logger,
		cfg.ViewerRole, cfg.ViewerProject, cfg.LookupTTL, cfg.FeedCapacity,
	)
	c.Projector = projection.NewProjector(
		c.Backend, c.Fleet, c.Guard, c.Router, c.Toaster, c.Logger,
	)
	c.Pipeline = pipeline.NewPipeline(
		c.Classifier, c.Guard, c.Fleet, c.Router, c.Projector, c.Toaster, c.Logger,
	)
	c.Commands = command.NewService(
		nil, nil, c.Fleet, c.Backend, c.Guard, c.Router, c.Toaster, c.Logger,
	)

	return c
}

// =============================================================================
// Mock implementations (for tests)
// =============================================================================

// MockEmail is one captured SendEmail call.
type MockEmail struct {
	To      string
	Message string
	Subject string
}

// MockBackend is an in-memory BackendService that records every write.
type MockBackend struct {
	mu sync.Mutex

	Robots   []*models.Robot
	Projects []*models.Project
	Users    []*models.User

	Notifications []*models.Notification
	Logs          []*models.Notification
	Emails        []MockEmail
	UpdateCalls   []*models.Robot

	FailGetRobot      bool
	FailUpdateRobot   bool
	FailNotifications bool
	FailLogs          bool
}

func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

func (m *MockBackend) GetRobots(ctx context.Context) ([]*models.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Robot, len(m.Robots))
	for i, robot := range m.Robots {
		out[i] = robot.Clone()
	}
	return out, nil
}

func (m *MockBackend) GetRobot(ctx context.Context, id models.ID) (*models.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailGetRobot {
		return nil, fmt.Errorf("robot fetch failed")
	}
	for _, robot := range m.Robots {
		if robot.ID == id {
			return robot.Clone(), nil
		}
	}
	return nil, fmt.Errorf("robot %s not found", id)
}

func (m *MockBackend) UpdateRobot(ctx context.Context, robot *models.Robot) (*models.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUpdateRobot {
		return nil, fmt.Errorf("robot update failed")
	}
	m.UpdateCalls = append(m.UpdateCalls, robot.Clone())
	for i, existing := range m.Robots {
		if existing.ID == robot.ID {
			m.Robots[i] = robot.Clone()
			break
		}
	}
	return robot.Clone(), nil
}

func (m *MockBackend) GetProjects(ctx context.Context) ([]*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Project(nil), m.Projects...), nil
}

func (m *MockBackend) GetUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.User(nil), m.Users...), nil
}

func (m *MockBackend) CreateNotification(ctx context.Context, n *models.Notification) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNotifications {
		return "", fmt.Errorf("notification write failed")
	}
	copied := *n
	m.Notifications = append(m.Notifications, &copied)
	return fmt.Sprintf("n-%d", len(m.Notifications)), nil
}

func (m *MockBackend) CreateLog(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailLogs {
		return fmt.Errorf("log write failed")
	}
	copied := *n
	m.Logs = append(m.Logs, &copied)
	return nil
}

func (m *MockBackend) SendEmail(ctx context.Context, email, message, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Emails = append(m.Emails, MockEmail{To: email, Message: message, Subject: subject})
	return nil
}

// NotificationCount is a race-safe accessor for assertions.
func (m *MockBackend) NotificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notifications)
}

// LastUpdate returns the most recent UpdateRobot payload, or nil.
func (m *MockBackend) LastUpdate() *models.Robot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.UpdateCalls) == 0 {
		return nil
	}
	return m.UpdateCalls[len(m.UpdateCalls)-1]
}

// MockToaster records every toast shown.
type MockToaster struct {
	mu     sync.Mutex
	Toasts []interfaces.Toast
}

func NewMockToaster() *MockToaster {
	return &MockToaster{}
}

func (m *MockToaster) Show(toast interfaces.Toast) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Toasts = append(m.Toasts, toast)
}

// Shown returns a copy of the captured toasts.
func (m *MockToaster) Shown() []interfaces.Toast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]interfaces.Toast(nil), m.Toasts...)
}

// MockLogger captures log lines for assertions.
type MockLogger struct {
	mu   sync.Mutex
	Logs []string
}

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) record(level, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if format == "" {
		m.Logs = append(m.Logs, fmt.Sprintf("%s: %v", level, args))
		return
	}
	m.Logs = append(m.Logs, fmt.Sprintf(level+": "+format, args...))
}

func (m *MockLogger) Debug(args ...interface{})                 { m.record("DEBUG", "", args...) }
func (m *MockLogger) Debugf(format string, args ...interface{}) { m.record("DEBUG", format, args...) }
func (m *MockLogger) Info(args ...interface{})                  { m.record("INFO", "", args...) }
func (m *MockLogger) Infof(format string, args ...interface{})  { m.record("INFO", format, args...) }
func (m *MockLogger) Warn(args ...interface{})                  { m.record("WARN", "", args...) }
func (m *MockLogger) Warnf(format string, args ...interface{})  { m.record("WARN", format, args...) }
func (m *MockLogger) Error(args ...interface{})                 { m.record("ERROR", "", args...) }
func (m *MockLogger) Errorf(format string, args ...interface{}) { m.record("ERROR", format, args...) }
