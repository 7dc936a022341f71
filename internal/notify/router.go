// internal/notify/router.go
package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleet-monitor/internal/fleet"
	"fleet-monitor/internal/interfaces"
	"fleet-monitor/internal/models"
)

const projectIDCachePrefix = "project-id:"

// Router decides which derived events the viewer sees and fans out the
// outbound side effects: feed append, notification+log persistence, email
// dispatch.
type Router struct {
	backend   interfaces.BackendService
	cache     interfaces.CacheService
	logger    interfaces.Logger
	lookupTTL time.Duration

	viewerRole    string
	viewerProject string

	feedMu  sync.Mutex
	feed    []*models.FeedEntry
	feedCap int
}

func NewRouter(
	backend interfaces.BackendService,
	cache interfaces.CacheService,
	logger interfaces.Logger,
	viewerRole, viewerProject string,
	lookupTTL time.Duration,
	feedCap int,
) *Router {
	return &Router{
		backend:       backend,
		cache:         cache,
		logger:        logger,
		lookupTTL:     lookupTTL,
		viewerRole:    viewerRole,
		viewerProject: viewerProject,
		feedCap:       feedCap,
	}
}

// ShouldShow reports whether the event behind res is surfaced to the
// current viewer. Privileged roles see everything; restricted viewers see
// only their own project's robots, and any missing link in that chain
// resolves to not shown.
func (r *Router) ShouldShow(ctx context.Context, res *fleet.Resolution) bool {
	if r.viewerRole != models.RoleUser {
		return true
	}

	if res == nil || res.Robot == nil {
		r.logger.Debug("Visibility check: no robot info, hiding")
		return false
	}
	if res.Robot.ProjectID.IsZero() {
		r.logger.Debugf("Visibility check: robot %s has no project, hiding", res.Robot.ID)
		return false
	}
	if strings.TrimSpace(r.viewerProject) == "" {
		r.logger.Debug("Visibility check: viewer has no project name, hiding")
		return false
	}

	viewerProjectID, err := r.resolveProjectID(ctx, r.viewerProject)
	if err != nil {
		r.logger.Errorf("Visibility check: project lookup failed: %v", err)
		return false
	}
	if viewerProjectID == "" {
		r.logger.Debugf("Visibility check: no project matches %q, hiding", r.viewerProject)
		return false
	}

	return res.Robot.ProjectID.String() == viewerProjectID
}

// resolveProjectID maps a project name to its id via the lookup cache, then
// the backend.
func (r *Router) resolveProjectID(ctx context.Context, name string) (string, error) {
	key := projectIDCachePrefix + strings.ToLower(strings.TrimSpace(name))
	if cached, err := r.cache.Get(ctx, key); err == nil && cached != "" {
		return cached, nil
	}

	projects, err := r.backend.GetProjects(ctx)
	if err != nil {
		return "", err
	}

	for _, project := range projects {
		if strings.EqualFold(strings.TrimSpace(project.ProjectName), strings.TrimSpace(name)) {
			id := project.EffectiveID().String()
			if err := r.cache.Set(ctx, key, id, r.lookupTTL); err != nil {
				r.logger.Debugf("Lookup cache set failed: %v", err)
			}
			return id, nil
		}
	}
	return "", nil
}

// SendAlertEmails dispatches the low-voltage alert to every user associated
// with the robot's project, best-effort per recipient.
func (r *Router) SendAlertEmails(ctx context.Context, projectID models.ID, robotName string, voltage int) {
	project, err := r.findProject(ctx, projectID)
	if err != nil {
		r.logger.Errorf("Alert email: project lookup failed: %v", err)
		return
	}
	if project == nil {
		r.logger.Infof("Alert email: no project record for id %s", projectID)
		return
	}

	users, err := r.backend.GetUsers(ctx)
	if err != nil {
		r.logger.Errorf("Alert email: users lookup failed: %v", err)
		return
	}

	message := AlertText(robotName, voltage)
	subject := "Alert: Robot " + robotName + " Low Voltage"
	sent := 0
	for _, user := range users {
		if user.Email == "" {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(user.ProjectName), strings.TrimSpace(project.ProjectName)) {
			continue
		}
		if err := r.backend.SendEmail(ctx, user.Email, message, subject); err != nil {
			r.logger.Errorf("Failed to send alert email to %s: %v", user.Email, err)
			continue
		}
		sent++
	}
	r.logger.Infof("Alert emails dispatched: %d for project %s", sent, project.ProjectName)
}

func (r *Router) findProject(ctx context.Context, projectID models.ID) (*models.Project, error) {
	projects, err := r.backend.GetProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, project := range projects {
		if project.ID == projectID || project.ProjectID == projectID {
			return project, nil
		}
	}
	return nil, nil
}

// SaveAndRecord persists the notification to both backend sinks and appends
// it to the in-memory feed. Log persistence failure is non-fatal; a
// notification write failure aborts the feed append and returns nil.
func (r *Router) SaveAndRecord(ctx context.Context, n *models.Notification) *models.FeedEntry {
	notificationID, err := r.backend.CreateNotification(ctx, n)
	if err != nil {
		r.logger.Errorf("Failed to save notification: %v", err)
		return nil
	}

	if err := r.backend.CreateLog(ctx, n); err != nil {
		r.logger.Warnf("Could not save log entry: %v", err)
	}

	if notificationID == "" {
		notificationID = "mqtt-" + uuid.NewString()
	}

	entry := &models.FeedEntry{
		Notification:   *n,
		NotificationID: notificationID,
		Timestamp:      time.Now(),
		IsAlert:        IsAlertText(n.Message) || n.Type == models.TypeAlert,
		Source:         "mqtt",
		DisplayMessage: n.DisplayName(),
	}
	r.appendFeed(entry)
	return entry
}

// appendFeed inserts newest-first with a field-level duplicate check and
// caps the feed length.
func (r *Router) appendFeed(entry *models.FeedEntry) {
	r.feedMu.Lock()
	defer r.feedMu.Unlock()

	for _, existing := range r.feed {
		if existing.RobotID == entry.RobotID &&
			existing.SectionName == entry.SectionName &&
			existing.TopicMain == entry.TopicMain &&
			existing.Message == entry.Message &&
			absDuration(existing.Timestamp.Sub(entry.Timestamp)) < time.Second {
			r.logger.Debug("Skipping duplicate notification in feed")
			return
		}
	}

	r.feed = append([]*models.FeedEntry{entry}, r.feed...)
	if len(r.feed) > r.feedCap {
		r.feed = r.feed[:r.feedCap]
	}
}

// Feed returns a copy of the in-memory feed, newest first.
func (r *Router) Feed() []*models.FeedEntry {
	r.feedMu.Lock()
	defer r.feedMu.Unlock()

	out := make([]*models.FeedEntry, len(r.feed))
	copy(out, r.feed)
	return out
}

// ViewerRole exposes the configured role for callers that gate on it.
func (r *Router) ViewerRole() string {
	return r.viewerRole
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
