// internal/command/service.go
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleet-monitor/internal/dedup"
	"fleet-monitor/internal/fleet"
	"fleet-monitor/internal/interfaces"
	"fleet-monitor/internal/models"
	"fleet-monitor/internal/notify"
	"fleet-monitor/internal/registry"
)

// Service sends operator commands to robots: button presses through the live
// registry connections, schedule and clock-set programs through one-shot
// clients using the section's own credentials.
type Service struct {
	registry *registry.Registry
	oneShot  *registry.OneShotPublisher
	fleet    *fleet.Store
	backend  interfaces.BackendService
	guard    *dedup.Guard
	router   *notify.Router
	toaster  interfaces.Toaster
	logger   interfaces.Logger
}

func NewService(
	reg *registry.Registry,
	oneShot *registry.OneShotPublisher,
	fleetStore *fleet.Store,
	backend interfaces.BackendService,
	guard *dedup.Guard,
	router *notify.Router,
	toaster interfaces.Toaster,
	logger interfaces.Logger,
) *Service {
	return &Service{
		registry: reg,
		oneShot:  oneShot,
		fleet:    fleetStore,
		backend:  backend,
		guard:    guard,
		router:   router,
		toaster:  toaster,
		logger:   logger,
	}
}

// PressButton resolves the configured button name for value, publishes it on
// the pair's live connection and writes an outgoing log entry. Returns false
// when no connected client exists; that is surfaced as a toast upstream, not
// an error.
func (s *Service) PressButton(ctx context.Context, robotID models.ID, sectionName, topic, value string) bool {
	name := s.fleet.ButtonName(topic, value)

	published := s.registry.Publish(robotID, sectionName, topic, name)
	if !published {
		return false
	}

	isSchedule := strings.Contains(strings.ToLower(name), "schedule")
	if s.router.ViewerRole() == models.RoleUser && isSchedule {
		text := fmt.Sprintf("Schedule command sent successfully to %s-%s", robotID, sectionName)
		if s.guard.ShouldToast(text) {
			s.toaster.Show(interfaces.Toast{
				Kind:     "success",
				Title:    text,
				Duration: 3 * time.Second,
			})
		}
	}

	if s.shouldLogPress(topic) {
		entry := &models.Notification{
			TopicMain:   s.fleet.MainTopicFor(topic),
			Message:     "Button pressed: " + name,
			Type:        models.TypeInfo,
			RobotID:     robotID,
			SectionName: sectionName,
			Direction:   "outgoing",
		}
		entry.StampNow(time.Now())
		if err := s.backend.CreateLog(ctx, entry); err != nil {
			s.logger.Errorf("Failed to save button press log: %v", err)
		}
	}

	return true
}

// shouldLogPress mirrors the visibility rule: privileged viewers always log,
// restricted ones only for robots with a project attached.
func (s *Service) shouldLogPress(topic string) bool {
	if s.router.ViewerRole() != models.RoleUser {
		return true
	}
	res := s.fleet.Resolve(topic)
	return res != nil && res.Robot != nil && !res.Robot.ProjectID.IsZero()
}

// SendSchedule publishes the weekly program to the robot's trolley section
// over a one-shot connection with that section's credentials.
func (s *Service) SendSchedule(ctx context.Context, robotID models.ID, sched Schedule) error {
	section, err := s.trolleySection(ctx, robotID)
	if err != nil {
		return err
	}

	message := sched.WireMessage()
	if err := s.oneShot.PublishWithCredentials(
		section.MqttURL, section.MqttUsername, section.MqttPassword,
		section.TopicMain, message,
	); err != nil {
		return fmt.Errorf("schedule publish for robot %s: %w", robotID, err)
	}

	s.logger.Infof("Schedule sent to robot %s: %s", robotID, message)
	return nil
}

// SendTimeSync publishes the current wall clock to the robot's trolley
// section so its firmware clock tracks the dashboard's.
func (s *Service) SendTimeSync(ctx context.Context, robotID models.ID) error {
	section, err := s.trolleySection(ctx, robotID)
	if err != nil {
		return err
	}

	message := TimeSyncMessage(time.Now())
	if err := s.oneShot.PublishWithCredentials(
		section.MqttURL, section.MqttUsername, section.MqttPassword,
		section.TopicMain, message,
	); err != nil {
		return fmt.Errorf("time sync publish for robot %s: %w", robotID, err)
	}

	s.logger.Infof("Time sync sent to robot %s: %s", robotID, message)
	return nil
}

// trolleySection fetches the robot and returns its credentialed car section.
func (s *Service) trolleySection(ctx context.Context, robotID models.ID) (*models.Section, error) {
	robot, err := s.backend.GetRobot(ctx, robotID)
	if err != nil {
		robot = s.fleet.FindRobot(robotID)
		if robot == nil {
			return nil, fmt.Errorf("robot %s not found: %w", robotID, err)
		}
	}

	section, ok := robot.Sections[models.SectionCar]
	if !ok || section == nil || !section.HasCredentials() {
		return nil, fmt.Errorf("robot %s has no trolley section credentials", robotID)
	}
	return section, nil
}
