// internal/fleet/snapshot.go
package fleet

import (
	"context"
	"strings"
	"sync"
	"time"

	"fleet-monitor/internal/interfaces"
	"fleet-monitor/internal/models"
)

// Resolution is the owning (robot, section) pair for a wire topic.
type Resolution struct {
	Robot       *models.Robot
	SectionName string
	Section     *models.Section
}

// Store holds the fleet snapshot. It is refreshed wholesale and read by
// every connection handler, so all access goes through the lock.
type Store struct {
	mu      sync.RWMutex
	robots  []*models.Robot
	backend interfaces.BackendService
	logger  interfaces.Logger
}

func NewStore(backend interfaces.BackendService, logger interfaces.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
	}
}

// Refresh replaces the snapshot with the backend's current fleet. The old
// snapshot stays in place on failure.
func (s *Store) Refresh(ctx context.Context) error {
	robots, err := s.backend.GetRobots(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.robots = robots
	s.mu.Unlock()

	s.logger.Infof("Fleet snapshot refreshed: %d robots", len(robots))
	return nil
}

// RefreshEvery re-reads the snapshot on a fixed interval until ctx is done.
func (s *Store) RefreshEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warnf("Periodic fleet refresh failed: %v", err)
			}
		}
	}
}

// Robots returns the current snapshot slice. Callers must not mutate it.
func (s *Store) Robots() []*models.Robot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.robots
}

// Resolve maps an inbound topic to its owning robot and section, or nil if
// no section subscribes to it.
func (s *Store) Resolve(topic string) *Resolution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, robot := range s.robots {
		for name, section := range robot.Sections {
			if section != nil && section.TopicSubscribe == topic {
				return &Resolution{Robot: robot, SectionName: name, Section: section}
			}
		}
	}
	return nil
}

// MainTopicFor returns the companion outbound topic of the section that
// subscribes to topicSub, or topicSub itself when nothing matches. The
// fallback is deliberate: an unresolved topic still yields a usable key.
func (s *Store) MainTopicFor(topicSub string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, robot := range s.robots {
		for _, section := range robot.Sections {
			if section != nil && section.TopicSubscribe == topicSub {
				return section.TopicMain
			}
		}
	}
	return topicSub
}

// ButtonName resolves a pressed button value to its configured display name
// on the section owning the topic. Matches on Name (case-insensitive) or on
// the raw Command string; falls back to the input.
func (s *Store) ButtonName(topic, value string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, robot := range s.robots {
		for _, section := range robot.Sections {
			if section == nil {
				continue
			}
			if section.TopicMain != topic && section.TopicSubscribe != topic {
				continue
			}
			for _, btn := range section.ActiveBtns {
				if btn.Name != "" && strings.EqualFold(btn.Name, value) {
					return btn.Name
				}
				if btn.Command != "" && btn.Command == value {
					return btn.Name
				}
			}
			return value
		}
	}
	return value
}

// ReplaceRobot swaps one robot record in the snapshot after a successful
// projection, keeping the in-memory view consistent with the backend.
func (s *Store) ReplaceRobot(updated *models.Robot) {
	if updated == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, robot := range s.robots {
		if robot.ID == updated.ID {
			s.robots[i] = updated
			return
		}
	}
}

// FindRobot returns the snapshot record for id, or nil.
func (s *Store) FindRobot(id models.ID) *models.Robot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, robot := range s.robots {
		if robot.ID == id {
			return robot
		}
	}
	return nil
}
