// internal/projection/projector.go
package projection

import (
	"context"
	"fmt"
	"time"

	"fleet-monitor/internal/classify"
	"fleet-monitor/internal/dedup"
	"fleet-monitor/internal/fleet"
	"fleet-monitor/internal/interfaces"
	"fleet-monitor/internal/models"
	"fleet-monitor/internal/notify"
)

const (
	fieldFallbackGap = 200 * time.Millisecond
	followUpDelay    = 500 * time.Millisecond
)

// Recorder persists a derived message through the full dedup-and-save path.
// Implemented by the pipeline; injected late to break the construction cycle.
type Recorder interface {
	Record(ctx context.Context, topic, message string, res *fleet.Resolution, robotName, msgType string) *models.FeedEntry
}

// Projector writes extracted telemetry back into the robot record: whole
// read-modify-write first, then a per-field pass as a consistency net. The
// backend has no partial-update endpoint, so every write carries the full
// robot document.
type Projector struct {
	backend  interfaces.BackendService
	fleet    *fleet.Store
	guard    *dedup.Guard
	router   *notify.Router
	toaster  interfaces.Toaster
	logger   interfaces.Logger
	recorder Recorder
}

func NewProjector(
	backend interfaces.BackendService,
	fleetStore *fleet.Store,
	guard *dedup.Guard,
	router *notify.Router,
	toaster interfaces.Toaster,
	logger interfaces.Logger,
) *Projector {
	return &Projector{
		backend: backend,
		fleet:   fleetStore,
		guard:   guard,
		router:  router,
		toaster: toaster,
		logger:  logger,
	}
}

// SetRecorder installs the persist path. Must be called before the first
// inbound message.
func (p *Projector) SetRecorder(recorder Recorder) {
	p.recorder = recorder
}

// ApplyStatus merges the extracted voltage/mode into the robot record and
// pushes the whole document. On success the per-field pass runs after a short
// delay as a consistency net; on failure it runs immediately as the fallback.
// A sub-threshold voltage triggers the alert path either way.
func (p *Projector) ApplyStatus(ctx context.Context, res *fleet.Resolution, ev *classify.Event, topic string) error {
	robotID := res.Robot.ID
	robotName := res.Robot.RobotName
	sectionName := res.SectionName

	robot, err := p.backend.GetRobot(ctx, robotID)
	if err != nil {
		p.logger.Errorf("Status update: fetch of robot %s failed: %v", robotID, err)
		p.applyFieldsSeparately(ctx, robotID, sectionName, ev)
		if ev.Voltage != nil && *ev.Voltage < models.LowVoltageThreshold {
			p.LowVoltageAlert(ctx, res, *ev.Voltage, topic)
		}
		return err
	}

	section, ok := robot.Sections[sectionName]
	if !ok || section == nil {
		return fmt.Errorf("robot %s has no section %q", robotID, sectionName)
	}

	if ev.Voltage != nil {
		section.Voltage = *ev.Voltage
	}
	if ev.Mode != "" {
		section.Status = ev.Mode
	}

	if _, err := p.backend.UpdateRobot(ctx, robot); err != nil {
		p.logger.Errorf("Status update: whole-robot write failed for %s: %v", robotID, err)
		p.applyFieldsSeparately(ctx, robotID, sectionName, ev)
		if ev.Voltage != nil && *ev.Voltage < models.LowVoltageThreshold {
			p.LowVoltageAlert(ctx, res, *ev.Voltage, topic)
		}
		return err
	}

	if ev.Voltage != nil && *ev.Voltage >= models.LowVoltageThreshold {
		if p.router.ShouldShow(ctx, res) {
			text := notify.VoltageUpdatedText(robotName, *ev.Voltage)
			if p.guard.ShouldToast(text) {
				p.toaster.Show(interfaces.Toast{
					Kind:     "success",
					Title:    text,
					Duration: notify.SuccessToastDuration,
				})
			}
		}
	}

	if ev.Mode != "" {
		if p.router.ShouldShow(ctx, res) {
			text := notify.StatusUpdatedText(robotName, ev.Mode)
			if p.guard.ShouldToast(text) {
				p.toaster.Show(interfaces.Toast{
					Kind:     "info",
					Title:    text,
					Duration: notify.InfoToastDuration,
				})
			}
		}
	}

	if ev.Voltage != nil && *ev.Voltage < models.LowVoltageThreshold {
		p.LowVoltageAlert(ctx, res, *ev.Voltage, topic)
	}

	// Consistency net: the backend occasionally drops one field from a
	// whole-document write, so each changed field is re-sent on its own.
	time.AfterFunc(followUpDelay, func() {
		p.applyFieldsSeparately(context.Background(), robotID, sectionName, ev)
	})

	return nil
}

// applyFieldsSeparately re-fetches the robot and writes each changed field in
// its own update, spaced out so the backend processes them in order.
func (p *Projector) applyFieldsSeparately(ctx context.Context, robotID models.ID, sectionName string, ev *classify.Event) {
	robot, err := p.backend.GetRobot(ctx, robotID)
	if err != nil {
		p.logger.Errorf("Per-field update: fetch of robot %s failed: %v", robotID, err)
		return
	}
	if _, ok := robot.Sections[sectionName]; !ok {
		p.logger.Errorf("Per-field update: robot %s has no section %q", robotID, sectionName)
		return
	}

	type fieldWrite struct {
		name  string
		apply func(section *models.Section)
	}

	var writes []fieldWrite
	if ev.Voltage != nil {
		v := *ev.Voltage
		writes = append(writes, fieldWrite{"voltage", func(s *models.Section) { s.Voltage = v }})
	}
	if ev.Mode != "" {
		mode := ev.Mode
		writes = append(writes, fieldWrite{"status", func(s *models.Section) { s.Status = mode }})
	}

	for _, write := range writes {
		time.Sleep(fieldFallbackGap)

		staged := robot.Clone()
		write.apply(staged.Sections[sectionName])
		if _, err := p.backend.UpdateRobot(ctx, staged); err != nil {
			p.logger.Errorf("Per-field update (%s) failed for %s: %v", write.name, robotID, err)
		}
	}
}

// LowVoltageAlert runs the danger path for a sub-threshold reading: toast,
// persisted alert record and email fan-out, all behind the critical-alert
// window so a sustained condition does not repeat them every few seconds.
func (p *Projector) LowVoltageAlert(ctx context.Context, res *fleet.Resolution, voltage int, topic string) {
	robotName := res.Robot.RobotName
	alertKey := fmt.Sprintf("voltage-alert-%s-%d", res.Robot.ID, voltage)

	if p.guard.IsDangerDuplicate(alertKey) {
		p.logger.Debug("Skipping duplicate voltage alert")
		return
	}

	p.logger.Warnf("Low voltage alert: %dV on robot %s", voltage, robotName)

	if p.router.ShouldShow(ctx, res) {
		text := notify.AlertText(robotName, voltage)
		if p.guard.ShouldToast(text) {
			p.toaster.Show(interfaces.Toast{
				Kind:     "error",
				Title:    text,
				Duration: notify.DangerToastDuration,
			})
		}
	}

	if p.recorder != nil {
		record := notify.DangerRecordText(robotName, voltage)
		p.recorder.Record(ctx, topic, record, res, robotName, models.TypeAlert)
	}

	if !res.Robot.ProjectID.IsZero() {
		p.router.SendAlertEmails(ctx, res.Robot.ProjectID, robotName, voltage)
	}
}

// HalfCycle increments the section cycle count by 0.5 once per sentinel,
// writes it back and reflects the new robot record into the live snapshot.
func (p *Projector) HalfCycle(ctx context.Context, res *fleet.Resolution, topic string) error {
	robotID := res.Robot.ID
	sectionName := res.SectionName

	key := fmt.Sprintf("halfcycle-%s-%s", robotID, sectionName)
	if !p.guard.ClaimHalfCycle(key) {
		p.logger.Debug("Skipping duplicate half-cycle processing")
		return nil
	}

	robot, err := p.backend.GetRobot(ctx, robotID)
	if err != nil {
		p.logger.Errorf("Half cycle: fetch of robot %s failed, using snapshot: %v", robotID, err)
		robot = p.fleet.FindRobot(robotID)
	}
	if robot == nil {
		return fmt.Errorf("half cycle: robot %s not found", robotID)
	}

	section, ok := robot.Sections[sectionName]
	if !ok || section == nil {
		return fmt.Errorf("half cycle: robot %s has no section %q", robotID, sectionName)
	}

	newCycles := float64(section.Cycles) + 0.5
	p.logger.Infof("Half cycle for %s-%s: cycles %g -> %g", robotID, sectionName, float64(section.Cycles), newCycles)

	staged := robot.Clone()
	staged.Sections[sectionName].Cycles = models.Cycles(newCycles)

	updated, err := p.backend.UpdateRobot(ctx, staged)
	if err != nil {
		p.logger.Errorf("Half cycle update failed for %s: %v", robotID, err)
		return err
	}
	if updated == nil {
		updated = staged
	}
	p.fleet.ReplaceRobot(updated)

	if p.router.ShouldShow(ctx, res) {
		text := notify.HalfCycleText(robot.RobotName, newCycles)

		if p.recorder != nil {
			p.recorder.Record(ctx, topic, text, res, robot.RobotName, models.TypeInfo)
		}
		if p.guard.ShouldToast(text) {
			p.toaster.Show(interfaces.Toast{
				Kind:     "success",
				Title:    text,
				Duration: notify.SuccessToastDuration,
			})
		}
	} else {
		p.logger.Debug("Skipping half-cycle toast (viewer outside project)")
	}

	return nil
}
