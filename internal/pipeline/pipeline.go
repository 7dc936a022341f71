// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleet-monitor/internal/classify"
	"fleet-monitor/internal/dedup"
	"fleet-monitor/internal/fleet"
	"fleet-monitor/internal/interfaces"
	"fleet-monitor/internal/models"
	"fleet-monitor/internal/notify"
	"fleet-monitor/internal/projection"
	"fleet-monitor/internal/registry"
)

// Pipeline is the inbound side of the bridge: every broker message enters
// through HandleMessage, is classified once and fanned out to exactly one of
// the four processing paths. Nothing in here may panic out to the transport.
type Pipeline struct {
	classifier *classify.Classifier
	guard      *dedup.Guard
	fleet      *fleet.Store
	router     *notify.Router
	projector  *projection.Projector
	toaster    interfaces.Toaster
	logger     interfaces.Logger
}

func NewPipeline(
	classifier *classify.Classifier,
	guard *dedup.Guard,
	fleetStore *fleet.Store,
	router *notify.Router,
	projector *projection.Projector,
	toaster interfaces.Toaster,
	logger interfaces.Logger,
) *Pipeline {
	p := &Pipeline{
		classifier: classifier,
		guard:      guard,
		fleet:      fleetStore,
		router:     router,
		projector:  projector,
		toaster:    toaster,
		logger:     logger,
	}
	projector.SetRecorder(p)
	return p
}

// HandleMessage is the registry callback. It runs on paho's router
// goroutine, so every failure is contained here.
func (p *Pipeline) HandleMessage(conn *registry.Connection, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("Panic while processing message on %s: %v", topic, r)
		}
	}()

	ctx := context.Background()
	message := string(payload)

	key := dedup.MessageKey(topic, message, conn.RobotID, conn.SectionName)
	if p.guard.IsDuplicateMessage(key) {
		p.logger.Debug("Skipping duplicate message in handler")
		return
	}

	p.logger.Infof("Message from %s (%s): %s", conn.RobotName, conn.SectionName, message)

	res := p.fleet.Resolve(topic)
	ev := p.classifier.Classify(message)

	switch ev.Kind {
	case classify.KindEnvelope:
		p.handleEnvelope(ctx, conn, topic, res, &ev)
	case classify.KindHalfCycle:
		p.handleHalfCycle(ctx, conn, topic, res)
	case classify.KindStatusFields:
		p.handleStatusFields(ctx, topic, res, &ev)
	case classify.KindPlainText:
		p.handlePlainText(ctx, conn, topic, message, res)
	}
}

// handleEnvelope persists a structured {type, message} payload and toasts it
// styled by the envelope type.
func (p *Pipeline) handleEnvelope(ctx context.Context, conn *registry.Connection, topic string, res *fleet.Resolution, ev *classify.Event) {
	entry := p.record(ctx, topic, ev.Message, conn.RobotID, conn.SectionName, res, conn.RobotName, ev.Type)
	if entry == nil {
		return
	}
	if !p.router.ShouldShow(ctx, res) {
		return
	}

	displayName := entry.RobotName
	if displayName == "" {
		displayName = conn.RobotName
	}

	if ev.Severity == models.TypeAlert {
		p.showToast("error", "🚨 "+displayName, notify.TruncateAlert(ev.Message), ev.Message, notify.AlertToastDuration)
	} else {
		title := "ℹ️ " + displayName + " (" + ev.Type + ")"
		p.showToast("info", title, notify.TruncateInfo(ev.Message), ev.Message, notify.InfoToastDuration)
	}
}

func (p *Pipeline) handleHalfCycle(ctx context.Context, conn *registry.Connection, topic string, res *fleet.Resolution) {
	if res == nil {
		robot := p.fleet.FindRobot(conn.RobotID)
		if robot == nil {
			p.logger.Errorf("Half cycle: no robot for topic %s", topic)
			return
		}
		res = &fleet.Resolution{
			Robot:       robot,
			SectionName: conn.SectionName,
			Section:     robot.Sections[conn.SectionName],
		}
	}
	if err := p.projector.HalfCycle(ctx, res, topic); err != nil {
		p.logger.Errorf("Half cycle processing failed: %v", err)
	}
}

func (p *Pipeline) handleStatusFields(ctx context.Context, topic string, res *fleet.Resolution, ev *classify.Event) {
	if res == nil {
		p.logger.Warnf("No matching robot for topic %s, dropping status update", topic)
		return
	}
	if err := p.projector.ApplyStatus(ctx, res, ev, topic); err != nil {
		p.logger.Errorf("Status projection failed: %v", err)
	}
}

// handlePlainText persists free text and toasts it, alert-styled when the
// text smells like a failure. Restricted viewers never see schedule echoes.
func (p *Pipeline) handlePlainText(ctx context.Context, conn *registry.Connection, topic, message string, res *fleet.Resolution) {
	entry := p.record(ctx, topic, message, conn.RobotID, conn.SectionName, res, conn.RobotName, models.TypeInfo)
	if entry == nil {
		return
	}

	isSchedule := strings.Contains(strings.ToLower(message), "schedule")
	if !p.router.ShouldShow(ctx, res) ||
		(p.router.ViewerRole() == models.RoleUser && isSchedule) {
		p.logger.Debug("Skipping toast (viewer outside project or schedule echo)")
		return
	}

	displayName := entry.RobotName
	if displayName == "" {
		displayName = conn.RobotName
	}
	lower := strings.ToLower(entry.Message)

	alertish := entry.Type == models.TypeAlert ||
		strings.Contains(lower, "alert") ||
		strings.Contains(lower, "error") ||
		strings.Contains(lower, "critical") ||
		strings.Contains(lower, "warning") ||
		strings.Contains(lower, "fail")

	if alertish {
		p.showToast("error", "🚨 "+displayName, notify.TruncateAlert(entry.Message), entry.Message, notify.AlertToastDuration)
	} else {
		p.showToast("info", "ℹ️ "+displayName, notify.TruncateInfo(entry.Message), entry.Message, notify.InfoToastDuration)
	}
}

// Record is the projection-facing persist entry point.
func (p *Pipeline) Record(ctx context.Context, topic, message string, res *fleet.Resolution, robotName, msgType string) *models.FeedEntry {
	var robotID models.ID
	sectionName := ""
	if res != nil && res.Robot != nil {
		robotID = res.Robot.ID
		sectionName = res.SectionName
	}
	return p.record(ctx, topic, message, robotID, sectionName, res, robotName, msgType)
}

// record is the single choke point every persisted message passes through:
// raw-message window, in-flight claim, severity escalation from an embedded
// voltage, danger window, final save key, then both backend sinks and the
// feed. Returns nil whenever any guard drops the message.
func (p *Pipeline) record(ctx context.Context, topic, message string, robotID models.ID, sectionName string, res *fleet.Resolution, robotName, msgType string) *models.FeedEntry {
	key := dedup.MessageKey(topic, message, robotID, sectionName)

	if p.guard.IsDuplicateMessage(key) {
		p.logger.Debug("Skipping duplicate message (already processed)")
		return nil
	}
	if !p.guard.TryBeginProcessing(key) {
		p.logger.Debug("Message is already being saved")
		return nil
	}
	defer p.guard.EndProcessing(key)
	p.guard.MarkProcessed(key)

	trimmed := strings.TrimSpace(message)
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	if res == nil {
		res = p.fleet.Resolve(topic)
	}

	topicMain := p.fleet.MainTopicFor(topic)
	if res != nil && res.Section != nil && res.Section.TopicMain != "" {
		topicMain = res.Section.TopicMain
	}

	if res != nil && res.Robot != nil {
		if robotID.IsZero() {
			robotID = res.Robot.ID
		}
		if robotName == "" {
			robotName = res.Robot.RobotName
		}
		if sectionName == "" {
			sectionName = res.SectionName
		}
	}

	var voltagePtr *int
	finalType := msgType
	if v, ok := classify.ExtractVoltage(message); ok {
		voltagePtr = &v
		if v < models.LowVoltageThreshold {
			finalType = models.TypeAlert
		}
	}

	n := &models.Notification{
		TopicMain:   topicMain,
		Message:     trimmed,
		Type:        finalType,
		RobotID:     robotID,
		RobotName:   robotName,
		SectionName: sectionName,
		Voltage:     voltagePtr,
	}
	n.StampNow(time.Now())

	if voltagePtr != nil {
		p.voltageSideEffects(ctx, res, robotID, robotName, *voltagePtr)
	}

	if notify.IsDangerText(trimmed) {
		dangerKey := dedup.DangerKey(robotID, sectionName, nil, trimmed)
		if p.guard.IsDangerDuplicate(dangerKey) {
			p.logger.Debug("Skipping duplicate danger message")
			return nil
		}
	}

	saveKey := "save-" + string(robotID) + "-" + sectionName + "-" + topicMain + "-" + trimmed + "-" + n.Date + "-" + n.Time
	if p.guard.CheckAndMark(saveKey) {
		p.logger.Debug("Skipping duplicate message save (final check)")
		return nil
	}

	return p.router.SaveAndRecord(ctx, n)
}

// voltageSideEffects runs the toast/email branches a voltage-bearing free
// text triggers even outside the status-extraction path.
func (p *Pipeline) voltageSideEffects(ctx context.Context, res *fleet.Resolution, robotID models.ID, robotName string, voltage int) {
	shouldShow := p.router.ShouldShow(ctx, res)

	if voltage < models.LowVoltageThreshold {
		// One alert per sustained condition; the projection path claims the
		// same key before handing its record here.
		alertKey := fmt.Sprintf("voltage-alert-%s-%d", robotID, voltage)
		if p.guard.IsDangerDuplicate(alertKey) {
			return
		}

		p.logger.Warnf("Low voltage detected: %dV", voltage)
		if shouldShow {
			text := notify.AlertText(robotName, voltage)
			if p.guard.ShouldToast(text) {
				p.toaster.Show(interfaces.Toast{
					Kind:     "error",
					Title:    text,
					Duration: notify.DangerToastDuration,
				})
			}
		}
		if res != nil && res.Robot != nil && !res.Robot.ProjectID.IsZero() {
			p.router.SendAlertEmails(ctx, res.Robot.ProjectID, robotName, voltage)
		}
		return
	}

	if shouldShow {
		text := notify.VoltageUpdatedText(robotName, voltage)
		if p.guard.ShouldToast(text) {
			p.toaster.Show(interfaces.Toast{
				Kind:     "success",
				Title:    text,
				Duration: notify.SuccessToastDuration,
			})
		}
	}
}

// showToast dedups on the full rendered text, then emits.
func (p *Pipeline) showToast(kind, title, description, rawMessage string, duration time.Duration) {
	if !p.guard.ShouldToast(title + ": " + rawMessage) {
		return
	}
	p.toaster.Show(interfaces.Toast{
		Kind:        kind,
		Title:       title,
		Description: description,
		Duration:    duration,
	})
}
