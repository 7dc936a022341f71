// internal/classify/classifier.go
package classify

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"fleet-monitor/internal/models"
)

// Kind is the shape the classifier decided a payload has.
type Kind string

const (
	KindEnvelope     Kind = "envelope"
	KindHalfCycle    Kind = "half-cycle"
	KindStatusFields Kind = "status-fields"
	KindPlainText    Kind = "plain-text"
)

// Event is a classified inbound payload. Consumed once by the pipeline,
// never persisted as-is.
type Event struct {
	Kind     Kind
	Message  string
	Type     string // envelope type verbatim; "info" otherwise
	Severity string // models.TypeInfo | models.TypeAlert
	Voltage  *int
	Mode     string
	Cycles   *float64
}

// HasStatusFields reports whether extraction found anything.
func (e *Event) HasStatusFields() bool {
	return e.Voltage != nil || e.Mode != "" || e.Cycles != nil
}

// Classifier inspects raw payloads. The restricted flag suppresses the
// privileged cycles field for "user"-role viewers.
type Classifier struct {
	restricted bool
}

func NewClassifier(viewerRole string) *Classifier {
	return &Classifier{restricted: viewerRole == models.RoleUser}
}

// Robots publish telemetry as loosely formatted text; each field has a
// tolerant pattern list tried in order, first match wins.
var (
	voltagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)voltage:\s*(\d+)`),
		regexp.MustCompile(`(?i)voltage\s*=\s*(\d+)`),
		regexp.MustCompile(`(?i)"voltage":\s*(\d+)`),
		regexp.MustCompile(`(?i)volt.*?(\d+)`),
	}
	modePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)mode:\s*([a-zA-Z]+)`),
		regexp.MustCompile(`(?i)mode\s*=\s*([a-zA-Z]+)`),
		regexp.MustCompile(`(?i)"mode":\s*"([a-zA-Z]+)"`),
		regexp.MustCompile(`(?i)status:\s*([a-zA-Z]+)`),
	}
	cyclesPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)cycles:\s*(\d+)`),
		regexp.MustCompile(`(?i)cycles\s*=\s*(\d+)`),
		regexp.MustCompile(`(?i)"cycles":\s*(\d+)`),
		regexp.MustCompile(`(?i)cycle.*?(\d+)`),
	}

	statusBlockPattern  = regexp.MustCompile(`(?i)message_status:\s*\{([^}]+)\}`)
	blockVoltagePattern = regexp.MustCompile(`(?i)voltage:\s*(\d+)`)
	blockModePattern    = regexp.MustCompile(`(?i)mode:\s*([a-zA-Z]+)`)
	blockCyclesPattern  = regexp.MustCompile(`(?i)cycles:\s*(\d+)`)
)

type envelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Classify applies the ordered decision policy: structured envelope, then
// half-cycle sentinel, then status-field extraction, then plain text.
func (c *Classifier) Classify(payload string) Event {
	trimmed := strings.TrimSpace(payload)

	// Robots sometimes double-encode, leaving one layer of wrapping quotes.
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	if ev, ok := c.classifyEnvelope(trimmed); ok {
		return ev
	}

	if isHalfCycle(trimmed) {
		return Event{
			Kind:     KindHalfCycle,
			Message:  trimmed,
			Type:     models.TypeInfo,
			Severity: models.TypeInfo,
		}
	}

	if ev, ok := c.classifyStatusFields(trimmed); ok {
		return ev
	}

	return Event{
		Kind:     KindPlainText,
		Message:  trimmed,
		Type:     models.TypeInfo,
		Severity: severityForMessage(trimmed, nil),
	}
}

func (c *Classifier) classifyEnvelope(trimmed string) (Event, bool) {
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return Event{}, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return Event{}, false
	}
	if env.Type == "" || env.Message == "" {
		return Event{}, false
	}

	severity := models.TypeInfo
	if isAlertEnvelopeType(env.Type) {
		severity = models.TypeAlert
	}

	return Event{
		Kind:     KindEnvelope,
		Message:  env.Message,
		Type:     env.Type,
		Severity: severity,
	}, true
}

func (c *Classifier) classifyStatusFields(trimmed string) (Event, bool) {
	// A cycles-bearing status block is a privileged payload; restricted
	// viewers do not get status extraction from it at all.
	if c.restricted && strings.Contains(trimmed, "message_status:{cycles:") {
		return Event{}, false
	}

	ev := Event{
		Kind:    KindStatusFields,
		Message: trimmed,
		Type:    models.TypeInfo,
	}

	if v, ok := firstIntMatch(voltagePatterns, trimmed); ok {
		ev.Voltage = &v
	}
	if m, ok := firstStringMatch(modePatterns, trimmed); ok {
		ev.Mode = m
	}
	if !c.restricted {
		if cy, ok := firstIntMatch(cyclesPatterns, trimmed); ok {
			f := float64(cy)
			ev.Cycles = &f
		}
	}

	// The brace-delimited block is an alternative source for the same
	// fields and overrides the loose-text matches.
	if block := statusBlockPattern.FindStringSubmatch(trimmed); block != nil {
		content := block[1]
		if m := blockVoltagePattern.FindStringSubmatch(content); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				ev.Voltage = &v
			}
		}
		if m := blockModePattern.FindStringSubmatch(content); m != nil {
			ev.Mode = m[1]
		}
		if !c.restricted {
			if m := blockCyclesPattern.FindStringSubmatch(content); m != nil {
				if cy, err := strconv.Atoi(m[1]); err == nil {
					f := float64(cy)
					ev.Cycles = &f
				}
			}
		}
	}

	if !ev.HasStatusFields() {
		return Event{}, false
	}

	ev.Severity = severityForMessage(trimmed, ev.Voltage)
	return ev, true
}

func isHalfCycle(trimmed string) bool {
	lower := strings.ToLower(trimmed)
	return strings.Contains(lower, "half cycle finished") ||
		strings.Contains(lower, "half-cycle finished") ||
		trimmed == "Half cycle finished"
}

func isAlertEnvelopeType(t string) bool {
	switch strings.ToLower(t) {
	case "alert", "error", "warning":
		return true
	}
	return false
}

// severityForMessage escalates to alert when the extracted voltage sits
// below the threshold, regardless of how the payload was classified.
func severityForMessage(message string, voltage *int) string {
	if voltage != nil && *voltage < models.LowVoltageThreshold {
		return models.TypeAlert
	}
	return models.TypeInfo
}

func firstIntMatch(patterns []*regexp.Regexp, s string) (int, bool) {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(s); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func firstStringMatch(patterns []*regexp.Regexp, s string) (string, bool) {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(s); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ExtractVoltage pulls a voltage reading out of any free-text message; used
// by the persist path to escalate severity independent of classification.
func ExtractVoltage(message string) (int, bool) {
	if !strings.Contains(strings.ToLower(message), "volt") {
		return 0, false
	}
	return firstIntMatch(voltagePatterns, message)
}
