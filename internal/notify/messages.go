// internal/notify/messages.go
package notify

import (
	"fmt"
	"strings"
	"time"
)

// Toast durations by class.
const (
	DangerToastDuration  = 10 * time.Second
	AlertToastDuration   = 8 * time.Second
	InfoToastDuration    = 5 * time.Second
	SuccessToastDuration = 5 * time.Second
)

// Description truncation limits for the two toast classes.
const (
	alertDescriptionLimit = 100
	infoDescriptionLimit  = 80
)

// AlertText is the low-voltage danger text shown in toasts and emails.
func AlertText(robotName string, voltage int) string {
	return fmt.Sprintf("⚠️ Danger Alert: Robot %q voltage is critically low (%dV)!", robotName, voltage)
}

// DangerRecordText is the variant persisted to the notification sinks.
func DangerRecordText(robotName string, voltage int) string {
	return fmt.Sprintf("⚠️ Danger: Robot %q voltage is critically low (%dV)!", robotName, voltage)
}

// VoltageUpdatedText announces a healthy voltage reading.
func VoltageUpdatedText(robotName string, voltage int) string {
	return fmt.Sprintf("✅ Voltage updated for robot %q to %dV", robotName, voltage)
}

// StatusUpdatedText announces a mode change.
func StatusUpdatedText(robotName, mode string) string {
	return fmt.Sprintf("🔄 Status updated for robot %q to %s", robotName, mode)
}

// HalfCycleText announces a completed half cycle with the new count.
func HalfCycleText(robotName string, cycles float64) string {
	return fmt.Sprintf("Half cycle finished for %s. Cycles: %g", robotName, cycles)
}

var alertKeywords = []string{
	"error", "alert", "warning", "critical", "fatal",
	"fail", "failed", "stopped", "emergency", "fault",
	"danger", "issue", "problem", "shutdown", "offline",
	"error code", "alarm", "malfunction", "broken",
}

var infoKeywords = []string{
	"info", "information", "started", "running", "online",
	"completed", "success", "ready", "normal", "ok",
	"initialized", "connected", "active", "operational",
}

// IsAlertText classifies free text as alert-worthy: it must carry an alert
// keyword and no info keyword, so "error recovery completed" stays info.
func IsAlertText(message string) bool {
	if message == "" {
		return false
	}
	lower := strings.ToLower(message)

	hasAlert := false
	for _, keyword := range alertKeywords {
		if strings.Contains(lower, keyword) {
			hasAlert = true
			break
		}
	}
	if !hasAlert {
		return false
	}
	for _, keyword := range infoKeywords {
		if strings.Contains(lower, keyword) {
			return false
		}
	}
	return true
}

// IsDangerText recognizes the sustained low-voltage alert texts that get the
// long dedup window.
func IsDangerText(message string) bool {
	return strings.Contains(message, "voltage is critically low") ||
		strings.Contains(message, "Danger Alert") ||
		strings.Contains(message, "⚠️ Danger")
}

// TruncateAlert shortens free text to the alert-toast description limit.
func TruncateAlert(message string) string {
	return truncate(message, alertDescriptionLimit)
}

// TruncateInfo shortens free text to the info-toast description limit.
func TruncateInfo(message string) string {
	return truncate(message, infoDescriptionLimit)
}

func truncate(message string, limit int) string {
	runes := []rune(message)
	if len(runes) <= limit {
		return message
	}
	return string(runes[:limit]) + "..."
}
