// internal/notify/toaster.go
package notify

import (
	"fleet-monitor/internal/interfaces"
)

// LogToaster renders toasts into the structured log. The dashboard frontend
// has its own renderer; this process only needs the events visible to
// operators tailing the service.
type LogToaster struct {
	logger interfaces.Logger
}

func NewLogToaster(logger interfaces.Logger) *LogToaster {
	return &LogToaster{logger: logger}
}

func (t *LogToaster) Show(toast interfaces.Toast) {
	switch toast.Kind {
	case "error":
		t.logger.Errorf("TOAST %s %s", toast.Title, toast.Description)
	case "success":
		t.logger.Infof("TOAST %s %s", toast.Title, toast.Description)
	default:
		t.logger.Infof("TOAST %s %s", toast.Title, toast.Description)
	}
}
