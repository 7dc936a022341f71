// internal/dedup/guard.go
package dedup

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"fleet-monitor/internal/interfaces"
	"fleet-monitor/internal/models"
)

// Guard windows. A broker event can be observed by overlapping handlers or
// re-delivered outright, and the backend has no unique constraint on the
// notification sinks; these windows are the only barrier against duplicate
// writes and duplicate user-facing alerts.
const (
	MessageWindow   = 3 * time.Second
	ToastWindow     = 5 * time.Second
	DangerWindow    = 30 * time.Second
	HalfCycleWindow = 5 * time.Second

	janitorInterval = 30 * time.Second
)

// Guard holds the three independent dedup ledgers plus the in-flight set.
type Guard struct {
	processed  *expiringMap // raw-message window
	toasts     *expiringMap // human-readable toast window
	danger     *expiringMap // sustained critical-alert window
	halfCycles *expiringMap // cycle-increment window

	mu       sync.Mutex
	inFlight map[string]struct{}

	logger interfaces.Logger
	stop   chan struct{}
	once   sync.Once
}

func NewGuard(logger interfaces.Logger) *Guard {
	g := &Guard{
		processed:  newExpiringMap(MessageWindow),
		toasts:     newExpiringMap(ToastWindow),
		danger:     newExpiringMap(DangerWindow),
		halfCycles: newExpiringMap(HalfCycleWindow),
		inFlight:   make(map[string]struct{}),
		logger:     logger,
		stop:       make(chan struct{}),
	}
	go g.janitor()
	return g
}

// MessageKey fingerprints a raw event: robot and section scope the key, the
// topic+message pair is folded into a compact token.
func MessageKey(topic, message string, robotID models.ID, sectionName string) string {
	hash := base64.StdEncoding.EncodeToString([]byte(topic + ":" + message))
	return fmt.Sprintf("%s:%s:%s", robotID, sectionName, hash)
}

// ToastKey fingerprints only the human-readable text, so the same toast is
// suppressed even when the underlying events differ.
func ToastKey(message string) string {
	return base64.StdEncoding.EncodeToString([]byte(message))
}

// DangerKey fingerprints a sustained alert condition by robot, section and
// the voltage reading (or the message when no reading exists).
func DangerKey(robotID models.ID, sectionName string, voltage *int, message string) string {
	if voltage != nil {
		return fmt.Sprintf("danger-%s-%s-%d", robotID, sectionName, *voltage)
	}
	return fmt.Sprintf("danger-%s-%s-%s", robotID, sectionName, message)
}

// IsDuplicateMessage reports whether the fingerprint was processed inside
// the raw-message window. Check only; callers mark separately so a dropped
// event does not extend the window.
func (g *Guard) IsDuplicateMessage(key string) bool {
	return g.processed.contains(key)
}

// MarkProcessed records the fingerprint for the raw-message window.
func (g *Guard) MarkProcessed(key string) {
	g.processed.mark(key)
}

// TryBeginProcessing claims the in-flight marker for key. A second
// concurrent arrival with the same fingerprint is dropped, not queued.
func (g *Guard) TryBeginProcessing(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[key]; busy {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

// EndProcessing releases the in-flight marker. Always called, success or
// failure, so no key blocks forever.
func (g *Guard) EndProcessing(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}

// ShouldToast atomically checks and claims the toast window for a message.
func (g *Guard) ShouldToast(message string) bool {
	return !g.toasts.checkAndMark(ToastKey(message))
}

// IsDangerDuplicate atomically checks and claims the critical-alert window.
func (g *Guard) IsDangerDuplicate(key string) bool {
	return g.danger.checkAndMark(key)
}

// ClaimHalfCycle atomically claims the cycle-increment window for a
// (robot, section) pair. Returns false when the increment already ran
// inside the window.
func (g *Guard) ClaimHalfCycle(key string) bool {
	return !g.halfCycles.checkAndMark(key)
}

// CheckAndMark claims key in the raw-message ledger, returning true when it
// was already live. Used for the final pre-save duplicate check.
func (g *Guard) CheckAndMark(key string) bool {
	return g.processed.checkAndMark(key)
}

func (g *Guard) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			now := time.Now()
			removed := g.processed.sweep(now) + g.toasts.sweep(now) +
				g.danger.sweep(now) + g.halfCycles.sweep(now)
			if removed > 0 {
				g.logger.Debugf("Dedup janitor removed %d expired entries", removed)
			}
		}
	}
}

// Stop terminates the janitor goroutine.
func (g *Guard) Stop() {
	g.once.Do(func() { close(g.stop) })
}
