package dedup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/internal/models"
)

type nopLogger struct{}

func (nopLogger) Debug(args ...interface{})                 {}
func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Info(args ...interface{})                  {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warn(args ...interface{})                  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Error(args ...interface{})                 {}
func (nopLogger) Errorf(format string, args ...interface{}) {}

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	g := NewGuard(nopLogger{})
	t.Cleanup(g.Stop)
	return g
}

func TestMessageKey(t *testing.T) {
	k1 := MessageKey("a/out", "hello", "1", "main")
	k2 := MessageKey("a/out", "hello", "1", "main")
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, MessageKey("a/out", "hello", "1", "car"))
	assert.NotEqual(t, k1, MessageKey("a/out", "hello", "2", "main"))
	assert.NotEqual(t, k1, MessageKey("b/out", "hello", "1", "main"))
	assert.NotEqual(t, k1, MessageKey("a/out", "bye", "1", "main"))
}

func TestDangerKey(t *testing.T) {
	v := 12
	assert.Equal(t, "danger-7-main-12", DangerKey(models.ID("7"), "main", &v, "ignored"))
	assert.Equal(t, "danger-7-main-low battery", DangerKey(models.ID("7"), "main", nil, "low battery"))
}

func TestRawMessageWindow(t *testing.T) {
	g := newTestGuard(t)
	key := MessageKey("t", "m", "1", "main")

	assert.False(t, g.IsDuplicateMessage(key))
	g.MarkProcessed(key)
	assert.True(t, g.IsDuplicateMessage(key))
}

func TestInFlightClaim(t *testing.T) {
	g := newTestGuard(t)

	require.True(t, g.TryBeginProcessing("k"))
	assert.False(t, g.TryBeginProcessing("k"))

	g.EndProcessing("k")
	assert.True(t, g.TryBeginProcessing("k"))
}

func TestInFlightClaimConcurrent(t *testing.T) {
	g := newTestGuard(t)

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryBeginProcessing("same") {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claimed)
}

func TestToastWindow(t *testing.T) {
	g := newTestGuard(t)

	assert.True(t, g.ShouldToast("hello"))
	assert.False(t, g.ShouldToast("hello"))
	assert.True(t, g.ShouldToast("different"))
}

func TestDangerWindow(t *testing.T) {
	g := newTestGuard(t)
	v := 9
	key := DangerKey("1", "main", &v, "")

	assert.False(t, g.IsDangerDuplicate(key))
	assert.True(t, g.IsDangerDuplicate(key))

	other := DangerKey("1", "main", nil, "other condition")
	assert.False(t, g.IsDangerDuplicate(other))
}

func TestHalfCycleClaim(t *testing.T) {
	g := newTestGuard(t)

	assert.True(t, g.ClaimHalfCycle("halfcycle-1-main"))
	assert.False(t, g.ClaimHalfCycle("halfcycle-1-main"))
	assert.True(t, g.ClaimHalfCycle("halfcycle-1-car"))
}

func TestCheckAndMark(t *testing.T) {
	g := newTestGuard(t)

	assert.False(t, g.CheckAndMark("save-key"))
	assert.True(t, g.CheckAndMark("save-key"))
}

func TestExpiringMapWindow(t *testing.T) {
	m := newExpiringMap(30 * time.Millisecond)

	m.mark("k")
	assert.True(t, m.contains("k"))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, m.contains("k"))
	assert.Equal(t, 0, m.size())
}

func TestExpiringMapSweep(t *testing.T) {
	m := newExpiringMap(10 * time.Millisecond)

	m.mark("a")
	m.mark("b")
	time.Sleep(20 * time.Millisecond)
	m.mark("c")

	removed := m.sweep(time.Now())
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, m.size())
}

func TestCheckAndMarkReadmitsAfterExpiry(t *testing.T) {
	m := newExpiringMap(20 * time.Millisecond)

	assert.False(t, m.checkAndMark("k"))
	assert.True(t, m.checkAndMark("k"))

	time.Sleep(40 * time.Millisecond)
	assert.False(t, m.checkAndMark("k"))
}
