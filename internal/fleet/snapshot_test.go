package fleet_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/internal/di"
	"fleet-monitor/internal/fleet"
	"fleet-monitor/internal/models"
)

func testRobot() *models.Robot {
	return &models.Robot{
		ID:        "1",
		RobotName: "Cleaner-1",
		ProjectID: "10",
		Sections: map[string]*models.Section{
			models.SectionMain: {
				Voltage:        20,
				Status:         "idle",
				TopicSubscribe: "fleet/1/main/out",
				TopicMain:      "fleet/1/main/in",
				MqttURL:        "wss://broker.example.com/mqtt",
				MqttUsername:   "u",
				MqttPassword:   "p",
				ActiveBtns: []models.ActiveButton{
					{Name: "Start", Command: "/start"},
					{Name: "Stop", Command: "/stop"},
				},
			},
			models.SectionCar: {
				TopicSubscribe: "fleet/1/car/out",
				TopicMain:      "fleet/1/car/in",
			},
		},
	}
}

func newStore(t *testing.T) (*fleet.Store, *di.MockBackend) {
	t.Helper()

	backend := di.NewMockBackend()
	backend.Robots = []*models.Robot{testRobot()}

	store := fleet.NewStore(backend, di.NewMockLogger())
	require.NoError(t, store.Refresh(context.Background()))
	return store, backend
}

func TestRefresh(t *testing.T) {
	store, backend := newStore(t)
	require.Len(t, store.Robots(), 1)

	t.Run("picks up new robots", func(t *testing.T) {
		second := testRobot()
		second.ID = "2"
		second.RobotName = "Cleaner-2"
		backend.Robots = append(backend.Robots, second)

		require.NoError(t, store.Refresh(context.Background()))
		assert.Len(t, store.Robots(), 2)
	})
}

func TestResolve(t *testing.T) {
	store, _ := newStore(t)

	t.Run("inbound topic maps to its section", func(t *testing.T) {
		res := store.Resolve("fleet/1/main/out")
		require.NotNil(t, res)
		assert.Equal(t, models.ID("1"), res.Robot.ID)
		assert.Equal(t, models.SectionMain, res.SectionName)
		assert.Equal(t, "fleet/1/main/in", res.Section.TopicMain)
	})

	t.Run("outbound topic does not resolve", func(t *testing.T) {
		assert.Nil(t, store.Resolve("fleet/1/main/in"))
	})

	t.Run("unknown topic", func(t *testing.T) {
		assert.Nil(t, store.Resolve("fleet/99/main/out"))
	})
}

func TestMainTopicFor(t *testing.T) {
	store, _ := newStore(t)

	assert.Equal(t, "fleet/1/main/in", store.MainTopicFor("fleet/1/main/out"))

	// An unresolvable topic still yields a usable persistence key.
	assert.Equal(t, "ghost/topic", store.MainTopicFor("ghost/topic"))
}

func TestButtonName(t *testing.T) {
	store, _ := newStore(t)
	topic := "fleet/1/main/in"

	t.Run("matches display name case-insensitively", func(t *testing.T) {
		assert.Equal(t, "Start", store.ButtonName(topic, "start"))
	})

	t.Run("matches raw command", func(t *testing.T) {
		assert.Equal(t, "Stop", store.ButtonName(topic, "/stop"))
	})

	t.Run("falls back to the input value", func(t *testing.T) {
		assert.Equal(t, "/reverse", store.ButtonName(topic, "/reverse"))
		assert.Equal(t, "x", store.ButtonName("unknown/topic", "x"))
	})
}

func TestReplaceRobot(t *testing.T) {
	store, _ := newStore(t)

	updated := testRobot()
	updated.Sections[models.SectionMain].Voltage = 11
	store.ReplaceRobot(updated)

	found := store.FindRobot("1")
	require.NotNil(t, found)
	assert.Equal(t, 11, found.Sections[models.SectionMain].Voltage)
}

func TestFindRobot(t *testing.T) {
	store, _ := newStore(t)

	assert.NotNil(t, store.FindRobot("1"))
	assert.Nil(t, store.FindRobot("404"))
}
