// internal/registry/registry.go
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"fleet-monitor/internal/config"
	"fleet-monitor/internal/fleet"
	"fleet-monitor/internal/interfaces"
	"fleet-monitor/internal/models"
)

// Connection status values reported to the ops surface.
const (
	StatusConnected    = "connected"
	StatusConnecting   = "connecting"
	StatusDisconnected = "disconnected"
)

const (
	reconnectOneDelay = 2 * time.Second
	reconnectAllDelay = 3 * time.Second
)

// MessageHandler receives every inbound telemetry message along with the
// connection that carried it.
type MessageHandler func(conn *Connection, topic string, payload []byte)

// Connection is one long-lived subscribe client for a (robot, section) pair.
type Connection struct {
	RobotID        models.ID
	RobotName      string
	SectionName    string
	Host           string
	Username       string
	Password       string
	TopicSubscribe string
	TopicMain      string

	client mqtt.Client

	mu        sync.Mutex
	connected bool
	lastSeen  time.Time
	lastError string
}

// Key identifies the connection in the registry.
func (c *Connection) Key() string {
	return connKey(c.RobotID, c.SectionName)
}

func (c *Connection) setConnected(connected bool, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
	c.lastError = errMsg
	if connected {
		c.lastSeen = time.Now()
	}
}

// IsConnected reports the broker link state as last observed.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastSeen is the time of the most recent successful connect.
func (c *Connection) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func connKey(robotID models.ID, sectionName string) string {
	return fmt.Sprintf("%s-%s", robotID, sectionName)
}

// Registry owns every long-lived broker connection: one per (robot, section)
// pair with complete credentials, each subscribed only to that section's
// inbound topic. Connections retry independently on a fixed interval; the
// registry never coordinates retries across pairs.
type Registry struct {
	cfg     *config.Config
	fleet   *fleet.Store
	logger  interfaces.Logger
	handler MessageHandler

	mu          sync.RWMutex
	connections map[string]*Connection
	initialized bool
}

func NewRegistry(cfg *config.Config, fleetStore *fleet.Store, logger interfaces.Logger) *Registry {
	return &Registry{
		cfg:         cfg,
		fleet:       fleetStore,
		logger:      logger,
		connections: make(map[string]*Connection),
	}
}

// SetHandler installs the inbound message handler. Must be called before
// ConnectAll.
func (r *Registry) SetHandler(handler MessageHandler) {
	r.handler = handler
}

// ConnectAll derives eligible (robot, section) pairs from the fleet snapshot
// and opens one connection each. Idempotent: a second call no-ops until
// ReconnectAll resets the registry.
func (r *Registry) ConnectAll(ctx context.Context) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return nil
	}
	r.initialized = true
	r.mu.Unlock()

	robots := r.fleet.Robots()
	count := 0
	for _, robot := range robots {
		for sectionName, section := range robot.Sections {
			if section == nil || !section.HasCredentials() {
				continue
			}
			conn := &Connection{
				RobotID:        robot.ID,
				RobotName:      robot.RobotName,
				SectionName:    sectionName,
				Host:           BrokerHost(section.MqttURL),
				Username:       section.MqttUsername,
				Password:       section.MqttPassword,
				TopicSubscribe: section.TopicSubscribe,
				TopicMain:      section.TopicMain,
			}
			r.open(conn)
			count++
		}
	}

	r.logger.Infof("Connection registry initialized: %d broker connections", count)
	return nil
}

// open dials one connection and registers it. Connect failures are not
// fatal; paho keeps retrying on the fixed interval.
func (r *Registry) open(conn *Connection) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(conn.Host, r.cfg.MQTTPort))
	opts.SetClientID(fmt.Sprintf("robot-%s-%s-%s", conn.RobotID, conn.SectionName, uuid.NewString()[:8]))
	opts.SetUsername(conn.Username)
	opts.SetPassword(conn.Password)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(r.cfg.MQTTKeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(r.cfg.MQTTConnectTimeout)
	opts.SetAutoReconnect(true)
	// Constant-interval retry: min and max pinned to the same period.
	opts.SetMaxReconnectInterval(r.cfg.MQTTReconnectPeriod)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(r.cfg.MQTTReconnectPeriod)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		conn.setConnected(true, "")
		r.logger.Infof("MQTT connected: %s - %s", conn.RobotName, conn.SectionName)

		// Subscribe only to the inbound topic; subscribing to the
		// section's own outbound topic would echo our publishes back.
		token := client.Subscribe(conn.TopicSubscribe, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if r.handler != nil {
				r.handler(conn, msg.Topic(), msg.Payload())
			}
		})
		if token.Wait() && token.Error() != nil {
			r.logger.Errorf("Subscribe error for %s - %s: %v", conn.RobotName, conn.SectionName, token.Error())
			return
		}
		r.logger.Infof("Subscribed to %s for %s", conn.TopicSubscribe, conn.RobotName)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		conn.setConnected(false, err.Error())
		r.logger.Warnf("MQTT connection lost for %s - %s: %v", conn.RobotName, conn.SectionName, err)
	})

	conn.client = mqtt.NewClient(opts)

	r.mu.Lock()
	r.connections[conn.Key()] = conn
	r.mu.Unlock()

	token := conn.client.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			conn.setConnected(false, token.Error().Error())
			r.logger.Errorf("MQTT connect failed for %s - %s: %v", conn.RobotName, conn.SectionName, token.Error())
		}
	}()
}

// Reconnect tears down one connection and reopens it after a short delay.
func (r *Registry) Reconnect(robotID models.ID, sectionName string) {
	key := connKey(robotID, sectionName)

	r.mu.Lock()
	conn, ok := r.connections[key]
	if ok {
		delete(r.connections, key)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warnf("Reconnect requested for unknown connection %s", key)
		return
	}

	r.logger.Infof("Reconnecting %s...", key)
	conn.client.Disconnect(250)

	time.AfterFunc(reconnectOneDelay, func() {
		// Re-resolve credentials from the current snapshot; they may
		// have changed since the connection was first opened.
		robot := r.fleet.FindRobot(robotID)
		if robot == nil {
			r.logger.Warnf("Reconnect aborted: robot %s no longer in snapshot", robotID)
			return
		}
		section, ok := robot.Sections[sectionName]
		if !ok || section == nil || !section.HasCredentials() {
			r.logger.Warnf("Reconnect aborted: section %s ineligible", key)
			return
		}
		r.open(&Connection{
			RobotID:        robot.ID,
			RobotName:      robot.RobotName,
			SectionName:    sectionName,
			Host:           BrokerHost(section.MqttURL),
			Username:       section.MqttUsername,
			Password:       section.MqttPassword,
			TopicSubscribe: section.TopicSubscribe,
			TopicMain:      section.TopicMain,
		})
	})
}

// ReconnectAll tears down every connection, clears the registry and re-runs
// ConnectAll after a delay long enough for brokers to release the old
// sessions.
func (r *Registry) ReconnectAll(ctx context.Context) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.connections = make(map[string]*Connection)
	r.initialized = false
	r.mu.Unlock()

	r.logger.Infof("Reconnecting all broker connections (%d)...", len(conns))
	for _, conn := range conns {
		conn.client.Disconnect(250)
	}

	time.AfterFunc(reconnectAllDelay, func() {
		if err := r.ConnectAll(ctx); err != nil {
			r.logger.Errorf("ReconnectAll failed: %v", err)
		}
	})
}

// Publish sends payload on topic through the pair's live connection. Returns
// false (logged, no error) when no connected client exists.
func (r *Registry) Publish(robotID models.ID, sectionName, topic, payload string) bool {
	r.mu.RLock()
	conn, ok := r.connections[connKey(robotID, sectionName)]
	r.mu.RUnlock()

	if !ok || !conn.IsConnected() {
		r.logger.Errorf("Cannot publish: no connected client for %s-%s", robotID, sectionName)
		return false
	}

	token := conn.client.Publish(topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		r.logger.Errorf("Publish failed for %s-%s: %v", robotID, sectionName, token.Error())
		return false
	}

	r.logger.Infof("Published to %s-%s: %s -> %s", robotID, sectionName, topic, payload)
	return true
}

// Status reports the connection state for one pair.
func (r *Registry) Status(robotID models.ID, sectionName string) string {
	r.mu.RLock()
	conn, ok := r.connections[connKey(robotID, sectionName)]
	r.mu.RUnlock()

	if !ok {
		return StatusDisconnected
	}
	if conn.IsConnected() {
		return StatusConnected
	}
	return StatusConnecting
}

// Counts returns the number of registered connections and how many are
// currently connected, for the operator-facing health display.
func (r *Registry) Counts() (total, connected int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total = len(r.connections)
	for _, conn := range r.connections {
		if conn.IsConnected() {
			connected++
		}
	}
	return total, connected
}

// Connections returns a point-in-time view of the registry for the ops API.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		out = append(out, conn)
	}
	return out
}

// Shutdown disconnects everything.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.connections {
		conn.client.Disconnect(250)
	}
	r.connections = make(map[string]*Connection)
	r.initialized = false
}

// BrokerHost strips a ws/wss scheme and any path from a stored broker URL,
// leaving the bare hostname.
func BrokerHost(mqttURL string) string {
	host := mqttURL
	host = strings.TrimPrefix(host, "wss://")
	host = strings.TrimPrefix(host, "ws://")
	if idx := strings.Index(host, "/"); idx >= 0 {
		host = host[:idx]
	}
	return host
}

// BrokerURL builds the secure websocket endpoint for a broker host.
func BrokerURL(host string, port int) string {
	return fmt.Sprintf("wss://%s:%d/mqtt", host, port)
}
