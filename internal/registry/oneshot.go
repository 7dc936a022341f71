// internal/registry/oneshot.go
package registry

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"fleet-monitor/internal/interfaces"
)

// OneShotPublisher opens a short-lived connection, publishes once and
// disconnects. Used for schedule and time-sync commands that target a
// section the registry may not hold a live client for. The connection is
// closed on every path so handles never leak.
type OneShotPublisher struct {
	port    int
	timeout time.Duration
	logger  interfaces.Logger
}

func NewOneShotPublisher(port int, timeout time.Duration, logger interfaces.Logger) *OneShotPublisher {
	return &OneShotPublisher{
		port:    port,
		timeout: timeout,
		logger:  logger,
	}
}

// PublishWithCredentials connects with the given section credentials,
// publishes payload on topic and tears the client down. A connect or
// publish that outlives the timeout is treated as a failure.
func (p *OneShotPublisher) PublishWithCredentials(host, username, password, topic, payload string) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(BrokerHost(host), p.port))
	opts.SetClientID("clientId-" + uuid.NewString()[:8])
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(p.timeout)

	client := mqtt.NewClient(opts)
	defer client.Disconnect(250)

	if token := client.Connect(); !token.WaitTimeout(p.timeout) || token.Error() != nil {
		if token.Error() != nil {
			return fmt.Errorf("one-shot connect to %s failed: %w", host, token.Error())
		}
		return fmt.Errorf("one-shot connect to %s timed out", host)
	}

	token := client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("one-shot publish to %s timed out", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("one-shot publish to %s failed: %w", topic, token.Error())
	}

	p.logger.Infof("One-shot publish: %s -> %s", topic, payload)
	return nil
}
