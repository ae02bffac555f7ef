package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the subset of mqtt.Client used by MQTTSink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes notifications as JSON so an external mailer can
// deliver them. Topics look like <prefix>/notifications/<event>.
type MQTTSink struct {
	Client  Publisher
	Prefix  string
	QoS     byte
	Timeout time.Duration
}

func (s *MQTTSink) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	token := s.Client.Publish(s.Topic(msg.Event), s.QoS, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish %s: timed out after %s", msg.Event, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", msg.Event, err)
	}
	return nil
}

// Topic returns the MQTT topic for an event.
func (s *MQTTSink) Topic(event string) string {
	prefix := strings.TrimSuffix(s.Prefix, "/")
	if prefix == "" {
		prefix = "carlink"
	}
	return prefix + "/notifications/" + event
}

// ConnectMQTT opens a client connection to the broker.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return client, nil
}
