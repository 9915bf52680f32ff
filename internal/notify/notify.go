// Package notify publishes run progress events for external dashboards.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Event is one progress update
type Event struct {
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	ProjectID int       `json:"project_id,omitempty"`
	TaskID    int       `json:"task_id,omitempty"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	URLs      []string  `json:"urls,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier publishes events. Failures are reported but never stop a run.
type Notifier interface {
	Notify(e Event) error
	Close()
}

// Nop discards every event
type Nop struct{}

func (Nop) Notify(Event) error { return nil }
func (Nop) Close()             {}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes events as JSON to {topic}/{run id}/{kind}
type MQTT struct {
	client  publisher
	topic   string
	timeout time.Duration
	close   func()
}

// NewMQTT connects to broker
func NewMQTT(broker, topic string) (*MQTT, error) {
	clientID := "cvat2sly-" + uuid.New().String()
	slog.Debug("Connecting to MQTT", "broker", broker, "client_id", clientID)

	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	slog.Info("Connected to MQTT", "broker", broker)

	return &MQTT{
		client:  client,
		topic:   topic,
		timeout: 5 * time.Second,
		close:   func() { client.Disconnect(250) },
	}, nil
}

// Notify publishes e with QoS 0
func (m *MQTT) Notify(e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	topic := fmt.Sprintf("%s/%s/%s", m.topic, e.RunID, e.Kind)
	token := m.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker
func (m *MQTT) Close() {
	if m.close != nil {
		m.close()
	}
}
