package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultTopic    = "roadwatch/reports"
	defaultClientID = "roadwatch"
	publishTimeout  = 5 * time.Second
	disconnectQuiet = 250
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
	Retained bool
}

// publishClient is the subset of mqtt.Client used for publishing
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTPublisher struct {
	client   publishClient
	topic    string
	qos      byte
	retained bool
}

// NewMQTTPublisher connects to the broker, e.g. "tcp://localhost:1883"
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker must not be empty")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid mqtt qos %d", cfg.QoS)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	slog.Info("connected to mqtt broker", "broker", cfg.Broker, "clientId", clientID)

	return newMQTTPublisher(client, cfg), nil
}

func newMQTTPublisher(client publishClient, cfg MQTTConfig) *MQTTPublisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTPublisher{client: client, topic: topic, qos: cfg.QoS, retained: cfg.Retained}
}

func (p *MQTTPublisher) Publish(ctx context.Context, event ReportCreated) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("timed out publishing to %s", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(disconnectQuiet)
	return nil
}
