package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
	mqttDisconnectMs   = 250
	// QoS 1: at-least-once; alerts carry an AlertID for deduplication.
	mqttQoS byte = 1
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish in time.
var ErrPublishTimeout = errors.New("notify: mqtt publish timed out")

// MQTTConfig configures the MQTT notifier.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// MQTTNotifier publishes each alert as a JSON message.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

// NewMQTTNotifier connects to the broker. The client reconnects on its own
// after the first successful connection.
func NewMQTTNotifier(cfg MQTTConfig, logger *zap.Logger) (*MQTTNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("NewMQTTNotifier: connect to %s: timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("NewMQTTNotifier: connect to %s: %w", cfg.Broker, err)
	}

	logger.Info("mqtt notifier connected",
		zap.String("broker", cfg.Broker),
		zap.String("topic", cfg.Topic),
	)
	return newMQTTNotifier(client, cfg.Topic, logger), nil
}

func newMQTTNotifier(client mqtt.Client, topic string, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{client: client, topic: topic, logger: logger}
}

// Notify publishes alerts in order and stops at the first failure so the
// queue retries the batch.
func (n *MQTTNotifier) Notify(ctx context.Context, alerts []Alert) error {
	for _, a := range alerts {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("MQTTNotifier.Notify: marshal: %w", err)
		}
		tok := n.client.Publish(n.topic, mqttQoS, false, payload)
		if !tok.WaitTimeout(mqttPublishTimeout) {
			return ErrPublishTimeout
		}
		if err := tok.Error(); err != nil {
			return fmt.Errorf("MQTTNotifier.Notify: publish: %w", err)
		}
	}
	n.logger.Debug("alerts published", zap.Int("count", len(alerts)))
	return nil
}

func (n *MQTTNotifier) Close() error {
	n.client.Disconnect(mqttDisconnectMs)
	return nil
}
