package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/saaga0h/jeeves-thermolight/pkg/config"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

type subscription struct {
	qos     byte
	handler MessageHandler
}

// mqttClient implements the Client interface using the Paho MQTT client
type mqttClient struct {
	client pahomqtt.Client
	cfg    *config.Config
	logger *slog.Logger

	availability string

	mu            sync.Mutex
	subscriptions map[string]subscription
}

// NewClient creates a new MQTT client with the given configuration.
// The broker is told to mark the agent offline on its availability topic if the connection drops.
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	m := &mqttClient{
		cfg:           cfg,
		logger:        logger,
		availability:  AvailabilityTopic(cfg.ServiceName, cfg.Location),
		subscriptions: make(map[string]subscription),
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTAddress())

	// Set client ID (auto-generate if not provided)
	if cfg.MQTTClientID != "" {
		opts.SetClientID(cfg.MQTTClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("%s-%s-%d", cfg.ServiceName, cfg.Location, time.Now().Unix()))
	}

	if cfg.MQTTUser != "" {
		opts.SetUsername(cfg.MQTTUser)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}

	// Connection settings
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(m.availability, payloadOffline, 1, true)

	opts.OnConnect = m.onConnect

	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	}

	opts.OnReconnecting = func(c pahomqtt.Client, opts *pahomqtt.ClientOptions) {
		logger.Info("MQTT reconnecting...")
	}

	m.client = pahomqtt.NewClient(opts)
	return m
}

// onConnect announces availability and restores subscriptions, which a clean session drops
func (m *mqttClient) onConnect(c pahomqtt.Client) {
	m.logger.Info("Connected to MQTT broker", "broker", m.cfg.MQTTAddress())

	c.Publish(m.availability, 1, true, payloadOnline)

	m.mu.Lock()
	subs := make(map[string]subscription, len(m.subscriptions))
	for topic, sub := range m.subscriptions {
		subs[topic] = sub
	}
	m.mu.Unlock()

	for topic, sub := range subs {
		token := c.Subscribe(topic, sub.qos, wrapHandler(sub.handler))
		go func(topic string) {
			token.Wait()
			if err := token.Error(); err != nil {
				m.logger.Error("Failed to restore subscription", "topic", topic, "error", err)
				return
			}
			m.logger.Debug("Restored subscription", "topic", topic)
		}(topic)
	}
}

// Connect establishes a connection to the MQTT broker
func (m *mqttClient) Connect(ctx context.Context) error {
	m.logger.Info("Connecting to MQTT broker", "broker", m.cfg.MQTTAddress())

	token := m.client.Connect()

	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection timeout: %w", ctx.Err())
	}
}

// Disconnect marks the agent offline and closes the connection
func (m *mqttClient) Disconnect() {
	m.logger.Info("Disconnecting from MQTT broker")
	if m.client.IsConnected() {
		token := m.client.Publish(m.availability, 1, true, payloadOffline)
		token.WaitTimeout(time.Second)
	}
	m.client.Disconnect(250) // 250ms grace period
}

// Subscribe subscribes to a topic with the given QoS and handler
func (m *mqttClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	m.logger.Info("Subscribing to MQTT topic", "topic", topic, "qos", qos)

	m.mu.Lock()
	m.subscriptions[topic] = subscription{qos: qos, handler: handler}
	m.mu.Unlock()

	token := m.client.Subscribe(topic, qos, wrapHandler(handler))
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	m.logger.Info("Successfully subscribed to topic", "topic", topic)
	return nil
}

// Publish publishes a message to a topic
func (m *mqttClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := m.client.Publish(topic, qos, retained, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	m.logger.Debug("Published message", "topic", topic, "size", len(payload))
	return nil
}

// IsConnected returns whether the client is currently connected
func (m *mqttClient) IsConnected() bool {
	return m.client.IsConnected()
}

func wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(client pahomqtt.Client, msg pahomqtt.Message) {
		handler(&mqttMessage{msg: msg})
	}
}

// mqttMessage wraps a Paho MQTT message to implement our Message interface
type mqttMessage struct {
	msg pahomqtt.Message
}

func (m *mqttMessage) Topic() string {
	return m.msg.Topic()
}

func (m *mqttMessage) Payload() []byte {
	return m.msg.Payload()
}

func (m *mqttMessage) Ack() {
	m.msg.Ack()
}
