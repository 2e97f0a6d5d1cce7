package mqtt

import "context"

// Client is the subset of MQTT the agent needs; the agent holds a nil Client when MQTT is disabled
type Client interface {
	// Connect blocks until the broker accepts the connection or ctx ends
	Connect(ctx context.Context) error

	// Disconnect publishes the offline availability message and closes the connection
	Disconnect()

	// Subscribe registers handler for topic; the subscription survives reconnects
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Publish publishes a message to a topic
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// IsConnected returns whether the client is currently connected
	IsConnected() bool
}

// MessageHandler is called from the MQTT client goroutine for each incoming message
type MessageHandler func(Message)

// Message represents an MQTT message
type Message interface {
	Topic() string
	Payload() []byte
	Ack()
}
