package homie

import "context"

// ConnectOptions is what the device asks of the transport on every connect.
type ConnectOptions struct {
	WillTopic    string
	WillPayload  string
	WillQoS      byte
	WillRetained bool
	Username     string
	Password     string
	MaxInflight  int
}

// MessageHandler receives inbound messages with the full topic they arrived on.
type MessageHandler func(topic string, payload []byte)

// Transport is the publish/subscribe client the device drives. Implementations
// must be safe for concurrent use.
type Transport interface {
	Connect(ctx context.Context, opts ConnectOptions) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
	Disconnect()
	IsConnected() bool
}
