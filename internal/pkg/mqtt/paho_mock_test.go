package mqtt

import (
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockToken is a completed token carrying err.
type mockToken struct {
	err     error
	pending bool
}

func (t *mockToken) Wait() bool {
	return !t.pending
}

func (t *mockToken) WaitTimeout(time.Duration) bool {
	return !t.pending
}

func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

func (t *mockToken) Error() error {
	return t.err
}

// mockClient is a paho client whose behaviour is driven by Func fields.
type mockClient struct {
	paho_mqtt.Client

	ConnectFunc     func() paho_mqtt.Token
	PublishFunc     func(topic string, qos byte, retained bool, payload any) paho_mqtt.Token
	SubscribeFunc   func(topic string, qos byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token
	UnsubscribeFunc func(topics ...string) paho_mqtt.Token
	DisconnectFunc  func(quiesce uint)

	connected bool
}

func (m *mockClient) Connect() paho_mqtt.Token {
	if m.ConnectFunc != nil {
		return m.ConnectFunc()
	}
	m.connected = true
	return &mockToken{}
}

func (m *mockClient) IsConnected() bool {
	return m.connected
}

func (m *mockClient) Disconnect(quiesce uint) {
	m.connected = false
	if m.DisconnectFunc != nil {
		m.DisconnectFunc(quiesce)
	}
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload any) paho_mqtt.Token {
	if m.PublishFunc != nil {
		return m.PublishFunc(topic, qos, retained, payload)
	}
	return &mockToken{}
}

func (m *mockClient) Subscribe(topic string, qos byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(topic, qos, callback)
	}
	return &mockToken{}
}

func (m *mockClient) Unsubscribe(topics ...string) paho_mqtt.Token {
	if m.UnsubscribeFunc != nil {
		return m.UnsubscribeFunc(topics...)
	}
	return &mockToken{}
}

type mockMessage struct {
	paho_mqtt.Message
	topic   string
	payload []byte
}

func (m *mockMessage) Topic() string {
	return m.topic
}

func (m *mockMessage) Payload() []byte {
	return m.payload
}
