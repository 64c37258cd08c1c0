package homie

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/homie-integration/internal/pkg/config"
)

type published struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// fakeTransport records every call and delivers messages to matching
// subscriptions.
type fakeTransport struct {
	mu            sync.Mutex
	connected     bool
	connectErr    error
	publishErr    error
	connects      int
	options       []ConnectOptions
	published     []published
	subscriptions map[string]MessageHandler
	unsubscribed  []string
	disconnects   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subscriptions: make(map[string]MessageHandler)}
}

func (f *fakeTransport) Connect(_ context.Context, opts ConnectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.options = append(f.options, opts)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{Topic: topic, Payload: string(payload), QoS: qos, Retained: retained})
	return nil
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscriptions, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeTransport) dropConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = nil
}

// last returns the payload most recently published to topic.
func (f *fakeTransport) last(topic string) (string, bool) {
	msgs := f.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Topic == topic {
			return msgs[i].Payload, true
		}
	}
	return "", false
}

func (f *fakeTransport) subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subscriptions[topic]
	return ok
}

// deliver hands payload to every subscription whose filter matches topic.
func (f *fakeTransport) deliver(topic, payload string) {
	f.mu.Lock()
	var handlers []MessageHandler
	for filter, h := range f.subscriptions {
		if matches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(topic, []byte(payload))
	}
}

func matches(filter, topic string) bool {
	if prefix, ok := strings.CutSuffix(filter, "#"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return filter == topic
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	require.NoError(t, cfg.Device.SetDeviceID("test-device"))
	cfg.Device.Name = "Test Device"
	cfg.Device.FirmwareName = "test-fw"
	cfg.Device.FirmwareVersion = "1.0.0"
	return cfg
}

func newTestDevice(t *testing.T, opts ...Option) (*Device, *fakeTransport) {
	t.Helper()
	return newTestDeviceWithLogger(t, zaptest.NewLogger(t), opts...)
}

func newTestDeviceWithLogger(t *testing.T, logger *zap.Logger, opts ...Option) (*Device, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	d, err := New(testConfig(t), transport, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(d.stopStats)
	return d, transport
}

// connected brings d to READY by driving the state machine directly.
func connected(t *testing.T, d *Device) {
	t.Helper()
	ctx := context.Background()
	d.step(ctx) // INIT -> READY
	d.step(ctx) // READY entry
	require.Equal(t, StateReady, d.State())
}
