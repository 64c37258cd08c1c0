package cmd

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/homie-integration/internal/pkg/config"
	"github.com/anicoll/homie-integration/internal/pkg/homie"
)

// memoryTransport is an in-process broker for a single client.
type memoryTransport struct {
	mu            sync.Mutex
	connected     bool
	connectErr    error
	retained      map[string]string
	subscriptions map[string]homie.MessageHandler
}

func newMemoryTransport() *memoryTransport {
	return &memoryTransport{
		retained:      make(map[string]string),
		subscriptions: make(map[string]homie.MessageHandler),
	}
}

func (m *memoryTransport) Connect(context.Context, homie.ConnectOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *memoryTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retained[topic] = string(payload)
	return nil
}

func (m *memoryTransport) Subscribe(topic string, _ byte, handler homie.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	return nil
}

func (m *memoryTransport) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, topic)
	return nil
}

func (m *memoryTransport) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *memoryTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *memoryTransport) get(topic string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retained[topic]
}

func (m *memoryTransport) deliver(topic, payload string) {
	m.mu.Lock()
	var handlers []homie.MessageHandler
	for filter, h := range m.subscriptions {
		prefix, wildcard := strings.CutSuffix(filter, "#")
		if filter == topic || (wildcard && strings.HasPrefix(topic, prefix)) {
			handlers = append(handlers, h)
		}
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(topic, []byte(payload))
	}
}

type nopObserver struct{}

func (nopObserver) ObserveHost(float64, float64) {}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	require.NoError(t, cfg.Device.SetDeviceID("host"))
	cfg.SampleInterval = time.Second
	return cfg
}

func startedDevice(t *testing.T, transport *memoryTransport, logger *zap.Logger) *homie.Device {
	t.Helper()
	dev, err := homie.New(testConfig(t), transport, homie.WithLogger(logger), homie.WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	return dev
}

func waitReady(t *testing.T, transport *memoryTransport) {
	t.Helper()
	require.Eventually(t, func() bool {
		return transport.get("homie/host/$state") == "ready"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHostMonitorAdvertisement(t *testing.T) {
	transport := newMemoryTransport()
	dev := startedDevice(t, transport, zaptest.NewLogger(t))
	_, err := newHostMonitor(dev, &MockHostSampler{}, nopObserver{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, dev.Setup())
	defer dev.Shutdown()
	waitReady(t, transport)

	assert.Equal(t, "system", transport.get("homie/host/$nodes"))
	assert.Equal(t, "host-monitor", transport.get("homie/host/system/$type"))
	assert.Equal(t, "alert,cpu-load,memory,mode", transport.get("homie/host/system/$properties"))
	assert.Equal(t, "float", transport.get("homie/host/system/cpu-load/$datatype"))
	assert.Equal(t, "%", transport.get("homie/host/system/memory/$unit"))
	assert.Equal(t, "boolean", transport.get("homie/host/system/alert/$datatype"))
	assert.Equal(t, "true", transport.get("homie/host/system/alert/$settable"))
	assert.Equal(t, "normal,maintenance", transport.get("homie/host/system/mode/$format"))
}

func TestHostMonitorSample(t *testing.T) {
	transport := newMemoryTransport()
	dev := startedDevice(t, transport, zaptest.NewLogger(t))

	var observed [2]float64
	sampler := &MockHostSampler{
		Load1Func:             func(context.Context) (float64, error) { return 0.4567, nil },
		MemoryUsedPercentFunc: func(context.Context) (float64, error) { return 41.26, nil },
	}
	m, err := newHostMonitor(dev, sampler, observerFunc(func(load, mem float64) {
		observed = [2]float64{load, mem}
	}), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, dev.Setup())
	defer dev.Shutdown()
	waitReady(t, transport)

	m.sample(context.Background())
	assert.Equal(t, "0.46", transport.get("homie/host/system/cpu-load"))
	assert.Equal(t, "41.3", transport.get("homie/host/system/memory"))
	assert.Equal(t, "normal", transport.get("homie/host/system/mode"))
	assert.Equal(t, [2]float64{0.4567, 41.26}, observed)
}

func TestHostMonitorSampleFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	transport := newMemoryTransport()
	dev := startedDevice(t, transport, zaptest.NewLogger(t))
	sampler := &MockHostSampler{
		Load1Func: func(context.Context) (float64, error) { return 0, errors.New("no loadavg") },
	}
	m, err := newHostMonitor(dev, sampler, nopObserver{}, zap.New(core))
	require.NoError(t, err)

	m.sample(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("unable to read load average").Len())
}

func TestHostMonitorSetCommands(t *testing.T) {
	transport := newMemoryTransport()
	dev := startedDevice(t, transport, zaptest.NewLogger(t))
	_, err := newHostMonitor(dev, &MockHostSampler{}, nopObserver{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, dev.Setup())
	defer dev.Shutdown()
	waitReady(t, transport)

	transport.deliver("homie/host/system/alert/set", "true")
	assert.Equal(t, homie.StateAlert, dev.State())
	assert.Equal(t, "true", transport.get("homie/host/system/alert"))
	require.Eventually(t, func() bool {
		return transport.get("homie/host/$state") == "alert"
	}, 2*time.Second, 5*time.Millisecond)

	transport.deliver("homie/host/system/alert/set", "nonsense")
	assert.Equal(t, homie.StateAlert, dev.State())

	transport.deliver("homie/host/system/alert/set", "false")
	assert.Equal(t, homie.StateReady, dev.State())
	assert.Equal(t, "false", transport.get("homie/host/system/alert"))

	transport.deliver("homie/host/system/mode/set", "maintenance")
	assert.Equal(t, "maintenance", transport.get("homie/host/system/mode"))
	transport.deliver("homie/host/system/mode/set", "party")
	assert.Equal(t, "maintenance", transport.get("homie/host/system/mode"))
}

func TestRun(t *testing.T) {
	transport := newMemoryTransport()
	sampler := &MockHostSampler{
		Load1Func:             func(context.Context) (float64, error) { return 1.5, nil },
		MemoryUsedPercentFunc: func(context.Context) (float64, error) { return 50, nil },
		CPUTemperature:        "45.00",
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, testConfig(t), transport, sampler, zaptest.NewLogger(t))
	}()

	waitReady(t, transport)
	require.Eventually(t, func() bool {
		return transport.get("homie/host/system/cpu-load") == "1.50"
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, "disconnected", transport.get("homie/host/$state"))
	assert.False(t, transport.IsConnected())
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.ID = "Not Valid"

	err := run(context.Background(), cfg, newMemoryTransport(), &MockHostSampler{}, zaptest.NewLogger(t))
	require.ErrorIs(t, err, homie.ErrInvalidIdentifier)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger("loud")
	require.Error(t, err)
}

type observerFunc func(load, mem float64)

func (f observerFunc) ObserveHost(load, mem float64) {
	f(load, mem)
}
