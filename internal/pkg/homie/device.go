package homie

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/homie-integration/internal/pkg/config"
	"github.com/anicoll/homie-integration/internal/pkg/topicid"
)

const (
	// Convention is the Homie version advertised on $homie.
	Convention     = "4.0.0"
	Implementation = "go"
	Extensions     = "org.homie.legacy-stats:0.1.1:[4.x],org.homie.legacy-firmware:0.1.1:[4.x]"

	defaultPollInterval = 50 * time.Millisecond
	minInflight         = 10
	publishQoS          = 1
	willQoS             = 1
)

// StatsFunc samples a value published verbatim under $stats.
type StatsFunc func() string

// BroadcastHandler receives messages published under <base-topic>/$broadcast/.
type BroadcastHandler func(level, payload string)

type message struct {
	topic   string
	payload string
}

type Option func(*Device)

func WithLogger(logger *zap.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

func WithRecorder(r Recorder) Option {
	return func(d *Device) {
		d.recorder = r
	}
}

// WithPollInterval sets the sleep between lifecycle iterations.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Device) {
		d.pollInterval = interval
	}
}

func WithCPUTemperature(f StatsFunc) Option {
	return func(d *Device) {
		d.cpuTemperature = f
	}
}

func WithCPULoad(f StatsFunc) Option {
	return func(d *Device) {
		d.cpuLoad = f
	}
}

func WithBroadcastHandler(h BroadcastHandler) Option {
	return func(d *Device) {
		d.broadcast = h
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Device) {
		d.now = now
	}
}

// Device is one endpoint on the bus. All state is guarded by mu; transport
// calls happen outside of it.
type Device struct {
	cfg          config.DeviceConfig
	broker       config.BrokerConfig
	transport    Transport
	logger       *zap.Logger
	recorder     Recorder
	now          func() time.Time
	pollInterval time.Duration

	mu             sync.Mutex
	state          State
	previousState  State
	bootTime       time.Time
	nodes          map[string]*Node
	listeners      map[string]MessageHandler
	broadcast      BroadcastHandler
	cpuTemperature StatsFunc
	cpuLoad        StatsFunc
	stats          *cron.Cron
	running        bool
	cancel         context.CancelFunc
	done           chan struct{}
}

func New(cfg *config.Config, transport Transport, opts ...Option) (*Device, error) {
	if !topicid.IsValid(cfg.Device.ID.String()) {
		return nil, fmt.Errorf("%w: device id %q", ErrInvalidIdentifier, cfg.Device.ID)
	}
	if !topicid.IsValid(cfg.Device.BaseTopic.String()) {
		return nil, fmt.Errorf("%w: base topic %q", ErrInvalidIdentifier, cfg.Device.BaseTopic)
	}
	if cfg.Device.StatsInterval < config.MinStatsInterval {
		return nil, fmt.Errorf("%w: stats interval %s", ErrInvalidValue, cfg.Device.StatsInterval)
	}
	if cfg.Device.DisconnectRetryInterval <= 0 {
		return nil, fmt.Errorf("%w: disconnect retry interval %s", ErrInvalidValue, cfg.Device.DisconnectRetryInterval)
	}

	d := &Device{
		cfg:           cfg.Device,
		broker:        cfg.Broker,
		transport:     transport,
		logger:        zap.L(), // returns the global logger.
		recorder:      nopRecorder{},
		now:           time.Now,
		pollInterval:  defaultPollInterval,
		state:         StateInit,
		previousState: StateDisconnected,
		nodes:         make(map[string]*Node),
		listeners:     make(map[string]MessageHandler),
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.With(zap.String("device_id", d.cfg.ID.String()))
	d.bootTime = d.now()
	return d, nil
}

func (d *Device) ID() string {
	return d.cfg.ID.String()
}

func (d *Device) Name() string {
	return d.cfg.Name
}

func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// CreateNode returns the node with the given id, creating it on first use.
// Nodes added after the device has advertised only show up after the next
// reconnect.
func (d *Device) CreateNode(id, nodeType string) (*Node, error) {
	if !topicid.IsValid(id) {
		return nil, fmt.Errorf("%w: node id %q", ErrInvalidIdentifier, id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.nodes[id]; ok {
		return n, nil
	}
	n := newNode(d, id, nodeType)
	d.nodes[id] = n
	return n, nil
}

func (d *Device) Node(id string) (*Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[id]
	return n, ok
}

// Nodes returns the device's nodes ordered by id.
func (d *Device) Nodes() []*Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sortedNodes()
}

func (d *Device) sortedNodes() []*Node {
	ids := lo.Keys(d.nodes)
	slices.Sort(ids)
	return lo.Map(ids, func(id string, _ int) *Node {
		return d.nodes[id]
	})
}

func (d *Device) SetCPUTemperatureFunc(f StatsFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cpuTemperature = f
}

func (d *Device) SetCPULoadFunc(f StatsFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cpuLoad = f
}

// SetAlert moves a ready device to alert and back. Requests from any other
// state are ignored.
func (d *Device) SetAlert(alert bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case alert && d.state == StateReady:
		d.state = StateAlert
	case !alert && d.state == StateAlert:
		d.state = StateReady
	case alert && d.state == StateAlert, !alert && d.state == StateReady:
		d.logger.Info("alert already in requested state", zap.Bool("alert", alert), zap.Stringer("state", d.state))
	default:
		d.logger.Warn("alert change ignored", zap.Bool("alert", alert), zap.Stringer("state", d.state))
	}
}

// Setup starts the lifecycle loop. It fails if the loop is already running;
// a device can be set up again once Shutdown has returned.
func (d *Device) Setup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running = true
	go d.run(ctx, d.done)
	return nil
}

// Shutdown stops the lifecycle loop and waits for it, announces the device as
// disconnected and resets the state so Setup can be called again.
func (d *Device) Shutdown() {
	d.logger.Info("shutdown request received")
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done

	if d.transport.IsConnected() {
		d.publish("$state", StateDisconnected.String(), true)
		d.transport.Disconnect()
	}
	d.stopStats()

	d.mu.Lock()
	d.state = StateInit
	d.previousState = StateDisconnected
	d.running = false
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()
	d.logger.Info("terminated")
}

// Publish sends payload to topic relative to <base-topic>/<device-id>/. It is
// skipped when the transport is not connected.
func (d *Device) Publish(topic, payload string, retained bool) {
	d.publish(topic, payload, retained)
}

func (d *Device) publish(topic, payload string, retained bool) bool {
	if !d.transport.IsConnected() {
		d.logger.Warn("couldn't publish message - not connected", zap.String("topic", topic))
		return false
	}
	if err := d.transport.Publish(d.topic(topic), []byte(payload), publishQoS, retained); err != nil {
		d.logger.Error("couldn't publish message", zap.String("topic", topic), zap.Error(err))
		d.recorder.PublishFailed()
		return false
	}
	d.recorder.Published(retained)
	return true
}

func (d *Device) publishAll(msgs []message) {
	for _, m := range msgs {
		d.publish(m.topic, m.payload, true)
	}
}

func (d *Device) topic(rel string) string {
	return d.cfg.BaseTopic.String() + "/" + d.cfg.ID.String() + "/" + rel
}

func (d *Device) broadcastTopic() string {
	return d.cfg.BaseTopic.String() + "/$broadcast/"
}

// registerListener remembers handler for a topic relative to the device and
// subscribes straight away if connected.
func (d *Device) registerListener(rel string, handler MessageHandler) {
	d.mu.Lock()
	d.listeners[rel] = handler
	d.mu.Unlock()

	if d.transport.IsConnected() {
		d.subscribe(rel, handler)
	}
}

func (d *Device) deregisterListener(rel string) {
	d.mu.Lock()
	_, ok := d.listeners[rel]
	delete(d.listeners, rel)
	d.mu.Unlock()

	if ok && d.transport.IsConnected() {
		if err := d.transport.Unsubscribe(d.topic(rel)); err != nil {
			d.logger.Warn("was not able to unsubscribe listener", zap.String("topic", rel), zap.Error(err))
		}
	}
}

func (d *Device) subscribe(rel string, handler MessageHandler) {
	if err := d.transport.Subscribe(d.topic(rel), publishQoS, handler); err != nil {
		d.logger.Warn("was not able to subscribe listener", zap.String("topic", rel), zap.Error(err))
	}
}

func (d *Device) subscribeListeners() {
	d.mu.Lock()
	listeners := make(map[string]MessageHandler, len(d.listeners))
	for rel, h := range d.listeners {
		listeners[rel] = h
	}
	d.mu.Unlock()

	for rel, h := range listeners {
		d.subscribe(rel, h)
	}
}
