package homie

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/homie-integration/internal/pkg/config"
)

func (d *Device) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		d.step(ctx)
		if !sleep(ctx, d.pollInterval) {
			return
		}
	}
}

// step runs one iteration of the lifecycle state machine.
func (d *Device) step(ctx context.Context) {
	state, entered := d.transition()

	switch state {
	case StateInit:
		if entered {
			d.logger.Info("--> init")
		}
		if !d.connect(ctx) {
			d.logger.Info("connect failed")
			d.moveState(StateInit, StateDisconnected)
			return
		}
		d.publish("$state", StateInit.String(), true)
		d.advertise()
		d.subscribeListeners()
		d.moveState(StateInit, StateReady)

	case StateReady, StateAlert:
		if entered {
			d.publish("$state", state.String(), true)
			d.logger.Info("--> " + state.String())
		}
		if !d.transport.IsConnected() {
			d.moveState(state, StateDisconnected)
		}

	case StateDisconnected:
		if entered {
			d.logger.Info("--> disconnected")
		}
		if !sleep(ctx, d.cfg.DisconnectRetryInterval) {
			return
		}
		d.moveState(StateDisconnected, StateInit)
	}
}

// transition records the current state as seen and reports whether it was
// just entered.
func (d *Device) transition() (State, bool) {
	d.mu.Lock()
	state := d.state
	entered := state != d.previousState
	d.previousState = state
	d.mu.Unlock()

	if entered {
		d.recorder.StateChanged(state)
	}
	return state, entered
}

// moveState changes the state only if it is still from, so a concurrent
// SetAlert is never overwritten.
func (d *Device) moveState(from, to State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == from {
		d.state = to
	}
}

func (d *Device) connect(ctx context.Context) bool {
	if d.transport.IsConnected() {
		d.transport.Disconnect()
	}

	d.mu.Lock()
	opts := ConnectOptions{
		WillTopic:    d.topic("$state"),
		WillPayload:  StateLost.String(),
		WillQoS:      willQoS,
		WillRetained: true,
		MaxInflight:  d.maxInflight(),
	}
	broadcast := d.broadcast
	d.mu.Unlock()
	if d.broker.HasCredentials() {
		opts.Username = d.broker.Username
		opts.Password = d.broker.Password
	}

	timeout := d.broker.ConnectTimeout
	if timeout <= 0 {
		timeout = config.DefaultConnectTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := d.transport.Connect(connectCtx, opts)
	d.recorder.ConnectAttempt(err == nil)
	if err != nil {
		d.logger.Error("couldn't connect", zap.String("broker", d.broker.URL), zap.Error(err))
		return false
	}

	if broadcast != nil {
		prefix := d.broadcastTopic()
		err := d.transport.Subscribe(prefix+"#", publishQoS, func(topic string, payload []byte) {
			broadcast(strings.TrimPrefix(topic, prefix), string(payload))
		})
		if err != nil {
			d.logger.Warn("was not able to subscribe broadcast listener", zap.Error(err))
		}
	}
	d.startStats()
	return true
}

// maxInflight must be called with the device mutex held.
func (d *Device) maxInflight() int {
	if d.broker.MaxInflight > 0 {
		return d.broker.MaxInflight
	}
	total := lo.SumBy(lo.Values(d.nodes), func(n *Node) int {
		return len(n.properties)
	})
	return max(minInflight, 2*total)
}

// advertise publishes the device attributes followed by $nodes and the node
// cascade.
func (d *Device) advertise() {
	d.mu.Lock()
	msgs := []message{
		{topic: "$homie", payload: Convention},
		{topic: "$implementation", payload: Implementation},
		{topic: "$stats/interval", payload: strconv.Itoa(int(d.cfg.StatsInterval / time.Second))},
		{topic: "$fw/name", payload: d.cfg.FirmwareName},
		{topic: "$fw/version", payload: d.cfg.FirmwareVersion},
		{topic: "$extensions", payload: Extensions},
		{topic: "$name", payload: d.cfg.Name},
	}
	nodes := d.sortedNodes()
	ids := lo.Map(nodes, func(n *Node, _ int) string { return n.id })
	msgs = append(msgs, message{topic: "$nodes", payload: strings.Join(ids, ",")})
	for _, n := range nodes {
		msgs = append(msgs, n.advertisement()...)
	}
	d.mu.Unlock()

	d.publishAll(msgs)
}

// sleep waits for duration and reports false if ctx ended first.
func sleep(ctx context.Context, duration time.Duration) bool {
	t := time.NewTimer(duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
