package homie

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// SetHandler is invoked when a "set" command arrives for a settable property.
type SetHandler interface {
	HandleSet(p *Property, value string)
}

// SetHandlerFunc adapts a function to SetHandler.
type SetHandlerFunc func(p *Property, value string)

func (f SetHandlerFunc) HandleSet(p *Property, value string) {
	f(p, value)
}

// Property is a single typed attribute of a node. Its fields are guarded by
// the owning device's mutex.
type Property struct {
	id     string
	node   *Node
	device *Device

	name     string
	dataType DataType
	format   string
	unit     string
	settable bool
	retained bool
	handler  SetHandler
	value    string

	// setMu keeps a property's handler from running concurrently with itself.
	setMu sync.Mutex
}

func newProperty(d *Device, n *Node, id string) *Property {
	return &Property{
		id:       id,
		node:     n,
		device:   d,
		dataType: DataTypeString,
		retained: true,
	}
}

func (p *Property) ID() string {
	return p.id
}

func (p *Property) Node() *Node {
	return p.node
}

func (p *Property) Name() string {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	return p.name
}

func (p *Property) SetName(name string) {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	p.name = name
}

func (p *Property) Unit() string {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	return p.unit
}

func (p *Property) SetUnit(unit string) {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	p.unit = unit
}

func (p *Property) Retained() bool {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	return p.retained
}

func (p *Property) SetRetained(retained bool) {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	p.retained = retained
}

func (p *Property) Settable() bool {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	return p.settable
}

func (p *Property) DataType() DataType {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	return p.dataType
}

// SetDataType changes the data type. Color types pin the format to "rgb" or
// "hsv"; switching away from a color type leaves the format as it was.
func (p *Property) SetDataType(t DataType) {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	p.dataType = t
	if t.isColor() {
		p.format = t.colorFormat()
	}
}

func (p *Property) Format() string {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	return p.format
}

// SetFormat sets $format. For enum properties the format is the comma
// separated list of allowed values.
func (p *Property) SetFormat(format string) error {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	if p.dataType.isColor() {
		return fmt.Errorf("%w: format of %s property %s is fixed to %q", ErrUnsupportedOperation, p.dataType, p.path(""), p.format)
	}
	p.format = format
	return nil
}

// Value returns the payload of the last successful send.
func (p *Property) Value() string {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	return p.value
}

// MakeSettable marks the property settable and routes inbound set commands to
// handler, replacing any previous handler.
func (p *Property) MakeSettable(handler SetHandler) {
	p.device.mu.Lock()
	p.settable = true
	p.handler = handler
	p.device.mu.Unlock()

	p.device.registerListener(p.path("set"), p.handleSet)
}

// MakeUnsettable drops the handler and stops listening for set commands.
func (p *Property) MakeUnsettable() {
	p.device.mu.Lock()
	p.settable = false
	p.handler = nil
	p.device.mu.Unlock()

	p.device.deregisterListener(p.path("set"))
}

func (p *Property) handleSet(topic string, payload []byte) {
	p.setMu.Lock()
	defer p.setMu.Unlock()

	p.device.mu.Lock()
	handler := p.handler
	p.device.mu.Unlock()
	if handler == nil {
		p.device.logger.Warn("set command for property without handler", zap.String("topic", topic))
		return
	}
	p.device.recorder.SetReceived()
	handler.HandleSet(p, string(payload))
}

// Send validates v against the property's data type and publishes it. A
// rejected value leaves the property untouched.
func (p *Property) Send(v Value) error {
	p.device.mu.Lock()
	payload, err := p.encode(v)
	retained := p.retained
	p.device.mu.Unlock()
	if err != nil {
		return err
	}

	if p.device.publish(p.path(""), payload, retained) {
		p.device.mu.Lock()
		p.value = payload
		p.device.mu.Unlock()
	}
	return nil
}

// encode must be called with the device mutex held.
func (p *Property) encode(v Value) (string, error) {
	switch val := v.(type) {
	case Integer:
		if err := p.expect(DataTypeInteger, v); err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(val), 10), nil

	case Float:
		if err := p.expect(DataTypeFloat, v); err != nil {
			return "", err
		}
		if math.IsNaN(val.V) || math.IsInf(val.V, 0) {
			return "", fmt.Errorf("%w: NaN and infinity are not supported", ErrInvalidValue)
		}
		if val.Precision == nil {
			return strconv.FormatFloat(val.V, 'f', -1, 64), nil
		}
		if *val.Precision < 0 {
			return "", fmt.Errorf("%w: precision %d is negative", ErrInvalidValue, *val.Precision)
		}
		return strconv.FormatFloat(val.V, 'f', *val.Precision, 64), nil

	case Boolean:
		if err := p.expect(DataTypeBoolean, v); err != nil {
			return "", err
		}
		return strconv.FormatBool(bool(val)), nil

	case String:
		switch p.dataType {
		case DataTypeString:
			return string(val), nil
		case DataTypeEnum:
			return p.encodeEnum(string(val))
		}
		return "", p.mismatch(v)

	case EnumValue:
		if err := p.expect(DataTypeEnum, v); err != nil {
			return "", err
		}
		return p.encodeEnum(string(val))

	case RGB:
		if err := p.expect(DataTypeColorRGB, v); err != nil {
			return "", err
		}
		if !inRange(val.R, 255) || !inRange(val.G, 255) || !inRange(val.B, 255) {
			return "", fmt.Errorf("%w: color %d,%d,%d is not within [0:255][0:255][0:255]", ErrInvalidValue, val.R, val.G, val.B)
		}
		return fmt.Sprintf("%d,%d,%d", val.R, val.G, val.B), nil

	case HSV:
		if err := p.expect(DataTypeColorHSV, v); err != nil {
			return "", err
		}
		if !inRange(val.H, 360) || !inRange(val.S, 100) || !inRange(val.V, 100) {
			return "", fmt.Errorf("%w: color %d,%d,%d is not within [0:360][0:100][0:100]", ErrInvalidValue, val.H, val.S, val.V)
		}
		return fmt.Sprintf("%d,%d,%d", val.H, val.S, val.V), nil
	}
	return "", p.mismatch(v)
}

// encodeEnum checks value against the current format.
func (p *Property) encodeEnum(value string) (string, error) {
	if p.format == "" {
		return "", fmt.Errorf("%w: enum property %s has no format", ErrUnsupportedOperation, p.path(""))
	}
	if value == "" || !lo.Contains(strings.Split(p.format, ","), value) {
		return "", fmt.Errorf("%w: %q is not one of %q", ErrInvalidValue, value, p.format)
	}
	return value, nil
}

func (p *Property) expect(t DataType, v Value) error {
	if p.dataType != t {
		return p.mismatch(v)
	}
	return nil
}

func (p *Property) mismatch(v Value) error {
	return fmt.Errorf("%w: cannot send %T to %s property %s", ErrTypeMismatch, v, p.dataType, p.path(""))
}

func inRange(v, upper int) bool {
	return v >= 0 && v <= upper
}

// path returns the topic of the property relative to the device, with an
// optional sub topic.
func (p *Property) path(sub string) string {
	if sub == "" {
		return p.node.id + "/" + p.id
	}
	return p.node.id + "/" + p.id + "/" + sub
}

// advertisement must be called with the device mutex held.
func (p *Property) advertisement() []message {
	msgs := []message{
		{topic: p.path("$name"), payload: p.name},
		{topic: p.path("$settable"), payload: strconv.FormatBool(p.settable)},
		{topic: p.path("$datatype"), payload: p.dataType.String()},
	}
	if p.format != "" {
		msgs = append(msgs, message{topic: p.path("$format"), payload: p.format})
	}
	if p.unit != "" {
		msgs = append(msgs, message{topic: p.path("$unit"), payload: p.unit})
	}
	return msgs
}
