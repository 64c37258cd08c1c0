package homie

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/anicoll/homie-integration/internal/pkg/topicid"
)

// Node groups related properties under a device.
type Node struct {
	id         string
	nodeType   string
	device     *Device
	name       string
	properties map[string]*Property
}

func newNode(d *Device, id, nodeType string) *Node {
	return &Node{
		id:         id,
		nodeType:   nodeType,
		device:     d,
		properties: make(map[string]*Property),
	}
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Type() string {
	return n.nodeType
}

func (n *Node) Name() string {
	n.device.mu.Lock()
	defer n.device.mu.Unlock()
	return n.name
}

func (n *Node) SetName(name string) {
	n.device.mu.Lock()
	defer n.device.mu.Unlock()
	n.name = name
}

// Property returns the property with the given id, creating it on first use.
func (n *Node) Property(id string) (*Property, error) {
	if !topicid.IsValid(id) {
		return nil, fmt.Errorf("%w: property id %q", ErrInvalidIdentifier, id)
	}

	n.device.mu.Lock()
	defer n.device.mu.Unlock()
	if p, ok := n.properties[id]; ok {
		return p, nil
	}
	p := newProperty(n.device, n, id)
	n.properties[id] = p
	return p, nil
}

// Properties returns the node's properties ordered by id.
func (n *Node) Properties() []*Property {
	n.device.mu.Lock()
	defer n.device.mu.Unlock()
	return n.sortedProperties()
}

func (n *Node) sortedProperties() []*Property {
	ids := lo.Keys(n.properties)
	slices.Sort(ids)
	return lo.Map(ids, func(id string, _ int) *Property {
		return n.properties[id]
	})
}

// advertisement lists the node attributes followed by every property's
// attributes. Must be called with the device mutex held.
func (n *Node) advertisement() []message {
	props := n.sortedProperties()
	ids := lo.Map(props, func(p *Property, _ int) string { return p.id })

	msgs := []message{
		{topic: n.id + "/$type", payload: n.nodeType},
		{topic: n.id + "/$properties", payload: strings.Join(ids, ",")},
		{topic: n.id + "/$name", payload: n.name},
	}
	for _, p := range props {
		msgs = append(msgs, p.advertisement()...)
	}
	return msgs
}
