package server

type AlertRequest struct {
	Alert *bool `json:"alert"`
}

type StateResponse struct {
	State string `json:"state"`
}

type DeviceResponse struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	State string         `json:"state"`
	Nodes []NodeResponse `json:"nodes"`
}

type NodeResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Name       string             `json:"name"`
	Properties []PropertyResponse `json:"properties"`
}

type PropertyResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DataType string `json:"datatype"`
	Format   string `json:"format,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Settable bool   `json:"settable"`
	Retained bool   `json:"retained"`
	Value    string `json:"value"`
}

func newDeviceResponse(d device) DeviceResponse {
	resp := DeviceResponse{
		ID:    d.ID(),
		Name:  d.Name(),
		State: d.State().String(),
		Nodes: []NodeResponse{},
	}
	for _, n := range d.Nodes() {
		node := NodeResponse{
			ID:         n.ID(),
			Type:       n.Type(),
			Name:       n.Name(),
			Properties: []PropertyResponse{},
		}
		for _, p := range n.Properties() {
			node.Properties = append(node.Properties, PropertyResponse{
				ID:       p.ID(),
				Name:     p.Name(),
				DataType: p.DataType().String(),
				Format:   p.Format(),
				Unit:     p.Unit(),
				Settable: p.Settable(),
				Retained: p.Retained(),
				Value:    p.Value(),
			})
		}
		resp.Nodes = append(resp.Nodes, node)
	}
	return resp
}
