// Package homie exposes a process as a Homie 4.0.0 device on an MQTT bus.
//
// A Device owns Nodes, a Node owns Properties. Nodes and properties are
// created before Setup is called; Setup starts a lifecycle loop that connects
// through the supplied Transport, advertises the whole tree under
// <base-topic>/<device-id>/ and reconnects (re-advertising everything) when the
// connection drops.
//
//	dev, err := homie.New(cfg, transport)
//	node, _ := dev.CreateNode("weather-station", "weather-station")
//	temp, _ := node.Property("temperature")
//	temp.SetDataType(homie.DataTypeFloat)
//	temp.SetUnit("°C")
//	_ = dev.Setup()
//	defer dev.Shutdown()
//	_ = temp.Send(homie.FloatWithPrecision(22.546651, 2)) // "22.55"
package homie
