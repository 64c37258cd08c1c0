package mqtt

import (
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/anicoll/homie-integration/internal/pkg/config"
	"github.com/anicoll/homie-integration/internal/pkg/homie"
)

const (
	publishTimeout = 5 * time.Second
	keepAlive      = 30 * time.Second

	// milliseconds
	disconnectQuiesce = 250
)

// buildClientOptions maps the broker config and the device's connect request
// onto paho options. Automatic reconnects are off, the device lifecycle
// reconnects and re-advertises instead.
func (s *Service) buildClientOptions(req homie.ConnectOptions) *paho_mqtt.ClientOptions {
	opts := paho_mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.URL)
	opts.SetClientID(s.clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetKeepAlive(keepAlive)
	opts.SetOrderMatters(false)

	timeout := s.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = config.DefaultConnectTimeout
	}
	opts.SetConnectTimeout(timeout)

	if req.WillTopic != "" {
		opts.SetWill(req.WillTopic, req.WillPayload, req.WillQoS, req.WillRetained)
	}

	username, password := req.Username, req.Password
	if username == "" && s.cfg.HasCredentials() {
		username, password = s.cfg.Username, s.cfg.Password
	}
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	inflight := req.MaxInflight
	if s.cfg.MaxInflight > 0 {
		inflight = s.cfg.MaxInflight
	}
	if inflight > 0 {
		opts.SetMaxResumePubInFlight(inflight)
	}
	return opts
}
