package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/anicoll/homie-integration/internal/pkg/config"
	"github.com/anicoll/homie-integration/internal/pkg/homie"
)

var (
	ErrNotConnected = errors.New("mqtt: not connected")
	ErrTimeout      = errors.New("mqtt: operation timed out")
)

// ClientFactory builds the underlying paho client from a fresh set of options.
type ClientFactory func(opts *paho_mqtt.ClientOptions) paho_mqtt.Client

type Option func(*Service)

func WithClientFactory(f ClientFactory) Option {
	return func(s *Service) {
		s.newClient = f
	}
}

// Service is a homie.Transport on top of paho. Every Connect builds a new
// client so the last will and credentials always match the device.
type Service struct {
	cfg       config.BrokerConfig
	clientID  string
	logger    *zap.Logger
	newClient ClientFactory

	mu        sync.RWMutex
	client    paho_mqtt.Client
	connected bool
}

var _ homie.Transport = (*Service)(nil)

func New(cfg config.BrokerConfig, clientID string, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.L()
	}
	s := &Service{
		cfg:       cfg,
		clientID:  clientID,
		logger:    logger.With(zap.String("broker", cfg.URL)),
		newClient: paho_mqtt.NewClient,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Connect(ctx context.Context, opts homie.ConnectOptions) error {
	s.Disconnect()

	clientOpts := s.buildClientOptions(opts)
	clientOpts.SetConnectionLostHandler(func(_ paho_mqtt.Client, err error) {
		s.logger.Warn("connection lost", zap.Error(err))
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	})
	client := s.newClient(clientOpts)

	if err := wait(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("%w: connect to %s: %w", homie.ErrTransportFailure, s.cfg.URL, err)
	}

	s.mu.Lock()
	s.client = client
	s.connected = true
	s.mu.Unlock()
	s.logger.Info("connected", zap.String("client_id", s.clientID))
	return nil
}

func (s *Service) Disconnect() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.connected = false
	s.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectQuiesce)
	}
}

func (s *Service) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.client != nil && s.client.IsConnected()
}

func (s *Service) currentClient() (paho_mqtt.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.client == nil {
		return nil, fmt.Errorf("%w: %w", homie.ErrTransportFailure, ErrNotConnected)
	}
	return s.client, nil
}

// wait blocks until token completes or ctx ends.
func wait(ctx context.Context, token paho_mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

// waitTimeout bounds token by timeout.
func waitTimeout(token paho_mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return token.Error()
}
