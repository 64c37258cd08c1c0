package mqtt

import (
	"fmt"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/anicoll/homie-integration/internal/pkg/homie"
)

func (s *Service) Publish(topic string, payload []byte, qos byte, retained bool) error {
	client, err := s.currentClient()
	if err != nil {
		return err
	}
	if err := waitTimeout(client.Publish(topic, qos, retained, payload), publishTimeout); err != nil {
		return fmt.Errorf("%w: publish %s: %w", homie.ErrTransportFailure, topic, err)
	}
	return nil
}

func (s *Service) Subscribe(topic string, qos byte, handler homie.MessageHandler) error {
	client, err := s.currentClient()
	if err != nil {
		return err
	}
	if err := waitTimeout(client.Subscribe(topic, qos, s.wrapHandler(handler)), publishTimeout); err != nil {
		return fmt.Errorf("%w: subscribe %s: %w", homie.ErrTransportFailure, topic, err)
	}
	return nil
}

func (s *Service) Unsubscribe(topic string) error {
	client, err := s.currentClient()
	if err != nil {
		return err
	}
	if err := waitTimeout(client.Unsubscribe(topic), publishTimeout); err != nil {
		return fmt.Errorf("%w: unsubscribe %s: %w", homie.ErrTransportFailure, topic, err)
	}
	return nil
}

// wrapHandler keeps a panicking handler from taking down paho's delivery
// goroutine.
func (s *Service) wrapHandler(handler homie.MessageHandler) paho_mqtt.MessageHandler {
	return func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("message handler panic recovered", zap.String("topic", msg.Topic()), zap.Any("panic", r))
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}
