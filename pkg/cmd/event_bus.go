package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/mso4sc/experiments/pkg/channels/gochannel"
	"github.com/mso4sc/experiments/pkg/channels/kafka"
	"github.com/mso4sc/experiments/pkg/eventbus"
	"github.com/mso4sc/experiments/pkg/events"
)

const kafkaPartitions = 8

func NewEventBus(provider string, brokers []string, serviceName string, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		if err := kafka.EnsureTopic(brokers, events.Topic, kafkaPartitions); err != nil {
			return nil, fmt.Errorf("failed to create Kafka topic: %w", err)
		}

		pub, sub, err := kafka.CreateChannel(wmLogger, brokers, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create GoChannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
