package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) []string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}

	ctx := context.Background()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_CREATE_TOPICS": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	return brokers
}

func TestCreateChannel_RoundTrip(t *testing.T) {
	brokers := setupKafka(t)
	topic := "experiments.instances.test"

	require.NoError(t, EnsureTopic(brokers, topic, 1))
	require.NoError(t, EnsureTopic(brokers, topic, 1))

	publisher, subscriber, err := CreateChannel(watermill.NopLogger{}, brokers, "experiments-test")
	require.NoError(t, err)
	defer func() {
		_ = publisher.Close()
		_ = subscriber.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	messages, err := subscriber.Subscribe(ctx, topic)
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewULID(), []byte(`{"instance_id":"inst-1"}`))
	msg.Metadata.Set("event_type", "instance.run.requested")
	require.NoError(t, publisher.Publish(topic, msg))

	select {
	case received := <-messages:
		assert.JSONEq(t, `{"instance_id":"inst-1"}`, string(received.Payload))
		assert.Equal(t, "instance.run.requested", received.Metadata.Get("event_type"))
		received.Ack()
	case <-ctx.Done():
		t.Fatal("message not received")
	}
}

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "experiments")
	require.ErrorIs(t, err, ErrNoBrokers)

	require.ErrorIs(t, EnsureTopic([]string{""}, "t", 1), ErrNoBrokers)
}
