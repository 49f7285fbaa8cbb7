package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Producer publishes processed-version events. Delivery is fire and
// forget: the request path never fails because of the broker.
type Producer interface {
	SendMessage(topic string, message interface{}) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
}

// NewProducer connects to the broker and creates the topic if missing.
// When the broker is unreachable a no-op producer is returned so the
// service keeps working without eventing.
func NewProducer(brokers string, topic string) Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", brokers)
	if err != nil {
		logrus.Warnf("kafka connection failed: %v, events disabled", err)
		return &noopProducer{}
	}
	defer conn.Close()

	topicConfigs := []kafka.TopicConfig{
		{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		},
	}
	if err := conn.CreateTopics(topicConfigs...); err != nil {
		logrus.Debugf("could not create topic (might already exist): %v", err)
	}

	logrus.Infof("connected to kafka at %s", brokers)
	return &kafkaProducer{writer: writer}
}

func (p *kafkaProducer) SendMessage(topic string, message interface{}) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte("docklens"),
		Value: messageBytes,
		Time:  time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logrus.Warnf("failed to write message to kafka: %v", err)
		return err
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

// noopProducer keeps the service running without a broker.
type noopProducer struct{}

func (m *noopProducer) SendMessage(topic string, message interface{}) error {
	logrus.Debugf("kafka disabled, dropping event for topic %s", topic)
	return nil
}

func (m *noopProducer) Close() error {
	return nil
}

// NewNoopProducer is used when eventing is disabled in config and in tests.
func NewNoopProducer() Producer {
	return &noopProducer{}
}
