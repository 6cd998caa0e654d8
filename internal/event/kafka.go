package event

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/sirupsen/logrus"
)

// Producer is the part of *kafka.Producer the forwarder uses.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

// Message is the JSON body forwarded for every committed change.
type Message struct {
	Event     string         `json:"event"`
	Object    string         `json:"object"`
	ID        int64          `json:"id"`
	Data      map[string]any `json:"data,omitempty"`
	Changed   []string       `json:"changed,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// KafkaForwarder publishes the after events to a kafka topic so search
// indexers and cache invalidators can follow writes. It never vetoes.
type KafkaForwarder struct {
	producer Producer
	topic    string
}

func NewKafkaForwarder(producer Producer, topic string) *KafkaForwarder {
	return &KafkaForwarder{
		producer: producer,
		topic:    topic,
	}
}

// NewKafkaProducer connects a producer to brokers.
func NewKafkaProducer(brokers string) (*kafka.Producer, error) {
	return kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
	})
}

// LogDeliveries drains the delivery reports of a producer until the channel
// is closed by producer.Close, logging the messages that failed. It returns
// how many failed.
func LogDeliveries(events <-chan kafka.Event) int {
	failed := 0
	for e := range events {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				failed++
				logrus.Warnf("failed to deliver event %s: %v", ev.Key, ev.TopicPartition.Error)
			}
		case kafka.Error:
			logrus.Errorf("kafka producer error: %v", ev)
		}
	}
	return failed
}

// Register subscribes the forwarder to the committed events.
func (f *KafkaForwarder) Register(m *Manager) {
	for _, e := range []Event{AfterAdd, AfterUpdate, AfterDelete, AfterPublish, AfterUnpublish, AfterAddVersion} {
		m.On(e, f.Handle)
	}
}

func (f *KafkaForwarder) Handle(ctx context.Context, p *Payload) {
	value, err := json.Marshal(&Message{
		Event:     p.Event.String(),
		Object:    p.Object,
		ID:        p.ID,
		Data:      p.Data,
		Changed:   p.Changed,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logrus.Errorf("failed to encode %s event of %s %d: %v", p.Event, p.Object, p.ID, err)
		return
	}

	err = f.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &f.topic, Partition: kafka.PartitionAny},
		Key:            []byte(p.Object + ":" + strconv.FormatInt(p.ID, 10)),
		Value:          value,
	}, nil)
	if err != nil {
		logrus.Warnf("failed to forward %s event of %s %d: %v", p.Event, p.Object, p.ID, err)
	}
}
