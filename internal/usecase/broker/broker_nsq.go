// Package broker broadcasts monitor snapshots over NSQ.
package broker

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hc1node/forkmonitor/internal/entity"
	nsqlogger "github.com/hc1node/forkmonitor/pkg/logger"
	"github.com/nsqio/go-nsq"
)

// SnapshotBroker publishes every snapshot handed to it onto a single topic of
// an nsqd instance.
type SnapshotBroker struct {
	Topic    string
	Producer *nsq.Producer
}

func New(addr string, topic string) (*SnapshotBroker, error) {
	if !nsq.IsValidTopicName(topic) {
		return nil, fmt.Errorf("invalid topic name '%s'", topic)
	}
	config := nsq.NewConfig()
	config.Snappy = true

	producer, err := nsq.NewProducer(addr, config)
	if err != nil {
		return nil, err
	}
	producer.SetLogger(&nsqlogger.NSQProducerLogger{Logger: log.New("module", "broker")}, nsq.LogLevelInfo)

	log.Info("Broadcasting snapshots", "nsqd", addr, "topic", topic)
	return &SnapshotBroker{
		Topic:    topic,
		Producer: producer,
	}, nil
}

// Publish implements usecase.SnapshotBroker.
func (b *SnapshotBroker) Publish(msg *entity.Message) error {
	msgBytes, err := Encode(msg)
	if err != nil {
		return err
	}
	return b.Producer.Publish(b.Topic, msgBytes)
}

// Close stops the producer, waiting for pending publishes.
func (b *SnapshotBroker) Close() {
	b.Producer.Stop()
}

// Encode serialises a message into its wire format.
func Encode(msg *entity.Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a message from its wire format.
func Decode(data []byte) (*entity.Message, error) {
	msg := new(entity.Message)
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	if msg.Snapshot == nil {
		return nil, fmt.Errorf("message %q without snapshot", msg.MessageType)
	}
	return msg, nil
}
