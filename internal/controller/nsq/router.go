package nsq_controller

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/hc1node/forkmonitor/internal/entity"
	"github.com/hc1node/forkmonitor/internal/usecase/broker"
	nsqlogger "github.com/hc1node/forkmonitor/pkg/logger"
	"github.com/nsqio/go-nsq"
)

// NewHandler creates an NSQ handler decoding broadcast snapshots and passing
// them to the callback. Undecodable messages are dropped rather than requeued.
func NewHandler(onMessage func(*entity.Message)) nsq.Handler {
	return nsq.HandlerFunc(func(message *nsq.Message) error {
		msg, err := broker.Decode(message.Body)
		if err != nil {
			log.Warn("Dropping undecodable snapshot message", "err", err)
			return nil
		}
		onMessage(msg)
		return nil
	})
}

// Subscribe attaches a consumer on the given channel of the snapshot topic.
// Exactly one of nsqd or lookupd should be set.
func Subscribe(topic, channel, nsqd, lookupd string, onMessage func(*entity.Message)) (*nsq.Consumer, error) {
	config := nsq.NewConfig()
	config.Snappy = true

	consumer, err := nsq.NewConsumer(topic, channel, config)
	if err != nil {
		return nil, err
	}
	consumer.SetLogger(&nsqlogger.NSQConsumerLogger{Logger: log.New("module", "watch")}, nsq.LogLevelInfo)
	consumer.AddHandler(NewHandler(onMessage))

	log.Info("Subscribing to snapshots", "topic", topic, "channel", channel, "nsqd", nsqd, "lookupd", lookupd)
	if lookupd != "" {
		err = consumer.ConnectToNSQLookupd(lookupd)
	} else {
		err = consumer.ConnectToNSQD(nsqd)
	}
	if err != nil {
		consumer.Stop()
		return nil, err
	}
	return consumer, nil
}
