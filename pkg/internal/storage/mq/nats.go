package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/storyvault/pkg/configs"
)

const (
	natsDrainTimeout   = 30 * time.Second
	natsFlusherTimeout = 10 * time.Second
	natsCloseTimeout   = 30 * time.Second
)

func init() {
	register(configs.MQTypeNATS, openNATS)
}

// natsConnOptions 连接与认证选项. jwt 优先于 nkey，二者都为空时使用用户名密码.
func natsConnOptions(n configs.NATSMQConfig) []nc.Option {
	opts := []nc.Option{
		nc.Name(n.ClientName),
		nc.MaxReconnects(n.MaxReconnects),
		nc.ReconnectWait(n.ReconnectWait),
		nc.ReconnectJitter(100*time.Millisecond, time.Second),
		nc.PingInterval(n.PingInterval),
		nc.MaxPingsOutstanding(n.MaxPingsOut),
		nc.ReconnectBufSize(n.ReconnectBuffer),
		nc.DrainTimeout(natsDrainTimeout),
		nc.FlusherTimeout(natsFlusherTimeout),
		nc.RetryOnFailedConnect(n.WaitForServer),
	}

	switch {
	case n.JWT != "":
		opts = append(opts, nc.UserJWTAndSeed(n.JWT, n.NKeySeed))
	case n.NKeySeed != "":
		opts = append(opts, nc.Nkey(n.NKeySeed, nil))
	case n.User != "":
		opts = append(opts, nc.UserInfo(n.User, n.Password))
	}

	return opts
}

// jetStreamConfig 显式确认的 durable 消费者，预取数默认 1.
func jetStreamConfig(n configs.NATSMQConfig) nats.JetStreamConfig {
	if !n.Stream.Durable {
		return nats.JetStreamConfig{Disabled: true}
	}

	sub := []nc.SubOpt{
		nc.DeliverAll(),
		nc.AckExplicit(),
		nc.ManualAck(),
		nc.MaxAckPending(n.Consumer.MaxAckPending),
		nc.AckWait(n.Consumer.AckWait),
	}

	if n.Consumer.MaxDeliver > 0 {
		sub = append(sub, nc.MaxDeliver(n.Consumer.MaxDeliver))
	}

	return nats.JetStreamConfig{
		AutoProvision:    n.Stream.AutoProvision,
		TrackMsgId:       n.Stream.TrackMsgID,
		AckAsync:         n.Stream.AckAsync,
		DurablePrefix:    n.Stream.DurablePrefix,
		SubscribeOptions: sub,
	}
}

func openNATS(_ context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	n := cfg.NATS
	url := strings.Join(n.URLs, ",")
	opts := natsConnOptions(n)
	js := jetStreamConfig(n)
	marshaler := &nats.NATSMarshaler{}

	if js.Disabled {
		logger.Info("JetStream disabled, tasks are not durable", nil)
	} else {
		logger.Info("JetStream consumer", watermill.LogFields{
			"durable_prefix":  n.Stream.DurablePrefix,
			"max_ack_pending": n.Consumer.MaxAckPending,
			"ack_wait":        n.Consumer.AckWait.String(),
			"max_deliver":     n.Consumer.MaxDeliver,
		})
	}

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         url,
		NatsOptions: opts,
		JetStream:   js,
		Marshaler:   marshaler,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("nats publisher %s: %w", url, err)
	}

	subCfg := nats.SubscriberConfig{
		URL:              url,
		NatsOptions:      opts,
		JetStream:        js,
		Unmarshaler:      marshaler,
		SubscribersCount: 1,
		CloseTimeout:     natsCloseTimeout,
		AckWaitTimeout:   n.Consumer.AckWait,
		NakDelay:         nats.NewStaticDelay(n.Consumer.NakDelay),
	}

	if n.Consumer.QueueGroup {
		subCfg.QueueGroupPrefix = n.Stream.DurablePrefix
	}

	sub, err := nats.NewSubscriber(subCfg, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, fmt.Errorf("nats subscriber %s: %w", url, err)
	}

	return pub, sub, nil
}
