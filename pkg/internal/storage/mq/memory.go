package mq

import (
	"context"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/yeisme/storyvault/pkg/configs"
)

// DefaultMemoryBuffer 进程内队列的输出缓冲.
const DefaultMemoryBuffer = 256

func init() {
	register(configs.MQTypeMemory, memoryFactory)
}

// memoryFactory 创建进程内队列. 消息持久保存在内存中供后续订阅者读取，nack 后立即重投.
func memoryFactory(_ context.Context, _ *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	ch := NewMemoryPubSub(logger)
	return ch, ch, nil
}

// NewMemoryPubSub 返回进程内 Pub/Sub，同一对象同时实现 Publisher 与 Subscriber.
func NewMemoryPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: DefaultMemoryBuffer,
		Persistent:          true,
	}, logger)
}
