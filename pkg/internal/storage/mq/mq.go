// Package mq 基于 Watermill 提供持久化任务队列：发布同步确认，消费端处理成功后才 ack，失败 nack 触发重投.
//
// 支持的队列类型（按 mq.type 选择，工厂在 init 中注册）：
//   - nats：JetStream 持久化流与 durable 消费者
//   - redis：Redis Stream + 消费组，未确认消息在重启后重新读取
//   - memory：进程内 gochannel，用于开发与测试
//
// 使用示例：
//
//	client, err := mq.New(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	router, _ := client.NewRouter()
//	router.AddNoPublisherHandler("tag_theme", "FORM_DATA_TAG_THEME", client.Subscriber(), handler)
//	_ = router.Run(ctx)
package mq

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/storyvault/pkg/configs"
	nlog "github.com/yeisme/storyvault/pkg/log"
	appmetrics "github.com/yeisme/storyvault/pkg/metrics"
)

// Factory 定义创建 Publisher + Subscriber 的工厂函数.
type Factory func(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error)

var factories = map[configs.MQType]Factory{}

func register(t configs.MQType, f Factory) {
	factories[t] = f
}

// Types 返回已编译进来的队列类型，按名称排序.
func Types() []configs.MQType {
	return slices.Sorted(maps.Keys(factories))
}

// Client 封装 watermill Publisher 与 Subscriber.
type Client struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
	metrics    *metrics.PrometheusMetricsBuilder
	closeOnce  sync.Once
}

// NewClient 使用已有的 Publisher / Subscriber 构建客户端.
func NewClient(pub message.Publisher, sub message.Subscriber, logger watermill.LoggerAdapter) *Client {
	if logger == nil {
		logger = NewLogger(nlog.Logger())
	}

	return &Client{publisher: pub, subscriber: sub, logger: logger}
}

// Publish 同步发布，返回时消息已被队列确认接收.
func (c *Client) Publish(ctx context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return fmt.Errorf("mq publisher not initialized")
	}

	for _, m := range msgs {
		m.SetContext(ctx)
	}

	return c.publisher.Publish(topic, msgs...)
}

// Subscribe 便捷订阅.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, fmt.Errorf("mq subscriber not initialized")
	}

	return c.subscriber.Subscribe(ctx, topic)
}

// Publisher 返回底层 Publisher.
func (c *Client) Publisher() message.Publisher { return c.publisher }

// Subscriber 返回底层 Subscriber.
func (c *Client) Subscriber() message.Subscriber { return c.subscriber }

// Logger 返回 watermill 日志适配器.
func (c *Client) Logger() watermill.LoggerAdapter { return c.logger }

// NewRouter 创建绑定到该客户端的路由器，启用指标时自动挂载路由器指标.
func (c *Client) NewRouter() (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	if c.metrics != nil {
		c.metrics.AddPrometheusRouterMetrics(router)
	}

	return router, nil
}

// Close 关闭资源.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		if c.publisher != nil {
			if e := c.publisher.Close(); e != nil {
				err = e
			}
		}

		if c.subscriber != nil && any(c.subscriber) != any(c.publisher) {
			if e := c.subscriber.Close(); e != nil {
				err = e
			}
		}
	})

	return err
}

// Open 按给定配置创建客户端.
func Open(ctx context.Context, cfg *configs.MQConfig) (*Client, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	logger := NewLogger(nlog.Logger())

	pub, sub, err := factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	client := &Client{publisher: pub, subscriber: sub, logger: logger}

	if configs.GetConfig().Metrics.Enabled && cfg.Metrics {
		builder := metrics.NewPrometheusMetricsBuilder(appmetrics.GetRegistry(), "storyvault", "mq")
		client.metrics = &builder

		if client.publisher, err = builder.DecoratePublisher(pub); err != nil {
			return nil, fmt.Errorf("decorate publisher with metrics: %w", err)
		}

		if client.subscriber, err = builder.DecorateSubscriber(sub); err != nil {
			return nil, fmt.Errorf("decorate subscriber with metrics: %w", err)
		}
	}

	nlog.Logger().Info().Str("type", string(cfg.Type)).Msg("task queue initialized")

	return client, nil
}

var (
	mqOnce sync.Once
	mqInst *Client
	mqErr  error
)

// New 使用全局配置初始化任务队列（单例）.
func New(ctx context.Context) (*Client, error) {
	mqOnce.Do(func() {
		cfg := configs.GetConfig().MQ
		mqInst, mqErr = Open(ctx, &cfg)
	})

	return mqInst, mqErr
}
