// Redis Stream 队列实现.
//
// 每个主题对应一个 stream，消费者通过消费组读取：
//   - 发布使用 XADD，返回即代表 Redis 已接收
//   - 启动时先读取本消费者未确认的消息，再读取新消息
//   - 超过 claim_idle 未确认的消息由其他消费者认领
//   - ack 执行 XACK，nack 等待 nak_delay 后重新投递
package mq

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/yeisme/storyvault/pkg/configs"
)

const (
	fieldUUID     = "uuid"
	fieldPayload  = "payload"
	fieldMetadata = "metadata"

	// claimInterval 两次认领检查之间的间隔.
	claimInterval = 30 * time.Second

	defaultStreamGroup = "storyvault-workers"
	defaultStreamBlock = 2 * time.Second
)

// ErrSubscriberClosed 订阅者已关闭.
var ErrSubscriberClosed = errors.New("subscriber closed")

// RedisStreamConfig Redis Stream 发布订阅参数.
type RedisStreamConfig struct {
	Group     string
	Consumer  string
	Block     time.Duration
	ClaimIdle time.Duration
	MaxLen    int64
	NakDelay  time.Duration
}

// RedisPublisher 基于 XADD 的 Publisher.
type RedisPublisher struct {
	client *redis.Client
	maxLen int64
}

// RedisSubscriber 基于消费组的 Subscriber.
type RedisSubscriber struct {
	client  *redis.Client
	cfg     RedisStreamConfig
	logger  watermill.LoggerAdapter
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// init 注册 Redis 工厂.
func init() {
	register(configs.MQTypeRedis, redisFactory)
}

func newRedisClient(r configs.RedisMQConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     r.Addr,
		Username: r.Username,
		Password: r.Password,
		DB:       r.DB,
	})
}

// defaultConsumerName 使用主机名与进程号区分消费者.
func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "storyvault"
	}

	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// redisFactory 创建 Redis Stream Publisher & Subscriber.
func redisFactory(
	ctx context.Context,
	cfg *configs.MQConfig,
	logger watermill.LoggerAdapter) (
	message.Publisher, message.Subscriber, error) {
	pubClient := newRedisClient(cfg.Redis)
	if err := pubClient.Ping(ctx).Err(); err != nil {
		_ = pubClient.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	streamCfg := RedisStreamConfig{
		Group:     cfg.Redis.Group,
		Consumer:  cfg.Redis.Consumer,
		Block:     cfg.Redis.Block,
		ClaimIdle: cfg.Redis.ClaimIdle,
		MaxLen:    cfg.Redis.MaxLen,
		NakDelay:  cfg.Redis.NakDelay,
	}

	pub := NewRedisPublisher(pubClient, streamCfg.MaxLen)
	sub := NewRedisSubscriber(newRedisClient(cfg.Redis), streamCfg, logger)

	return pub, sub, nil
}

// NewRedisPublisher 使用已有客户端创建 Publisher.
func NewRedisPublisher(client *redis.Client, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, maxLen: maxLen}
}

// Publish 实现 Publisher 接口.
func (p *RedisPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		meta, err := sonic.MarshalString(map[string]string(msg.Metadata))
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}

		args := &redis.XAddArgs{
			Stream: topic,
			Values: map[string]any{
				fieldUUID:     msg.UUID,
				fieldPayload:  string(msg.Payload),
				fieldMetadata: meta,
			},
		}

		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}

		if err := p.client.XAdd(msg.Context(), args).Err(); err != nil {
			return fmt.Errorf("xadd %s: %w", topic, err)
		}
	}

	return nil
}

// Close 实现 Publisher 接口.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NewRedisSubscriber 使用已有客户端创建 Subscriber.
func NewRedisSubscriber(client *redis.Client, cfg RedisStreamConfig, logger watermill.LoggerAdapter) *RedisSubscriber {
	if cfg.Group == "" {
		cfg.Group = defaultStreamGroup
	}

	if cfg.Consumer == "" {
		cfg.Consumer = defaultConsumerName()
	}

	if cfg.Block <= 0 {
		cfg.Block = defaultStreamBlock
	}

	if logger == nil {
		logger = watermill.NopLogger{}
	}

	return &RedisSubscriber{
		client:  client,
		cfg:     cfg,
		logger:  logger.With(watermill.LogFields{"group": cfg.Group, "consumer": cfg.Consumer}),
		closeCh: make(chan struct{}),
	}
}

// Subscribe 实现 Subscriber 接口.
func (s *RedisSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSubscriberClosed
	}

	err := s.client.XGroupCreateMkStream(ctx, topic, s.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group %s/%s: %w", topic, s.cfg.Group, err)
	}

	out := make(chan *message.Message)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(out)

		s.consume(ctx, topic, out)
	}()

	return out, nil
}

// consume 读取循环：先处理本消费者的待确认消息，再读取新消息.
func (s *RedisSubscriber) consume(ctx context.Context, topic string, out chan<- *message.Message) {
	cursor := "0"
	lastClaim := time.Time{}

	for {
		if s.done(ctx) {
			return
		}

		if s.cfg.ClaimIdle > 0 && time.Since(lastClaim) >= claimInterval {
			lastClaim = time.Now()

			if !s.claim(ctx, topic, out) {
				return
			}
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			Streams:  []string{topic, cursor},
			Count:    1,
			Block:    s.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			if s.done(ctx) {
				return
			}

			s.logger.Error("xreadgroup failed", err, watermill.LogFields{"topic": topic})
			s.sleep(ctx, time.Second)

			continue
		}

		delivered := 0

		for _, st := range streams {
			for _, xm := range st.Messages {
				delivered++

				if !s.deliver(ctx, topic, xm, out) {
					return
				}
			}
		}

		if cursor == "0" && delivered == 0 {
			cursor = ">"
		}
	}
}

// claim 认领其他消费者超时未确认的消息.
func (s *RedisSubscriber) claim(ctx context.Context, topic string, out chan<- *message.Message) bool {
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   topic,
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		MinIdle:  s.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Error("xautoclaim failed", err, watermill.LogFields{"topic": topic})
		}

		return !s.done(ctx)
	}

	for _, xm := range msgs {
		if !s.deliver(ctx, topic, xm, out) {
			return false
		}
	}

	return true
}

// deliver 投递单条消息并等待确认，nack 时延迟后重投.
func (s *RedisSubscriber) deliver(ctx context.Context, topic string, xm redis.XMessage, out chan<- *message.Message) bool {
	for {
		msg := toMessage(xm)
		msgCtx, cancel := context.WithCancel(ctx)
		msg.SetContext(msgCtx)

		select {
		case out <- msg:
		case <-ctx.Done():
			cancel()
			return false
		case <-s.closeCh:
			cancel()
			return false
		}

		select {
		case <-msg.Acked():
			cancel()

			if err := s.client.XAck(context.WithoutCancel(ctx), topic, s.cfg.Group, xm.ID).Err(); err != nil {
				s.logger.Error("xack failed", err, watermill.LogFields{"topic": topic, "id": xm.ID})
			}

			return true
		case <-msg.Nacked():
			cancel()
			s.logger.Debug("message nacked, redelivering", watermill.LogFields{"topic": topic, "id": xm.ID})

			if !s.sleep(ctx, s.cfg.NakDelay) {
				return false
			}
		case <-ctx.Done():
			cancel()
			return false
		case <-s.closeCh:
			cancel()
			return false
		}
	}
}

func toMessage(xm redis.XMessage) *message.Message {
	uuid, _ := xm.Values[fieldUUID].(string)
	if uuid == "" {
		uuid = watermill.NewUUID()
	}

	payload, _ := xm.Values[fieldPayload].(string)
	msg := message.NewMessage(uuid, []byte(payload))

	if raw, ok := xm.Values[fieldMetadata].(string); ok && raw != "" {
		meta := map[string]string{}
		if err := sonic.UnmarshalString(raw, &meta); err == nil {
			for k, v := range meta {
				msg.Metadata.Set(k, v)
			}
		}
	}

	msg.Metadata.Set("redis_stream_id", xm.ID)

	return msg
}

func (s *RedisSubscriber) done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

// sleep 等待 d，期间关闭或取消返回 false.
func (s *RedisSubscriber) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !s.done(ctx)
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.closeCh:
		return false
	}
}

// Close 实现 Subscriber 接口.
func (s *RedisSubscriber) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	close(s.closeCh)
	s.mu.Unlock()

	s.wg.Wait()

	return s.client.Close()
}
