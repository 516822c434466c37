package configs

import (
	"time"

	"github.com/spf13/viper"
)

// MQType 任务队列后端.
type MQType string

const (
	MQTypeNATS   MQType = "nats"
	MQTypeRedis  MQType = "redis"
	MQTypeMemory MQType = "memory"
)

// DefaultMQURL NATS 默认地址，KV 的 NATS 后端也沿用它.
const DefaultMQURL = "nats://localhost:4222"

// MQConfig 任务队列配置. 富化任务耗时可达数分钟，
// ack_wait 与 claim_idle 必须大于单个任务的最长处理时间，否则会被重复投递.
type MQConfig struct {
	Type    MQType        `mapstructure:"type"    rule:"oneof=nats redis memory"`
	Metrics bool          `mapstructure:"metrics"` // 发布/订阅与路由指标，需同时开启 metrics.enabled
	NATS    NATSMQConfig  `mapstructure:"nats"`
	Redis   RedisMQConfig `mapstructure:"redis"`
}

// NATSMQConfig JetStream 队列.
type NATSMQConfig struct {
	URLs       []string `mapstructure:"urls"        rule:"min=1,dive,required"`
	ClientName string   `mapstructure:"client_name"`
	User       string   `mapstructure:"user"`
	Password   string   `mapstructure:"password"`
	JWT        string   `mapstructure:"jwt"`
	NKeySeed   string   `mapstructure:"nkey_seed"`

	MaxReconnects   int           `mapstructure:"max_reconnects"   rule:"min=-1"`
	ReconnectWait   time.Duration `mapstructure:"reconnect_wait"   rule:"min=0"`
	PingInterval    time.Duration `mapstructure:"ping_interval"    rule:"min=0"`
	MaxPingsOut     int           `mapstructure:"max_pings_out"    rule:"min=1"`
	ReconnectBuffer int           `mapstructure:"reconnect_buffer" rule:"min=0"`
	// WaitForServer 启动时服务器不可达则后台重试，而不是报错退出.
	WaitForServer bool `mapstructure:"wait_for_server"`

	Stream   NATSStreamConfig   `mapstructure:"stream"`
	Consumer NATSConsumerConfig `mapstructure:"consumer"`
}

// NATSStreamConfig 流的建立方式. durable=false 时退化为 core NATS，任务不落盘.
type NATSStreamConfig struct {
	Durable       bool   `mapstructure:"durable"`
	AutoProvision bool   `mapstructure:"auto_provision"`
	TrackMsgID    bool   `mapstructure:"track_msg_id"`
	AckAsync      bool   `mapstructure:"ack_async"`
	DurablePrefix string `mapstructure:"durable_prefix" rule:"required"`
}

// NATSConsumerConfig 消费者参数.
type NATSConsumerConfig struct {
	AckWait       time.Duration `mapstructure:"ack_wait"        rule:"min=1s"`
	MaxDeliver    int           `mapstructure:"max_deliver"     rule:"min=0"`
	MaxAckPending int           `mapstructure:"max_ack_pending" rule:"min=1"`
	NakDelay      time.Duration `mapstructure:"nak_delay"       rule:"min=0"`
	// QueueGroup 多个 worker 共享同一 durable，每条任务只交给其中一个.
	QueueGroup bool `mapstructure:"queue_group"`
}

// RedisMQConfig Redis Stream 队列，每个主题一个 stream，消费者组共享.
type RedisMQConfig struct {
	Addr      string        `mapstructure:"addr"       rule:"hostname_port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"         rule:"min=0,max=15"`
	Group     string        `mapstructure:"group"      rule:"required"`
	Consumer  string        `mapstructure:"consumer"` // 为空时取 主机名-进程号
	Block     time.Duration `mapstructure:"block"      rule:"min=0"`
	ClaimIdle time.Duration `mapstructure:"claim_idle" rule:"min=0"`
	MaxLen    int64         `mapstructure:"max_len"    rule:"min=0"`
	NakDelay  time.Duration `mapstructure:"nak_delay"  rule:"min=0"`
}

func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeNATS)
	v.SetDefault("mq.metrics", false)

	v.SetDefault("mq.nats.urls", []string{DefaultMQURL})
	v.SetDefault("mq.nats.client_name", "storyvault")
	v.SetDefault("mq.nats.max_reconnects", 5)
	v.SetDefault("mq.nats.reconnect_wait", "5s")
	v.SetDefault("mq.nats.ping_interval", "20s")
	v.SetDefault("mq.nats.max_pings_out", 3)
	v.SetDefault("mq.nats.reconnect_buffer", 32<<10)
	v.SetDefault("mq.nats.wait_for_server", true)

	v.SetDefault("mq.nats.stream.durable", true)
	v.SetDefault("mq.nats.stream.auto_provision", true)
	v.SetDefault("mq.nats.stream.track_msg_id", true)
	v.SetDefault("mq.nats.stream.ack_async", false)
	v.SetDefault("mq.nats.stream.durable_prefix", "storyvault")

	v.SetDefault("mq.nats.consumer.ack_wait", "15m")
	v.SetDefault("mq.nats.consumer.max_deliver", 10)
	v.SetDefault("mq.nats.consumer.max_ack_pending", 1)
	v.SetDefault("mq.nats.consumer.nak_delay", "5s")
	v.SetDefault("mq.nats.consumer.queue_group", true)

	v.SetDefault("mq.redis.addr", "localhost:6379")
	v.SetDefault("mq.redis.db", 0)
	v.SetDefault("mq.redis.group", "storyvault-workers")
	v.SetDefault("mq.redis.block", "2s")
	v.SetDefault("mq.redis.claim_idle", "15m")
	v.SetDefault("mq.redis.max_len", 100000)
	v.SetDefault("mq.redis.nak_delay", "5s")
}
