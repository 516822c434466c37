package configs

import (
	"strings"

	"github.com/spf13/viper"
)

// KVConfig 键值存储配置. type 承载记录锁与投递计数，必须支持原子写入；
// cache_type 非空时响应缓存与邮编聚合缓存改用独立后端（通常为 groupcache）.
type KVConfig struct {
	Type       string             `mapstructure:"type"       rule:"oneof=memory redis nats"`
	CacheType  string             `mapstructure:"cache_type" rule:"omitempty,oneof=memory redis nats groupcache"`
	Redis      RedisKVConfig      `mapstructure:"redis"`
	NATS       NATSKVConfig       `mapstructure:"nats"`
	Groupcache GroupcacheKVConfig `mapstructure:"groupcache"`
}

// RedisKVConfig addr 为逗号分隔的地址列表时使用集群客户端.
type RedisKVConfig struct {
	Addr     string `mapstructure:"addr"      rule:"required"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"        rule:"min=0,max=15"`
	PoolSize int    `mapstructure:"pool_size" rule:"min=0"`
	Prefix   string `mapstructure:"prefix"`
}

// Endpoints 拆分 addr.
func (c RedisKVConfig) Endpoints() []string {
	var out []string

	for a := range strings.SplitSeq(c.Addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}

	return out
}

// NATSKVConfig NATS KV 配置，键中的 ':' 会被转换为 '.'.
type NATSKVConfig struct {
	URL      string `mapstructure:"url"      rule:"required"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Bucket   string `mapstructure:"bucket"   rule:"required"`
}

// GroupcacheKVConfig self 与 peers 为节点的完整 URL.
type GroupcacheKVConfig struct {
	Name       string   `mapstructure:"name"        rule:"required"`
	CacheBytes int64    `mapstructure:"cache_bytes" rule:"min=1048576"`
	Peers      []string `mapstructure:"peers"       rule:"dive,url"`
	Self       string   `mapstructure:"self"        rule:"omitempty,url"`
}

func (c *KVConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("kv.type", "redis")
	v.SetDefault("kv.cache_type", "")

	v.SetDefault("kv.redis.addr", "localhost:6379")
	v.SetDefault("kv.redis.db", 0)
	v.SetDefault("kv.redis.pool_size", 0)
	v.SetDefault("kv.redis.prefix", "")

	v.SetDefault("kv.nats.url", DefaultMQURL)
	v.SetDefault("kv.nats.bucket", "storyvault-kv")

	v.SetDefault("kv.groupcache.name", "storyvault-cache")
	v.SetDefault("kv.groupcache.cache_bytes", 64<<20)
	v.SetDefault("kv.groupcache.peers", []string{})
	v.SetDefault("kv.groupcache.self", "http://localhost:8080")
}
