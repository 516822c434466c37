package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	c := Defaults()
	require.NoError(t, c.Validate())
}

func TestValidateReportsFieldPaths(t *testing.T) {
	c := Defaults()
	c.KV.Type = "groupcache"
	c.RateLimit.RPS = 0

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KV.Type")
	assert.Contains(t, err.Error(), "RateLimit.RPS")
}

func TestValidateRejectsShortAckWait(t *testing.T) {
	c := Defaults()
	c.MQ.NATS.Consumer.AckWait = 10 * time.Millisecond

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AckWait")
}

func TestValidateHandlerTimeoutWithinDeliveryWindow(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *AppConfig)
		wantErr string
	}{
		{"defaults", func(*AppConfig) {}, ""},
		{"nats ack_wait too short", func(c *AppConfig) {
			c.MQ.NATS.Consumer.AckWait = 5 * time.Minute
		}, "mq.nats.consumer.ack_wait"},
		{"core nats has no ack_wait", func(c *AppConfig) {
			c.MQ.NATS.Stream.Durable = false
			c.MQ.NATS.Consumer.AckWait = 5 * time.Minute
		}, ""},
		{"redis claim_idle too short", func(c *AppConfig) {
			c.MQ.Type = MQTypeRedis
			c.MQ.Redis.ClaimIdle = time.Duration(DefaultHandlerTimeout) * time.Second
		}, "mq.redis.claim_idle"},
		{"memory ignores windows", func(c *AppConfig) {
			c.MQ.Type = MQTypeMemory
			c.MQ.NATS.Consumer.AckWait = time.Second
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedisEndpoints(t *testing.T) {
	assert.Equal(t, []string{"a:6379", "b:6379"}, RedisKVConfig{Addr: " a:6379, ,b:6379"}.Endpoints())
	assert.Empty(t, RedisKVConfig{}.Endpoints())
}

func TestInitConfigReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("kv:\n  type: memory\nsearch:\n  max_limit: 50\nmq:\n  nats:\n    consumer:\n      ack_wait: 90s\n"), 0o600))
	t.Setenv(EnvPrefix+"_SERVER_PORT", "9090")

	require.NoError(t, InitConfig(dir))

	c := GetConfig()
	assert.Equal(t, "memory", c.KV.Type)
	assert.Equal(t, 50, c.Search.MaxLimit)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 90*time.Second, c.MQ.NATS.Consumer.AckWait)
	assert.Equal(t, 5*time.Second, c.MQ.Redis.NakDelay)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), GetViper().ConfigFileUsed())
}
