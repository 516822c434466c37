package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/yeisme/storyvault/pkg/configs"
)

func TestComponentLevelOverride(t *testing.T) {
	cfg := configs.Defaults()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"
	cfg.Log.Components = map[string]string{"worker": "debug", "http": "bogus"}

	initOnce.Do(func() {})
	setup(&cfg)

	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	assert.Equal(t, zerolog.WarnLevel, Logger().GetLevel())
	assert.Equal(t, zerolog.DebugLevel, Component("worker").GetLevel())
	assert.Equal(t, zerolog.WarnLevel, Component("http").GetLevel())
	assert.Equal(t, zerolog.WarnLevel, Component("index").GetLevel())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.ErrorLevel, parseLevel(" ERROR ", zerolog.InfoLevel))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("", zerolog.InfoLevel))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("loud", zerolog.WarnLevel))
}
