package configs

import (
	"time"

	"github.com/spf13/viper"
)

// AIConfig 文本、视觉与语音模型服务配置，接口兼容 OpenAI.
type AIConfig struct {
	TextEndpoint   string  `mapstructure:"text_endpoint"   rule:"omitempty,url"`
	TextKey        string  `mapstructure:"text_key"`
	TextModel      string  `mapstructure:"text_model"`
	VisionEndpoint string  `mapstructure:"vision_endpoint" rule:"omitempty,url"`
	VisionKey      string  `mapstructure:"vision_key"`
	VisionModel    string  `mapstructure:"vision_model"`
	SpeechEndpoint string  `mapstructure:"speech_endpoint" rule:"omitempty,url"`
	SpeechKey      string  `mapstructure:"speech_key"`
	SpeechModel    string  `mapstructure:"speech_model"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" rule:"min=1"`
	MaxRetries     int     `mapstructure:"max_retries"     rule:"min=0,max=10"`
	RPS            float64 `mapstructure:"rps"`   // 客户端限速，0 表示不限速
	Burst          int     `mapstructure:"burst"` // 限速突发容量
	Breaker        bool    `mapstructure:"breaker"`
}

// Timeout 返回单次模型调用超时.
func (c *AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// VisionOrText 视觉服务未单独配置时复用文本服务.
func (c *AIConfig) VisionOrText() (endpoint, key string) {
	if c.VisionEndpoint != "" {
		return c.VisionEndpoint, c.VisionKey
	}

	return c.TextEndpoint, c.TextKey
}

// SpeechOrText 语音服务未单独配置时复用文本服务.
func (c *AIConfig) SpeechOrText() (endpoint, key string) {
	if c.SpeechEndpoint != "" {
		return c.SpeechEndpoint, c.SpeechKey
	}

	return c.TextEndpoint, c.TextKey
}

func (c *AIConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("ai.text_endpoint", "https://api.openai.com")
	v.SetDefault("ai.text_key", "")
	v.SetDefault("ai.text_model", "gpt-4o-mini")
	v.SetDefault("ai.vision_endpoint", "")
	v.SetDefault("ai.vision_key", "")
	v.SetDefault("ai.vision_model", "gpt-4o")
	v.SetDefault("ai.speech_endpoint", "")
	v.SetDefault("ai.speech_key", "")
	v.SetDefault("ai.speech_model", "whisper-1")
	v.SetDefault("ai.timeout_seconds", 120)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.rps", 5.0)
	v.SetDefault("ai.burst", 5)
	v.SetDefault("ai.breaker", true)
}
