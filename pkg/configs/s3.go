package configs

import (
	"time"

	"github.com/spf13/viper"
)

// 表单附件按媒体类型分桶存放；exports 由导出协作方写入，这里只负责创建.
const (
	BucketFormImage = "form-image"
	BucketFormAudio = "form-audio"
	BucketFormVideo = "form-video"
	BucketExports   = "exports"
)

// S3Config MinIO 连接与附件读取参数. endpoint 可带 http:// 或 https://，此时覆盖 use_ssl.
type S3Config struct {
	Endpoint        string        `mapstructure:"endpoint"          rule:"required"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	Buckets         []string      `mapstructure:"buckets"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl"       rule:"min=0"`
	MaxDownloadSize int64         `mapstructure:"max_download_size" rule:"min=0"`
}

func (c *S3Config) setDefaults(v *viper.Viper) {
	v.SetDefault("s3.endpoint", "localhost:9000")
	v.SetDefault("s3.access_key_id", "minioadmin")
	v.SetDefault("s3.secret_access_key", "minioadmin")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.buckets", []string{BucketFormImage, BucketFormAudio, BucketFormVideo, BucketExports})
	v.SetDefault("s3.presign_ttl", 15*time.Minute)
	v.SetDefault("s3.max_download_size", int64(2<<30))
}
