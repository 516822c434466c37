// Package s3 提供表单附件所在的对象存储访问（MinIO），核心流程只持有附件引用.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yeisme/storyvault/pkg/configs"
	nlog "github.com/yeisme/storyvault/pkg/log"
)

// ErrObjectNotFound 附件对象不存在.
var ErrObjectNotFound = errors.New("object not found")

// ErrObjectTooLarge 附件超过下载上限.
var ErrObjectTooLarge = errors.New("object exceeds download limit")

// Client 包装 MinIO 客户端.
type Client struct {
	*minio.Client
	maxDownload int64
}

// New 使用全局配置初始化 MinIO 客户端，并确保附件存储桶存在.
func New(ctx context.Context) (*Client, error) {
	cfg := configs.GetConfig().S3
	return Open(ctx, &cfg)
}

// Open 按给定配置初始化 MinIO 客户端.
func Open(ctx context.Context, cfg *configs.S3Config) (*Client, error) {
	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	// 允许传完整 schema endpoint（http:// 或 https://）
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo("storyvault", configs.AppVersion)

	c := &Client{Client: cli, maxDownload: cfg.MaxDownloadSize}
	if err := c.EnsureBuckets(ctx, cfg.Region, cfg.Buckets...); err != nil {
		return nil, err
	}

	nlog.Logger().Info().Str("endpoint", cfg.Endpoint).Strs("buckets", cfg.Buckets).Msg("blob store connected")

	return c, nil
}

// EnsureBuckets 创建缺失的存储桶.
func (c *Client) EnsureBuckets(ctx context.Context, region string, buckets ...string) error {
	for _, bkt := range buckets {
		if bkt == "" {
			continue
		}

		exists, err := c.BucketExists(ctx, bkt)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bkt, err)
		}

		if exists {
			continue
		}

		if err := c.MakeBucket(ctx, bkt, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bkt, err)
		}

		nlog.Logger().Info().Str("bucket", bkt).Msg("bucket created")
	}

	return nil
}

// Download 将对象写入 w，返回写入字节数. 超过下载上限时返回 ErrObjectTooLarge.
func (c *Client) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	obj, err := c.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, mapError(bucket, key, err)
	}
	defer obj.Close()

	var src io.Reader = obj
	if c.maxDownload > 0 {
		src = io.LimitReader(obj, c.maxDownload+1)
	}

	n, err := io.Copy(w, src)
	if err != nil {
		return n, mapError(bucket, key, err)
	}

	if c.maxDownload > 0 && n > c.maxDownload {
		return n, fmt.Errorf("%w: %s/%s", ErrObjectTooLarge, bucket, key)
	}

	return n, nil
}

// PresignGet 生成限时读取 URL.
func (c *Client) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if _, err := c.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", mapError(bucket, key, err)
	}

	u, err := c.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}

	return u.String(), nil
}

// HealthCheck 简单的健康检查，通过列出桶来验证连接.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListBuckets(ctx)
	return err
}

// Close 关闭 S3 客户端连接（无实际操作，接口兼容）.
func (c *Client) Close() error {
	return nil
}

func mapError(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	default:
		return fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
}
