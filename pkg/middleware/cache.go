package middleware

import (
	"bytes"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	appcache "github.com/yeisme/storyvault/pkg/cache"
	nlog "github.com/yeisme/storyvault/pkg/log"
	"github.com/yeisme/storyvault/pkg/metrics"
)

const (
	// CacheStatusHeader 标记响应来自缓存 (HIT) 或回源 (MISS).
	CacheStatusHeader = "X-Cache"

	defaultResponseTTL     = 30 * time.Second
	defaultMaxCachedBody   = 256 << 10
	responseCacheKeyPrefix = "resp:"
)

// CacheConfig 响应缓存配置.
type CacheConfig struct {
	Cache *appcache.Cache
	TTL   time.Duration

	// KeyFunc 生成缓存键，为空时按租户、路由模板、路径与排序后的查询串生成.
	KeyFunc func(*gin.Context) string

	// MaxBodyBytes 超过该大小的响应不缓存.
	MaxBodyBytes int
}

// DefaultCacheConfig 返回默认配置.
func DefaultCacheConfig(c *appcache.Cache) CacheConfig {
	return CacheConfig{Cache: c, TTL: defaultResponseTTL, MaxBodyBytes: defaultMaxCachedBody}
}

type cachedResponse struct {
	Status      int    `json:"s"`
	ContentType string `json:"ct,omitempty"`
	Body        []byte `json:"b,omitempty"`
	ETag        string `json:"e"`
	StoredAt    int64  `json:"t"`
}

// CacheMiddleware 缓存 GET 请求的 200 响应.
//
// 缓存键必须包含租户，默认键已包含. 响应带 ETag，If-None-Match 命中时返回 304.
func CacheMiddleware(cfg CacheConfig) gin.HandlerFunc {
	if cfg.Cache == nil {
		panic("CacheMiddleware: Cache cannot be nil")
	}

	if cfg.TTL <= 0 {
		cfg.TTL = defaultResponseTTL
	}

	if cfg.KeyFunc == nil {
		cfg.KeyFunc = tenantRequestKey
	}

	logger := nlog.Component("response_cache")

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			metrics.ResponseCache.WithLabelValues(routeLabel(c), "bypass").Inc()
			c.Next()

			return
		}

		ctx := c.Request.Context()
		key := responseCacheKeyPrefix + cfg.KeyFunc(c)

		if entry, err := appcache.Get[cachedResponse](ctx, cfg.Cache, key); err == nil {
			metrics.ResponseCache.WithLabelValues(routeLabel(c), "hit").Inc()
			c.Header(CacheStatusHeader, "HIT")
			c.Header("Age", strconv.FormatInt(int64(time.Since(time.Unix(0, entry.StoredAt)).Seconds()), 10))
			writeCached(c, entry)
			c.Abort()

			return
		}

		metrics.ResponseCache.WithLabelValues(routeLabel(c), "miss").Inc()

		bw := &bufferedWriter{ResponseWriter: c.Writer}
		c.Writer = bw
		c.Next()
		c.Writer = bw.ResponseWriter

		body := bw.buf.Bytes()
		if c.Writer.Status() != http.StatusOK || (cfg.MaxBodyBytes > 0 && len(body) > cfg.MaxBodyBytes) {
			_, _ = c.Writer.Write(body)
			return
		}

		entry := cachedResponse{
			Status:      http.StatusOK,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        slices.Clone(body),
			ETag:        `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`,
			StoredAt:    time.Now().UnixNano(),
		}

		if err := appcache.Set(ctx, cfg.Cache, key, entry, cfg.TTL); err != nil {
			logger.Debug().Err(err).Str("key", key).Msg("response cache store failed")
		}

		c.Header(CacheStatusHeader, "MISS")
		writeCached(c, entry)
	}
}

func writeCached(c *gin.Context, entry cachedResponse) {
	c.Header("ETag", entry.ETag)

	if match := c.GetHeader("If-None-Match"); match != "" && match == entry.ETag {
		c.Status(http.StatusNotModified)
		c.Writer.WriteHeaderNow()

		return
	}

	if entry.ContentType != "" {
		c.Header("Content-Type", entry.ContentType)
	}

	c.Status(entry.Status)
	_, _ = c.Writer.Write(entry.Body)
}

// tenantRequestKey 组合租户、路由模板、实际路径与排序后的查询串.
func tenantRequestKey(c *gin.Context) string {
	var b strings.Builder

	b.WriteString(GetPrincipal(c).OrganizationID)
	b.WriteByte('|')
	b.WriteString(c.FullPath())
	b.WriteByte('|')
	b.WriteString(c.Request.URL.Path)

	q := c.Request.URL.Query()
	keys := make([]string, 0, len(q))

	for k := range q {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(q[k], ","))
	}

	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// bufferedWriter 暂存响应体，由中间件决定是否以及如何写出.
type bufferedWriter struct {
	gin.ResponseWriter

	buf bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}
