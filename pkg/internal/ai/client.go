// Package ai 提供兼容 OpenAI 接口的文本、视觉与语音模型客户端.
//
// 每个客户端带有客户端限流、有界重试与熔断，超时与上游 5xx 归类为可重试错误.
package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/yeisme/storyvault/pkg/configs"
	"github.com/yeisme/storyvault/pkg/internal/apperr"
	nlog "github.com/yeisme/storyvault/pkg/log"
	"github.com/yeisme/storyvault/pkg/metrics"
)

// HTTPError 上游返回的非 2xx 响应.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512]
	}

	return fmt.Sprintf("model http %d: %s", e.StatusCode, body)
}

// AppKind 429 与 5xx 可重试.
func (e *HTTPError) AppKind() apperr.Kind {
	if e.Retryable() {
		return apperr.KindTransient
	}

	return apperr.KindInternal
}

// Retryable 是否值得重试.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Endpoint 单个模型服务的连接参数.
type Endpoint struct {
	BaseURL string
	Key     string
	Model   string
}

// Client 调用单个模型服务.
type Client struct {
	kind       string
	ep         Endpoint
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	log        zerolog.Logger
}

// New 创建客户端，kind 用于日志与指标（text / vision / speech）.
func New(kind string, ep Endpoint, cfg configs.AIConfig) *Client {
	c := &Client{
		kind:       kind,
		ep:         Endpoint{BaseURL: strings.TrimRight(ep.BaseURL, "/"), Key: ep.Key, Model: ep.Model},
		http:       &http.Client{Timeout: cfg.Timeout()},
		maxRetries: cfg.MaxRetries,
		log:        nlog.Component("ai").With().Str("model_kind", kind).Str("model", ep.Model).Logger(),
	}

	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(cfg.Burst, 1))
	}

	if cfg.Breaker {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ai-" + kind,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				var he *HTTPError
				if errors.As(err, &he) {
					return !he.Retryable()
				}

				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("model circuit breaker state changed")
			},
		})
	}

	return c
}

// NewFromConfig 按配置创建文本、视觉与语音客户端.
func NewFromConfig(cfg configs.AIConfig) (text, vision, speech *Client) {
	text = New("text", Endpoint{BaseURL: cfg.TextEndpoint, Key: cfg.TextKey, Model: cfg.TextModel}, cfg)

	vEndpoint, vKey := cfg.VisionOrText()
	vision = New("vision", Endpoint{BaseURL: vEndpoint, Key: vKey, Model: cfg.VisionModel}, cfg)

	sEndpoint, sKey := cfg.SpeechOrText()
	speech = New("speech", Endpoint{BaseURL: sEndpoint, Key: sKey, Model: cfg.SpeechModel}, cfg)

	return text, vision, speech
}

// request 描述一次 HTTP 调用，body 每次重试重新生成.
type request struct {
	path        string
	contentType string
	body        func() (io.Reader, error)
}

func (c *Client) jsonRequest(path string, payload any) request {
	return request{
		path:        path,
		contentType: "application/json",
		body: func() (io.Reader, error) {
			b, err := sonic.Marshal(payload)
			if err != nil {
				return nil, err
			}

			return bytes.NewReader(b), nil
		},
	}
}

func (c *Client) doOnce(ctx context.Context, r request) ([]byte, error) {
	body, err := r.body()
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ep.BaseURL+r.path, body)
	if err != nil {
		return nil, err
	}

	if c.ep.Key != "" {
		req.Header.Set("Authorization", "Bearer "+c.ep.Key)
	}

	req.Header.Set("Content-Type", r.contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Transient("model "+c.kind, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient("model "+c.kind, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		if s, e := strconv.Atoi(resp.Header.Get("Retry-After")); e == nil && s > 0 {
			he.RetryAfter = time.Duration(s) * time.Second
		}

		return nil, he
	}

	return raw, nil
}

func (c *Client) execute(ctx context.Context, r request) ([]byte, error) {
	if c.breaker == nil {
		return c.doOnce(ctx, r)
	}

	out, err := c.breaker.Execute(func() (any, error) { return c.doOnce(ctx, r) })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperr.Transient("model "+c.kind, err)
	}

	if err != nil {
		return nil, err
	}

	return out.([]byte), nil
}

// do 执行请求，对可重试错误指数退避重试.
func (c *Client) do(ctx context.Context, r request, out any) error {
	backoff := time.Second

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return apperr.Transient("model "+c.kind, err)
			}
		}

		raw, err := c.execute(ctx, r)
		if err == nil {
			metrics.ModelRequests.WithLabelValues(c.kind, "ok").Inc()

			if out == nil {
				return nil
			}

			if uErr := sonic.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("decode model response: %w", uErr)
			}

			return nil
		}

		metrics.ModelRequests.WithLabelValues(c.kind, "error").Inc()

		if apperr.KindOf(err) != apperr.KindTransient || attempt >= c.maxRetries || ctx.Err() != nil {
			return err
		}

		sleep := backoff
		var he *HTTPError
		if errors.As(err, &he) && he.RetryAfter > 0 {
			sleep = he.RetryAfter
		}

		sleep = min(sleep, 10*time.Second)
		sleep += time.Duration(rand.Int64N(int64(sleep/4) + 1))

		c.log.Warn().Err(err).Int("attempt", attempt+1).Dur("sleep", sleep).Str("path", r.path).Msg("model request retrying")

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return apperr.Transient("model "+c.kind, ctx.Err())
		case <-t.C:
		}

		backoff *= 2
	}
}
