// Package metrics 定义 Prometheus 指标：HTTP 请求、富化任务、锁竞争、转写分片、索引同步与模型调用.
//
// 指标变量可直接使用，未调用 InitMetrics 时只是不被导出.
package metrics

import (
	"net/http"
	_ "net/http/pprof"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/storyvault/pkg/configs"
)

var (
	// RequestCounter endpoint 为路由模板，未匹配路由记为 unmatched.
	RequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyvault",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route template and status code.",
	}, []string{"method", "endpoint", "status"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storyvault",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "endpoint"})

	ResponseSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storyvault",
		Name:      "http_response_size_bytes",
		Help:      "HTTP response body size.",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
	}, []string{"endpoint"})

	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "storyvault",
		Name:      "http_requests_in_flight",
		Help:      "HTTP requests currently being served.",
	})

	// ResponseCache result 取 hit / miss / bypass.
	ResponseCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyvault",
		Name:      "http_response_cache_total",
		Help:      "Tenant response cache lookups.",
	}, []string{"endpoint", "result"})

	// TasksTotal 富化任务处理结果，outcome 取 ok / skipped / retry / failed.
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_tasks_total",
			Help: "Enrichment tasks handled by outcome",
		},
		[]string{"task", "outcome"},
	)

	// TaskDuration 富化任务耗时.
	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrichment_task_duration_seconds",
			Help:    "Enrichment task duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"task"},
	)

	// LockContention 锁获取失败次数.
	LockContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_contention_total",
			Help: "Lock acquisitions that found the key already held",
		},
		[]string{"scope"},
	)

	// TranscriptionChunks 发送给语音模型的分片数.
	TranscriptionChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transcription_chunks_total",
			Help: "Audio chunks sent to the speech model",
		},
	)

	// IndexOps 搜索索引操作.
	IndexOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_index_ops_total",
			Help: "Search index operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	// ModelRequests 外部模型调用.
	ModelRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_requests_total",
			Help: "Requests to text, vision and speech models",
		},
		[]string{"kind", "outcome"},
	)

	// ScheduledRuns 定时任务运行结果，outcome 取 ok / error.
	ScheduledRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Scheduled job runs by job name and outcome",
		},
		[]string{"job", "outcome"},
	)

	// BreakerState 熔断器状态：0 闭合，1 半开，2 打开.
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "storyvault",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"breaker"})

	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()

	registerOnce sync.Once
)

// InitMetrics 向私有注册表登记全部指标，config.Labels 作为常量标签附加.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	var err error

	registerOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(prometheus.Labels(config.Labels), registry)

		if config.RuntimeMetrics {
			if err = reg.Register(collectors.NewGoCollector()); err != nil {
				return
			}

			if err = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
				return
			}
		}

		for _, c := range []prometheus.Collector{
			RequestCounter, RequestDuration, ResponseSize, InFlight, ResponseCache,
			TasksTotal, TaskDuration, LockContention,
			TranscriptionChunks, IndexOps, ModelRequests, ScheduledRuns, BreakerState,
		} {
			if err = reg.Register(c); err != nil {
				return
			}
		}
	})

	return err
}

// StartMetricsServer 在引擎上挂载指标端点，可选挂载 pprof.
func StartMetricsServer(config configs.MetricsConfig, engine *gin.Engine) error {
	if !config.Enabled {
		return nil
	}

	path := config.Path
	if path == "" {
		path = "/metrics"
	}

	engine.GET(path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	if config.Pprof {
		engine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}

	return nil
}

// GetRegistry 供 watermill 等组件登记自身指标.
func GetRegistry() *prometheus.Registry {
	return registry
}
