package enrich

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/storyvault/pkg/configs"
	ctxutil "github.com/yeisme/storyvault/pkg/context"
	"github.com/yeisme/storyvault/pkg/internal/apperr"
	"github.com/yeisme/storyvault/pkg/internal/storage/kv"
	"github.com/yeisme/storyvault/pkg/internal/storage/mq"
	nlog "github.com/yeisme/storyvault/pkg/log"
	"github.com/yeisme/storyvault/pkg/metrics"
	"github.com/yeisme/storyvault/pkg/queue"
	"github.com/yeisme/storyvault/pkg/tracing"
)

// ErrMaxRedeliveries 消息失败次数超过上限，转入死信主题.
var ErrMaxRedeliveries = errors.New("max redeliveries exceeded")

const deliveryCountTTL = 24 * time.Hour

// Worker 把两类富化任务绑定到 watermill 路由器.
type Worker struct {
	orch       *Orchestrator
	client     *mq.Client
	cfg        configs.EnrichmentConfig
	deliveries kv.KVStore
	log        zerolog.Logger

	// 进程内重试，耗尽后 nack 交给队列重投
	retries         int
	initialInterval time.Duration
}

// NewWorker 创建消费者. deliveries 记录每条消息的失败次数，为空时使用进程内存储.
func NewWorker(orch *Orchestrator, client *mq.Client, cfg configs.EnrichmentConfig, deliveries kv.KVStore) *Worker {
	if deliveries == nil {
		deliveries = kv.NewMemoryStore()
	}

	return &Worker{
		orch:            orch,
		client:          client,
		cfg:             cfg,
		deliveries:      deliveries,
		log:             nlog.Component("worker"),
		retries:         2,
		initialInterval: time.Second,
	}
}

// WithRetry 设置进程内重试参数.
func (w *Worker) WithRetry(n int, initial time.Duration) *Worker {
	w.retries, w.initialInterval = n, initial
	return w
}

// Router 创建并注册处理器的路由器.
func (w *Worker) Router() (*message.Router, error) {
	router, err := w.client.NewRouter()
	if err != nil {
		return nil, err
	}

	for _, kind := range queue.Kinds {
		topic, err := queue.TopicFor(kind, w.cfg.Queues)
		if err != nil {
			return nil, err
		}

		poison, err := middleware.PoisonQueueWithFilter(w.client.Publisher(), queue.PoisonTopic(topic), func(err error) bool {
			return errors.Is(err, ErrMaxRedeliveries)
		})
		if err != nil {
			return nil, fmt.Errorf("poison queue for %s: %w", topic, err)
		}

		h := router.AddNoPublisherHandler(string(kind), topic, w.client.Subscriber(), w.handle(kind))
		// 超时包住重试，一次投递连同进程内重试都不超过 handler_timeout
		h.AddMiddleware(
			poison,
			w.limitDeliveries,
			middleware.Timeout(w.cfg.HandlerTimeout()),
			middleware.Retry{
				MaxRetries:      w.retries,
				InitialInterval: w.initialInterval,
				MaxInterval:     30 * time.Second,
				Multiplier:      2,
				Logger:          w.client.Logger(),
			}.Middleware,
			middleware.Recoverer,
		)
	}

	return router, nil
}

// Run 阻塞消费直到 ctx 结束.
func (w *Worker) Run(ctx context.Context) error {
	router, err := w.Router()
	if err != nil {
		return err
	}

	w.log.Info().
		Str("tag_theme", w.cfg.Queues.TagTheme).
		Str("structured_metadata", w.cfg.Queues.StructuredMetadata).
		Msg("enrichment worker started")

	return router.Run(ctx)
}

// handle 成功或不可重试的错误 ack，可重试错误返回给路由器触发重投.
func (w *Worker) handle(kind queue.TaskKind) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		task, err := queue.ParseTask(msg)
		if err != nil {
			w.log.Error().Err(err).Str("task", string(kind)).Msg("drop malformed task")
			metrics.TasksTotal.WithLabelValues(string(kind), "failed").Inc()

			return nil
		}

		ctx := ctxutil.WithCorrelationID(msg.Context(), task.TraceID)
		ctx, span := tracing.StartSpan(ctx, "enrich."+string(kind), trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("record.id", task.RecordID),
				attribute.String("correlation.id", ctxutil.CorrelationID(ctx)),
				attribute.String("message.uuid", msg.UUID),
			))
		start := time.Now()

		err = w.orch.Run(ctx, kind, task.RecordID)
		tracing.End(span, err)

		metrics.TaskDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.TasksTotal.WithLabelValues(string(kind), "ok").Inc()
			return nil
		}

		log := ctxutil.Logger(ctx, "worker").With().
			Str("task", string(kind)).
			Str("record_id", task.RecordID).
			Str("message_uuid", msg.UUID).
			Logger()

		switch k := apperr.KindOf(err); k {
		case apperr.KindTransient, apperr.KindInternal, apperr.KindRateLimited:
			metrics.TasksTotal.WithLabelValues(string(kind), "retry").Inc()
			log.Warn().Err(err).Msg("task failed, will be redelivered")

			return err
		case apperr.KindNotFound, apperr.KindForbidden, apperr.KindBadRequest, apperr.KindConflict, apperr.KindCorrupt:
			metrics.TasksTotal.WithLabelValues(string(kind), "failed").Inc()
			log.Error().Err(err).Str("kind", k.String()).Msg("task failed permanently")

			return nil
		default:
			return err
		}
	}
}

// limitDeliveries 统计消息失败次数，超过 max_redeliveries 后包装为 ErrMaxRedeliveries.
func (w *Worker) limitDeliveries(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		ctx := context.WithoutCancel(msg.Context())
		key := "deliveries:" + msg.UUID

		out, err := h(msg)
		if err == nil {
			if derr := w.deliveries.Delete(ctx, key); derr != nil && !kv.IsNotFound(derr) {
				w.log.Debug().Err(derr).Msg("clear delivery count")
			}

			return out, nil
		}

		n := 1

		if raw, gerr := w.deliveries.Get(ctx, key); gerr == nil {
			if prev, perr := strconv.Atoi(string(raw)); perr == nil {
				n = prev + 1
			}
		}

		if serr := w.deliveries.Set(ctx, key, []byte(strconv.Itoa(n)), deliveryCountTTL); serr != nil {
			w.log.Warn().Err(serr).Msg("store delivery count")
		}

		if n > w.cfg.MaxRedeliveries {
			w.log.Error().Err(err).Str("message_uuid", msg.UUID).Int("attempts", n).Msg("moving task to poison queue")
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrMaxRedeliveries, n, err)
		}

		return nil, err
	}
}
