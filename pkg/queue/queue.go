// Package queue 定义富化任务在任务队列中的线格式与投递入口.
//
// 线格式
//   - 每个任务是一条 watermill 消息，消息体为记录 id 的 UTF-8 原文（不是 JSON）
//   - 元数据 trace_id（请求关联 ID）、producer、task、occurred_at、version 仅作追踪用途，消费者不依赖
//   - 主题由任务类型决定，默认 FORM_DATA_TAG_THEME 与 FORM_DATA_METADATA_GENERATION
//
// 发布示例
//
//	q := queue.New(mqClient, configs.GetConfig().Enrichment.Queues)
//	if err := q.Enqueue(ctx, queue.TaskTagTheme, recordID); err != nil {
//		// 入队失败只记录日志，由回填任务兜底
//	}
//
// 消费示例
//
//	task, err := queue.ParseTask(msg)
//	// task.RecordID 即待处理记录
//
// 参考：topics.go（任务类型与主题）、payloads.go（Task 结构）、internal/storage/mq（队列客户端封装）.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/storyvault/pkg/configs"
	ctxutil "github.com/yeisme/storyvault/pkg/context"
)

const (
	PayloadVersionV1 string = "v1"

	// DefaultProducer 默认生产者标识，API 提交时使用.
	DefaultProducer = "storyvault"
	// BackfillProducer 回填任务补投时使用.
	BackfillProducer = "storyvault-backfill"
)

// Metadata 键.
const (
	MetaTraceID    = "trace_id"
	MetaProducer   = "producer"
	MetaTask       = "task"
	MetaOccurredAt = "occurred_at"
	MetaVersion    = "version"
)

// Publisher 任务发布端，*mq.Client 实现该接口.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// TaskQueue 按任务类型把记录 id 投递到对应主题.
type TaskQueue struct {
	pub      Publisher
	topics   configs.QueuesConfig
	producer string
}

// New 创建任务队列.
func New(pub Publisher, topics configs.QueuesConfig) *TaskQueue {
	if topics.TagTheme == "" {
		topics.TagTheme = configs.DefaultTagThemeQueue
	}

	if topics.StructuredMetadata == "" {
		topics.StructuredMetadata = configs.DefaultStructuredMetadataQueue
	}

	return &TaskQueue{pub: pub, topics: topics, producer: DefaultProducer}
}

// WithProducer 返回使用另一生产者标识的副本，原队列不受影响.
func (q *TaskQueue) WithProducer(p string) *TaskQueue {
	cp := *q
	cp.producer = p

	return &cp
}

// Topic 返回任务类型对应的主题.
func (q *TaskQueue) Topic(kind TaskKind) (string, error) {
	return TopicFor(kind, q.topics)
}

// Enqueue 同步发布一个任务，返回时队列已确认接收.
func (q *TaskQueue) Enqueue(ctx context.Context, kind TaskKind, recordID string) error {
	topic, err := q.Topic(kind)
	if err != nil {
		return err
	}

	msg, err := NewTaskMessage(Task{
		Kind:     kind,
		RecordID: recordID,
		TraceID:  traceIDFrom(ctx),
		Producer: q.producer,
	})
	if err != nil {
		return err
	}

	if err := q.pub.Publish(ctx, topic, msg); err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", kind, recordID, err)
	}

	return nil
}

// NewTaskMessage 构造任务消息，消息体为记录 id 原文.
func NewTaskMessage(t Task) (*message.Message, error) {
	id := strings.TrimSpace(t.RecordID)
	if id == "" {
		return nil, fmt.Errorf("record id is required")
	}

	msg := message.NewMessage(watermill.NewUUID(), []byte(id))
	msg.Metadata.Set(MetaTask, string(t.Kind))
	msg.Metadata.Set(MetaOccurredAt, time.Now().UTC().Format(time.RFC3339Nano))
	msg.Metadata.Set(MetaVersion, PayloadVersionV1)

	if t.TraceID != "" {
		msg.Metadata.Set(MetaTraceID, t.TraceID)
	}

	if t.Producer != "" {
		msg.Metadata.Set(MetaProducer, t.Producer)
	}

	return msg, nil
}

// ParseTask 从消息中解出任务，元数据缺失不影响解析.
func ParseTask(msg *message.Message) (Task, error) {
	id := strings.TrimSpace(string(msg.Payload))
	if id == "" {
		return Task{}, fmt.Errorf("empty task payload in message %s", msg.UUID)
	}

	return Task{
		Kind:     TaskKind(msg.Metadata.Get(MetaTask)),
		RecordID: id,
		TraceID:  msg.Metadata.Get(MetaTraceID),
		Producer: msg.Metadata.Get(MetaProducer),
	}, nil
}

// traceIDFrom 优先取请求关联 ID，没有时取当前 span 的 trace id.
func traceIDFrom(ctx context.Context) string {
	if id := ctxutil.CorrelationID(ctx); id != "" {
		return id
	}

	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}

	return ""
}
