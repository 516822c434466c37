package queue

import (
	"fmt"

	"github.com/yeisme/storyvault/pkg/configs"
)

// TaskKind 富化任务类型.
type TaskKind string

const (
	TaskTagTheme           TaskKind = "TAG_THEME"
	TaskStructuredMetadata TaskKind = "STRUCTURED_METADATA"
)

// Kinds 全部任务类型.
var Kinds = []TaskKind{TaskTagTheme, TaskStructuredMetadata}

// PoisonSuffix 死信主题后缀.
const PoisonSuffix = ".poison"

// TopicFor 返回任务类型在给定配置下的主题.
func TopicFor(kind TaskKind, topics configs.QueuesConfig) (string, error) {
	switch kind {
	case TaskTagTheme:
		return topics.TagTheme, nil
	case TaskStructuredMetadata:
		return topics.StructuredMetadata, nil
	default:
		return "", fmt.Errorf("unknown task kind %q", kind)
	}
}

// PoisonTopic 返回主题对应的死信主题.
func PoisonTopic(topic string) string {
	return topic + PoisonSuffix
}
