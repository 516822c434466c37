package enrich

import (
	"fmt"
	"math"
	"slices"

	"github.com/yeisme/storyvault/pkg/internal/apperr"
)

// validateMetadata 校验模型输出与声明的结构一致，返回只包含声明字段的副本.
func validateMetadata(obj map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(metadataFields))

	for _, key := range metadataFields {
		v, ok := obj[key]
		if !ok {
			return nil, apperr.Errorf(apperr.KindCorrupt, "validate metadata", "missing field %q", key)
		}

		if err := checkField(key, v); err != nil {
			return nil, apperr.Wrap(apperr.KindCorrupt, "validate metadata", err)
		}

		out[key] = v
	}

	for key := range obj {
		if !slices.Contains(metadataFields, key) {
			return nil, apperr.Errorf(apperr.KindCorrupt, "validate metadata", "unexpected field %q", key)
		}
	}

	return out, nil
}

func checkField(key string, v any) error {
	switch key {
	case "age":
		switch n := v.(type) {
		case nil:
			return nil
		case float64:
			if n != math.Trunc(n) || n < 0 {
				return fmt.Errorf("age %v is not a non-negative integer", n)
			}

			return nil
		default:
			return fmt.Errorf("age has type %T", v)
		}
	case "events":
		list, ok := v.([]any)
		if !ok {
			return fmt.Errorf("events has type %T", v)
		}

		for i, e := range list {
			if _, ok := e.(string); !ok {
				return fmt.Errorf("events[%d] has type %T", i, e)
			}
		}

		return nil
	default:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s has type %T", key, v)
		}

		return nil
	}
}
