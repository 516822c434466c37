package queue

import (
	"context"
	"errors"
)

// EnqueueEnrichment 为记录投递全部富化任务，返回各任务的错误汇总.
func EnqueueEnrichment(ctx context.Context, q *TaskQueue, recordID string) error {
	var errs []error

	for _, kind := range Kinds {
		if err := q.Enqueue(ctx, kind, recordID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
