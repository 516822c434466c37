package queue

// Task 一个富化任务，线上只有 RecordID 是必需的.
type Task struct {
	Kind     TaskKind `json:"task"`
	RecordID string   `json:"record_id"`
	TraceID  string   `json:"trace_id,omitempty"`
	Producer string   `json:"producer,omitempty"`
}
