// Package scheduler 基于 gocron/v2 运行后台任务（回填扫描、夜间重建索引），并记录每个任务最近一次的结果.
package scheduler

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/yeisme/storyvault/pkg/log"
	"github.com/yeisme/storyvault/pkg/metrics"
)

// State 任务当前所处的状态.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateFailed  State = "failed" // 最近一次运行返回错误或 panic
)

// JobInfo 任务快照，供管理端点展示.
type JobInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Cron        string    `json:"cron"`
	State       State     `json:"state"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run,omitzero"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	Runs        int       `json:"runs"`
	Failures    int       `json:"failures"`
	Error       string    `json:"error,omitempty"`
}

// Job 任务函数，返回的错误记入任务状态.
type Job func(ctx context.Context) error

type entry struct {
	job  gocron.Job
	info JobInfo
}

// Scheduler 按名称管理 cron 任务. 同一任务不会并发执行，上一轮未结束时新一轮排队等待.
type Scheduler struct {
	cron   gocron.Scheduler
	logger zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*entry
}

// New 创建调度器，需要调用 Start 才开始按计划运行.
func New() (*Scheduler, error) {
	c, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(gocron.WithSingletonMode(gocron.LimitModeWait)),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Scheduler{
		cron:   c,
		logger: log.Component("scheduler"),
		jobs:   make(map[string]*entry),
	}, nil
}

// AddCron 注册 cron 任务（五段式表达式），ctx 传给每次运行.
func (s *Scheduler) AddCron(ctx context.Context, name, expr string, fn Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}

	j, err := s.cron.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(s.run, ctx, name, fn),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	s.jobs[name] = &entry{
		job:  j,
		info: JobInfo{ID: j.ID().String(), Name: name, Cron: expr, State: StateIdle},
	}

	s.logger.Info().Str("job", name).Str("cron", expr).Msg("job registered")

	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, fn Job) {
	s.update(name, func(i *JobInfo) {
		i.State = StateRunning
		i.LastRun = time.Now()
	})

	start := time.Now()
	err := call(ctx, fn)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.logger.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("job failed")
	} else {
		s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
	}

	metrics.ScheduledRuns.WithLabelValues(name, outcome).Inc()

	s.update(name, func(i *JobInfo) {
		i.Runs++

		if err != nil {
			i.State = StateFailed
			i.Failures++
			i.Error = err.Error()

			return
		}

		i.State = StateIdle
		i.LastSuccess = time.Now()
		i.Error = ""
	})
}

func call(ctx context.Context, fn Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn(ctx)
}

// update 任务已被移除时不做任何事.
func (s *Scheduler) update(name string, fn func(*JobInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[name]; ok {
		fn(&e.info)
	}
}

// Run 立即触发一次，不影响原有计划.
func (s *Scheduler) Run(name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("job %q not found", name)
	}

	return e.job.RunNow()
}

// Remove 移除任务，进程重启前不再运行.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}

	if err := s.cron.RemoveJob(e.job.ID()); err != nil {
		return fmt.Errorf("remove job %s: %w", name, err)
	}

	delete(s.jobs, name)
	s.logger.Info().Str("job", name).Msg("job removed")

	return nil
}

// Job 返回单个任务的快照.
func (s *Scheduler) Job(name string) (JobInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[name]
	if !ok {
		return JobInfo{}, false
	}

	return e.snapshot(), true
}

// Jobs 返回全部任务快照，按名称排序.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, name := range slices.Sorted(maps.Keys(s.jobs)) {
		out = append(out, s.jobs[name].snapshot())
	}

	return out
}

func (e *entry) snapshot() JobInfo {
	info := e.info
	if next, err := e.job.NextRun(); err == nil {
		info.NextRun = next
	}

	return info
}

// Waiting 因单例模式排队等待的运行数.
func (s *Scheduler) Waiting() int {
	return s.cron.JobsWaitingInQueue()
}

// Start 开始按计划运行.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.Jobs())).Msg("scheduler started")
	s.cron.Start()
}

// StopJobs 停止调度但保留任务，可再次 Start.
func (s *Scheduler) StopJobs() error {
	return s.cron.StopJobs()
}

// Stop 等待运行中的任务结束后关闭调度器.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("scheduler stopping")
	return s.cron.Shutdown()
}
