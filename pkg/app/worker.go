package app

import (
	"context"
	"errors"

	"github.com/yeisme/storyvault/pkg/internal/ai"
	"github.com/yeisme/storyvault/pkg/internal/enrich"
	"github.com/yeisme/storyvault/pkg/internal/transcribe"
	"github.com/yeisme/storyvault/pkg/log"
)

// NewWorker 组装富化消费者：模型客户端、转写器、编排器与 watermill 路由.
func NewWorker(rt *Runtime) (*enrich.Worker, error) {
	m := rt.Manager
	if m.MQ == nil || m.KV == nil {
		return nil, errors.New("worker requires task queue and lock store")
	}

	tool := transcribe.NewFFmpegTool()
	if err := tool.AssertReady(); err != nil {
		// 音视频附件的转写会失败并重投
		l := log.Component("worker")
		l.Warn().Err(err).Msg("media tools unavailable")
	}

	text, vision, speech := ai.NewFromConfig(rt.Config.AI)

	tr := transcribe.New(m.S3, speech, vision, tool)
	if ttl := rt.Config.S3.PresignTTL; ttl > 0 {
		tr.PresignTTL = ttl
	}

	cfg := rt.Config.Enrichment
	orch := enrich.New(
		rt.Deps.Records,
		text,
		tr,
		rt.Deps.Locker,
		rt.Deps.Index,
		enrich.Options{LockTTL: cfg.LockTTL(), TranscriptionConcurrency: cfg.TranscriptionConcurrency},
	)

	return enrich.NewWorker(orch, m.MQ, cfg, m.KV.KVStore), nil
}

// RunWorker 阻塞消费富化任务直到 ctx 结束.
func RunWorker(ctx context.Context, rt *Runtime) error {
	w, err := NewWorker(rt)
	if err != nil {
		return err
	}

	return w.Run(ctx)
}
