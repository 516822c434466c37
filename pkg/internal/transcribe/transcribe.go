// Package transcribe 将附件转写为文本：音频与视频经语音模型，图片经视觉模型.
//
// 所有临时文件位于每次调用独立的临时目录中，任意返回路径都会删除该目录.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/storyvault/pkg/configs"
	"github.com/yeisme/storyvault/pkg/internal/apperr"
	"github.com/yeisme/storyvault/pkg/internal/model"
	nlog "github.com/yeisme/storyvault/pkg/log"
	"github.com/yeisme/storyvault/pkg/metrics"
)

// MaxChunkBytes 语音模型单次上传上限.
const MaxChunkBytes int64 = 25 << 20

// DefaultPresignTTL 图片读取链接有效期.
const DefaultPresignTTL = 15 * time.Minute

// BlobStore 附件所在的对象存储.
type BlobStore interface {
	Download(ctx context.Context, container, blobID string, w io.Writer) (int64, error)
	PresignGet(ctx context.Context, container, blobID string, ttl time.Duration) (string, error)
}

// SpeechModel 语音转文本模型.
type SpeechModel interface {
	Transcribe(ctx context.Context, filename string, r io.Reader) (string, error)
}

// VisionModel 图片描述模型.
type VisionModel interface {
	Describe(ctx context.Context, imageURL string) (string, error)
}

// MediaTool 外部音视频处理工具.
type MediaTool interface {
	// SplitAudio 将 in 切分为连续且不超过 maxBytes 的分片，按播放顺序返回路径.
	SplitAudio(ctx context.Context, in, outDir, prefix string, maxBytes int64) ([]string, error)
	// ExtractAudio 从视频中提取单声道 16 kHz PCM WAV.
	ExtractAudio(ctx context.Context, video, out string) error
}

// Error 单个附件转写失败.
type Error struct {
	BlobID string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcribe %s: %s: %v", e.BlobID, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AppKind 转写失败可通过重投重试.
func (e *Error) AppKind() apperr.Kind { return apperr.KindTransient }

// ErrUnsupportedKind 附件类型没有转写方式.
var ErrUnsupportedKind = errors.New("media kind has no transcription")

// Container 返回附件类型对应的存储桶.
func Container(kind model.FieldType) (string, bool) {
	switch kind {
	case model.FieldImage:
		return configs.BucketFormImage, true
	case model.FieldAudio:
		return configs.BucketFormAudio, true
	case model.FieldVideo:
		return configs.BucketFormVideo, true
	case model.FieldFile, model.FieldString, model.FieldNumber, model.FieldDate, model.FieldEmail,
		model.FieldPhone, model.FieldURL, model.FieldTextarea, model.FieldSelect, model.FieldRadio,
		model.FieldCheckbox, model.FieldZipcode:
		return "", false
	default:
		return "", false
	}
}

// Transcriber 附件转写器.
type Transcriber struct {
	Blobs      BlobStore
	Speech     SpeechModel
	Vision     VisionModel
	Tool       MediaTool
	PresignTTL time.Duration
	// TempRoot 临时目录的父目录，为空时使用系统默认.
	TempRoot string
	// ChunkBytes 分片上限，为 0 时使用 MaxChunkBytes.
	ChunkBytes int64

	log zerolog.Logger
}

// New 创建转写器.
func New(blobs BlobStore, speech SpeechModel, vision VisionModel, tool MediaTool) *Transcriber {
	return &Transcriber{
		Blobs:      blobs,
		Speech:     speech,
		Vision:     vision,
		Tool:       tool,
		PresignTTL: DefaultPresignTTL,
		log:        nlog.Component("transcribe"),
	}
}

// Transcribe 转写单个附件引用.
func (t *Transcriber) Transcribe(ctx context.Context, kind model.FieldType, ref model.MediaRef) (string, error) {
	container, ok := Container(kind)
	if !ok {
		return "", &Error{BlobID: ref.ID, Op: "route", Err: fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)}
	}

	start := time.Now()

	var (
		text string
		err  error
	)

	switch kind {
	case model.FieldImage:
		text, err = t.image(ctx, container, ref)
	case model.FieldAudio:
		text, err = t.withTempDir(ref, func(dir string) (string, error) { return t.audio(ctx, container, ref, dir) })
	case model.FieldVideo:
		text, err = t.withTempDir(ref, func(dir string) (string, error) { return t.video(ctx, container, ref, dir) })
	default:
		err = &Error{BlobID: ref.ID, Op: "route", Err: fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)}
	}

	ev := t.log.Debug()
	if err != nil {
		ev = t.log.Warn().Err(err)
	}

	ev.Str("blob_id", ref.ID).Str("kind", string(kind)).Dur("took", time.Since(start)).Msg("media transcription finished")

	return text, err
}

func (t *Transcriber) withTempDir(ref model.MediaRef, fn func(dir string) (string, error)) (string, error) {
	dir, err := os.MkdirTemp(t.TempRoot, "transcribe-*")
	if err != nil {
		return "", &Error{BlobID: ref.ID, Op: "tempdir", Err: err}
	}
	defer os.RemoveAll(dir)

	return fn(dir)
}

func (t *Transcriber) image(ctx context.Context, container string, ref model.MediaRef) (string, error) {
	ttl := t.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}

	url, err := t.Blobs.PresignGet(ctx, container, ref.ID, ttl)
	if err != nil {
		return "", &Error{BlobID: ref.ID, Op: "presign", Err: err}
	}

	text, err := t.Vision.Describe(ctx, url)
	if err != nil {
		return "", &Error{BlobID: ref.ID, Op: "vision", Err: err}
	}

	return strings.TrimSpace(text), nil
}

func (t *Transcriber) download(ctx context.Context, container string, ref model.MediaRef, dir string) (string, error) {
	path := filepath.Join(dir, SafeName(ref.ID, ref.Name))

	f, err := os.Create(path)
	if err != nil {
		return "", &Error{BlobID: ref.ID, Op: "download", Err: err}
	}

	_, err = t.Blobs.Download(ctx, container, ref.ID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return "", &Error{BlobID: ref.ID, Op: "download", Err: err}
	}

	return path, nil
}

func (t *Transcriber) audio(ctx context.Context, container string, ref model.MediaRef, dir string) (string, error) {
	path, err := t.download(ctx, container, ref, dir)
	if err != nil {
		return "", err
	}

	return t.speechFile(ctx, ref, path, dir)
}

func (t *Transcriber) video(ctx context.Context, container string, ref model.MediaRef, dir string) (string, error) {
	path, err := t.download(ctx, container, ref, dir)
	if err != nil {
		return "", err
	}

	wav := filepath.Join(dir, SafeName(ref.ID, "audio.wav"))
	if err := t.Tool.ExtractAudio(ctx, path, wav); err != nil {
		return "", &Error{BlobID: ref.ID, Op: "extract", Err: err}
	}

	defer os.Remove(wav)

	return t.speechFile(ctx, ref, wav, dir)
}

// speechFile 按需切分后逐片转写，以单个空格连接.
func (t *Transcriber) speechFile(ctx context.Context, ref model.MediaRef, path, dir string) (string, error) {
	limit := t.ChunkBytes
	if limit <= 0 {
		limit = MaxChunkBytes
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", &Error{BlobID: ref.ID, Op: "stat", Err: err}
	}

	chunks := []string{path}

	if info.Size() > limit {
		chunks, err = t.Tool.SplitAudio(ctx, path, dir, SafeName(ref.ID, "chunk"), limit)
		if err != nil {
			return "", &Error{BlobID: ref.ID, Op: "split", Err: err}
		}
	}

	parts := make([]string, 0, len(chunks))

	for _, chunk := range chunks {
		text, err := t.speechChunk(ctx, chunk)
		if err != nil {
			return "", &Error{BlobID: ref.ID, Op: "speech", Err: err}
		}

		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

func (t *Transcriber) speechChunk(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	metrics.TranscriptionChunks.Inc()

	text, err := t.Speech.Transcribe(ctx, filepath.Base(path), f)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

var nameReplacer = strings.NewReplacer(" ", "_", ":", "_", "/", "_", "\\", "_")

// SafeName 返回以 blob id 为前缀、替换空格与路径分隔符后的文件名.
func SafeName(blobID, name string) string {
	id := nameReplacer.Replace(blobID)

	name = nameReplacer.Replace(strings.TrimSpace(name))
	if name == "" {
		return id
	}

	return id + "_" + name
}
