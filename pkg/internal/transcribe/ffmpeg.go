package transcribe

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FFmpegTool 通过 ffmpeg / ffprobe 实现 MediaTool.
type FFmpegTool struct {
	FFmpeg  string
	FFprobe string
	Timeout time.Duration
}

// NewFFmpegTool 使用 PATH 中的 ffmpeg 与 ffprobe.
func NewFFmpegTool() *FFmpegTool {
	return &FFmpegTool{FFmpeg: "ffmpeg", FFprobe: "ffprobe", Timeout: 10 * time.Minute}
}

// AssertReady 检查依赖的可执行文件是否存在.
func (f *FFmpegTool) AssertReady() error {
	for _, bin := range []string{f.FFmpeg, f.FFprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}

	return nil
}

func (f *FFmpegTool) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w; output=%s", bin, err, strings.TrimSpace(string(out)))
	}

	return out, nil
}

// duration 读取媒体时长（秒）.
func (f *FFmpegTool) duration(ctx context.Context, in string) (float64, error) {
	out, err := f.run(ctx, f.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		in,
	)
	if err != nil {
		return 0, err
	}

	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("ffprobe: unusable duration %q", strings.TrimSpace(string(out)))
	}

	return d, nil
}

// SplitAudio 按时长等分为连续分片，分片时长按字节上限缩放并留 10% 余量.
func (f *FFmpegTool) SplitAudio(ctx context.Context, in, outDir, prefix string, maxBytes int64) ([]string, error) {
	info, err := os.Stat(in)
	if err != nil {
		return nil, err
	}

	if info.Size() <= maxBytes {
		return []string{in}, nil
	}

	dur, err := f.duration(ctx, in)
	if err != nil {
		return nil, err
	}

	segment := dur * 0.9 * float64(maxBytes) / float64(info.Size())
	segment = math.Max(segment, 1)

	ext := filepath.Ext(in)
	if ext == "" {
		ext = ".wav"
	}

	pattern := filepath.Join(outDir, prefix+"_%03d"+ext)

	if _, err := f.run(ctx, f.FFmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(segment, 'f', 3, 64),
		"-c", "copy",
		pattern,
	); err != nil {
		return nil, err
	}

	chunks, err := filepath.Glob(filepath.Join(outDir, prefix+"_*"+ext))
	if err != nil {
		return nil, err
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no segments for %s", filepath.Base(in))
	}

	sort.Strings(chunks)

	for _, c := range chunks {
		st, err := os.Stat(c)
		if err != nil {
			return nil, err
		}

		if st.Size() > maxBytes {
			return nil, fmt.Errorf("segment %s is %d bytes, above limit %d", filepath.Base(c), st.Size(), maxBytes)
		}
	}

	return chunks, nil
}

// ExtractAudio 提取单声道 16 kHz PCM WAV.
func (f *FFmpegTool) ExtractAudio(ctx context.Context, video, out string) error {
	_, err := f.run(ctx, f.FFmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", video,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		out,
	)

	return err
}
