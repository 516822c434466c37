package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/storyvault/pkg/configs"
	"github.com/yeisme/storyvault/pkg/internal/apperr"
	"github.com/yeisme/storyvault/pkg/internal/model"
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type stubBlobs struct {
	size      int64
	container string
	err       error
}

func (s *stubBlobs) Download(_ context.Context, container, _ string, w io.Writer) (int64, error) {
	s.container = container
	if s.err != nil {
		return 0, s.err
	}

	return io.CopyN(w, zeroReader{}, s.size)
}

func (s *stubBlobs) PresignGet(_ context.Context, container, blobID string, ttl time.Duration) (string, error) {
	s.container = container
	return fmt.Sprintf("https://blob.local/%s/%s?ttl=%s", container, blobID, ttl), nil
}

type stubSpeech struct {
	mu     sync.Mutex
	calls  []string
	sizes  []int64
	failAt int
}

func (s *stubSpeech) Transcribe(_ context.Context, filename string, r io.Reader) (string, error) {
	n, _ := io.Copy(io.Discard, r)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, filename)
	s.sizes = append(s.sizes, n)

	if s.failAt > 0 && len(s.calls) == s.failAt {
		return "", errors.New("speech model timeout")
	}

	return fmt.Sprintf("part%d", len(s.calls)), nil
}

type stubVision struct{ url string }

func (s *stubVision) Describe(_ context.Context, url string) (string, error) {
	s.url = url
	return " a child smiling ", nil
}

// byteSplitter 按字节切分，模拟 ffmpeg 分段.
type byteSplitter struct {
	extracted bool
}

func (b *byteSplitter) SplitAudio(_ context.Context, in, outDir, prefix string, maxBytes int64) ([]string, error) {
	src, err := os.Open(in)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var out []string

	for i := 0; ; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("%s_%03d.wav", prefix, i))

		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}

		n, err := io.CopyN(f, src, maxBytes)
		_ = f.Close()

		if n == 0 {
			_ = os.Remove(path)
			break
		}

		out = append(out, path)

		if errors.Is(err, io.EOF) {
			break
		}
	}

	return out, nil
}

func (b *byteSplitter) ExtractAudio(_ context.Context, video, out string) error {
	b.extracted = true

	data, err := os.ReadFile(video)
	if err != nil {
		return err
	}

	return os.WriteFile(out, data[:len(data)/2], 0o600)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func TestLargeAudioIsChunked(t *testing.T) {
	root := t.TempDir()
	speech := &stubSpeech{}
	blobs := &stubBlobs{size: 60 << 20}

	tr := New(blobs, speech, &stubVision{}, &byteSplitter{})
	tr.TempRoot = root

	text, err := tr.Transcribe(context.Background(), model.FieldAudio, model.MediaRef{ID: "blob-1", Name: "long talk.mp3"})
	require.NoError(t, err)

	assert.Equal(t, "part1 part2 part3", text)
	require.Len(t, speech.calls, 3)
	assert.Equal(t, []int64{25 << 20, 25 << 20, 10 << 20}, speech.sizes)
	assert.Equal(t, configs.BucketFormAudio, blobs.container)
	assertEmptyDir(t, root)
}

func TestChunkFailureCleansUp(t *testing.T) {
	root := t.TempDir()
	speech := &stubSpeech{failAt: 2}

	tr := New(&stubBlobs{size: 60 << 20}, speech, &stubVision{}, &byteSplitter{})
	tr.TempRoot = root

	_, err := tr.Transcribe(context.Background(), model.FieldAudio, model.MediaRef{ID: "blob-2", Name: "a.mp3"})
	require.Error(t, err)

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "blob-2", te.BlobID)
	assert.Equal(t, "speech", te.Op)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
	assertEmptyDir(t, root)
}

func TestSmallAudioSingleCall(t *testing.T) {
	root := t.TempDir()
	speech := &stubSpeech{}

	tr := New(&stubBlobs{size: 1024}, speech, &stubVision{}, &byteSplitter{})
	tr.TempRoot = root

	text, err := tr.Transcribe(context.Background(), model.FieldAudio, model.MediaRef{ID: "b3", Name: "x.m4a"})
	require.NoError(t, err)
	assert.Equal(t, "part1", text)
	assert.Equal(t, []string{"b3_x.m4a"}, speech.calls)
	assertEmptyDir(t, root)
}

func TestVideoExtractsAudio(t *testing.T) {
	root := t.TempDir()
	tool := &byteSplitter{}
	speech := &stubSpeech{}
	blobs := &stubBlobs{size: 4096}

	tr := New(blobs, speech, &stubVision{}, tool)
	tr.TempRoot = root

	text, err := tr.Transcribe(context.Background(), model.FieldVideo, model.MediaRef{ID: "v1", Name: "clip.mp4"})
	require.NoError(t, err)
	assert.True(t, tool.extracted)
	assert.Equal(t, "part1", text)
	assert.Equal(t, []int64{2048}, speech.sizes)
	assert.Equal(t, configs.BucketFormVideo, blobs.container)
	assertEmptyDir(t, root)
}

func TestImageUsesPresignedURL(t *testing.T) {
	vision := &stubVision{}
	blobs := &stubBlobs{}

	tr := New(blobs, &stubSpeech{}, vision, &byteSplitter{})

	text, err := tr.Transcribe(context.Background(), model.FieldImage, model.MediaRef{ID: "i1"})
	require.NoError(t, err)
	assert.Equal(t, "a child smiling", text)
	assert.Contains(t, vision.url, "/form-image/i1")
	assert.Contains(t, vision.url, "ttl=15m0s")
}

func TestDownloadFailure(t *testing.T) {
	root := t.TempDir()

	tr := New(&stubBlobs{err: errors.New("connection reset")}, &stubSpeech{}, &stubVision{}, &byteSplitter{})
	tr.TempRoot = root

	_, err := tr.Transcribe(context.Background(), model.FieldAudio, model.MediaRef{ID: "b4"})

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "download", te.Op)
	assertEmptyDir(t, root)
}

func TestFileKindUnsupported(t *testing.T) {
	tr := New(&stubBlobs{}, &stubSpeech{}, &stubVision{}, &byteSplitter{})

	_, err := tr.Transcribe(context.Background(), model.FieldFile, model.MediaRef{ID: "f1"})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestSafeName(t *testing.T) {
	tests := map[string]struct{ id, name, want string }{
		"plain":      {"b1", "a.mp3", "b1_a.mp3"},
		"separators": {"b1", "my file: v1/2\\3.mp3", "b1_my_file__v1_2_3.mp3"},
		"empty name": {"b1", "  ", "b1"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeName(tt.id, tt.name))
		})
	}
}
