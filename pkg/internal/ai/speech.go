package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe 将音频上传到语音模型并返回文本. 请求体在内存中构建一次，重试时复用.
func (c *Client) Transcribe(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("model", c.ep.Model); err != nil {
		return "", err
	}

	fw, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(fw, r); err != nil {
		return "", fmt.Errorf("read audio %s: %w", filename, err)
	}

	if err := mw.Close(); err != nil {
		return "", err
	}

	payload := buf.Bytes()

	req := request{
		path:        "/v1/audio/transcriptions",
		contentType: mw.FormDataContentType(),
		body: func() (io.Reader, error) {
			return bytes.NewReader(payload), nil
		},
	}

	var resp transcriptionResponse
	if err := c.do(ctx, req, &resp); err != nil {
		return "", err
	}

	return strings.TrimSpace(resp.Text), nil
}
