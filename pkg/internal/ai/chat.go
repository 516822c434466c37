package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/yeisme/storyvault/pkg/internal/apperr"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// ErrEmptyResponse 模型未返回内容.
var ErrEmptyResponse = errors.New("model returned no content")

func (c *Client) chat(ctx context.Context, req chatRequest) (string, error) {
	req.Model = c.ep.Model

	var resp chatResponse
	if err := c.do(ctx, c.jsonRequest("/v1/chat/completions", req), &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", msg.Refusal)
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

// Complete 纯文本补全.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.chat(ctx, chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	})
}

// GenerateJSON 按 JSON Schema 生成结构化输出. 无法解析为对象时返回 Corrupt.
func (c *Client) GenerateJSON(ctx context.Context, system, user, name string, schema map[string]any) (map[string]any, error) {
	if name == "" || schema == nil {
		return nil, errors.New("schema name and schema are required")
	}

	text, err := c.chat(ctx, chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   name,
				"schema": schema,
				"strict": true,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	obj := map[string]any{}
	if err := sonic.UnmarshalString(text, &obj); err != nil {
		return nil, apperr.Wrap(apperr.KindCorrupt, "generate json", err)
	}

	return obj, nil
}

// Describe 使用视觉模型描述图片.
func (c *Client) Describe(ctx context.Context, imageURL string) (string, error) {
	return c.chat(ctx, chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: describeImagePrompt},
			{Role: "user", Content: []map[string]any{
				{"type": "text", "text": "Describe this image."},
				{"type": "image_url", "image_url": map[string]any{"url": imageURL}},
			}},
		},
		Temperature: 0.2,
	})
}

const describeImagePrompt = "You describe images attached to patient stories. " +
	"Describe what is visible in a few sentences. Do not guess names or identities."
