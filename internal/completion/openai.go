package completion

import (
	"context"
	"net/http"
	"strings"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAI speaks the chat completions wire format, which also covers
// OpenRouter, Ollama, vLLM and similar servers.
type OpenAI struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewOpenAI(client *http.Client, baseURL, apiKey, model string) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	req := openaiRequest{Model: o.model}
	if system != "" {
		req.Messages = append(req.Messages, openaiMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, openaiMessage{Role: "user", Content: user})

	var resp openaiResponse
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	if err := postJSON(ctx, o.client, o.baseURL+"/v1/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", emptyReply("openai")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", emptyReply("openai")
	}
	return text, nil
}
