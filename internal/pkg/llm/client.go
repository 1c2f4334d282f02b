package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"k8s.io/klog/v2"
)

// Client OpenAI 兼容接口的 LLM 客户端
// 各家平台（DeepSeek、百炼、豆包、月之暗面、Ollama）均走同一套 wire 格式
type Client struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Client      *http.Client
}

// NewClient 创建新的 LLM 客户端
func NewClient(baseURL, apiKey, model string, maxTokens int, temperature float64) *Client {
	return &Client{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Chat 发送对话请求
// req 中未填写的 Model/MaxTokens/Temperature 取客户端默认值
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = c.Temperature
	}

	klog.V(6).Infof("Chat 请求: model=%s, messages=%d", req.Model, len(req.Messages))
	return c.sendRequest(ctx, req)
}

// sendRequest 发送 HTTP 请求到 LLM API
func (c *Client) sendRequest(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	url := c.BaseURL + "/chat/completions"
	klog.V(6).Infof("发送 LLM 请求: url=%s, model=%s", url, reqBody.Model)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Type:       chatResp.Error.Type,
			Code:       chatResp.Error.Code,
			Message:    chatResp.Error.Message,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &chatResp, nil
}
