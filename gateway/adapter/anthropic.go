package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/MeowSalty/relay/gateway/adapter/auth"
	"github.com/MeowSalty/relay/gateway/types"
)

// anthropicDefaultMaxTokens messages 接口要求必填 max_tokens，未配置时的默认值
const anthropicDefaultMaxTokens = 1024

// AnthropicAdapter Anthropic 格式的 HTTP 提供商适配器
type AnthropicAdapter struct {
	client   *fasthttp.Client
	baseURL  string
	strategy auth.Strategy
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAnthropicAdapter 创建 Anthropic 适配器
func NewAnthropicAdapter(provider *types.ProviderConfig, timeout time.Duration, logger *slog.Logger) *AnthropicAdapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &AnthropicAdapter{
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		baseURL:  strings.TrimRight(provider.BaseURL, "/"),
		strategy: auth.NewRegistry()[auth.FormatAnthropic],
		timeout:  timeout,
		logger:   logger,
	}
}

// Available HTTP 提供商静态可用
func (a *AnthropicAdapter) Available() bool { return true }

// anthropicRequest messages 请求体
type anthropicRequest struct {
	Model       string             `json:"model"`       // 模型标识
	MaxTokens   int                `json:"max_tokens"`  // 补全 token 上限（必填）
	Messages    []anthropicMessage `json:"messages"`    // 对话消息
	Temperature float64            `json:"temperature"` // 采样温度
}

type anthropicMessage struct {
	Role    string `json:"role"`    // 角色
	Content string `json:"content"` // 内容
}

// anthropicResponse messages 响应体
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"` // 内容类型
		Text string `json:"text"` // 文本内容
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`  // 输入 token 数
		OutputTokens int `json:"output_tokens"` // 输出 token 数
	} `json:"usage"`
}

// Complete 发起一次补全调用
func (a *AnthropicAdapter) Complete(ctx context.Context, prompt, model string, credential types.Credential, params types.Params) *types.Result {
	maxTokens := anthropicDefaultMaxTokens
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}

	payload := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		Temperature: temperatureOrDefault(params),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fatal(fmt.Errorf("序列化请求体失败：%w", err), 0)
	}

	url := a.baseURL + "/v1/messages"

	start := time.Now()
	resp, err := postJSON(ctx, a.client, url, a.strategy, credential.Value, body, a.timeout)
	latency := time.Since(start)

	if err != nil {
		return transient(fmt.Errorf("请求 Anthropic 接口失败：%w", err), latency)
	}
	if resp.Status != fasthttp.StatusOK {
		return resp.classify(fmt.Errorf("Anthropic 接口返回状态码 %d：%s", resp.Status, truncate(resp.Body, 200)), latency)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return transient(fmt.Errorf("解析 Anthropic 响应失败：%w", err), latency)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return transient(errors.New("Anthropic 响应中没有文本内容"), latency)
	}

	usage := types.Usage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}
	return success(text.String(), usage, latency)
}
