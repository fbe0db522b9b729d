package adapter

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/MeowSalty/relay/gateway/types"
)

// OpenAIAdapter OpenAI 兼容格式的 HTTP 提供商适配器
//
// 基于官方 SDK，通过 BaseURL 覆盖适配任何 OpenAI 兼容服务
// （OpenRouter、Groq、自建网关等）。SDK 自带的重试被禁用，
// 重试与轮换策略统一由路由器负责。
type OpenAIAdapter struct {
	client openai.Client
	logger *slog.Logger
}

// NewOpenAIAdapter 创建 OpenAI 兼容适配器
func NewOpenAIAdapter(provider *types.ProviderConfig, timeout time.Duration, logger *slog.Logger) *OpenAIAdapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if provider.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(provider.BaseURL))
	}

	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		logger: logger,
	}
}

// Available HTTP 提供商静态可用
func (a *OpenAIAdapter) Available() bool { return true }

// Complete 发起一次补全调用
func (a *OpenAIAdapter) Complete(ctx context.Context, prompt, model string, credential types.Credential, params types.Params) *types.Result {
	reqParams := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(temperatureOrDefault(params)),
	}
	if params.MaxTokens != nil {
		reqParams.MaxTokens = openai.Int(int64(*params.MaxTokens))
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, reqParams, option.WithAPIKey(credential.Value))
	latency := time.Since(start)

	if err != nil {
		return a.classify(err, latency)
	}

	if len(resp.Choices) == 0 {
		return transient(errors.New("响应中没有任何候选内容"), latency)
	}

	usage := types.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return success(resp.Choices[0].Message.Content, usage, latency)
}

// classify 把 SDK 错误归类为统一结果
//
// 429 视为限流（尽量提取 Retry-After 作为等待提示），5xx 与网络层
// 错误视为瞬时，其余 4xx 视为致命（请求格式或认证问题，重试无意义）。
func (a *OpenAIAdapter) classify(err error, latency time.Duration) *types.Result {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return rateLimited(err, retryAfterHint(apierr), latency)
		case apierr.StatusCode >= 500:
			return transient(err, latency)
		default:
			return fatal(err, latency)
		}
	}
	return transient(err, latency)
}

// retryAfterHint 从 429 响应头提取 Retry-After（秒）
func retryAfterHint(apierr *openai.Error) time.Duration {
	if apierr.Response == nil {
		return 0
	}
	raw := apierr.Response.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
