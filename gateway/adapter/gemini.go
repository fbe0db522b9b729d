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

// GeminiAdapter Google Gemini 格式的 HTTP 提供商适配器
type GeminiAdapter struct {
	client   *fasthttp.Client
	baseURL  string
	strategy auth.Strategy
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGeminiAdapter 创建 Gemini 适配器
func NewGeminiAdapter(provider *types.ProviderConfig, timeout time.Duration, logger *slog.Logger) *GeminiAdapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GeminiAdapter{
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		baseURL:  strings.TrimRight(provider.BaseURL, "/"),
		strategy: auth.NewRegistry()[auth.FormatGemini],
		timeout:  timeout,
		logger:   logger,
	}
}

// Available HTTP 提供商静态可用
func (a *GeminiAdapter) Available() bool { return true }

// geminiRequest generateContent 请求体
type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`                   // 对话内容
	GenerationConfig geminiGenConfig  `json:"generationConfig,omitempty"` // 生成参数
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"` // 内容片段
}

type geminiPart struct {
	Text string `json:"text"` // 文本内容
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`               // 采样温度
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"` // 输出 token 上限
}

// geminiResponse generateContent 响应体
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"` // 候选内容
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`     // 提示词 token 数
		CandidatesTokenCount int `json:"candidatesTokenCount"` // 补全 token 数
		TotalTokenCount      int `json:"totalTokenCount"`      // 总 token 数
	} `json:"usageMetadata"`
}

// Complete 发起一次补全调用
func (a *GeminiAdapter) Complete(ctx context.Context, prompt, model string, credential types.Credential, params types.Params) *types.Result {
	payload := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenConfig{
			Temperature: temperatureOrDefault(params),
		},
	}
	if params.MaxTokens != nil {
		payload.GenerationConfig.MaxOutputTokens = *params.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fatal(fmt.Errorf("序列化请求体失败：%w", err), 0)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, model)

	start := time.Now()
	resp, err := postJSON(ctx, a.client, url, a.strategy, credential.Value, body, a.timeout)
	latency := time.Since(start)

	if err != nil {
		return transient(fmt.Errorf("请求 Gemini 接口失败：%w", err), latency)
	}
	if resp.Status != fasthttp.StatusOK {
		return resp.classify(fmt.Errorf("Gemini 接口返回状态码 %d：%s", resp.Status, truncate(resp.Body, 200)), latency)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return transient(fmt.Errorf("解析 Gemini 响应失败：%w", err), latency)
	}
	if len(parsed.Candidates) == 0 {
		return transient(errors.New("Gemini 响应中没有任何候选内容"), latency)
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	usage := types.Usage{
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
	}
	return success(text.String(), usage, latency)
}

// truncate 截断响应体用于错误信息
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
