package openai

import (
	"fmt"
	"strings"
	"time"

	gwtypes "github.com/MeowSalty/relay/gateway/types"
)

// ChatMessage OpenAI 格式的对话消息
type ChatMessage struct {
	Role    string `json:"role"`    // 消息角色（system/user/assistant）
	Content string `json:"content"` // 消息内容
}

// ChatCompletionRequest OpenAI 兼容的聊天补全请求
type ChatCompletionRequest struct {
	Model       string        `json:"model"`                 // 模型标识
	Messages    []ChatMessage `json:"messages"`              // 对话消息列表
	Stream      bool          `json:"stream,omitempty"`      // 是否流式返回（不支持）
	Temperature *float64      `json:"temperature,omitempty"` // 采样温度
	MaxTokens   *int          `json:"max_tokens,omitempty"`  // 补全 token 上限
}

// ChatCompletionChoice 聊天补全的单个候选结果
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletionResponse OpenAI 兼容的聊天补全响应
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   gwtypes.Usage          `json:"usage"`
}

// Model 结构体定义了 OpenAI 兼容的模型信息
type Model struct {
	ID      string `json:"id"`       // 模型 ID
	Object  string `json:"object"`   // 对象类型，通常是 "model"
	Created int64  `json:"created"`  // 创建时间戳
	OwnedBy string `json:"owned_by"` // 模型所有者
}

// ModelList 结构体定义了模型列表响应格式
type ModelList struct {
	Object string  `json:"object"` // 对象类型，通常是 "list"
	Data   []Model `json:"data"`   // 模型列表
}

// ErrorDetail OpenAI 格式的错误明细
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorResponse OpenAI 格式的错误响应
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// chatRequestToRequest 把 OpenAI 聊天请求转换为路由请求
//
// 路由引擎消费单段提示词：只有一条消息时取其内容原文；多条消息
// 按 "角色: 内容" 逐条拼接，保留对话结构。
func chatRequestToRequest(req *ChatCompletionRequest) *gwtypes.Request {
	var prompt string
	if len(req.Messages) == 1 {
		prompt = req.Messages[0].Content
	} else {
		parts := make([]string, len(req.Messages))
		for i, m := range req.Messages {
			parts[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
		}
		prompt = strings.Join(parts, "\n\n")
	}

	return &gwtypes.Request{
		Model:  req.Model,
		Prompt: prompt,
		Params: gwtypes.Params{
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		},
	}
}

// responseToChatCompletion 把路由响应转换为 OpenAI 聊天补全响应
func responseToChatCompletion(resp *gwtypes.Response) *ChatCompletionResponse {
	return &ChatCompletionResponse{
		ID:      "chatcmpl-" + resp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []ChatCompletionChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: resp.Text},
			FinishReason: "stop",
		}},
		Usage: resp.Usage,
	}
}
