package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	gwtypes "github.com/MeowSalty/relay/gateway/types"
	gatewayService "github.com/MeowSalty/relay/services/gateway"
)

// Handler OpenAI 兼容 API 的处理器
type Handler struct {
	service gatewayService.Service
	catalog *gwtypes.Catalog
}

// New 创建 OpenAI API 处理器实例
//
// 参数：
//   - service: 补全路由服务实例
//   - catalog: 已解析的路由目录（模型列表来源）
//
// 返回值：
//   - *Handler: 初始化后的处理器实例
func New(service gatewayService.Service, catalog *gwtypes.Catalog) *Handler {
	return &Handler{
		service: service,
		catalog: catalog,
	}
}

// ChatCompletions 处理聊天补全请求
//
// 仅支持非流式调用；请求中的 messages 会被拼接为单段提示词后
// 交给路由引擎处理。
func (h *Handler) ChatCompletions(c *fiber.Ctx) error {
	var req ChatCompletionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, fmt.Sprintf("无法解析请求：%v", err))
	}

	if req.Stream {
		return badRequest(c, "暂不支持流式响应，请去掉 stream 参数")
	}
	if len(req.Messages) == 0 {
		return badRequest(c, "messages 不能为空")
	}

	resp, err := h.service.Complete(c.Context(), chatRequestToRequest(&req))
	if err != nil {
		return completionError(c, err)
	}

	return c.JSON(responseToChatCompletion(resp))
}

// ListModels 处理获取可用模型列表的请求
//
// 列表来自路由目录，按配置文件中的原始顺序返回。
func (h *Handler) ListModels(c *fiber.Ctx) error {
	created := time.Now().Unix()

	data := make([]Model, 0, len(h.catalog.ModelOrder))
	for _, id := range h.catalog.ModelOrder {
		route, ok := h.catalog.Model(id)
		if !ok {
			continue
		}
		data = append(data, Model{
			ID:      route.ID,
			Object:  "model",
			Created: created,
			OwnedBy: route.Provider,
		})
	}

	return c.JSON(ModelList{
		Object: "list",
		Data:   data,
	})
}

// badRequest 返回 OpenAI 格式的 400 错误
func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: ErrorDetail{Message: message, Type: "invalid_request_error"},
	})
}

// completionError 把路由错误映射为 OpenAI 格式的错误响应
//
// 配置错误视为客户端请求问题（400），所有候选耗尽映射为上游故障
// （502），客户端取消按 nginx 约定返回 499。
func completionError(c *fiber.Ctx, err error) error {
	var cfgErr *gwtypes.ConfigurationError
	var exhausted *gwtypes.AllProvidersExhaustedError

	switch {
	case errors.As(err, &cfgErr):
		return badRequest(c, cfgErr.Error())
	case errors.As(err, &exhausted):
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{
			Error: ErrorDetail{Message: exhausted.Error(), Type: "upstream_exhausted"},
		})
	case errors.Is(err, context.Canceled):
		return c.SendStatus(499)
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: ErrorDetail{Message: fmt.Sprintf("处理请求时发生内部错误：%v", err), Type: "internal_error"},
		})
	}
}
