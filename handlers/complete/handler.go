package complete

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	gwtypes "github.com/MeowSalty/relay/gateway/types"
	gatewayService "github.com/MeowSalty/relay/services/gateway"
)

// Handler 原生补全接口的处理器
//
// 与 OpenAI 兼容层不同，此接口直接暴露路由引擎的寻址方式：
// 角色、显式模型或模型链三选一，提示词为单段文本。
type Handler struct {
	service gatewayService.Service
}

// New 创建补全处理器实例
//
// 参数：
//   - service: 补全路由服务实例
//
// 返回值：
//   - *Handler: 初始化后的处理器实例
func New(service gatewayService.Service) *Handler {
	return &Handler{service: service}
}

// CompleteResponse 原生补全接口的响应
type CompleteResponse struct {
	ID         string        `json:"id"`          // 响应标识
	Text       string        `json:"text"`        // 补全文本
	Model      string        `json:"model"`       // 实际使用的模型
	Provider   string        `json:"provider"`    // 实际使用的提供商
	Usage      gwtypes.Usage `json:"usage"`       // token 用量
	DurationMs float64       `json:"duration_ms"` // 成功调用的耗时（毫秒）
	Attempts   int           `json:"attempts"`    // 路由尝试总数（含失败的候选）
}

// Complete 处理一次原生补全请求
//
// 请求体为路由请求的 JSON 形式：role、model、model_chain 三者
// 取其一，prompt 必填，params 可选。
//
// 返回值：
//
//	成功 - 补全结果与路由统计
//	失败 - 错误信息
func (h *Handler) Complete(c *fiber.Ctx) error {
	var req gwtypes.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("无法解析请求：%v", err),
		})
	}

	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "prompt 不能为空",
		})
	}

	resp, err := h.service.Complete(c.Context(), &req)
	if err != nil {
		return completionError(c, err)
	}

	return c.JSON(&CompleteResponse{
		ID:         resp.ID,
		Text:       resp.Text,
		Model:      resp.Model,
		Provider:   resp.Provider,
		Usage:      resp.Usage,
		DurationMs: float64(resp.Latency) / float64(time.Millisecond),
		Attempts:   len(resp.Attempts),
	})
}

// completionError 把路由错误映射为 HTTP 状态码
//
// 配置错误视为客户端请求问题（400），所有候选耗尽映射为上游故障
// （502），客户端取消按 nginx 约定返回 499。
func completionError(c *fiber.Ctx, err error) error {
	var cfgErr *gwtypes.ConfigurationError
	var exhausted *gwtypes.AllProvidersExhaustedError

	switch {
	case errors.As(err, &cfgErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": cfgErr.Error(),
		})
	case errors.As(err, &exhausted):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":    exhausted.Error(),
			"attempts": exhausted.Attempts,
		})
	case errors.Is(err, context.Canceled):
		return c.SendStatus(499)
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("处理请求时发生内部错误：%v", err),
		})
	}
}
