package stats

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MeowSalty/relay/services/stats"
)

// Handler 统计处理器结构体
type Handler struct {
	statsService stats.Service
}

// NewStatsHandler 创建统计处理器实例
//
// 参数：
//   - statsService: 统计服务接口实例
//
// 返回值：
//   - *Handler: 统计处理器实例
func NewStatsHandler(statsService stats.Service) *Handler {
	return &Handler{
		statsService: statsService,
	}
}

// GetRealtime 获取实时数据
//
// 返回值：
//   - 成功：实时请求速率与活动连接数
func (h *Handler) GetRealtime(c *fiber.Ctx) error {
	return c.JSON(h.statsService.Realtime())
}

// GetUsage 获取限流窗口用量快照
//
// 返回值：
//   - 成功：滚动窗口内各模型的请求数、token 数与限额
func (h *Handler) GetUsage(c *fiber.Ctx) error {
	return c.JSON(h.statsService.Usage())
}

// GetProviders 获取各提供商的运行状态
//
// 响应包含可用性、凭证数量与轮换位置，凭证值永不返回。
func (h *Handler) GetProviders(c *fiber.Ctx) error {
	return c.JSON(h.statsService.Providers())
}

// GetOverview 获取全局概览数据
//
// 查询参数：
//
//	hours - 统计时间范围（小时），默认为 24，最大 720
//
// 返回值：
//
//	成功 - 全局概览数据
//	失败 - 错误信息
func (h *Handler) GetOverview(c *fiber.Ctx) error {
	overview, err := h.statsService.Overview(c.Context(), queryDuration(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "获取统计概览数据失败："+err.Error())
	}

	return c.JSON(overview)
}

// ListRequestLogs 获取最近的请求日志
//
// 查询参数：
//
//	limit - 返回条数，默认为 50，最大 200
//
// 返回值：
//
//	成功 - 按时间倒序的请求日志列表
//	失败 - 错误信息
func (h *Handler) ListRequestLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	logs, err := h.statsService.Recent(c.Context(), limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "获取请求日志失败："+err.Error())
	}

	return c.JSON(logs)
}

// GetProviderRank 获取提供商调用排名
//
// 查询参数：
//
//	hours - 统计时间范围（小时），默认为 24，最大 720
//
// 返回值：
//
//	成功 - 按请求量降序的提供商排名
//	失败 - 错误信息
func (h *Handler) GetProviderRank(c *fiber.Ctx) error {
	rank, err := h.statsService.ProviderRank(c.Context(), queryDuration(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "获取提供商排名失败："+err.Error())
	}

	return c.JSON(rank)
}

// queryDuration 解析统计时间范围查询参数
func queryDuration(c *fiber.Ctx) time.Duration {
	hours := c.QueryInt("hours", 24)
	if hours <= 0 {
		hours = 24
	}
	if hours > 720 {
		hours = 720
	}
	return time.Duration(hours) * time.Hour
}
