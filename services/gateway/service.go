package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MeowSalty/relay/gateway"
	"github.com/MeowSalty/relay/gateway/types"
)

// Service 补全路由服务接口
// 封装路由引擎，附加模型映射与请求级日志
type Service interface {
	// Complete 处理一次补全请求
	Complete(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close 优雅关闭服务
	Close(timeout time.Duration) error
}

// service 是 Service 接口的具体实现
type service struct {
	engine  *gateway.Gateway
	mapping map[string]string
	logger  *slog.Logger
}

// New 创建补全路由服务实例
//
// 参数：
//
//	engine - 路由引擎实例
//	modelMapping - 模型映射规则表，形如 "请求模型:目标模型,..."，可为空
//	logger - 日志记录器
//
// 返回值：
//
//	Service - 补全路由服务实例
//	error - 映射规则格式非法时返回错误
func New(engine *gateway.Gateway, modelMapping string, logger *slog.Logger) (Service, error) {
	mapping, err := ParseModelMapping(modelMapping)
	if err != nil {
		return nil, err
	}
	if len(mapping) > 0 {
		logger.Info("模型映射规则已加载", "rules", len(mapping))
	}

	return &service{
		engine:  engine,
		mapping: mapping,
		logger:  logger,
	}, nil
}

// Complete 处理一次补全请求
//
// 进入路由前先应用模型映射规则，路由结束后记录结果日志。
func (s *service) Complete(ctx context.Context, req *types.Request) (*types.Response, error) {
	s.rewriteModels(req)

	s.logger.InfoContext(ctx, "开始处理补全请求",
		slog.String("role", req.Role),
		slog.String("model", req.Model),
		slog.Int("chain_length", len(req.ModelChain)),
	)

	resp, err := s.engine.Complete(ctx, req)
	if err != nil {
		s.logger.ErrorContext(ctx, "补全请求处理失败", slog.Any("error", err))
		return nil, fmt.Errorf("补全处理失败：%w", err)
	}

	s.logger.InfoContext(ctx, "补全请求处理成功",
		"provider", resp.Provider,
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
	)

	return resp, nil
}

// Close 优雅关闭服务
//
// 等待进行中的请求结束，超时后返回错误。
func (s *service) Close(timeout time.Duration) error {
	s.logger.Info("正在关闭补全路由服务")
	if err := s.engine.Close(timeout); err != nil {
		return fmt.Errorf("关闭路由引擎失败：%w", err)
	}
	s.logger.Info("补全路由服务已关闭")
	return nil
}

// rewriteModels 应用模型映射规则
//
// 显式模型与模型链中的每一项都会查表改写；角色名不受影响。
func (s *service) rewriteModels(req *types.Request) {
	if len(s.mapping) == 0 {
		return
	}

	if target, ok := s.mapping[req.Model]; ok && req.Model != "" {
		s.logger.Debug("模型已映射", "from", req.Model, "to", target)
		req.Model = target
	}

	for i, m := range req.ModelChain {
		if target, ok := s.mapping[m]; ok {
			s.logger.Debug("模型已映射", "from", m, "to", target)
			req.ModelChain[i] = target
		}
	}
}

// ParseModelMapping 解析模型映射规则表
//
// 输入为逗号分隔的 "请求模型:目标模型" 规则，空白会被裁剪，
// 空串返回空表。规则缺少冒号或任一侧为空时返回错误。
func ParseModelMapping(raw string) (map[string]string, error) {
	mapping := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return mapping, nil
	}

	for _, rule := range strings.Split(raw, ",") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}

		from, to, ok := strings.Cut(rule, ":")
		from = strings.TrimSpace(from)
		to = strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("模型映射规则格式非法：%q（应为 请求模型:目标模型）", rule)
		}

		mapping[from] = to
	}

	return mapping, nil
}
