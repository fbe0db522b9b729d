// Package gateway 实现 AI 补全请求的路由核心。
//
// 给定角色或模型（链），网关按配置顺序迭代候选，依次经过层级闸门、
// 可用性检查与滑动窗口限流，再调用提供商适配器；遇到配额信号时在
// 具备轮换能力的提供商上推进凭证并重试，首个成功立即返回，全部
// 候选耗尽则返回携带完整尝试记录的聚合错误。
//
// 网关自身不持有跨请求的可变状态，路由逻辑天然可重入；共享状态
// 收敛在限流器与轮换器内部，各自按键加锁。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeowSalty/relay/gateway/adapter"
	"github.com/MeowSalty/relay/gateway/ratelimit"
	"github.com/MeowSalty/relay/gateway/tokencount"
	"github.com/MeowSalty/relay/gateway/types"
)

// DefaultMaxWait 限流等待上限的默认值
//
// 拒绝提示的等待时间不超过该值时原地等待并复查一次，否则跳过候选。
const DefaultMaxWait = 30 * time.Second

// DefaultCompletionReserve 准入预估时为补全预留的 token 数默认值
const DefaultCompletionReserve = 1000

// RateLimiter 路由所需的限流能力，由 ratelimit.Limiter 实现
type RateLimiter interface {
	Admit(provider, model string, estimatedTokens int) ratelimit.Decision
	Record(provider, model string, actualTokens int)
}

// CredentialRotator 路由所需的凭证轮换能力，由 rotation.Rotator 实现
type CredentialRotator interface {
	Current(providerID string) (types.Credential, error)
	Advance(providerID string) (int, error)
}

// TierGate 路由所需的层级闸门能力，由 tier.Gate 实现
type TierGate interface {
	Allowed(provider *types.ProviderConfig, route *types.ModelRoute) bool
}

// RequestLogRepo 请求日志仓库
//
// 每次路由调用落一条记录；实现方（数据库层）负责持久化细节。
type RequestLogRepo interface {
	CreateRequestLog(ctx context.Context, entry *types.RequestLogEntry) error
}

// Config 网关装配配置
type Config struct {
	Catalog  *types.Catalog    // 已解析的路由目录
	Adapters *adapter.Registry // 提供商适配器注册表
	Limiter  RateLimiter       // 滑动窗口限流器
	Rotator  CredentialRotator // 凭证轮换器
	Gate     TierGate          // 层级闸门
	Counter  *tokencount.Counter
	LogRepo  RequestLogRepo // 请求日志仓库（可为 nil）
	Logger   *slog.Logger

	MaxWait           time.Duration // 限流等待上限，0 取默认值
	CompletionReserve int           // 准入预估的补全预留 token 数，0 取默认值
}

// Gateway 路由网关
type Gateway struct {
	catalog  *types.Catalog
	adapters *adapter.Registry
	limiter  RateLimiter
	rotator  CredentialRotator
	gate     TierGate
	counter  *tokencount.Counter
	logRepo  RequestLogRepo
	logger   *slog.Logger

	maxWait           time.Duration
	completionReserve int

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New 创建路由网关
func New(cfg Config) (*Gateway, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("缺少路由目录")
	}
	if cfg.Adapters == nil {
		return nil, errors.New("缺少适配器注册表")
	}
	if cfg.Limiter == nil || cfg.Rotator == nil || cfg.Gate == nil {
		return nil, errors.New("缺少限流器、轮换器或层级闸门")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Counter == nil {
		cfg.Counter = tokencount.NewCounter(cfg.Logger)
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.CompletionReserve <= 0 {
		cfg.CompletionReserve = DefaultCompletionReserve
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		catalog:           cfg.Catalog,
		adapters:          cfg.Adapters,
		limiter:           cfg.Limiter,
		rotator:           cfg.Rotator,
		gate:              cfg.Gate,
		counter:           cfg.Counter,
		logRepo:           cfg.LogRepo,
		logger:            cfg.Logger,
		maxWait:           cfg.MaxWait,
		completionReserve: cfg.CompletionReserve,
		rootCtx:           rootCtx,
		cancel:            cancel,
	}, nil
}

// Complete 处理一次补全路由请求
//
// 按配置顺序迭代候选（绝不动态重排，保证路由轨迹可复现），
// 首个成功立即返回；全部候选耗尽时返回 AllProvidersExhaustedError，
// 其中按顺序携带每个候选的失败原因。
func (g *Gateway) Complete(ctx context.Context, req *types.Request) (*types.Response, error) {
	g.wg.Add(1)
	defer g.wg.Done()

	if err := g.rootCtx.Err(); err != nil {
		return nil, errors.New("网关已关闭")
	}

	start := time.Now()

	candidates, err := g.candidates(req)
	if err != nil {
		g.saveRequestLog(req, nil, nil, start, err)
		return nil, err
	}

	estimated := g.counter.Count(req.Prompt) + g.completionReserve

	var attempts []types.Attempt
	for _, cand := range candidates {
		providerID := cand.provider.ID
		modelID := cand.route.ID

		// 层级闸门：不通过的候选直接跳过，不算失败
		if !g.gate.Allowed(cand.provider, cand.route) {
			attempts = g.recordAttempt(attempts, types.Attempt{
				Provider:        providerID,
				Model:           modelID,
				CredentialIndex: -1,
				Outcome:         types.OutcomeGated,
				Reason:          fmt.Sprintf("层级 %s 不在允许列表内", g.catalog.EffectiveTier(cand.route)),
			})
			continue
		}

		a, ok := g.adapters.Get(providerID)
		if !ok {
			attempts = g.recordAttempt(attempts, types.Attempt{
				Provider:        providerID,
				Model:           modelID,
				CredentialIndex: -1,
				Outcome:         types.OutcomeConfigError,
				Reason:          "提供商没有适配器",
			})
			continue
		}
		if !a.Available() {
			attempts = g.recordAttempt(attempts, types.Attempt{
				Provider:        providerID,
				Model:           modelID,
				CredentialIndex: -1,
				Outcome:         types.OutcomeUnavailable,
				Reason:          "提供商当前不可用",
			})
			continue
		}

		// 限流准入：等待提示在上限内时原地等待并复查一次，否则跳过
		decision := g.limiter.Admit(providerID, modelID, estimated)
		if !decision.Allowed && decision.RetryAfter <= g.maxWait {
			if err := g.sleep(ctx, decision.RetryAfter); err != nil {
				g.saveRequestLog(req, nil, attempts, start, err)
				return nil, err
			}
			decision = g.limiter.Admit(providerID, modelID, estimated)
		}
		if !decision.Allowed {
			attempts = g.recordAttempt(attempts, types.Attempt{
				Provider:        providerID,
				Model:           modelID,
				CredentialIndex: -1,
				Outcome:         types.OutcomeRateLimited,
				Reason:          (&types.RateLimitedError{Provider: providerID, Model: modelID, RetryAfter: decision.RetryAfter}).Error(),
			})
			continue
		}

		resp, candAttempts, err := g.invoke(ctx, cand, a, req, estimated)
		attempts = append(attempts, candAttempts...)
		if err != nil {
			// 上下文取消会被直接上抛，其余失败转入下一个候选
			g.saveRequestLog(req, nil, attempts, start, err)
			return nil, err
		}
		if resp != nil {
			resp.Attempts = attempts
			g.saveRequestLog(req, resp, attempts, start, nil)
			return resp, nil
		}
	}

	finalErr := &types.AllProvidersExhaustedError{Attempts: attempts}
	g.logger.Error("所有候选均失败",
		"candidates", len(candidates),
		"attempts", len(attempts),
		"role", req.Role,
		"model", req.Model)
	g.saveRequestLog(req, nil, attempts, start, finalErr)
	return nil, finalErr
}

// invoke 在单个候选上执行调用，必要时做凭证轮换重试
//
// 返回非 nil 的响应表示成功；响应与错误都为 nil 表示该候选失败、
// 继续下一个候选；错误非 nil 表示整个路由应当中止（上下文取消）。
func (g *Gateway) invoke(ctx context.Context, cand candidate, a adapter.Adapter, req *types.Request, estimated int) (*types.Response, []types.Attempt, error) {
	providerID := cand.provider.ID
	modelID := cand.route.ID

	params := req.Params
	if params.MaxTokens == nil && cand.route.MaxTokens > 0 {
		maxTokens := cand.route.MaxTokens
		params.MaxTokens = &maxTokens
	}

	rotationCapable := cand.provider.RotationCapable()
	maxAttempts := 1
	if rotationCapable {
		// 轮换重试以凭证数为上界，绝不无限循环
		maxAttempts = len(cand.provider.Credentials)
	}

	var records []types.Attempt
	for i := 0; i < maxAttempts; i++ {
		credential, err := g.resolveCredential(cand.provider, rotationCapable)
		if err != nil {
			records = g.recordAttempt(records, types.Attempt{
				Provider:        providerID,
				Model:           modelID,
				CredentialIndex: -1,
				Outcome:         types.OutcomeConfigError,
				Reason:          err.Error(),
			})
			return nil, records, nil
		}

		result := a.Complete(ctx, req.Prompt, modelID, credential, params)

		switch result.Kind {
		case types.ResultSuccess:
			usage := g.reconcileUsage(req.Prompt, result)
			g.limiter.Record(providerID, modelID, usage.TotalTokens)
			records = g.recordAttempt(records, types.Attempt{
				Provider:        providerID,
				Model:           modelID,
				CredentialIndex: credential.Index,
				Outcome:         types.OutcomeSuccess,
				Latency:         result.Latency,
			})
			resp := &types.Response{
				ID:       uuid.NewString(),
				Text:     result.Text,
				Model:    modelID,
				Provider: providerID,
				Usage:    usage,
				Latency:  result.Latency,
			}
			return resp, records, nil

		case types.ResultRateLimited:
			records = g.recordAttempt(records, types.Attempt{
				Provider:        providerID,
				Model:           modelID,
				CredentialIndex: credential.Index,
				Outcome:         types.OutcomeRateLimited,
				Latency:         result.Latency,
				Reason:          reasonOf(result.Err),
			})
			if !rotationCapable {
				return nil, records, nil
			}
			// 最后一把凭证也命中配额：不再推进，本轮以耗尽告终
			if i == maxAttempts-1 {
				continue
			}
			if _, err := g.rotator.Advance(providerID); err != nil {
				records = g.recordAttempt(records, types.Attempt{
					Provider:        providerID,
					Model:           modelID,
					CredentialIndex: -1,
					Outcome:         types.OutcomeConfigError,
					Reason:          err.Error(),
				})
				return nil, records, nil
			}
			// 新凭证冷却：等待期内可被取消
			if err := g.sleep(ctx, cand.provider.Rotation.Cooldown); err != nil {
				return nil, records, err
			}

		case types.ResultTransientError:
			records = g.recordAttempt(records, types.Attempt{
				Provider:        providerID,
				Model:           modelID,
				CredentialIndex: credential.Index,
				Outcome:         types.OutcomeTransientError,
				Latency:         result.Latency,
				Reason:          reasonOf(result.Err),
			})
			return nil, records, nil

		case types.ResultFatalError:
			records = g.recordAttempt(records, types.Attempt{
				Provider:        providerID,
				Model:           modelID,
				CredentialIndex: credential.Index,
				Outcome:         types.OutcomeFatalError,
				Latency:         result.Latency,
				Reason:          reasonOf(result.Err),
			})
			return nil, records, nil
		}
	}

	// 一轮之内所有凭证都命中配额：该候选以凭证耗尽告终
	exhausted := &types.AllCredentialsExhaustedError{Provider: providerID, Attempts: maxAttempts}
	records = g.recordAttempt(records, types.Attempt{
		Provider:        providerID,
		Model:           modelID,
		CredentialIndex: -1,
		Outcome:         types.OutcomeCredentialsExhausted,
		Reason:          exhausted.Error(),
	})
	return nil, records, nil
}

// resolveCredential 解析本次调用应使用的凭证
//
// 具备轮换能力的提供商走轮换器；单凭证提供商固定用首个；
// 无凭证的提供商（本地 CLI）返回序号 -1 的空凭证。
func (g *Gateway) resolveCredential(provider *types.ProviderConfig, rotationCapable bool) (types.Credential, error) {
	if rotationCapable {
		return g.rotator.Current(provider.ID)
	}
	if len(provider.Credentials) > 0 {
		return types.Credential{Value: provider.Credentials[0], Index: 0}, nil
	}
	return types.Credential{Index: -1}, nil
}

// reconcileUsage 整理成功调用的 token 用量
//
// 提供商没有报告用量时（CLI 工具）按提示词与补全文本估算补记。
func (g *Gateway) reconcileUsage(prompt string, result *types.Result) types.Usage {
	usage := result.Usage
	if usage.TotalTokens > 0 {
		return usage
	}
	usage.PromptTokens = g.counter.Count(prompt)
	usage.CompletionTokens = g.counter.Count(result.Text)
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}

// sleep 可取消的有界等待
//
// 这是路由过程中唯一的主动阻塞点；请求上下文取消或网关关闭都会
// 立即唤醒。
func (g *Gateway) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.rootCtx.Done():
		return errors.New("网关正在关闭")
	case <-timer.C:
		return nil
	}
}

// Close 优雅关闭网关
//
// 取消根上下文使所有等待中的退避立即退出，然后在超时范围内
// 等待进行中的请求结束。
func (g *Gateway) Close(timeout time.Duration) error {
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("等待进行中的请求结束超时")
	}
}

// reasonOf 提取失败原因文本
func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
