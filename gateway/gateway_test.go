package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeowSalty/relay/gateway/adapter"
	"github.com/MeowSalty/relay/gateway/ratelimit"
	"github.com/MeowSalty/relay/gateway/rotation"
	"github.com/MeowSalty/relay/gateway/tier"
	"github.com/MeowSalty/relay/gateway/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildCatalog 按给定顺序装配目录，顺序即路由优先级
func buildCatalog(providers []*types.ProviderConfig, models []*types.ModelRoute, roles ...*types.RoleConfig) *types.Catalog {
	c := &types.Catalog{
		Providers: make(map[string]*types.ProviderConfig),
		Models:    make(map[string]*types.ModelRoute),
		Roles:     make(map[string]*types.RoleConfig),
	}
	for _, p := range providers {
		c.Providers[p.ID] = p
		c.ProviderOrder = append(c.ProviderOrder, p.ID)
	}
	for _, m := range models {
		c.Models[m.ID] = m
		c.ModelOrder = append(c.ModelOrder, m.ID)
	}
	for _, r := range roles {
		c.Roles[r.Name] = r
	}
	return c
}

type scriptedCall struct {
	model     string
	credIndex int
	maxTokens *int
}

// scriptedAdapter 按脚本顺序返回预设结果
//
// 脚本耗尽后的额外调用返回致命错误，使调用次数不符的用例立即暴露。
type scriptedAdapter struct {
	mu      sync.Mutex
	script  []*types.Result
	calls   []scriptedCall
	offline bool
}

func (s *scriptedAdapter) Complete(_ context.Context, _ string, model string, credential types.Credential, params types.Params) *types.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, scriptedCall{model: model, credIndex: credential.Index, maxTokens: params.MaxTokens})
	if len(s.script) == 0 {
		return &types.Result{Kind: types.ResultFatalError, Err: errors.New("脚本已耗尽")}
	}
	r := s.script[0]
	s.script = s.script[1:]
	return r
}

func (s *scriptedAdapter) Available() bool { return !s.offline }

func (s *scriptedAdapter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedAdapter) credSequence() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.credIndex
	}
	return out
}

func successResult(text string, usage types.Usage) *types.Result {
	return &types.Result{Kind: types.ResultSuccess, Text: text, Usage: usage, Latency: time.Millisecond}
}

func rateLimitedResult() *types.Result {
	return &types.Result{Kind: types.ResultRateLimited, Err: errors.New("状态码 429")}
}

func transientResult() *types.Result {
	return &types.Result{Kind: types.ResultTransientError, Err: errors.New("状态码 503")}
}

func fatalResult() *types.Result {
	return &types.Result{Kind: types.ResultFatalError, Err: errors.New("状态码 401")}
}

// fakeLimiter 按脚本回放准入决定，脚本耗尽后全部放行
type fakeLimiter struct {
	mu        sync.Mutex
	decisions []ratelimit.Decision
	admits    int
	recorded  []int
}

func (f *fakeLimiter) Admit(_, _ string, _ int) ratelimit.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.admits++
	if len(f.decisions) == 0 {
		return ratelimit.Decision{Allowed: true}
	}
	d := f.decisions[0]
	f.decisions = f.decisions[1:]
	return d
}

func (f *fakeLimiter) Record(_, _ string, actualTokens int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, actualTokens)
}

func (f *fakeLimiter) admitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admits
}

// memoryLogRepo 请求日志仓库的内存实现
type memoryLogRepo struct {
	mu      sync.Mutex
	entries []*types.RequestLogEntry
}

func (m *memoryLogRepo) CreateRequestLog(_ context.Context, entry *types.RequestLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryLogRepo) all() []*types.RequestLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.RequestLogEntry(nil), m.entries...)
}

// newTestGateway 用真实的轮换器、闸门与宽松限流装配网关，适配器用脚本替身
func newTestGateway(t *testing.T, catalog *types.Catalog, fakes map[string]adapter.Adapter, opts ...func(*Config)) *Gateway {
	t.Helper()

	reg, err := adapter.NewRegistry(&types.Catalog{}, adapter.Config{}, testLogger())
	require.NoError(t, err)
	for id, a := range fakes {
		reg.Register(id, a)
	}

	cfg := Config{
		Catalog:  catalog,
		Adapters: reg,
		Limiter:  ratelimit.NewLimiter(types.RateLimitTable{Defaults: types.RateLimitRule{RPM: 10000, TPM: 100000000}}, testLogger()),
		Rotator:  rotation.NewRotator(catalog, rotation.NewFileStore(t.TempDir(), testLogger()), testLogger()),
		Gate:     tier.NewGate(catalog, types.AllTiers),
		Logger:   testLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	gw, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close(time.Second) })
	return gw
}

func outcomes(attempts []types.Attempt) []types.Outcome {
	out := make([]types.Outcome, len(attempts))
	for i, a := range attempts {
		out[i] = a.Outcome
	}
	return out
}

func TestGateway_FirstCandidateSuccess(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
			{ID: "openrouter", Kind: types.ProviderKindHTTP, Format: "openai", Credentials: []string{"k2"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
			{ID: "qwen-coder", Provider: "openrouter"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{
		successResult("你好", types.Usage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42}),
	}}
	fallback := &scriptedAdapter{}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google, "openrouter": fallback})

	resp, err := gw.Complete(context.Background(), &types.Request{
		ModelChain: []string{"gemini-flash", "qwen-coder"},
		Prompt:     "写一个快速排序",
	})
	require.NoError(t, err)

	assert.Equal(t, "你好", resp.Text)
	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, "gemini-flash", resp.Model)
	assert.Equal(t, 42, resp.Usage.TotalTokens)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, []types.Outcome{types.OutcomeSuccess}, outcomes(resp.Attempts))
	// 首选成功时不应触碰后续候选
	assert.Zero(t, fallback.callCount())
}

func TestGateway_TierGateSkipsPaidCandidate(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "anthropic", Kind: types.ProviderKindHTTP, Format: "anthropic", Tier: types.TierPerformance, Credentials: []string{"k1"}},
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Tier: types.TierFree, Credentials: []string{"k2"}},
		},
		[]*types.ModelRoute{
			{ID: "claude-sonnet", Provider: "anthropic"},
			{ID: "gemini-flash", Provider: "google"},
		},
	)
	anthropic := &scriptedAdapter{}
	google := &scriptedAdapter{script: []*types.Result{successResult("免费层答案", types.Usage{TotalTokens: 10})}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"anthropic": anthropic, "google": google},
		func(cfg *Config) { cfg.Gate = tier.NewGate(catalog, []types.Tier{types.TierFree}) })

	resp, err := gw.Complete(context.Background(), &types.Request{
		ModelChain: []string{"claude-sonnet", "gemini-flash"},
		Prompt:     "你好",
	})
	require.NoError(t, err)

	// 付费候选被闸门跳过且未发起调用，这不算失败
	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, []types.Outcome{types.OutcomeGated, types.OutcomeSuccess}, outcomes(resp.Attempts))
	assert.Zero(t, anthropic.callCount())
}

func TestGateway_GatingExemptBypassesTierPolicy(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "local", Kind: types.ProviderKindCLI, Tier: types.TierPerformance, GatingExempt: true},
		},
		[]*types.ModelRoute{
			{ID: "qwen-local", Provider: "local"},
		},
	)
	local := &scriptedAdapter{script: []*types.Result{successResult("本地答案", types.Usage{})}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"local": local},
		func(cfg *Config) { cfg.Gate = tier.NewGate(catalog, []types.Tier{types.TierFree}) })

	resp, err := gw.Complete(context.Background(), &types.Request{Model: "qwen-local", Prompt: "你好"})
	require.NoError(t, err)
	assert.Equal(t, "local", resp.Provider)
}

func TestGateway_UnavailableCandidateSkipped(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "local", Kind: types.ProviderKindCLI},
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
		},
		[]*types.ModelRoute{
			{ID: "qwen-local", Provider: "local"},
			{ID: "gemini-flash", Provider: "google"},
		},
	)
	local := &scriptedAdapter{offline: true}
	google := &scriptedAdapter{script: []*types.Result{successResult("备选答案", types.Usage{TotalTokens: 5})}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"local": local, "google": google})

	resp, err := gw.Complete(context.Background(), &types.Request{
		ModelChain: []string{"qwen-local", "gemini-flash"},
		Prompt:     "你好",
	})
	require.NoError(t, err)

	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, []types.Outcome{types.OutcomeUnavailable, types.OutcomeSuccess}, outcomes(resp.Attempts))
	assert.Zero(t, local.callCount())
}

func TestGateway_RotatesCredentialsOnRateLimit(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{
				ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini",
				Credentials: []string{"k1", "k2", "k3"},
				Rotation:    types.RotationPolicy{Strategy: types.RotationStrategyRoundRobin},
			},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{
		rateLimitedResult(),
		rateLimitedResult(),
		successResult("第三把钥匙成功", types.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}),
	}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google})

	resp, err := gw.Complete(context.Background(), &types.Request{Model: "gemini-flash", Prompt: "你好"})
	require.NoError(t, err)

	// 凭证严格按 0 → 1 → 2 轮换，成功的那把不再推进
	assert.Equal(t, []int{0, 1, 2}, google.credSequence())
	assert.Equal(t, []types.Outcome{
		types.OutcomeRateLimited,
		types.OutcomeRateLimited,
		types.OutcomeSuccess,
	}, outcomes(resp.Attempts))
	assert.Equal(t, 2, resp.Attempts[2].CredentialIndex)
}

func TestGateway_AllCredentialsExhaustedFallsToNextCandidate(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{
				ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini",
				Credentials: []string{"k1", "k2", "k3"},
				Rotation:    types.RotationPolicy{Strategy: types.RotationStrategyRoundRobin},
			},
			{ID: "openrouter", Kind: types.ProviderKindHTTP, Format: "openai", Credentials: []string{"k4"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
			{ID: "qwen-coder", Provider: "openrouter"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{
		rateLimitedResult(), rateLimitedResult(), rateLimitedResult(),
	}}
	fallback := &scriptedAdapter{script: []*types.Result{successResult("备选答案", types.Usage{TotalTokens: 8})}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google, "openrouter": fallback})

	resp, err := gw.Complete(context.Background(), &types.Request{
		ModelChain: []string{"gemini-flash", "qwen-coder"},
		Prompt:     "你好",
	})
	require.NoError(t, err)

	assert.Equal(t, "openrouter", resp.Provider)
	assert.Equal(t, []int{0, 1, 2}, google.credSequence())
	assert.Equal(t, []types.Outcome{
		types.OutcomeRateLimited,
		types.OutcomeRateLimited,
		types.OutcomeRateLimited,
		types.OutcomeCredentialsExhausted,
		types.OutcomeSuccess,
	}, outcomes(resp.Attempts))
}

func TestGateway_AllProvidersExhausted(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
			{ID: "anthropic", Kind: types.ProviderKindHTTP, Format: "anthropic", Credentials: []string{"k2"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
			{ID: "claude-sonnet", Provider: "anthropic"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{transientResult()}}
	anthropic := &scriptedAdapter{script: []*types.Result{fatalResult()}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google, "anthropic": anthropic})

	resp, err := gw.Complete(context.Background(), &types.Request{
		ModelChain: []string{"gemini-flash", "claude-sonnet"},
		Prompt:     "你好",
	})
	require.Error(t, err)
	assert.Nil(t, resp)

	var exhausted *types.AllProvidersExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, []types.Outcome{
		types.OutcomeTransientError,
		types.OutcomeFatalError,
	}, outcomes(exhausted.Attempts))
	assert.Contains(t, err.Error(), "google")
	assert.Contains(t, err.Error(), "anthropic")
}

func TestGateway_RateLimitWaitThenRetry(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{successResult("等待后成功", types.Usage{TotalTokens: 6})}}
	limiter := &fakeLimiter{decisions: []ratelimit.Decision{
		{Allowed: false, RetryAfter: 20 * time.Millisecond},
	}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google},
		func(cfg *Config) { cfg.Limiter = limiter })

	start := time.Now()
	resp, err := gw.Complete(context.Background(), &types.Request{Model: "gemini-flash", Prompt: "你好"})
	require.NoError(t, err)

	// 等待提示在上限内：原地等待后复查一次并放行
	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, 2, limiter.admitCount())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestGateway_RateLimitHintBeyondMaxWaitSkips(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
			{ID: "openrouter", Kind: types.ProviderKindHTTP, Format: "openai", Credentials: []string{"k2"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
			{ID: "qwen-coder", Provider: "openrouter"},
		},
	)
	google := &scriptedAdapter{}
	fallback := &scriptedAdapter{script: []*types.Result{successResult("备选答案", types.Usage{TotalTokens: 5})}}
	limiter := &fakeLimiter{decisions: []ratelimit.Decision{
		{Allowed: false, RetryAfter: 10 * time.Minute},
	}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google, "openrouter": fallback},
		func(cfg *Config) {
			cfg.Limiter = limiter
			cfg.MaxWait = 50 * time.Millisecond
		})

	resp, err := gw.Complete(context.Background(), &types.Request{
		ModelChain: []string{"gemini-flash", "qwen-coder"},
		Prompt:     "你好",
	})
	require.NoError(t, err)

	// 等待提示超出上限：不等待，直接跳到下一个候选
	assert.Equal(t, "openrouter", resp.Provider)
	assert.Equal(t, 2, limiter.admitCount())
	assert.Zero(t, google.callCount())
	assert.Equal(t, []types.Outcome{types.OutcomeRateLimited, types.OutcomeSuccess}, outcomes(resp.Attempts))
}

func TestGateway_RateLimitRecheckDeniedSkips(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
			{ID: "openrouter", Kind: types.ProviderKindHTTP, Format: "openai", Credentials: []string{"k2"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
			{ID: "qwen-coder", Provider: "openrouter"},
		},
	)
	google := &scriptedAdapter{}
	fallback := &scriptedAdapter{script: []*types.Result{successResult("备选答案", types.Usage{TotalTokens: 5})}}
	limiter := &fakeLimiter{decisions: []ratelimit.Decision{
		{Allowed: false, RetryAfter: 5 * time.Millisecond},
		{Allowed: false, RetryAfter: 30 * time.Second},
	}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google, "openrouter": fallback},
		func(cfg *Config) { cfg.Limiter = limiter })

	resp, err := gw.Complete(context.Background(), &types.Request{
		ModelChain: []string{"gemini-flash", "qwen-coder"},
		Prompt:     "你好",
	})
	require.NoError(t, err)

	// 复查只做一次，仍被拒绝就放弃该候选
	assert.Equal(t, "openrouter", resp.Provider)
	assert.Equal(t, 3, limiter.admitCount())
	assert.Zero(t, google.callCount())
}

func TestGateway_RealLimiterExhaustionFallsOver(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
			{ID: "openrouter", Kind: types.ProviderKindHTTP, Format: "openai", Credentials: []string{"k2"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
			{ID: "qwen-coder", Provider: "openrouter"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{successResult("第一次", types.Usage{TotalTokens: 9})}}
	fallback := &scriptedAdapter{script: []*types.Result{successResult("第二次", types.Usage{TotalTokens: 7})}}
	table := types.RateLimitTable{
		Providers: map[string]map[string]types.RateLimitRule{
			"google": {"gemini-flash": {RPM: 1}},
		},
		Defaults: types.RateLimitRule{RPM: 10000, TPM: 100000000},
	}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google, "openrouter": fallback},
		func(cfg *Config) { cfg.Limiter = ratelimit.NewLimiter(table, testLogger()) })

	req := &types.Request{ModelChain: []string{"gemini-flash", "qwen-coder"}, Prompt: "你好"}

	first, err := gw.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "google", first.Provider)

	// RPM=1 已耗尽，等待提示接近整个窗口、超出默认上限，应落到备选提供商
	second, err := gw.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "openrouter", second.Provider)
	assert.Equal(t, []types.Outcome{types.OutcomeRateLimited, types.OutcomeSuccess}, outcomes(second.Attempts))
}

func TestGateway_CooldownWaitsBetweenRotations(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{
				ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini",
				Credentials: []string{"k1", "k2"},
				Rotation:    types.RotationPolicy{Strategy: types.RotationStrategyRoundRobin, Cooldown: 40 * time.Millisecond},
			},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{
		rateLimitedResult(),
		successResult("冷却后成功", types.Usage{TotalTokens: 6}),
	}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google})

	start := time.Now()
	resp, err := gw.Complete(context.Background(), &types.Request{Model: "gemini-flash", Prompt: "你好"})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, google.credSequence())
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, "冷却后成功", resp.Text)
}

func TestGateway_ContextCanceledDuringCooldown(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{
				ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini",
				Credentials: []string{"k1", "k2"},
				Rotation:    types.RotationPolicy{Strategy: types.RotationStrategyRoundRobin, Cooldown: 5 * time.Second},
			},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{rateLimitedResult()}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := gw.Complete(ctx, &types.Request{Model: "gemini-flash", Prompt: "你好"})

	// 冷却等待必须可被请求上下文打断，不允许拖满 5 秒
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGateway_CloseUnblocksCooldownWait(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{
				ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini",
				Credentials: []string{"k1", "k2"},
				Rotation:    types.RotationPolicy{Strategy: types.RotationStrategyRoundRobin, Cooldown: 10 * time.Second},
			},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{rateLimitedResult()}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google})

	errCh := make(chan error, 1)
	go func() {
		_, err := gw.Complete(context.Background(), &types.Request{Model: "gemini-flash", Prompt: "你好"})
		errCh <- err
	}()

	// 等请求进入冷却等待后关闭网关
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	require.NoError(t, gw.Close(2*time.Second))

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Less(t, time.Since(start), time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("关闭网关后请求仍未返回")
	}

	// 已关闭的网关拒绝新请求
	_, err := gw.Complete(context.Background(), &types.Request{Model: "gemini-flash", Prompt: "你好"})
	require.Error(t, err)
}

func TestGateway_RoleWithModelChain(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
			{ID: "openrouter", Kind: types.ProviderKindHTTP, Format: "openai", Credentials: []string{"k2"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
			{ID: "qwen-coder", Provider: "openrouter"},
		},
		&types.RoleConfig{Name: "fast", ModelChain: []string{"gemini-flash", "qwen-coder"}},
	)
	google := &scriptedAdapter{script: []*types.Result{transientResult()}}
	fallback := &scriptedAdapter{script: []*types.Result{successResult("角色答案", types.Usage{TotalTokens: 4})}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google, "openrouter": fallback})

	resp, err := gw.Complete(context.Background(), &types.Request{Role: "fast", Prompt: "你好"})
	require.NoError(t, err)

	assert.Equal(t, "openrouter", resp.Provider)
	assert.Equal(t, "qwen-coder", resp.Model)
}

func TestGateway_LegacyRoleProviderFallback(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "openrouter", Kind: types.ProviderKindHTTP, Format: "openai", Credentials: []string{"k1"}},
			{ID: "mirror", Kind: types.ProviderKindHTTP, Format: "openai", Credentials: []string{"k2"}},
		},
		[]*types.ModelRoute{
			{ID: "qwen-coder", Provider: "openrouter"},
		},
		&types.RoleConfig{Name: "coder", Model: "qwen-coder", Providers: []string{"openrouter", "mirror"}},
	)
	primary := &scriptedAdapter{script: []*types.Result{transientResult()}}
	mirror := &scriptedAdapter{script: []*types.Result{successResult("镜像答案", types.Usage{TotalTokens: 4})}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"openrouter": primary, "mirror": mirror})

	resp, err := gw.Complete(context.Background(), &types.Request{Role: "coder", Prompt: "你好"})
	require.NoError(t, err)

	// 主提供商只尝试一次，随后在镜像提供商上跑同一个模型
	assert.Equal(t, "mirror", resp.Provider)
	assert.Equal(t, "qwen-coder", resp.Model)
	assert.Equal(t, 1, primary.callCount())
}

func TestGateway_RouteMaxTokensAppliedWhenUnset(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google", MaxTokens: 512},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{
		successResult("a", types.Usage{TotalTokens: 1}),
		successResult("b", types.Usage{TotalTokens: 1}),
	}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google})

	_, err := gw.Complete(context.Background(), &types.Request{Model: "gemini-flash", Prompt: "你好"})
	require.NoError(t, err)

	explicit := 64
	_, err = gw.Complete(context.Background(), &types.Request{
		Model:  "gemini-flash",
		Prompt: "你好",
		Params: types.Params{MaxTokens: &explicit},
	})
	require.NoError(t, err)

	// 未显式指定时采用路由上限，显式参数优先
	require.Len(t, google.calls, 2)
	require.NotNil(t, google.calls[0].maxTokens)
	assert.Equal(t, 512, *google.calls[0].maxTokens)
	require.NotNil(t, google.calls[1].maxTokens)
	assert.Equal(t, 64, *google.calls[1].maxTokens)
}

func TestGateway_UsageEstimatedWhenAdapterSilent(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "local", Kind: types.ProviderKindCLI},
		},
		[]*types.ModelRoute{
			{ID: "qwen-local", Provider: "local"},
		},
	)
	local := &scriptedAdapter{script: []*types.Result{successResult("estimated completion text here", types.Usage{})}}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"local": local})

	resp, err := gw.Complete(context.Background(), &types.Request{Model: "qwen-local", Prompt: "some prompt words"})
	require.NoError(t, err)

	// CLI 工具不报告用量：按文本估算补记
	assert.Positive(t, resp.Usage.PromptTokens)
	assert.Positive(t, resp.Usage.CompletionTokens)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	// 无凭证的提供商以空凭证调用
	assert.Equal(t, []int{-1}, local.credSequence())
}

func TestGateway_ActualUsageRecordedToLimiter(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{
		successResult("你好", types.Usage{PromptTokens: 100, CompletionTokens: 200, TotalTokens: 300}),
	}}
	limiter := &fakeLimiter{}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google},
		func(cfg *Config) { cfg.Limiter = limiter })

	_, err := gw.Complete(context.Background(), &types.Request{Model: "gemini-flash", Prompt: "你好"})
	require.NoError(t, err)

	// 成功后用实际 token 校正预估
	assert.Equal(t, []int{300}, limiter.recorded)
}

func TestGateway_ConfigurationErrors(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
		},
	)
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": &scriptedAdapter{}})

	var cfgErr *types.ConfigurationError

	_, err := gw.Complete(context.Background(), &types.Request{Model: "不存在的模型", Prompt: "你好"})
	require.True(t, errors.As(err, &cfgErr))

	_, err = gw.Complete(context.Background(), &types.Request{Role: "不存在的角色", Prompt: "你好"})
	require.True(t, errors.As(err, &cfgErr))

	_, err = gw.Complete(context.Background(), &types.Request{Prompt: "你好"})
	require.True(t, errors.As(err, &cfgErr))
}

func TestGateway_RequestLogPersisted(t *testing.T) {
	catalog := buildCatalog(
		[]*types.ProviderConfig{
			{ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini", Credentials: []string{"k1"}},
		},
		[]*types.ModelRoute{
			{ID: "gemini-flash", Provider: "google"},
		},
	)
	google := &scriptedAdapter{script: []*types.Result{
		successResult("你好", types.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}),
		fatalResult(),
	}}
	repo := &memoryLogRepo{}
	gw := newTestGateway(t, catalog, map[string]adapter.Adapter{"google": google},
		func(cfg *Config) { cfg.LogRepo = repo })

	_, err := gw.Complete(context.Background(), &types.Request{Model: "gemini-flash", Prompt: "你好"})
	require.NoError(t, err)
	_, err = gw.Complete(context.Background(), &types.Request{Model: "gemini-flash", Prompt: "你好"})
	require.Error(t, err)

	// Close 等待异步落库完成；两条记录的落库顺序不保证
	require.NoError(t, gw.Close(time.Second))

	entries := repo.all()
	require.Len(t, entries, 2)

	var succeeded, failed *types.RequestLogEntry
	for _, e := range entries {
		if e.Success {
			succeeded = e
		} else {
			failed = e
		}
	}
	require.NotNil(t, succeeded)
	require.NotNil(t, failed)

	assert.Equal(t, "google", succeeded.Provider)
	assert.Equal(t, "gemini-flash", succeeded.Served)
	assert.Equal(t, 7, succeeded.Usage.TotalTokens)
	assert.NotEmpty(t, succeeded.RequestID)

	assert.NotEmpty(t, failed.Error)
	assert.Equal(t, 1, failed.Attempts)
}

func TestGateway_DeterministicAttemptTrace(t *testing.T) {
	build := func(t *testing.T) (*Gateway, *types.Request) {
		catalog := buildCatalog(
			[]*types.ProviderConfig{
				{ID: "local", Kind: types.ProviderKindCLI},
				{
					ID: "google", Kind: types.ProviderKindHTTP, Format: "gemini",
					Credentials: []string{"k1", "k2"},
					Rotation:    types.RotationPolicy{Strategy: types.RotationStrategyRoundRobin},
				},
				{ID: "anthropic", Kind: types.ProviderKindHTTP, Format: "anthropic", Tier: types.TierPerformance, Credentials: []string{"k3"}},
			},
			[]*types.ModelRoute{
				{ID: "qwen-local", Provider: "local"},
				{ID: "gemini-flash", Provider: "google"},
				{ID: "claude-sonnet", Provider: "anthropic"},
			},
		)
		fakes := map[string]adapter.Adapter{
			"local":     &scriptedAdapter{offline: true},
			"google":    &scriptedAdapter{script: []*types.Result{rateLimitedResult(), rateLimitedResult()}},
			"anthropic": &scriptedAdapter{script: []*types.Result{transientResult()}},
		}
		gw := newTestGateway(t, catalog, fakes,
			func(cfg *Config) { cfg.Gate = tier.NewGate(catalog, types.AllTiers) })
		req := &types.Request{
			ModelChain: []string{"qwen-local", "gemini-flash", "claude-sonnet"},
			Prompt:     "你好",
		}
		return gw, req
	}

	trace := func(t *testing.T) []string {
		gw, req := build(t)
		_, err := gw.Complete(context.Background(), req)
		var exhausted *types.AllProvidersExhaustedError
		require.True(t, errors.As(err, &exhausted))

		out := make([]string, 0, len(exhausted.Attempts))
		for _, a := range exhausted.Attempts {
			out = append(out, a.Provider+"/"+string(a.Outcome))
		}
		return out
	}

	// 相同配置与脚本下，两次完整路由产生完全一致的尝试轨迹
	first := trace(t)
	second := trace(t)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{
		"local/unavailable",
		"google/rate_limited",
		"google/rate_limited",
		"google/credentials_exhausted",
		"anthropic/transient_error",
	}, first)
}
