// Package ratelimit 提供按 (提供商, 模型) 维度的滑动窗口准入控制。
//
// 在滚动的 60 秒窗口内同时跟踪请求数（RPM）与 token 数（TPM）；
// 准入采用乐观预占：放行的同时立即登记本次请求的预估 token，
// 避免并发调用同时挤过限额。窗口状态仅存于内存，进程重启后重置
// （窗口很短，可接受）。
package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeowSalty/relay/gateway/types"
)

// Window 滑动窗口宽度
const Window = 60 * time.Second

// Decision 准入决定
type Decision struct {
	Allowed    bool          // 是否放行
	RetryAfter time.Duration // 拒绝时的建议等待时间（最早一条窗口记录过期所需时间）
}

// tokenEntry 窗口内的一条 token 记录
type tokenEntry struct {
	at         time.Time // 记录时间
	tokens     int       // 预估或实际 token 数
	reconciled bool      // 是否已用实际用量校正
}

// window 单个 (提供商, 模型) 的窗口状态
//
// 每个窗口持有自己的互斥锁，不同键上的操作互不串行。
type window struct {
	mu       sync.Mutex
	requests []time.Time  // 请求时间戳
	tokens   []tokenEntry // token 记录
}

// Limiter 滑动窗口限流器
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window

	table  types.RateLimitTable
	logger *slog.Logger
	now    func() time.Time // 便于测试注入时钟
}

// NewLimiter 创建限流器
func NewLimiter(table types.RateLimitTable, logger *slog.Logger) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		table:   table,
		logger:  logger,
		now:     time.Now,
	}
}

// Admit 对一次预期调用做准入检查
//
// 先惰性清理过期记录，再依次检查 RPM 与 TPM。两项都满足时放行，
// 并立即登记 (当前时间, estimatedTokens) 作为乐观预占；任一超限时
// 拒绝，并给出等待提示。限流值为 0 的维度不做限制。
func (l *Limiter) Admit(provider, model string, estimatedTokens int) Decision {
	rule := l.table.Lookup(provider, model)
	if rule.RPM == 0 && rule.TPM == 0 {
		// 两个维度都不限制时仍登记用量，保证用量快照可用
		l.reserve(provider, model, estimatedTokens)
		return Decision{Allowed: true}
	}

	w := l.window(provider, model)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.purge(now)

	// RPM 检查
	if rule.RPM > 0 && len(w.requests) >= rule.RPM {
		retryAfter := w.oldestRequestExpiry(now)
		l.logger.Debug("限流拒绝：RPM 超限",
			"provider", provider,
			"model", model,
			"requests", len(w.requests),
			"rpm", rule.RPM,
			"retry_after", retryAfter)
		return Decision{RetryAfter: retryAfter}
	}

	// TPM 检查
	if rule.TPM > 0 {
		current := w.tokenSum()
		if current+estimatedTokens > rule.TPM {
			retryAfter := w.oldestTokenExpiry(now)
			l.logger.Debug("限流拒绝：TPM 超限",
				"provider", provider,
				"model", model,
				"tokens", current,
				"estimated", estimatedTokens,
				"tpm", rule.TPM,
				"retry_after", retryAfter)
			return Decision{RetryAfter: retryAfter}
		}
	}

	w.requests = append(w.requests, now)
	w.tokens = append(w.tokens, tokenEntry{at: now, tokens: estimatedTokens})
	return Decision{Allowed: true}
}

// Record 用实际 token 用量校正最早的一条未校正预占
//
// 真实响应返回后调用，使滚动总和保持准确。没有未校正预占时
// 追加一条新记录（防御：允许先记账后准入的调用方）。
func (l *Limiter) Record(provider, model string, actualTokens int) {
	w := l.window(provider, model)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.purge(now)

	for i := range w.tokens {
		if !w.tokens[i].reconciled {
			w.tokens[i].tokens = actualTokens
			w.tokens[i].reconciled = true
			return
		}
	}
	w.tokens = append(w.tokens, tokenEntry{at: now, tokens: actualTokens, reconciled: true})
}

// Usage 返回窗口内的当前用量快照
func (l *Limiter) Usage(provider, model string) (requests int, tokens int) {
	w := l.window(provider, model)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.purge(now)
	return len(w.requests), w.tokenSum()
}

// Rule 返回 (提供商, 模型) 生效的限流规则
func (l *Limiter) Rule(provider, model string) types.RateLimitRule {
	return l.table.Lookup(provider, model)
}

// reserve 在不检查限额的情况下登记一次用量
func (l *Limiter) reserve(provider, model string, estimatedTokens int) {
	w := l.window(provider, model)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.purge(now)
	w.requests = append(w.requests, now)
	w.tokens = append(w.tokens, tokenEntry{at: now, tokens: estimatedTokens})
}

// window 获取或创建 (提供商, 模型) 的窗口
func (l *Limiter) window(provider, model string) *window {
	key := fmt.Sprintf("%s/%s", provider, model)

	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[key]; ok {
		return w
	}
	w = &window{}
	l.windows[key] = w
	return w
}

// purge 清理窗口外的过期记录，调用方需持有窗口锁
func (w *window) purge(now time.Time) {
	cutoff := now.Add(-Window)

	i := 0
	for i < len(w.requests) && !w.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.requests = append(w.requests[:0], w.requests[i:]...)
	}

	j := 0
	for j < len(w.tokens) && !w.tokens[j].at.After(cutoff) {
		j++
	}
	if j > 0 {
		w.tokens = append(w.tokens[:0], w.tokens[j:]...)
	}
}

// tokenSum 统计窗口内 token 总量，调用方需持有窗口锁
func (w *window) tokenSum() int {
	sum := 0
	for _, e := range w.tokens {
		sum += e.tokens
	}
	return sum
}

// oldestRequestExpiry 最早一条请求记录过期所需时间，调用方需持有窗口锁
func (w *window) oldestRequestExpiry(now time.Time) time.Duration {
	if len(w.requests) == 0 {
		// 没有窗口记录却被拒绝，说明单次请求本身超出限额，永远无法放行
		return Window
	}
	d := Window - now.Sub(w.requests[0])
	if d < 0 {
		d = 0
	}
	return d
}

// oldestTokenExpiry 最早一条 token 记录过期所需时间，调用方需持有窗口锁
func (w *window) oldestTokenExpiry(now time.Time) time.Duration {
	if len(w.tokens) == 0 {
		return Window
	}
	d := Window - now.Sub(w.tokens[0].at)
	if d < 0 {
		d = 0
	}
	return d
}
