// Package rotation 管理提供商的多凭证轮换。
//
// 每个提供商持有一个有序凭证列表与一个当前序号；序号通过 Store 持久化，
// 进程重启后从上次位置继续。轮换遵循「先持久化、后生效」：Save 完成之前，
// 新序号对任何进程内读者都不可见。
package rotation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MeowSalty/relay/gateway/types"
)

// providerState 单个提供商的内存态
//
// 每个提供商持有自己的互斥锁，不同提供商的轮换互不串行。
type providerState struct {
	mu        sync.Mutex
	index     int       // 当前凭证序号
	rotatedAt time.Time // 最近一次轮换时间
	loaded    bool      // 是否已从存储加载
}

// Rotator 凭证轮换器
type Rotator struct {
	mu     sync.RWMutex
	states map[string]*providerState

	catalog *types.Catalog
	store   Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewRotator 创建凭证轮换器
func NewRotator(catalog *types.Catalog, store Store, logger *slog.Logger) *Rotator {
	return &Rotator{
		states:  make(map[string]*providerState),
		catalog: catalog,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Current 返回提供商当前应使用的凭证
//
// 首次访问时从存储加载序号；无记录则初始化为 0 并立即持久化。
// 凭证列表为空时返回配置错误。
func (r *Rotator) Current(providerID string) (types.Credential, error) {
	creds, err := r.credentials(providerID)
	if err != nil {
		return types.Credential{}, err
	}

	state := r.state(providerID)
	state.mu.Lock()
	defer state.mu.Unlock()

	r.ensureLoaded(providerID, state, len(creds), true)

	return types.Credential{Value: creds[state.index], Index: state.index}, nil
}

// Advance 将提供商的凭证序号向前推进一位
//
// 序号按凭证数取模回绕，并更新轮换时间戳。新序号先写入存储，写入完成后
// 才更新内存态并返回（崩溃在持久化之前发生时，轮换视同未发生，重放一次
// 是安全的）。存储写入失败只告警不中断：内存态照常推进，等待下次写入修复；
// 代价是失败后重启会回放上一次成功持久化的索引，用重启一致性换取可用性。
//
// 冷却由调用方负责：Advance 返回后，调用方应在重用新凭证前等待提供商
// 配置的冷却时间。
func (r *Rotator) Advance(providerID string) (int, error) {
	creds, err := r.credentials(providerID)
	if err != nil {
		return 0, err
	}

	state := r.state(providerID)
	state.mu.Lock()
	defer state.mu.Unlock()

	r.ensureLoaded(providerID, state, len(creds), false)

	newIndex := (state.index + 1) % len(creds)
	rotatedAt := r.now()

	if err := r.store.Save(providerID, newIndex, rotatedAt); err != nil {
		r.logger.Warn("持久化轮换状态失败，仅在内存中推进",
			"provider", providerID,
			"new_index", newIndex,
			"error", err)
	}

	state.index = newIndex
	state.rotatedAt = rotatedAt

	r.logger.Info("凭证已轮换",
		"provider", providerID,
		"index", newIndex,
		"credentials", len(creds))

	return newIndex, nil
}

// State 返回提供商轮换状态的只读快照
//
// 供统计接口使用；状态未加载时会触发加载，但不会写入初始化记录。
func (r *Rotator) State(providerID string) (index int, rotatedAt time.Time, ok bool) {
	provider, found := r.catalog.Provider(providerID)
	if !found || len(provider.Credentials) == 0 {
		return 0, time.Time{}, false
	}

	state := r.state(providerID)
	state.mu.Lock()
	defer state.mu.Unlock()

	r.ensureLoaded(providerID, state, len(provider.Credentials), false)
	return state.index, state.rotatedAt, true
}

// credentials 获取提供商的凭证列表
func (r *Rotator) credentials(providerID string) ([]string, error) {
	provider, ok := r.catalog.Provider(providerID)
	if !ok {
		return nil, types.NewConfigurationError("未知的提供商：%s", providerID)
	}
	if len(provider.Credentials) == 0 {
		return nil, types.NewConfigurationError("提供商 %s 未配置任何凭证", providerID)
	}
	return provider.Credentials, nil
}

// ensureLoaded 确保状态已从存储加载，调用方需持有状态锁
//
// 序号越界（凭证列表在重新配置后变短）时钳制为 0。persistInit 为 true 时，
// 无记录的初始化会立即写回存储。
func (r *Rotator) ensureLoaded(providerID string, state *providerState, credCount int, persistInit bool) {
	if !state.loaded {
		index, rotatedAt, ok, err := r.store.Load(providerID)
		if err != nil {
			r.logger.Warn("加载轮换状态失败，按序号 0 处理",
				"provider", providerID,
				"error", err)
			index, rotatedAt, ok = 0, time.Time{}, false
		}

		state.index = index
		state.rotatedAt = rotatedAt
		state.loaded = true

		if !ok && persistInit {
			if err := r.store.Save(providerID, 0, time.Time{}); err != nil {
				r.logger.Warn("初始化轮换状态失败",
					"provider", providerID,
					"error", err)
			}
		}
	}

	if state.index < 0 || state.index >= credCount {
		r.logger.Warn("轮换序号越界，钳制为 0",
			"provider", providerID,
			"index", state.index,
			"credentials", credCount)
		state.index = 0
	}
}

// state 获取或创建提供商的内存态
func (r *Rotator) state(providerID string) *providerState {
	r.mu.RLock()
	s, ok := r.states[providerID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.states[providerID]; ok {
		return s
	}
	s = &providerState{}
	r.states[providerID] = s
	return s
}
