package rotation

import (
	"time"
)

// Store 轮换状态持久化接口
//
// 每个具备轮换能力的提供商对应一条小记录（当前凭证序号与最近轮换时间）。
// 实现必须容忍记录缺失（首次运行）与内容损坏（视作序号 0），绝不因此报错
// 中断路由。
type Store interface {
	// Load 读取提供商的轮换状态
	//
	// 返回值：
	//   - index: 当前凭证序号
	//   - rotatedAt: 最近一次轮换时间（可能为零值）
	//   - ok: 是否存在可用记录（缺失或损坏时为 false，且 err 为 nil）
	//   - err: 仅在底层存储真正不可用时返回
	Load(providerID string) (index int, rotatedAt time.Time, ok bool, err error)

	// Save 写入提供商的轮换状态
	Save(providerID string, index int, rotatedAt time.Time) error
}
