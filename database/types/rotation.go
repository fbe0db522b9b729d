package types

import (
	"time"
)

// RotationRecord 凭证轮换位置记录 (rotation_records)
//
// 每个提供商一行，记录轮换指针在凭证列表中的序号，
// 使轮换位置跨进程重启保持。
type RotationRecord struct {
	ProviderID   string    `gorm:"primaryKey" json:"provider_id"` // 提供商标识
	CurrentIndex int       `json:"current_index"`                 // 当前凭证序号
	RotatedAt    time.Time `json:"rotated_at"`                    // 最近一次轮换时间

	UpdatedAt time.Time `json:"updated_at"`
}
