package types

import (
	"time"
)

// RequestLog 表示单次路由调用的统计信息
type RequestLog struct {
	ID string `gorm:"primaryKey" json:"id"` // 唯一标识符

	// 请求基本信息
	Timestamp   time.Time `gorm:"index" json:"timestamp"`                // 请求时间
	Role        string    `gorm:"index" json:"role,omitempty"`           // 请求指定的角色（可选）
	ModelName   string    `gorm:"index" json:"model_name,omitempty"`     // 请求指定的模型名称（可选）
	Provider    string    `gorm:"index" json:"provider,omitempty"`       // 实际服务的提供商（失败时为空）
	ServedModel string    `gorm:"index" json:"served_model,omitempty"`   // 实际服务的模型（失败时为空）

	// 耗时信息
	Duration int64 `json:"duration"` // 总用时 (微秒)
	Attempts int   `json:"attempts"` // 路由尝试次数

	// token 用量
	PromptTokens     int `json:"prompt_tokens"`     // 提示词 token 数
	CompletionTokens int `json:"completion_tokens"` // 补全 token 数
	TotalTokens      int `json:"total_tokens"`      // 总 token 数

	// 结果状态
	Success  bool    `gorm:"index" json:"success"` // 是否成功
	ErrorMsg *string `json:"error_msg,omitempty"`  // 错误信息（失败时）

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
