package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MeowSalty/relay/database/types"
)

// RotationStore 基于数据库的凭证轮换状态存储
//
// 实现 rotation.Store 接口，作为文件存储之外的另一种持久化后端，
// 适合多实例共享轮换位置的部署。
type RotationStore struct {
	db *gorm.DB
}

// NewRotationStore 创建数据库轮换状态存储
func NewRotationStore(db *gorm.DB) *RotationStore {
	return &RotationStore{db: db}
}

// Load 读取提供商的轮换记录
//
// 记录不存在时返回 ok=false 而非错误，调用方从序号 0 重新开始。
func (s *RotationStore) Load(providerID string) (int, time.Time, bool, error) {
	var record types.RotationRecord
	err := s.db.Where("provider_id = ?", providerID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("读取轮换记录失败：%w", err)
	}
	return record.CurrentIndex, record.RotatedAt, true, nil
}

// Save 写入提供商的轮换记录，已存在时覆盖
func (s *RotationStore) Save(providerID string, index int, rotatedAt time.Time) error {
	record := types.RotationRecord{
		ProviderID:   providerID,
		CurrentIndex: index,
		RotatedAt:    rotatedAt,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_index", "rotated_at", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("写入轮换记录失败：%w", err)
	}
	return nil
}
