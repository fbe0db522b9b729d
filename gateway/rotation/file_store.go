package rotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// fileRecord 磁盘上的轮换状态记录
//
// 与历史实现的 .keyidx 格式兼容：旧文件只有 current_index 字段，
// 读取时 rotated_at 缺失会留为零值。
type fileRecord struct {
	CurrentIndex int       `json:"current_index"` // 当前凭证序号
	RotatedAt    time.Time `json:"rotated_at,omitempty"`
}

// FileStore 基于文件的轮换状态存储
//
// 每个提供商一个 JSON 文件：<dir>/<providerID>.keyidx，目录按需创建。
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore 创建文件存储
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	return &FileStore{dir: dir, logger: logger}
}

// Load 读取提供商的轮换状态
//
// 文件缺失或内容损坏均返回 ok=false 且 err=nil，由调用方按序号 0 处理。
func (s *FileStore) Load(providerID string) (int, time.Time, bool, error) {
	data, err := os.ReadFile(s.path(providerID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, fmt.Errorf("读取轮换状态文件失败：%w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("轮换状态文件损坏，按序号 0 处理",
			"provider", providerID,
			"error", err)
		return 0, time.Time{}, false, nil
	}

	return rec.CurrentIndex, rec.RotatedAt, true, nil
}

// Save 写入提供商的轮换状态
func (s *FileStore) Save(providerID string, index int, rotatedAt time.Time) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("创建轮换状态目录失败：%w", err)
	}

	data, err := json.Marshal(fileRecord{CurrentIndex: index, RotatedAt: rotatedAt})
	if err != nil {
		return fmt.Errorf("序列化轮换状态失败：%w", err)
	}

	if err := os.WriteFile(s.path(providerID), data, 0o644); err != nil {
		return fmt.Errorf("写入轮换状态文件失败：%w", err)
	}
	return nil
}

// path 提供商状态文件路径
func (s *FileStore) path(providerID string) string {
	return filepath.Join(s.dir, providerID+".keyidx")
}
