package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollector_RPM(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c := NewCollector()
	c.now = func() time.Time { return now }

	// 同一秒内记录 3 次
	c.RecordRequest()
	c.RecordRequest()
	c.RecordRequest()
	assert.Equal(t, int64(3), c.RPM())

	// 30 秒后再记录 2 次，窗口内共 5 次
	now = base.Add(30 * time.Second)
	c.RecordRequest()
	c.RecordRequest()
	assert.Equal(t, int64(5), c.RPM())

	// 前 3 次滑出窗口后只剩 2 次
	now = base.Add(61 * time.Second)
	assert.Equal(t, int64(2), c.RPM())

	// 全部滑出
	now = base.Add(2 * time.Minute)
	assert.Equal(t, int64(0), c.RPM())
}

func TestCollector_SlotReuseClearsStaleCount(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c := NewCollector()
	c.now = func() time.Time { return now }

	c.RecordRequest()
	c.RecordRequest()

	// 整整一分钟后落在同一个槽位，旧计数必须被清零
	now = base.Add(60 * time.Second)
	c.RecordRequest()
	assert.Equal(t, int64(1), c.RPM())
}

func TestCollector_ActiveConnections(t *testing.T) {
	c := NewCollector()

	c.IncrementConnection()
	c.IncrementConnection()
	assert.Equal(t, int64(2), c.ActiveConnections())

	c.DecrementConnection()
	assert.Equal(t, int64(1), c.ActiveConnections())
}
