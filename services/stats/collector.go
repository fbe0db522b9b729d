package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector 实时数据采集器
//
// 在 API 入口处采集请求速率与活动连接数，避免为实时指标查询数据库。
// 请求计数使用 60 个带时间戳的秒槽：读写时按时间戳忽略过期槽位，
// 因此不需要后台清理协程。
type Collector struct {
	mu     sync.Mutex
	counts [60]int64 // 每秒请求数
	stamps [60]int64 // counts[i] 对应的 Unix 秒

	activeConnections int64

	now func() time.Time
}

// NewCollector 创建实时数据采集器
func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

// RecordRequest 记录一次请求
func (c *Collector) RecordRequest() {
	now := c.now().Unix()
	idx := now % 60

	c.mu.Lock()
	defer c.mu.Unlock()

	// 槽位属于上一轮的同余秒时先清零
	if c.stamps[idx] != now {
		c.counts[idx] = 0
		c.stamps[idx] = now
	}
	c.counts[idx]++
}

// RPM 返回过去 60 秒的请求总数
func (c *Collector) RPM() int64 {
	now := c.now().Unix()

	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for i := range c.counts {
		if now-c.stamps[i] < 60 {
			total += c.counts[i]
		}
	}
	return total
}

// IncrementConnection 增加活动连接数
func (c *Collector) IncrementConnection() {
	atomic.AddInt64(&c.activeConnections, 1)
}

// DecrementConnection 减少活动连接数
func (c *Collector) DecrementConnection() {
	atomic.AddInt64(&c.activeConnections, -1)
}

// ActiveConnections 返回当前活动连接数
func (c *Collector) ActiveConnections() int64 {
	return atomic.LoadInt64(&c.activeConnections)
}
