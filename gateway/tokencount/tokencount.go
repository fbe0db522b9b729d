// Package tokencount 提供提示词 token 数估算。
//
// 优先使用 tiktoken 的 cl100k_base 编码精确计数；编码初始化失败时
// （例如离线环境无法加载编码表）退化为词数启发式估算，保证限流
// 预估永远可用。
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// 启发式估算系数：平均每个词约合 1.3 个 token
const heuristicRatio = 1.3

// Counter token 计数器
type Counter struct {
	once    sync.Once
	encoder *tiktoken.Tiktoken
	logger  *slog.Logger
}

// NewCounter 创建 token 计数器
//
// 编码表采用懒加载：首次计数时才初始化，避免拖慢启动。
func NewCounter(logger *slog.Logger) *Counter {
	return &Counter{logger: logger}
}

// Count 估算文本的 token 数
//
// 返回值不会小于 0；空文本返回 0。
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.once.Do(c.initEncoder)

	if c.encoder != nil {
		return len(c.encoder.Encode(text, nil, nil))
	}
	return heuristic(text)
}

// initEncoder 初始化 cl100k_base 编码器
func (c *Counter) initEncoder() {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("无法初始化 tiktoken 编码器，退化为词数启发式估算", "error", err)
		}
		return
	}
	c.encoder = encoder
}

// heuristic 词数启发式估算
func heuristic(text string) int {
	words := len(strings.Fields(text))
	n := int(float64(words) * heuristicRatio)
	if n < 1 {
		n = 1
	}
	return n
}
