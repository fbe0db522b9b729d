package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter_EmptyText(t *testing.T) {
	c := NewCounter(nil)
	assert.Equal(t, 0, c.Count(""))
}

func TestCounter_NonEmptyText(t *testing.T) {
	c := NewCounter(nil)

	short := c.Count("hello world")
	long := c.Count(strings.Repeat("hello world ", 50))

	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestHeuristic_WordRatio(t *testing.T) {
	// 10 个词 × 1.3 ≈ 13 个 token
	text := strings.TrimSpace(strings.Repeat("词 ", 10))
	assert.Equal(t, 13, heuristic(text))

	// 单词文本至少返回 1
	assert.Equal(t, 1, heuristic("hi"))
}
