package gateway

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeowSalty/relay/gateway/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseModelMapping(t *testing.T) {
	t.Run("空串返回空表", func(t *testing.T) {
		mapping, err := ParseModelMapping("")
		require.NoError(t, err)
		assert.Empty(t, mapping)
	})

	t.Run("多条规则", func(t *testing.T) {
		mapping, err := ParseModelMapping("gpt-4o:gpt-4o-mini, claude-3-opus : claude-sonnet-4")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"gpt-4o":        "gpt-4o-mini",
			"claude-3-opus": "claude-sonnet-4",
		}, mapping)
	})

	t.Run("忽略空规则项", func(t *testing.T) {
		mapping, err := ParseModelMapping("a:b,,c:d,")
		require.NoError(t, err)
		assert.Len(t, mapping, 2)
	})

	t.Run("缺少冒号报错", func(t *testing.T) {
		_, err := ParseModelMapping("gpt-4o")
		assert.Error(t, err)
	})

	t.Run("目标为空报错", func(t *testing.T) {
		_, err := ParseModelMapping("gpt-4o:")
		assert.Error(t, err)
	})
}

func TestRewriteModels(t *testing.T) {
	mapping, err := ParseModelMapping("old-model:new-model,legacy:modern")
	require.NoError(t, err)
	s := &service{mapping: mapping, logger: testLogger()}

	t.Run("改写显式模型", func(t *testing.T) {
		req := &types.Request{Model: "old-model", Prompt: "你好"}
		s.rewriteModels(req)
		assert.Equal(t, "new-model", req.Model)
	})

	t.Run("不在表中的模型保持原样", func(t *testing.T) {
		req := &types.Request{Model: "untouched", Prompt: "你好"}
		s.rewriteModels(req)
		assert.Equal(t, "untouched", req.Model)
	})

	t.Run("改写模型链中的每一项", func(t *testing.T) {
		req := &types.Request{ModelChain: []string{"old-model", "untouched", "legacy"}, Prompt: "你好"}
		s.rewriteModels(req)
		assert.Equal(t, []string{"new-model", "untouched", "modern"}, req.ModelChain)
	})

	t.Run("角色名不受影响", func(t *testing.T) {
		req := &types.Request{Role: "legacy", Prompt: "你好"}
		s.rewriteModels(req)
		assert.Equal(t, "legacy", req.Role)
	})
}
