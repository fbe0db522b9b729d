package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/MeowSalty/relay/gateway/types"
)

// DefaultCLITimeout CLI 提供商未配置超时时的默认值
//
// 本地命令行工具往往比 HTTP 接口慢得多，默认给更宽松的上限。
const DefaultCLITimeout = 120 * time.Second

// rateLimitMarkers 命令输出中判定配额耗尽的关键词（不区分大小写）
var rateLimitMarkers = []string{"rate limit", "rate_limit", "429", "quota", "usage limit", "overloaded"}

// CLIAdapter 本地命令行提供商适配器
//
// 按命令模板启动子进程，提示词从标准输入写入，标准输出作为补全文本。
// 模板参数中的 {model} 占位符会被实际模型标识替换。
type CLIAdapter struct {
	command []string
	timeout time.Duration
	logger  *slog.Logger

	availOnce sync.Once
	available bool
}

// NewCLIAdapter 创建命令行适配器
func NewCLIAdapter(provider *types.ProviderConfig, timeout time.Duration, logger *slog.Logger) *CLIAdapter {
	if timeout <= 0 {
		timeout = DefaultCLITimeout
	}
	return &CLIAdapter{
		command: provider.Command,
		timeout: timeout,
		logger:  logger,
	}
}

// Available 判断命令行工具是否存在于 PATH
//
// 结果缓存：进程生命周期内二进制不会凭空出现或消失。
func (a *CLIAdapter) Available() bool {
	a.availOnce.Do(func() {
		if len(a.command) == 0 {
			return
		}
		if _, err := exec.LookPath(a.command[0]); err != nil {
			a.logger.Warn("命令行工具不可用", "command", a.command[0], "error", err)
			return
		}
		a.available = true
	})
	return a.available
}

// Complete 发起一次补全调用
//
// CLI 工具不报告 token 用量，返回的 Usage 为零值，由路由器估算补记。
func (a *CLIAdapter) Complete(ctx context.Context, prompt, model string, credential types.Credential, params types.Params) *types.Result {
	if len(a.command) == 0 {
		return fatal(errors.New("命令行提供商未配置命令模板"), 0)
	}

	args := make([]string, len(a.command))
	for i, arg := range a.command {
		args[i] = strings.ReplaceAll(arg, "{model}", model)
	}

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	latency := time.Since(start)

	if err != nil {
		return a.classify(err, runCtx, stderr.String(), latency)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return transient(errors.New("命令输出为空"), latency)
	}
	return success(text, types.Usage{}, latency)
}

// classify 把子进程失败归类为统一结果
func (a *CLIAdapter) classify(err error, runCtx context.Context, stderr string, latency time.Duration) *types.Result {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return transient(fmt.Errorf("命令执行超时：%w", err), latency)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		lower := strings.ToLower(stderr)
		for _, marker := range rateLimitMarkers {
			if strings.Contains(lower, marker) {
				return rateLimited(fmt.Errorf("命令报告配额耗尽：%s", firstLine(stderr)), 0, latency)
			}
		}
		return transient(fmt.Errorf("命令退出码 %d：%s", exitErr.ExitCode(), firstLine(stderr)), latency)
	}

	// 启动失败（二进制缺失、权限不足）重试无意义
	return fatal(fmt.Errorf("启动命令失败：%w", err), latency)
}

// firstLine 取 stderr 的首个非空行用于错误信息
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return "（无输出）"
}
