package adapter

import (
	"context"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/MeowSalty/relay/gateway/adapter/auth"
	"github.com/MeowSalty/relay/gateway/types"
)

// httpResponse 一次提供商调用的响应快照
//
// fasthttp 的请求与响应对象会被池化复用，这里把需要的字段拷贝出来。
type httpResponse struct {
	Status     int    // HTTP 状态码
	Body       []byte // 响应体副本
	RetryAfter string // Retry-After 头原始值（可能为空）
}

// postJSON 向提供商发起一次 JSON POST 请求
//
// 凭证通过 auth 策略注入请求头；超时取适配器配置与上下文剩余时间的
// 较小值。
func postJSON(ctx context.Context, client *fasthttp.Client, url string, strategy auth.Strategy, credential string, body []byte, timeout time.Duration) (*httpResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	strategy.Apply(req, credential)
	req.SetBody(body)

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if err := client.DoTimeout(req, resp, timeout); err != nil {
		return nil, err
	}

	out := &httpResponse{
		Status:     resp.StatusCode(),
		Body:       append([]byte(nil), resp.Body()...),
		RetryAfter: string(resp.Header.Peek(fasthttp.HeaderRetryAfter)),
	}
	return out, nil
}

// classify 把非 2xx 响应归类为统一结果
//
// 429 视为限流，5xx 视为瞬时错误，其余 4xx 视为致命错误。
func (r *httpResponse) classify(err error, latency time.Duration) *types.Result {
	switch {
	case r.Status == fasthttp.StatusTooManyRequests:
		return rateLimited(err, r.retryAfter(), latency)
	case r.Status >= 500:
		return transient(err, latency)
	default:
		return fatal(err, latency)
	}
}

// retryAfter 解析 Retry-After 头（秒）
func (r *httpResponse) retryAfter() time.Duration {
	if r.RetryAfter == "" {
		return 0
	}
	seconds, err := strconv.Atoi(r.RetryAfter)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
