package auth

import "github.com/valyala/fasthttp"

const (
	AnthropicAPIKeyHeader  = "x-api-key"
	AnthropicVersionHeader = "anthropic-version"
	AnthropicVersion       = "2023-06-01"
)

// AnthropicAuth sets the x-api-key and anthropic-version headers.
type AnthropicAuth struct{}

func (AnthropicAuth) Apply(req *fasthttp.Request, credential string) {
	req.Header.Set(AnthropicAPIKeyHeader, credential)
	req.Header.Set(AnthropicVersionHeader, AnthropicVersion)
}
