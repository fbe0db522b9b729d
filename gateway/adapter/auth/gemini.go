package auth

import "github.com/valyala/fasthttp"

const (
	GeminiAPIKeyHeader = "x-goog-api-key"
)

// GeminiAuth sets the x-goog-api-key header.
type GeminiAuth struct{}

func (GeminiAuth) Apply(req *fasthttp.Request, credential string) {
	req.Header.Set(GeminiAPIKeyHeader, credential)
}
