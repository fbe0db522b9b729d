package auth

import "github.com/valyala/fasthttp"

// OpenAIAuth sets the Authorization: Bearer <key> header.
type OpenAIAuth struct{}

func (OpenAIAuth) Apply(req *fasthttp.Request, credential string) {
	req.Header.Set("Authorization", "Bearer "+credential)
}
