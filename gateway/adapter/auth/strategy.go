package auth

import "github.com/valyala/fasthttp"

// Strategy defines how a credential is attached to an outbound request.
type Strategy interface {
	Apply(req *fasthttp.Request, credential string)
}
