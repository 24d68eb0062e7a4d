package middleware

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	"swaptinsight/internal/config"
	httpctx "swaptinsight/internal/http/ctx"
)

const realm = `Basic realm="swaptinsight", charset="UTF-8"`

// BasicAuth validates HTTP basic credentials against APP_ADMIN_USER and the
// bcrypt hash in APP_ADMIN_PASSWORD_HASH. When either is unset the
// middleware does nothing.
func BasicAuth(cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if !cfg.AuthEnabled() {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return next
		}
	}

	user := []byte(cfg.AdminUser)
	hash := []byte(cfg.AdminPasswordHash)

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			username, password, ok := parseBasic(ctx.Request.Header.Peek("Authorization"))
			if !ok {
				challenge(ctx, "missing Authorization header")
				return
			}

			if subtle.ConstantTimeCompare(username, user) != 1 {
				challenge(ctx, "invalid credentials")
				return
			}
			if err := bcrypt.CompareHashAndPassword(hash, password); err != nil {
				challenge(ctx, "invalid credentials")
				return
			}

			httpctx.SetOperator(ctx, string(username))
			next(ctx)
		}
	}
}

func parseBasic(auth []byte) (username, password []byte, ok bool) {
	const prefix = "Basic "
	if len(auth) == 0 || !bytes.HasPrefix(auth, []byte(prefix)) {
		return nil, nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(auth[len(prefix):])))
	if err != nil {
		return nil, nil, false
	}
	username, password, ok = bytes.Cut(decoded, []byte(":"))
	if !ok || len(username) == 0 {
		return nil, nil, false
	}
	return username, password, true
}

func challenge(ctx *fasthttp.RequestCtx, msg string) {
	ctx.Response.Header.Set("WWW-Authenticate", realm)
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetBodyString(msg)
}
