package handlers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	httpctx "swaptinsight/internal/http/ctx"
)

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
// It assigns each request an id, echoed in the X-Request-ID header.
func RequestLogger(log *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			id := uuid.New()
			httpctx.SetRequestID(ctx, id)
			ctx.Response.Header.Set("X-Request-ID", id.String())

			next(ctx)

			fields := []zap.Field{
				zap.String("request_id", id.String()),
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("path", ctx.Path()),
				zap.Int("status", ctx.Response.StatusCode()),
				zap.Duration("duration", time.Since(start)),
				zap.String("ip", ctx.RemoteIP().String()),
			}
			if op, ok := httpctx.OperatorFromCtx(ctx); ok {
				fields = append(fields, zap.String("operator", op))
			}
			log.Info("request", fields...)
		}
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, data any) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(data)
	ctx.SetBody(body)
}

// jsonError writes {"error": msg} with the given status, plus any extra fields.
func jsonError(ctx *fasthttp.RequestCtx, code int, msg string, extra map[string]any) {
	body := map[string]any{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	ctx.SetStatusCode(code)
	jsonResponse(ctx, body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}
