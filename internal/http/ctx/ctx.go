package ctx

import (
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const (
	OperatorKey  = "operator"
	RequestIDKey = "requestID"
)

// SetOperator records the authenticated dashboard operator.
func SetOperator(ctx *fasthttp.RequestCtx, username string) {
	ctx.SetUserValue(OperatorKey, username)
}

// OperatorFromCtx returns the authenticated operator, if auth is enabled and
// the request passed it.
func OperatorFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(OperatorKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func SetRequestID(ctx *fasthttp.RequestCtx, id uuid.UUID) {
	ctx.SetUserValue(RequestIDKey, id)
}

// RequestIDFromCtx returns the id assigned by the request logger, or
// uuid.Nil outside of it.
func RequestIDFromCtx(ctx *fasthttp.RequestCtx) uuid.UUID {
	id, _ := ctx.UserValue(RequestIDKey).(uuid.UUID)
	return id
}
