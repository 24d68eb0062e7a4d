package middleware

import (
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"swaptinsight/internal/telemetry"
)

// unmatchedRoute labels requests the router did not match, keeping the route
// label bounded.
const unmatchedRoute = "unmatched"

// RequestMetrics records every request in the HTTP collectors. It needs the
// router to run with SaveMatchedRoutePath so routes are labelled by pattern.
// Health checks and the exposition endpoint itself are not recorded.
func RequestMetrics(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)

		route, _ := ctx.UserValue(router.MatchedRoutePathParam).(string)
		if route == "" {
			route = unmatchedRoute
		}
		if route == "/healthz" || route == "/internal/metrics" {
			return
		}

		method := string(ctx.Method())
		telemetry.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(ctx.Response.StatusCode())).Inc()
		telemetry.HTTPDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
