package middleware

import (
	"encoding/base64"
	"testing"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	"swaptinsight/internal/config"
	httpctx "swaptinsight/internal/http/ctx"
	"swaptinsight/internal/telemetry"
)

func authConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return &config.Config{AdminUser: "ops", AdminPasswordHash: string(hash)}
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func serve(h fasthttp.RequestHandler, authHeader string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/metrics-data")
	if authHeader != "" {
		ctx.Request.Header.Set("Authorization", authHeader)
	}
	h(&ctx)
	return &ctx
}

func TestBasicAuthDisabledPassesThrough(t *testing.T) {
	called := false
	h := BasicAuth(&config.Config{AdminUser: "ops"})(func(ctx *fasthttp.RequestCtx) { called = true })
	ctx := serve(h, "")
	require.True(t, called)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestBasicAuth(t *testing.T) {
	var operator string
	h := BasicAuth(authConfig(t))(func(ctx *fasthttp.RequestCtx) {
		operator, _ = httpctx.OperatorFromCtx(ctx)
	})

	ctx := serve(h, basic("ops", "s3cret"))
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	require.Equal(t, "ops", operator)

	for _, header := range []string{
		"",
		"Bearer abc",
		"Basic !!!",
		basic("ops", "wrong"),
		basic("admin", "s3cret"),
		basic("", "s3cret"),
	} {
		operator = ""
		ctx := serve(h, header)
		require.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode(), header)
		require.Contains(t, string(ctx.Response.Header.Peek("WWW-Authenticate")), "Basic")
		require.Empty(t, operator)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func hit(h fasthttp.RequestHandler, uri string) {
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI(uri)
	h(&ctx)
}

func TestRequestMetricsLabelsByRoute(t *testing.T) {
	r := router.New()
	r.SaveMatchedRoutePath = true
	r.GET("/metrics-data/export.csv", func(ctx *fasthttp.RequestCtx) {})
	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {})
	h := RequestMetrics(r.Handler)

	export := telemetry.HTTPRequests.WithLabelValues("/metrics-data/export.csv", "GET", "200")
	before := counterValue(t, export)
	hit(h, "/metrics-data/export.csv?kind=orders")
	require.Equal(t, before+1, counterValue(t, export))

	health := telemetry.HTTPRequests.WithLabelValues("/healthz", "GET", "200")
	hit(h, "/healthz")
	require.Zero(t, counterValue(t, health))

	missing := telemetry.HTTPRequests.WithLabelValues(unmatchedRoute, "GET", "404")
	before = counterValue(t, missing)
	hit(h, "/nope")
	require.Equal(t, before+1, counterValue(t, missing))
}
