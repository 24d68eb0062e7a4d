package handlers

import (
	"bytes"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"swaptinsight/internal/cache"
	"swaptinsight/internal/config"
	httpctx "swaptinsight/internal/http/ctx"
	"swaptinsight/internal/pipeline"
	ui "swaptinsight/web"
)

type LayoutData struct {
	Title          string
	Operator       string
	AuthEnabled    bool
	HistoryEnabled bool

	// Result is the cached result, nil when no refresh has run yet.
	Result       *pipeline.MetricsResult
	TotalRevenue string
	CachedAt     time.Time
	CacheError   string
}

func getLayoutData(ctx *fasthttp.RequestCtx, cfg *config.Config, title string, historyEnabled bool) LayoutData {
	operator, _ := httpctx.OperatorFromCtx(ctx)
	return LayoutData{
		Title:          title,
		Operator:       operator,
		AuthEnabled:    cfg.AuthEnabled(),
		HistoryEnabled: historyEnabled,
	}
}

func renderLayout(ctx *fasthttp.RequestCtx, data LayoutData) {
	var buf bytes.Buffer
	if err := ui.Templates().ExecuteTemplate(&buf, "layout", data); err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("render error")
		return
	}
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(buf.Bytes())
}

// Dashboard renders the cached metrics with the refresh form. A missing
// cache renders an empty dashboard; an unreadable one shows the error.
func Dashboard(store ResultLoader, cfg *config.Config, historyEnabled bool, log *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		data := getLayoutData(ctx, cfg, "Swapt Insight", historyEnabled)

		res, err := store.Load()
		switch {
		case err == nil:
			data.Result = res
			data.TotalRevenue = pipeline.ToFixed(res.TotalRevenue(), 2)
			if t, ok := cacheModTime(store); ok {
				data.CachedAt = t
			}
		case errors.Is(err, cache.ErrCacheMiss):
		default:
			log.Warn("dashboard could not read cache", zap.Error(err))
			data.CacheError = "The cached data could not be read. Refresh to rebuild it."
		}

		renderLayout(ctx, data)
	}
}

// cacheModTime reports when the cache file was last written, for stores that
// know it.
func cacheModTime(store ResultLoader) (time.Time, bool) {
	m, ok := store.(interface{ ModTime() (time.Time, error) })
	if !ok {
		return time.Time{}, false
	}
	t, err := m.ModTime()
	return t, err == nil
}
