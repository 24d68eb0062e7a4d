package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"swaptinsight/internal/cache"
	"swaptinsight/internal/pipeline"
	"swaptinsight/internal/refresh"
)

// ResultLoader reads the cached result. *cache.FileStore implements it.
type ResultLoader interface {
	Load() (*pipeline.MetricsResult, error)
	LoadRaw() ([]byte, error)
}

// Refresher runs the pipeline. *refresh.Refresher implements it.
type Refresher interface {
	Refresh(req refresh.Request) (*refresh.Outcome, error)
}

type refreshRequest struct {
	StoreID string `json:"storeId"`
	APIKey  string `json:"apiKey"`
}

type refreshResponse struct {
	Success bool                    `json:"success"`
	StoreID string                  `json:"storeId"`
	Data    *pipeline.MetricsResult `json:"data"`
}

// CachedMetrics serves the last cached result as stored on disk.
func CachedMetrics(store ResultLoader, log *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		body, err := store.LoadRaw()
		if err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				jsonError(ctx, fasthttp.StatusNotFound, "Data file not found", nil)
				return
			}
			log.Error("failed to read cached metrics", zap.Error(err))
			jsonError(ctx, fasthttp.StatusInternalServerError, "Failed to fetch data", nil)
			return
		}
		ctx.SetContentType("application/json")
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(body)
	}
}

// RefreshMetrics runs the pipeline for the posted store and API key and
// returns the fresh result. The run blocks the request until it finishes.
func RefreshMetrics(r Refresher, log *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req refreshRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			jsonError(ctx, fasthttp.StatusBadRequest, "Missing required parameters", nil)
			return
		}
		req.StoreID = strings.TrimSpace(req.StoreID)
		req.APIKey = strings.TrimSpace(req.APIKey)
		if req.StoreID == "" || req.APIKey == "" {
			jsonError(ctx, fasthttp.StatusBadRequest, "Missing required parameters", nil)
			return
		}

		out, err := r.Refresh(refresh.Request{StoreID: req.StoreID, APIKey: req.APIKey})
		if err != nil {
			log.Error("refresh request failed", zap.String("store_id", req.StoreID), zap.Error(err))
			jsonError(ctx, fasthttp.StatusInternalServerError, "Failed to fetch store data", map[string]any{
				"message": err.Error(),
			})
			return
		}

		jsonResponse(ctx, refreshResponse{Success: true, StoreID: req.StoreID, Data: out.Result})
	}
}
