package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/livehls/cache"
	"github.com/use-agent/livehls/models"
	"github.com/use-agent/livehls/resolver"
)

// Messages returned to callers. Upstream details are appended separately.
const (
	msgOffline    = "No live video found: channel is likely offline."
	msgNoManifest = "Live stream is not HLS-based or URL is missing."
	msgNotLive    = "Live stream has ended."
	msgUpstream   = "Server error while checking live status."
)

// Resolve returns a handler for GET /live, GET /live/:id and
// GET /api/v1/resolve.
//
// Orchestration flow:
//  1. Bind query; a path id wins over the query id.
//  2. Resolver.Resolve → one Outcome.
//  3. Map the outcome onto a redirect or a JSON body.
func Resolve(res cache.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ResolveRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			respondError(c, models.NewResolveError(models.ErrCodeInvalidInput, err.Error(), err),
				"bad_request", "", timing(totalStart))
			return
		}
		if id := c.Param("id"); id != "" {
			req.ID = id
		}
		req.Defaults()

		// ── 2. Resolve ──────────────────────────────────────────────
		out := res.Resolve(c.Request.Context(), req.ID)

		// ── 3. Respond ──────────────────────────────────────────────
		respondOutcome(c, &req, out, timing(totalStart))
	}
}

func respondOutcome(c *gin.Context, req *models.ResolveRequest, out resolver.Outcome, t models.TimingInfo) {
	if out.CacheHit {
		c.Header("X-Cache", "hit")
	}

	switch out.Kind {
	case resolver.KindRedirect:
		if req.Format == "json" {
			resp := baseResponse(out, t)
			resp.Success = true
			resp.Status = "live"
			resp.ManifestURL = out.URL
			c.JSON(http.StatusOK, resp)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Redirect(http.StatusFound, out.URL)

	case resolver.KindOffline:
		resp := baseResponse(out, t)
		resp.Status = "offline"
		resp.Error = &models.ErrorDetail{Code: models.ErrCodeOffline, Message: msgOffline}
		c.JSON(http.StatusNotFound, resp)

	case resolver.KindNotFound:
		msg := msgNoManifest
		if out.Reason == resolver.ReasonNotLive {
			msg = msgNotLive
		}
		resp := baseResponse(out, t)
		resp.Status = "not_found"
		resp.Error = &models.ErrorDetail{Code: models.ErrCodeNoManifest, Message: msg, Details: out.Reason}
		c.JSON(http.StatusNotFound, resp)

	case resolver.KindBadRequest:
		respondError(c, models.NewResolveError(models.ErrCodeInvalidInput, out.Reason, nil), "bad_request", "", t)

	default:
		code := out.Code
		if code == "" {
			code = models.ErrCodeInternal
		}
		respondError(c, &models.ResolveError{Code: code, Message: msgUpstream, StatusCode: out.StatusCode},
			"upstream_error", out.Detail, t)
	}
}

func baseResponse(out resolver.Outcome, t models.TimingInfo) models.ResolveResponse {
	resp := models.ResolveResponse{
		Handle:   out.Handle,
		VideoID:  out.VideoID,
		VideoURL: out.VideoURL,
		Title:    out.Title,
		Tier:     string(out.Tier),
		Timing:   t,
	}
	if out.CacheHit {
		resp.CacheStatus = "hit"
	}
	return resp
}

// respondError maps a ResolveError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, e *models.ResolveError, status, details string, t models.TimingInfo) {
	detail := e.ToDetail()
	detail.Details = details
	c.JSON(mapErrorToStatus(e), models.ResolveResponse{
		Success: false,
		Status:  status,
		Error:   detail,
		Timing:  t,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ResolveError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

func timing(start time.Time) models.TimingInfo {
	return models.TimingInfo{TotalMs: time.Since(start).Milliseconds()}
}
