package models

// ResolveResponse is the JSON body for every non-redirect answer of the
// resolve endpoints, and for redirects when the caller asked for format=json.
type ResolveResponse struct {
	// Success is true only when a manifest URL was resolved.
	Success bool `json:"success"`

	// Status is the outcome kind: "live", "offline", "not_found",
	// "bad_request" or "upstream_error".
	Status string `json:"status"`

	// Handle is the normalized channel handle (no leading @).
	Handle string `json:"handle,omitempty"`

	// ManifestURL is the resolved HLS playlist URL.
	ManifestURL string `json:"manifest_url,omitempty"`

	// VideoID and VideoURL identify the live broadcast.
	VideoID  string `json:"video_id,omitempty"`
	VideoURL string `json:"video_url,omitempty"`

	// Title is the broadcast title when the watch page exposed one.
	Title string `json:"title,omitempty"`

	// Tier records which fetch strategy produced the answer ("static" or "rendered").
	Tier string `json:"tier,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching disabled).
	CacheStatus string `json:"cache_status,omitempty"`

	// Timing provides the duration of the resolution.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent resolving.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	Browser   bool      `json:"browser"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser tab pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	Pages       int `json:"pages"`
	ActivePages int `json:"active_pages"`
}
