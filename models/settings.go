package models

// PermalinkSetting is the body and response of /settings/permalink
type PermalinkSetting struct {
	Pattern string `json:"pattern" binding:"required"`
}

// ClearCacheRequest is the body for POST /cache/clear. An empty pattern
// clears everything; a trailing * removes every key containing the prefix.
type ClearCacheRequest struct {
	Pattern string `json:"pattern"`
}

// ClearCacheResponse is the response for POST /cache/clear
type ClearCacheResponse struct {
	Removed int `json:"removed"`
}
