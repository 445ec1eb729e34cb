// Package models holds the admin API request and response bodies.
package models

// CreateRouteRequest is the body for POST /routes
type CreateRouteRequest struct {
	Path             string `json:"path" binding:"required"`
	OriginalEndpoint string `json:"original_endpoint" binding:"required"`
	Description      string `json:"description"`
	IsActive         *bool  `json:"is_active"` // defaults to true
}

// UpdateRouteRequest is the body for PUT /routes/:id. Omitted fields are
// left unchanged.
type UpdateRouteRequest struct {
	Path             *string `json:"path"`
	OriginalEndpoint *string `json:"original_endpoint"`
	Description      *string `json:"description"`
	IsActive         *bool   `json:"is_active"`
}

// RuleResponse is one entry of GET /table
type RuleResponse struct {
	Endpoint string            `json:"endpoint"`
	Pattern  string            `json:"pattern"`
	Methods  []string          `json:"methods"`
	Kind     string            `json:"kind"`
	Owner    string            `json:"owner,omitempty"`
	Defaults map[string]string `json:"defaults,omitempty"`
}

// TableResponse is the response for GET /table
type TableResponse struct {
	Generation uint64         `json:"generation"`
	State      string         `json:"state"`
	Rules      []RuleResponse `json:"rules"`
}
