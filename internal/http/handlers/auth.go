// Package handlers provides HTTP API handlers for vidbrief.
package handlers

import (
	"crypto/subtle"

	"github.com/danielgtaylor/huma/v2"
)

// APIKeyHeader carries the shared secret for the /api/v1 endpoints.
const APIKeyHeader = "api-key"

// apiKeySecurity marks an operation as guarded by the api-key header in the
// OpenAPI document. The scheme is registered by the server.
var apiKeySecurity = []map[string][]string{{"apiKey": {}}}

// APIKeyAuth checks the api-key header against the configured key.
type APIKeyAuth struct {
	key string
}

// NewAPIKeyAuth creates an APIKeyAuth. An empty key disables the guarded
// endpoints.
func NewAPIKeyAuth(key string) APIKeyAuth {
	return APIKeyAuth{key: key}
}

// Check returns a huma error when provided is missing or wrong.
func (a APIKeyAuth) Check(provided string) error {
	if a.key == "" {
		return huma.Error403Forbidden("API access is disabled: no API key configured")
	}
	if provided == "" {
		return huma.Error400BadRequest("Missing API key")
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(a.key)) != 1 {
		return huma.Error401Unauthorized("Invalid API key")
	}
	return nil
}
