package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminDocumentPathsLiveUnderBasePath(t *testing.T) {
	doc := SwaggerInfo.ReadDoc()

	var parsed struct {
		BasePath string                     `json:"basePath"`
		Paths    map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))

	assert.Equal(t, "/admin/api", parsed.BasePath)
	assert.Contains(t, parsed.Paths, "/routes")
	assert.NotContains(t, parsed.Paths, "/v1/health")
}
