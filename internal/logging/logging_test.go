package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func TestNew_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newWithOutput("debug", "json", &buf)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	Component(l, "route-table").Info("hello")
	assert.Contains(t, buf.String(), `"component":"route-table"`)

	l = newWithOutput("nonsense", "text", &buf)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = c.GetString(requestIDKey)
		c.Status(http.StatusOK)
	})

	// generated
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, seen)

	// propagated
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc", seen)
}
