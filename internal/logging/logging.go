package logging

import (
	"io"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the per-request id.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the gin context key holding the request id.
const requestIDKey = "request_id"

// EndpointKey is the gin context key holding the endpoint that served the
// request. The dispatcher sets it.
const EndpointKey = "route.endpoint"

// New builds the root logger. Unknown levels fall back to info.
func New(level, format string) *logrus.Logger {
	return newWithOutput(level, format, os.Stderr)
}

func newWithOutput(level, format string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// Discard returns a logger that writes nowhere, for tests.
func Discard() *logrus.Entry {
	return logrus.NewEntry(newWithOutput("panic", "text", io.Discard))
}

// Component returns an entry tagged with the component name.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}

// RequestID propagates an incoming X-Request-ID or generates a uuid v4.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// FromContext returns log fields for the request: its id and, when set by
// the dispatcher, the endpoint that served it.
func FromContext(base *logrus.Entry, c *gin.Context) *logrus.Entry {
	e := base
	if id := c.GetString(requestIDKey); id != "" {
		e = e.WithField("request_id", id)
	}
	if ep := c.GetString(EndpointKey); ep != "" {
		e = e.WithField("endpoint", ep)
	}
	return e
}
