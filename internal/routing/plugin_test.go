package routing

import (
	"net/http"
	"testing"

	"open-blog/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrar_FirstRegistrantWins(t *testing.T) {
	tbl := newTestTable(t)
	reg := NewRegistrar(tbl, logging.Discard())
	p := reg.For("gallery")

	assert.True(t, p.Route("/gallery", named("first")))
	assert.False(t, p.Route("/gallery", named("second")), "same derived endpoint")

	m, err := tbl.Lookup("GET", "/gallery")
	require.NoError(t, err)
	assert.Equal(t, "gallery./gallery", m.Rule.Endpoint)
	assert.Equal(t, "gallery", m.Rule.Owner)

	// another owner cannot shadow the path either
	assert.False(t, reg.For("other").Route("/gallery", named("other")))
	// nor a built-in
	assert.False(t, p.Route("/about", named("about")))
}

func TestRegistrar_UnregisterIsCompleteInverse(t *testing.T) {
	tbl := newTestTable(t)
	before := len(tbl.Rules())
	reg := NewRegistrar(tbl, logging.Discard())
	p := reg.For("gallery")

	require.True(t, p.Route("/gallery", named("list")))
	require.True(t, p.Route("/gallery/{id:[0-9]+}", named("item"), http.MethodGet, http.MethodPost))
	require.True(t, reg.For("other").Route("/other", named("other")))
	assert.Len(t, reg.Owned("gallery"), 2)

	assert.Equal(t, 2, p.UnregisterRoutes())
	assert.Empty(t, reg.Owned("gallery"))
	assert.Len(t, tbl.Rules(), before+1)

	_, err := tbl.Lookup("GET", "/gallery/1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, ok := tbl.FindByEndpoint("gallery./gallery")
	assert.False(t, ok)

	// re-enabling works because nothing is left behind
	assert.True(t, p.Route("/gallery", named("list")))
	assert.Equal(t, 0, reg.For("nobody").UnregisterRoutes())
}
