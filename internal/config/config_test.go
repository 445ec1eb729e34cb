package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	return flag.NewFlagSet("test", flag.ContinueOnError)
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFrom(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "blog.db", cfg.DBPath)
	assert.Equal(t, "article/{id}", cfg.Permalink.Pattern)
	assert.Equal(t, 6, cfg.Permalink.IDLength)
	assert.Equal(t, 1024, cfg.Cache.Capacity)
	assert.Equal(t, time.Second, cfg.Routes.Debounce)
	assert.Empty(t, cfg.APIKey)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	iniPath := filepath.Join(dir, "blog.ini")
	require.NoError(t, os.WriteFile(iniPath, []byte(`
[server]
addr = :7000
api_key = from-ini

[permalink]
pattern = {year}/{month}/{encodeid}
id_length = 8

[routes]
debounce_ms = 250
`), 0o644))

	t.Setenv("CONFIG_FILE", iniPath)
	t.Setenv("API_KEY", "from-env")

	cfg, err := LoadFrom(newFlagSet(), []string{"-addr", ":9000"})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr, "flag beats INI")
	assert.Equal(t, "from-env", cfg.APIKey, "env beats INI")
	assert.Equal(t, "{year}/{month}/{encodeid}", cfg.Permalink.Pattern)
	assert.Equal(t, 8, cfg.Permalink.IDLength)
	assert.Equal(t, 250*time.Millisecond, cfg.Routes.Debounce)
}

func TestLoad_MissingINI(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "/nonexistent/blog.ini")

	_, err := LoadFrom(newFlagSet(), nil)
	assert.Error(t, err)
}

func TestLoad_InvalidCapacity(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CACHE_CAPACITY", "0")

	_, err := LoadFrom(newFlagSet(), nil)
	assert.Error(t, err)
}
