// ABOUTME: Tests for configuration loading, env expansion and validation
// ABOUTME: Uses temp-dir YAML files per testcase

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scopebook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "/tmp/scopebook.db"
public:
  token_secret: "secret"
  access_ttl: "6h"
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/scopebook.db", cfg.Database.Path)
	assert.Equal(t, 6*time.Hour, cfg.Public.AccessTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SCOPEBOOK_TEST_SECRET", "from-env")

	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "/tmp/scopebook.db"
public:
  token_secret: "${SCOPEBOOK_TEST_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Public.TokenSecret)
}

func TestLoad_MissingRequired(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no http addr", "database:\n  path: \"/tmp/db\"\npublic:\n  token_secret: \"s\"\n"},
		{"no db path", "server:\n  http_addr: \":8080\"\npublic:\n  token_secret: \"s\"\n"},
		{"no secret", "server:\n  http_addr: \":8080\"\ndatabase:\n  path: \"/tmp/db\"\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "/tmp/db"
public:
  token_secret: "s"
  access_ttl: "soon"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
