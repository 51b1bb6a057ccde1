package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "explicit config path must exist")

	// No explicit path: defaults apply even without a config file.
	cfg, err = loadFromDir(t, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "lineage.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 20, cfg.Audit.PageSize)
}

func TestLoad_ConfigFile(t *testing.T) {
	yaml := `
database:
  type: postgres
  dsn: host=db port=5432 user=lineage dbname=lineage
logging:
  level: debug
  format: text
audit:
  page_size: 50
`
	cfg, err := loadFromDir(t, yaml)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 50, cfg.Audit.PageSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("LINEAGE_DATABASE_TYPE", "mysql")
	t.Setenv("LINEAGE_DATABASE_DSN", "user:pass@tcp(db:3306)/lineage")

	cfg, err := loadFromDir(t, "database:\n  type: sqlite\n  dsn: lineage.db\n")
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, "user:pass@tcp(db:3306)/lineage", cfg.Database.DSN)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := loadFromDir(t, "database:\n  type: oracle\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database type")

	_, err = loadFromDir(t, "logging:\n  level: loud\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid logging level")

	_, err = loadFromDir(t, "audit:\n  page_size: 0\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid audit page size")
}

// loadFromDir writes yaml to a temp config file and loads it; empty yaml
// loads with no config file present.
func loadFromDir(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	if yaml == "" {
		return Load("")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return Load(path)
}
