package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envMap returns a LookupEnv backed by m, so tests never touch the process environment.
func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Source{LookupEnv: envMap(nil)})
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Backend)
	assert.Equal(t, uint16(10000), cfg.MaxRecords)
	assert.Nil(t, cfg.Strict)
	assert.Empty(t, cfg.DBPath)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "classy.yaml", `
backend: sqlite
db_path: /var/lib/classy/classy.db
strict: false
max_records: 500
`)

	cfg, err := Load(Source{File: path, LookupEnv: envMap(nil)})
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, "/var/lib/classy/classy.db", cfg.DBPath)
	require.NotNil(t, cfg.Strict)
	assert.False(t, *cfg.Strict)
	assert.Equal(t, uint16(500), cfg.MaxRecords)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "classy.yml", "backend: sqlite\nstrictness: true\n")

	_, err := Load(Source{File: path, LookupEnv: envMap(nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictness")
}

func TestLoad_EmptyYAMLKeepsDefaults(t *testing.T) {
	path := writeFile(t, "classy.yaml", "")

	cfg, err := Load(Source{File: path, LookupEnv: envMap(nil)})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_CUEFile(t *testing.T) {
	path := writeFile(t, "classy.cue", `
backend:     "sqlite"
db_path:     "data/classy.db"
strict:      true
max_records: 250 * 4
`)

	cfg, err := Load(Source{File: path, LookupEnv: envMap(nil)})
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, "data/classy.db", cfg.DBPath)
	assert.True(t, cfg.IsStrict())
	assert.Equal(t, uint16(1000), cfg.MaxRecords)
}

func TestLoad_UnsupportedFileType(t *testing.T) {
	path := writeFile(t, "classy.toml", "backend = 'sqlite'")

	_, err := Load(Source{File: path, LookupEnv: envMap(nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	path := writeFile(t, "classy.yaml", "db_path: from-file.db\nstrict: false\n")
	envFile := writeFile(t, ".env", "SQLITE_DB_PATH=from-dotenv.db\nCLASSY_API_HOST=https://classy.example\n")

	cfg, err := Load(Source{
		File:    path,
		EnvFile: envFile,
		LookupEnv: envMap(map[string]string{
			EnvStrict:     "true",
			EnvMaxRecords: "42",
			EnvBackend:    "sqlite",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv.db", cfg.DBPath)
	assert.Equal(t, "https://classy.example", cfg.APIHost)
	assert.True(t, cfg.IsStrict())
	assert.Equal(t, uint16(42), cfg.MaxRecords)
	assert.Equal(t, "sqlite", cfg.Backend)

	cfg, err = Load(Source{
		EnvFile:   envFile,
		LookupEnv: envMap(map[string]string{EnvDBPath: "from-process.db"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "from-process.db", cfg.DBPath)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	_, err := Load(Source{
		EnvFile:   filepath.Join(t.TempDir(), "missing.env"),
		LookupEnv: envMap(nil),
	})
	require.NoError(t, err)
}

func TestLoad_InvalidEnvValues(t *testing.T) {
	for key, value := range map[string]string{
		EnvStrict:     "maybe",
		EnvMaxRecords: "70000",
	} {
		t.Run(key, func(t *testing.T) {
			_, err := Load(Source{LookupEnv: envMap(map[string]string{key: value})})
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidate(t *testing.T) {
	yes := true

	valid := Config{Backend: "sqlite3", DBPath: "classy.db", Strict: &yes, MaxRecords: 10}
	require.NoError(t, valid.Validate())

	testCases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"strict missing", func(c *Config) { c.Strict = nil }, "strict"},
		{"unknown backend", func(c *Config) { c.Backend = "postgres" }, "backend"},
		{"empty path", func(c *Config) { c.DBPath = "" }, "db_path"},
		{"zero max records", func(c *Config) { c.MaxRecords = 0 }, "max_records"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
