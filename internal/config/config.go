// Package config loads the explicit configuration a sync client is built
// from. Nothing here is read lazily or cached globally: callers load a Config
// once and pass it to constructors.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables that override file values.
const (
	EnvBackend    = "CLASSY_DB_BACKEND"
	EnvDBPath     = "SQLITE_DB_PATH"
	EnvStrict     = "CLASSY_STRICT"
	EnvMaxRecords = "CLASSY_MAX_RECORDS"
	EnvAPIHost    = "CLASSY_API_HOST"
)

// Defaults.
const (
	DefaultBackend    = "sqlite3"
	DefaultMaxRecords = 10_000
)

// Config is the complete client configuration.
type Config struct {
	// Backend is the SQLite driver: "sqlite3" or "sqlite".
	Backend string `yaml:"backend" json:"backend"`

	// DBPath is the database file.
	DBPath string `yaml:"db_path" json:"db_path"`

	// Strict has no default and must be set by a file, the environment, or a flag.
	Strict *bool `yaml:"strict" json:"strict,omitempty"`

	// MaxRecords is the per-request record limit.
	MaxRecords uint16 `yaml:"max_records" json:"max_records"`

	// APIHost is the remote catalog service. Only recorded; no HTTP client is built.
	APIHost string `yaml:"api_host" json:"api_host,omitempty"`
}

// Default returns the configuration before any source is applied.
func Default() Config {
	return Config{
		Backend:    DefaultBackend,
		MaxRecords: DefaultMaxRecords,
	}
}

// Source describes where configuration is read from. Later sources win:
// defaults, then File, then EnvFile, then the process environment.
type Source struct {
	// File is an optional .yaml, .yml, or .cue file.
	File string

	// EnvFile is an optional dotenv file. A missing file is ignored.
	EnvFile string

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load reads configuration from src. It does not validate; call Validate
// after applying any command-line overrides.
func Load(src Source) (Config, error) {
	cfg := Default()

	if src.File != "" {
		if err := loadFile(src.File, &cfg); err != nil {
			return cfg, err
		}
	}

	dotenv := map[string]string{}
	if src.EnvFile != "" {
		m, err := godotenv.Read(src.EnvFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("config: read %s: %w", src.EnvFile, err)
		}
	}

	lookup := src.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := applyEnv(&cfg, env); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	case ".cue":
		v := cuecontext.New().CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return fmt.Errorf("config: compile %s: %w", path, err)
		}
		raw, err := v.MarshalJSON()
		if err != nil {
			return fmt.Errorf("config: evaluate %s: %w", path, err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config, env func(string) (string, bool)) error {
	if v, ok := env(EnvBackend); ok && v != "" {
		cfg.Backend = v
	}
	if v, ok := env(EnvDBPath); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := env(EnvAPIHost); ok && v != "" {
		cfg.APIHost = v
	}
	if v, ok := env(EnvStrict); ok && v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvStrict, err)
		}
		cfg.Strict = &strict
	}
	if v, ok := env(EnvMaxRecords); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMaxRecords, err)
		}
		cfg.MaxRecords = uint16(n)
	}
	return nil
}

// Validate checks cfg against the embedded CUE schema. A missing strict
// setting, an unknown backend, or an empty database path is an error.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// IsStrict returns the strict setting. Only meaningful after Validate.
func (c Config) IsStrict() bool {
	return c.Strict != nil && *c.Strict
}
