package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"sanitykit/internal/pacing"
)

const (
	DefaultDataset     = "production"
	DefaultAPIVersion  = "2021-06-07"
	DefaultLogLevel    = "info"
	DefaultHTTPTimeout = "30s"

	DefaultPacingMode  = pacing.ModeFixed
	DefaultPacingDelay = "50us"

	DefaultDevstoreAddr   = "127.0.0.1:7444"
	DefaultDevstoreDBFile = ".sanitykit.db"
	DefaultDevstoreBlobs  = ".sanitykit-blobs"

	configFileName = ".sanitykit.toml"

	configDirEnvKey          = "SANITYKIT_CONFIG_DIR"
	trustProjectConfigEnvKey = "SANITYKIT_TRUST_PROJECT_CONFIG"
)

// PacingConfig selects how bulk operations space their remote calls.
type PacingConfig struct {
	Mode  string  `toml:"mode"`
	Delay string  `toml:"delay"`
	Rate  float64 `toml:"rate"`
	Burst int     `toml:"burst"`
}

// DevstoreConfig configures the local document-store emulator.
type DevstoreConfig struct {
	Addr      string `toml:"addr"`
	DBPath    string `toml:"db_path"`
	BlobDir   string `toml:"blob_dir"`
	TokenHash string `toml:"token_hash"`
}

// Config defines runtime configuration for sanitykit.
type Config struct {
	ProjectID                string         `toml:"project_id"`
	Dataset                  string         `toml:"dataset"`
	APIVersion               string         `toml:"api_version"`
	Token                    string         `toml:"token"`
	APIHost                  string         `toml:"api_host"`
	UseCDN                   bool           `toml:"use_cdn"`
	HTTPTimeout              string         `toml:"http_timeout"`
	LogLevel                 string         `toml:"log_level"`
	Pacing                   PacingConfig   `toml:"pacing"`
	Devstore                 DevstoreConfig `toml:"devstore"`
	TrustedProjectConfigPath string         `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		Dataset:     DefaultDataset,
		APIVersion:  DefaultAPIVersion,
		HTTPTimeout: DefaultHTTPTimeout,
		LogLevel:    DefaultLogLevel,
		Pacing: PacingConfig{
			Mode:  DefaultPacingMode,
			Delay: DefaultPacingDelay,
			Burst: 1,
		},
		Devstore: DevstoreConfig{
			Addr: DefaultDevstoreAddr,
		},
	}
}

var (
	datasetPattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	apiVersionPattern = regexp.MustCompile(`^v?(1|X|\d{4}-\d{2}-\d{2})$`)
	projectIDPattern  = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// Validate checks values that would otherwise fail late, at request time.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ProjectID, validation.Match(projectIDPattern).Error("must be lowercase letters, digits or dashes")),
		validation.Field(&c.Dataset, validation.Required, validation.Match(datasetPattern).Error("must be lowercase, start with a letter or digit, at most 64 chars")),
		validation.Field(&c.APIVersion, validation.Required, validation.Match(apiVersionPattern).Error("must be 1, X or a YYYY-MM-DD date")),
		validation.Field(&c.HTTPTimeout, validation.By(durationRule)),
		validation.Field(&c.Pacing),
	)
}

// Validate checks the pacing table.
func (p PacingConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Mode, validation.In(pacing.ModeFixed, pacing.ModeRate, pacing.ModeNone)),
		validation.Field(&p.Delay, validation.By(durationRule)),
		validation.Field(&p.Rate, validation.Min(0.0)),
		validation.Field(&p.Burst, validation.Min(0)),
	)
}

func durationRule(value any) error {
	raw, _ := value.(string)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, err := parseDuration(raw); err != nil {
		return err
	}
	return nil
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(raw string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid duration %q", raw)
}

// HTTPTimeoutDuration returns the configured HTTP timeout, 0 meaning the
// client default.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	if strings.TrimSpace(c.HTTPTimeout) == "" {
		return 0
	}
	d, err := parseDuration(c.HTTPTimeout)
	if err != nil {
		return 0
	}
	return d
}

// PacingOptions converts the pacing table for pacing.New.
func (c *Config) PacingOptions() (pacing.Options, error) {
	opts := pacing.Options{Mode: c.Pacing.Mode, Rate: c.Pacing.Rate, Burst: c.Pacing.Burst}
	if strings.TrimSpace(c.Pacing.Delay) != "" {
		d, err := parseDuration(c.Pacing.Delay)
		if err != nil {
			return opts, fmt.Errorf("pacing.delay: %w", err)
		}
		opts.Delay = d
	}
	return opts, nil
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"project_id",
	"dataset",
	"api_version",
	"token",
	"api_host",
	"use_cdn",
	"http_timeout",
	"log_level",
	"pacing.mode",
	"pacing.delay",
	"pacing.rate",
	"pacing.burst",
	"devstore.addr",
	"devstore.db_path",
	"devstore.blob_dir",
	"devstore.token_hash",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "project_id":
		return c.ProjectID, nil
	case "dataset":
		return c.Dataset, nil
	case "api_version":
		return c.APIVersion, nil
	case "token":
		return c.Token, nil
	case "api_host":
		return c.APIHost, nil
	case "use_cdn":
		return strconv.FormatBool(c.UseCDN), nil
	case "http_timeout":
		return c.HTTPTimeout, nil
	case "log_level":
		return c.LogLevel, nil
	case "pacing.mode":
		return c.Pacing.Mode, nil
	case "pacing.delay":
		return c.Pacing.Delay, nil
	case "pacing.rate":
		return strconv.FormatFloat(c.Pacing.Rate, 'g', -1, 64), nil
	case "pacing.burst":
		return strconv.Itoa(c.Pacing.Burst), nil
	case "devstore.addr":
		return c.Devstore.Addr, nil
	case "devstore.db_path":
		return c.Devstore.DBPath, nil
	case "devstore.blob_dir":
		return c.Devstore.BlobDir, nil
	case "devstore.token_hash":
		return c.Devstore.TokenHash, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	// Files may hold the API token.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	applyEnv(&cfg)
	cfg.normalizeDefaults()

	return &cfg, nil
}

var envOverrides = []struct {
	key   string
	apply func(*Config, string)
}{
	{"SANITYKIT_PROJECT_ID", func(c *Config, v string) { c.ProjectID = v }},
	{"SANITYKIT_DATASET", func(c *Config, v string) { c.Dataset = v }},
	{"SANITYKIT_API_VERSION", func(c *Config, v string) { c.APIVersion = v }},
	{"SANITYKIT_TOKEN", func(c *Config, v string) { c.Token = v }},
	{"SANITYKIT_API_HOST", func(c *Config, v string) { c.APIHost = v }},
	{"SANITYKIT_HTTP_TIMEOUT", func(c *Config, v string) { c.HTTPTimeout = v }},
	{"SANITYKIT_DEVSTORE_DB", func(c *Config, v string) { c.Devstore.DBPath = v }},
}

func applyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			o.apply(cfg, v)
		}
	}
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "use_cdn":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "pacing.rate":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive number", key)
		}
		return parsed, nil
	case "pacing.burst":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "http_timeout", "pacing.delay":
		if _, err := parseDuration(value); err != nil {
			return nil, fmt.Errorf("%s must be a duration such as 30s or 50us", key)
		}
		return value, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.Dataset) == "" {
		c.Dataset = DefaultDataset
	}
	if strings.TrimSpace(c.APIVersion) == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.Pacing.Mode) == "" {
		c.Pacing.Mode = DefaultPacingMode
	}
	if strings.TrimSpace(c.Devstore.Addr) == "" {
		c.Devstore.Addr = DefaultDevstoreAddr
	}
	if c.Devstore.DBPath == "" || c.Devstore.BlobDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			if c.Devstore.DBPath == "" {
				c.Devstore.DBPath = filepath.Join(cwd, DefaultDevstoreDBFile)
			}
			if c.Devstore.BlobDir == "" {
				c.Devstore.BlobDir = filepath.Join(cwd, DefaultDevstoreBlobs)
			}
		}
	}
}
