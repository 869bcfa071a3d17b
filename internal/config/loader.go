package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/studiowebux/loadhook/internal/types"
)

// EnvPrefix prefixes environment overrides, e.g. LOADHOOK_GOROUTINES
const EnvPrefix = "LOADHOOK"

// BodyFilePrefix marks a body value naming a file to read the body from
const BodyFilePrefix = "@"

// Loader merges, in increasing priority, defaults, a config file,
// LOADHOOK_* environment variables, changed command-line flags and explicit Set calls
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader seeded with the run defaults
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := types.NewRunConfig()
	v.SetDefault("goroutines", d.Goroutines)
	v.SetDefault("duration", d.Duration)
	v.SetDefault("timeoutms", d.Timeoutms)
	v.SetDefault("iterations", d.Iterations)
	v.SetDefault("redir", d.AllowRedirects)
	v.SetDefault("no_comp", d.DisableCompression)
	v.SetDefault("no_keepalive", d.DisableKeepAlive)
	v.SetDefault("skip_verify", d.SkipVerify)
	v.SetDefault("client_cert", "")
	v.SetDefault("client_key", "")
	v.SetDefault("ca_cert", "")
	v.SetDefault("http2", d.HTTP2)
	v.SetDefault("method", d.Method)
	v.SetDefault("host", "")
	v.SetDefault("url", "")
	v.SetDefault("body", "")

	return &Loader{v: v}
}

// BindFlag maps a command-line flag onto a config key
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("flag for %s is not defined", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Seed replaces the request defaults with req. Fields left empty keep the
// built-in defaults; every other source still takes precedence.
func (l *Loader) Seed(req types.RequestConfig) {
	if req.Method != "" {
		l.v.SetDefault("method", req.Method)
	}
	if req.URL != "" {
		l.v.SetDefault("url", req.URL)
	}
	if req.Host != "" {
		l.v.SetDefault("host", req.Host)
	}
	if req.Body != "" {
		l.v.SetDefault("body", req.Body)
	}
	if len(req.Header) > 0 {
		header := make(map[string]any, len(req.Header))
		for k, v := range req.Header {
			header[k] = v
		}
		l.v.SetDefault("header", header)
	}
}

// Set overrides key regardless of any other source
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load reads the optional config file at path, resolves an @file body and
// validates the result. JSON files may carry comments.
func (l *Loader) Load(path string) (types.RunConfig, error) {
	baseDir := "."
	if path != "" {
		if err := l.readFile(path); err != nil {
			return types.RunConfig{}, err
		}
		baseDir = filepath.Dir(path)
	}

	cfg := types.NewRunConfig()
	if err := l.v.Unmarshal(&cfg); err != nil {
		return types.RunConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Header == nil {
		cfg.Header = make(map[string]string)
	}

	body, err := resolveBody(cfg.Body, baseDir)
	if err != nil {
		return types.RunConfig{}, err
	}
	cfg.Body = body

	if err := cfg.Validate(); err != nil {
		return types.RunConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		l.v.SetConfigType("yaml")
	case ".json", ".jsonc", "":
		data = jsonc.ToJSON(data)
		l.v.SetConfigType("json")
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	if err := l.v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// resolveBody loads "@path" bodies, relative paths being taken from baseDir
func resolveBody(body, baseDir string) (string, error) {
	if !strings.HasPrefix(body, BodyFilePrefix) {
		return body, nil
	}

	path := strings.TrimPrefix(body, BodyFilePrefix)
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read body file: %w", err)
	}
	return string(data), nil
}

// Load is a shortcut for NewLoader().Load(path)
func Load(path string) (types.RunConfig, error) {
	return NewLoader().Load(path)
}

// Render returns the effective configuration as YAML
func Render(cfg types.RunConfig) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}
