package mock

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr             = "localhost:8080"
	DefaultTokenHeader      = "X-Token"
	DefaultCredentialHeader = "Authentication"
)

// DefaultConfig serves the endpoints the built-in hook patterns expect:
// /auth issues a token, /foo requires it, anything else answers 200.
func DefaultConfig() *Config {
	return &Config{
		Addr:    DefaultAddr,
		Logging: true,
		Routes: []Route{
			{Name: "auth", Path: "/auth", IssueToken: true, Body: "authenticated"},
			{Name: "foo", Method: "POST", Path: "/foo", RequireToken: true, Body: "ok"},
			{Name: "any", Path: "/", PathType: PathPrefix, Body: "ok"},
		},
	}
}

// LoadConfig loads a target configuration from a YAML or JSON file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	config := Config{Logging: true}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// validateConfig validates the routes and fills in defaults
func validateConfig(config *Config) error {
	if len(config.Routes) == 0 {
		return fmt.Errorf("no routes defined")
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.Token == "" {
		config.Token = uuid.NewString()
	}

	for i := range config.Routes {
		route := &config.Routes[i]
		if route.Path == "" {
			return fmt.Errorf("route %d: path is required", i)
		}
		switch route.PathType {
		case "":
			route.PathType = PathExact
		case PathExact, PathPrefix:
		case PathRegex:
			if _, err := regexp.Compile(route.Path); err != nil {
				return fmt.Errorf("route %d: %w", i, err)
			}
		default:
			return fmt.Errorf("route %d: pathType must be 'exact', 'prefix', or 'regex'", i)
		}
		if route.TokenHeader == "" {
			route.TokenHeader = DefaultTokenHeader
		}
		if route.CredentialHeader == "" {
			route.CredentialHeader = DefaultCredentialHeader
		}
	}

	return nil
}
