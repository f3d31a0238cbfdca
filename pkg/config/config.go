package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sambabib/dependency-inspector/pkg/version"
)

// FileName is the config file looked up from the project directory upwards.
const FileName = ".depinspect.yaml"

// Environment overrides, also read from a .env file in the project directory.
const (
	EnvNpmRegistry  = "DEPINSPECT_NPM_REGISTRY"
	EnvPyPIRegistry = "DEPINSPECT_PYPI_REGISTRY"
	EnvGoProxy      = "DEPINSPECT_GOPROXY"
	EnvCacheDir     = "DEPINSPECT_CACHE_DIR"
	EnvNoCache      = "DEPINSPECT_NO_CACHE"
)

// Config represents the configuration for the dependency inspector
type Config struct {
	// Custom registries for different ecosystems
	Registries struct {
		Npm     string `yaml:"npm"`
		PyPI    string `yaml:"pypi"`
		GoProxy string `yaml:"goproxy"`
	} `yaml:"registries"`

	// Vulnerability sources
	Audit struct {
		Npm       string `yaml:"npm"`       // quick audit endpoint
		OSV       string `yaml:"osv"`       // OSV query endpoint
		PreferOSV bool   `yaml:"preferOsv"` // use OSV for every ecosystem
	} `yaml:"audit"`

	// Severity levels used by the text and SARIF renderers
	Severity struct {
		Major string `yaml:"major"` // Default: error
		Minor string `yaml:"minor"` // Default: warning
		Patch string `yaml:"patch"` // Default: info
	} `yaml:"severity"`

	// Output configuration
	Output struct {
		Format string `yaml:"format"` // text, json, sarif
		File   string `yaml:"file"`   // Output file path (stdout if empty)
	} `yaml:"output"`

	Cache struct {
		Dir      string        `yaml:"dir"`
		TTL      time.Duration `yaml:"ttl"`
		Disabled bool          `yaml:"disabled"`
	} `yaml:"cache"`

	HTTPTimeout time.Duration `yaml:"httpTimeout"`

	// Modifier used when proposing a selector for a non-simple range
	DefaultSemverRangePrefix string `yaml:"defaultSemverRangePrefix"`

	// Force a package manager instead of detecting it: yarn, npm, poetry, go
	PackageManager string `yaml:"packageManager"`

	// Flag defaults; command line flags win
	Defaults struct {
		Latest        bool `yaml:"latest"`
		Vulnerability bool `yaml:"vulnerability"`
		All           bool `yaml:"all"`
		Silent        bool `yaml:"silent"`
	} `yaml:"defaults"`

	// Ignore specific packages; path.Match patterns such as "@types/*" are accepted
	IgnorePackages []string `yaml:"ignorePackages"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	config := &Config{}

	// Set default severity levels
	config.Severity.Major = "error"
	config.Severity.Minor = "warning"
	config.Severity.Patch = "info"

	// Set default output format
	config.Output.Format = "text"

	config.Cache.TTL = 6 * time.Hour
	config.HTTPTimeout = 30 * time.Second
	config.DefaultSemverRangePrefix = version.ModifierCaret

	return config
}

// LoadConfig loads the configuration from the specified file path
// If the file does not exist the defaults are returned.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		configPath = FileName
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	if err := parseFile(configPath, config); err != nil {
		return nil, err
	}
	return config, nil
}

// FindAndLoadConfig searches for a config file in the project directory and its parents
func FindAndLoadConfig(projectPath string) (*Config, error) {
	config := DefaultConfig()

	currentDir, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("error resolving project path: %w", err)
	}
	for {
		configPath := filepath.Join(currentDir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			if err := parseFile(configPath, config); err != nil {
				return nil, err
			}
			return config, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached the root directory, no config file found
			break
		}
		currentDir = parentDir
	}

	return config, nil
}

func parseFile(configPath string, config *Config) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("error reading config file %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	return nil
}

// LoadEnv reads projectPath/.env into the process environment without
// overriding variables that are already set, then applies the overrides.
func (c *Config) LoadEnv(projectPath string) error {
	envFile := filepath.Join(projectPath, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}
	c.ApplyEnv()
	return nil
}

// ApplyEnv overrides config values from DEPINSPECT_* variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvNpmRegistry)); v != "" {
		c.Registries.Npm = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPyPIRegistry)); v != "" {
		c.Registries.PyPI = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGoProxy)); v != "" {
		c.Registries.GoProxy = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheDir)); v != "" {
		c.Cache.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvNoCache)); v != "" {
		if disabled, err := strconv.ParseBool(v); err == nil {
			c.Cache.Disabled = disabled
		}
	}
}

// IsPackageIgnored checks if a package should be ignored based on the configuration
func (c *Config) IsPackageIgnored(packageName string) bool {
	for _, ignoredPackage := range c.IgnorePackages {
		if ignoredPackage == packageName {
			return true
		}
		if ok, err := path.Match(ignoredPackage, packageName); err == nil && ok {
			return true
		}
	}
	return false
}

// GetSeverityForUpdate returns the configured severity level for the given update type
func (c *Config) GetSeverityForUpdate(updateType version.UpdateType) string {
	switch updateType {
	case version.MajorUpdate:
		return c.Severity.Major
	case version.MinorUpdate:
		return c.Severity.Minor
	case version.PatchUpdate:
		return c.Severity.Patch
	default:
		return "info"
	}
}
