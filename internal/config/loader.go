package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from files and environment variables.
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "flowlint"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "FLOWLINT"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Expand environment variables in config values
	cfg = expandEnvVars(cfg)

	return cfg, nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings.
func expandEnvVars(cfg Config) Config {
	cfg.Server.Addr = expandEnvString(cfg.Server.Addr)
	cfg.Server.WebhookSecret = expandEnvString(cfg.Server.WebhookSecret)

	cfg.GitHub.PrivateKeyBase64 = expandEnvString(cfg.GitHub.PrivateKeyBase64)
	cfg.GitHub.BaseURL = expandEnvString(cfg.GitHub.BaseURL)
	cfg.GitHub.CheckName = expandEnvString(cfg.GitHub.CheckName)
	cfg.GitHub.AppSlug = expandEnvString(cfg.GitHub.AppSlug)
	cfg.GitHub.Timeout = expandEnvString(cfg.GitHub.Timeout)
	cfg.GitHub.InitialBackoff = expandEnvString(cfg.GitHub.InitialBackoff)
	cfg.GitHub.MaxBackoff = expandEnvString(cfg.GitHub.MaxBackoff)

	cfg.Queue.Path = expandEnvString(cfg.Queue.Path)
	cfg.Queue.InitialBackoff = expandEnvString(cfg.Queue.InitialBackoff)
	cfg.Queue.LeaseTTL = expandEnvString(cfg.Queue.LeaseTTL)
	cfg.Queue.DrainTimeout = expandEnvString(cfg.Queue.DrainTimeout)

	cfg.Lint.IncludeGlobs = expandEnvStringSlice(cfg.Lint.IncludeGlobs)
	cfg.Lint.IgnoreGlobs = expandEnvStringSlice(cfg.Lint.IgnoreGlobs)
	cfg.Lint.RuleDocsBaseURL = expandEnvString(cfg.Lint.RuleDocsBaseURL)

	cfg.Observability.Logging.Level = expandEnvString(cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = expandEnvString(cfg.Observability.Logging.Format)

	return cfg
}

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	// Replace ${VAR} syntax
	re := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1] // Remove ${ and }
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Keep original if not found
	})

	// Replace $VAR syntax (without braces)
	re = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:] // Remove $
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Keep original if not found
	})

	return s
}

// expandEnvStringSlice expands environment variables in a slice of strings.
func expandEnvStringSlice(slice []string) []string {
	if len(slice) == 0 {
		return slice
	}
	result := make([]string, len(slice))
	for i, s := range slice {
		result[i] = expandEnvString(s)
	}
	return result
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.maxBodyBytes", 2*1024*1024)
	v.SetDefault("server.rateLimitPerMinute", 100)
	v.SetDefault("server.trustProxy", false)

	// GitHub client defaults
	v.SetDefault("github.baseURL", "https://api.github.com")
	v.SetDefault("github.checkName", "FlowLint")
	v.SetDefault("github.appSlug", "flowlint")
	v.SetDefault("github.timeout", "30s")
	v.SetDefault("github.maxRetries", 3)
	v.SetDefault("github.initialBackoff", "2s")
	v.SetDefault("github.maxBackoff", "32s")

	// Queue defaults
	v.SetDefault("queue.path", defaultQueuePath())
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.maxAttempts", 3)
	v.SetDefault("queue.initialBackoff", "2s")
	v.SetDefault("queue.leaseTTL", "5m")
	v.SetDefault("queue.degradedThreshold", 50)
	v.SetDefault("queue.drainTimeout", "45s")

	// Lint defaults
	v.SetDefault("lint.include", []string{
		".github/workflows/**/*.yml",
		".github/workflows/**/*.yaml",
	})
	v.SetDefault("lint.ignore", []string{})
	v.SetDefault("lint.summaryLimit", 50)
	v.SetDefault("lint.annotations", true)
	v.SetDefault("lint.ruleDocsBaseURL", "https://flowlint.dev/rules")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
}

// Duration parses a configured duration string, falling back when the value
// is empty or unparseable.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func defaultQueuePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./flowlint-queue.db"
	}
	return filepath.Join(home, ".config", "flowlint", "queue.db")
}
