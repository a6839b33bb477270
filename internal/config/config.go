package config

// Config represents the full service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	GitHub        GitHubConfig        `yaml:"github"`
	Queue         QueueConfig         `yaml:"queue"`
	Lint          LintConfig          `yaml:"lint"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the webhook front-end settings.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	WebhookSecret string `yaml:"webhookSecret"`

	// MaxBodyBytes caps the webhook request body.
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`

	// RateLimitPerMinute bounds webhook deliveries per client IP.
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`

	// TrustProxy enables reading the client IP from X-Forwarded-For.
	// Only set behind a reverse proxy that strips the header from clients.
	TrustProxy bool `yaml:"trustProxy"`
}

// GitHubConfig holds GitHub App credentials and client settings.
type GitHubConfig struct {
	AppID int64 `yaml:"appId"`

	// PrivateKeyBase64 is the App's PEM private key, base64-encoded so it
	// survives env-var transport.
	PrivateKeyBase64 string `yaml:"privateKeyBase64"`

	BaseURL   string `yaml:"baseURL"`
	CheckName string `yaml:"checkName"`
	AppSlug   string `yaml:"appSlug"`

	Timeout        string `yaml:"timeout"`
	MaxRetries     int    `yaml:"maxRetries"`
	InitialBackoff string `yaml:"initialBackoff"`
	MaxBackoff     string `yaml:"maxBackoff"`
}

// QueueConfig configures the durable job queue and its workers.
type QueueConfig struct {
	Path        string `yaml:"path"`
	Workers     int    `yaml:"workers"`
	MaxAttempts int    `yaml:"maxAttempts"`

	// InitialBackoff is the delay before the first retry of a failed job;
	// subsequent retries double it.
	InitialBackoff string `yaml:"initialBackoff"`

	// LeaseTTL is how long a dequeued job stays invisible before it is
	// considered abandoned and redelivered.
	LeaseTTL string `yaml:"leaseTTL"`

	// DegradedThreshold is the pending depth above which health checks
	// report degraded.
	DegradedThreshold int `yaml:"degradedThreshold"`

	// DrainTimeout bounds the wait for in-flight jobs on shutdown.
	DrainTimeout string `yaml:"drainTimeout"`
}

// LintConfig is the service-side default lint configuration. Repositories
// may override it with an in-repo config file loaded at the job's commit.
type LintConfig struct {
	IncludeGlobs []string          `yaml:"include"`
	IgnoreGlobs  []string          `yaml:"ignore"`
	SummaryLimit int               `yaml:"summaryLimit"`
	Annotations  bool              `yaml:"annotations"`
	RuleSeverity map[string]string `yaml:"ruleSeverity"`

	// RuleDocsBaseURL is joined with a rule id to produce the finding's
	// documentation link.
	RuleDocsBaseURL string `yaml:"ruleDocsBaseURL"`
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
