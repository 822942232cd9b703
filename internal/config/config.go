// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	custom_errors "delivery-insights/internal/errors"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	DBURL                string        `mapstructure:"DB_URL"`
	HTTPAddr             string        `mapstructure:"HTTP_ADDR"`
	GithubToken          string        `mapstructure:"GITHUB_TOKEN"`
	GithubAPIURL         string        `mapstructure:"GITHUB_API_URL"`
	ReposToSync          []string      `mapstructure:"REPOS_TO_SYNC"`
	ExcludedRepos        []string      `mapstructure:"EXCLUDED_REPOS"`
	SyncInterval         time.Duration `mapstructure:"SYNC_INTERVAL"`
	DefaultSyncSinceDate string        `mapstructure:"DEFAULT_SYNC_SINCE_DATE"`
	DefaultSyncSinceTime time.Time     `mapstructure:"-"`
	ScanLookback         time.Duration `mapstructure:"SCAN_LOOKBACK"`
	ScanCommitStats      bool          `mapstructure:"SCAN_COMMIT_STATS"`

	JiraBaseURL  string `mapstructure:"JIRA_BASE_URL"`
	JiraEmail    string `mapstructure:"JIRA_EMAIL"`
	JiraAPIToken string `mapstructure:"JIRA_API_TOKEN"`

	OpenAIAPIKey  string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel   string `mapstructure:"OPENAI_MODEL"`
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`

	SummaryStaleness   time.Duration `mapstructure:"SUMMARY_STALENESS"`
	TicketStaleness    time.Duration `mapstructure:"TICKET_STALENESS"`
	PRMetricsStaleness time.Duration `mapstructure:"PR_METRICS_STALENESS"`

	PageDelay        time.Duration `mapstructure:"PAGE_DELAY"`
	RetryDelay       time.Duration `mapstructure:"RETRY_DELAY"`
	StorageBatchSize int           `mapstructure:"STORAGE_BATCH_SIZE"`

	CheckoutRoot string         `mapstructure:"CHECKOUT_ROOT"`
	BaseBranch   string         `mapstructure:"BASE_BRANCH"`
	Timezone     string         `mapstructure:"TIMEZONE"`
	Location     *time.Location `mapstructure:"-"`
}

// JiraEnabled reports whether issue-tracker credentials were supplied.
func (c *Config) JiraEnabled() bool {
	return c.JiraBaseURL != ""
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	// Set default values
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("SYNC_INTERVAL", "1h")
	v.SetDefault("DEFAULT_SYNC_SINCE_DATE", "2023-01-01T00:00:00Z")
	v.SetDefault("SCAN_LOOKBACK", "720h")
	v.SetDefault("SCAN_COMMIT_STATS", false)
	v.SetDefault("EXCLUDED_REPOS", []string{"test-repo"})
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("SUMMARY_STALENESS", "168h")
	v.SetDefault("TICKET_STALENESS", "60m")
	v.SetDefault("PR_METRICS_STALENESS", "30m")
	v.SetDefault("PAGE_DELAY", "300ms")
	v.SetDefault("RETRY_DELAY", "5s")
	v.SetDefault("STORAGE_BATCH_SIZE", 500)
	v.SetDefault("BASE_BRANCH", "main")
	v.SetDefault("TIMEZONE", "UTC")

	// Every key must be known to viper for AutomaticEnv to reach it during Unmarshal.
	for _, key := range []string{"DB_URL", "GITHUB_TOKEN", "GITHUB_API_URL", "REPOS_TO_SYNC", "JIRA_BASE_URL", "JIRA_EMAIL",
		"JIRA_API_TOKEN", "OPENAI_API_KEY", "OPENAI_BASE_URL", "CHECKOUT_ROOT"} {
		v.SetDefault(key, "")
	}

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ReposToSync = splitList(cfg.ReposToSync)
	cfg.ExcludedRepos = splitList(cfg.ExcludedRepos)

	// Parse DefaultSyncSinceDate
	parsedTime, err := time.Parse(time.RFC3339, cfg.DefaultSyncSinceDate)
	if err != nil {
		return nil, errors.New("DEFAULT_SYNC_SINCE_DATE must be in RFC3339 format (e.g. 2023-01-01T00:00:00Z)")
	}
	cfg.DefaultSyncSinceTime = parsedTime

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.New("TIMEZONE must be an IANA zone name (e.g. Europe/Berlin)")
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	// Validate required fields
	if c.DBURL == "" {
		return &custom_errors.ErrMissingConfig{Field: "DB_URL"}
	}
	if c.GithubToken == "" {
		return &custom_errors.ErrMissingConfig{Field: "GITHUB_TOKEN"}
	}
	if c.OpenAIAPIKey == "" {
		return &custom_errors.ErrMissingConfig{Field: "OPENAI_API_KEY"}
	}
	if len(c.ReposToSync) == 0 {
		return errors.New("REPOS_TO_SYNC must contain at least one repository")
	}
	if c.JiraEnabled() || c.JiraEmail != "" || c.JiraAPIToken != "" {
		if c.JiraBaseURL == "" {
			return &custom_errors.ErrMissingConfig{Field: "JIRA_BASE_URL"}
		}
		if c.JiraEmail == "" {
			return &custom_errors.ErrMissingConfig{Field: "JIRA_EMAIL"}
		}
		if c.JiraAPIToken == "" {
			return &custom_errors.ErrMissingConfig{Field: "JIRA_API_TOKEN"}
		}
	}
	if c.StorageBatchSize <= 0 {
		return errors.New("STORAGE_BATCH_SIZE must be positive")
	}
	return nil
}

// splitList accepts both repeated values and a single comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
