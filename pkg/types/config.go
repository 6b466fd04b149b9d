package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "arxiv-digest/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries is the retry budget for HTTP 429 responses (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// SearchConfig holds settings for the arXiv search stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Query is the base arXiv filter (e.g. "cat:cs.AI").
	Query string `json:"query" yaml:"query" mapstructure:"query"`

	// Authors is an optional allow-list of "First Last" names.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty" mapstructure:"authors"`

	// DaysBack is the width of the submission window ending now (default 3).
	DaysBack int `json:"days_back" yaml:"days_back" mapstructure:"days_back"`

	// MaxResults caps the number of descriptors returned (default 100).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// RequestInterval is the minimum spacing between arXiv API calls (default 3s).
	RequestInterval time.Duration `json:"request_interval" yaml:"request_interval" mapstructure:"request_interval"`
}

// EnrichConfig holds settings for PDF download and text extraction.
type EnrichConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Workers bounds concurrent downloads (default 5).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// Pages is the number of leading pages to extract (default 1).
	Pages int `json:"pages" yaml:"pages" mapstructure:"pages"`

	// WorkDir holds PDFs while they are being read. Files are deleted after
	// extraction.
	WorkDir string `json:"work_dir" yaml:"work_dir" mapstructure:"work_dir"`

	// MaxPDFBytes rejects downloads larger than this (default 50 MiB).
	MaxPDFBytes int64 `json:"max_pdf_bytes" yaml:"max_pdf_bytes" mapstructure:"max_pdf_bytes"`
}

// AIConfig holds shared settings for stages that call the reasoning service.
type AIConfig struct {
	// Provider selects the backend: "openai" or "anthropic".
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "gpt-4o").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout bounds a single completion call (default 2m).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxTokens caps the response length (default 1024).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ClassifyConfig holds settings for the affiliation classification stage.
type ClassifyConfig struct {
	// MaxContentChars truncates the text sent per record (default 12000).
	MaxContentChars int `json:"max_content_chars" yaml:"max_content_chars" mapstructure:"max_content_chars"`
}

// FilterConfig holds settings for the organization and topic filters.
type FilterConfig struct {
	// TargetOrgs enables the organization filter when non-empty.
	TargetOrgs []string `json:"target_orgs,omitempty" yaml:"target_orgs,omitempty" mapstructure:"target_orgs"`

	// OrgsFile is an optional YAML list of organizations that replaces TargetOrgs.
	OrgsFile string `json:"orgs_file,omitempty" yaml:"orgs_file,omitempty" mapstructure:"orgs_file"`

	// Topic enables the topic filter when non-blank.
	Topic string `json:"topic,omitempty" yaml:"topic,omitempty" mapstructure:"topic"`

	// Workers bounds concurrent topic votes (default 5).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// StoreConfig locates the files a run reads and writes.
type StoreConfig struct {
	// TablePath is the record CSV (default "papers.csv").
	TablePath string `json:"table_path" yaml:"table_path" mapstructure:"table_path"`

	// SelectionPath is the handoff file (default "selection.yaml").
	SelectionPath string `json:"selection_path" yaml:"selection_path" mapstructure:"selection_path"`

	// HistoryPath is the run history database (default "arxiv-digest.db").
	HistoryPath string `json:"history_path" yaml:"history_path" mapstructure:"history_path"`
}

// LeaseConfig holds settings for the single-run lease.
type LeaseConfig struct {
	// Path is the lease file (default "arxiv-digest.lock").
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// TTL bounds how long a lease is honoured without renewal (default 6h).
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// ScheduleConfig holds settings for periodic runs.
type ScheduleConfig struct {
	// Cron is a five-field cron expression (default "0 */12 * * *").
	Cron string `json:"cron" yaml:"cron" mapstructure:"cron"`

	// Interval is used instead of Cron when Cron is empty.
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// PollInterval is the tick granularity (default 1m).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is "json" or "console".
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// Output is "stderr" or "stdout".
	Output string `json:"output" yaml:"output" mapstructure:"output"`
}

// Config groups all stage configurations.
type Config struct {
	Search   SearchConfig   `json:"search" yaml:"search" mapstructure:"search"`
	Enrich   EnrichConfig   `json:"enrich" yaml:"enrich" mapstructure:"enrich"`
	AI       AIConfig       `json:"ai" yaml:"ai" mapstructure:"ai"`
	Classify ClassifyConfig `json:"classify" yaml:"classify" mapstructure:"classify"`
	Filter   FilterConfig   `json:"filter" yaml:"filter" mapstructure:"filter"`
	Store    StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`
	Lease    LeaseConfig    `json:"lease" yaml:"lease" mapstructure:"lease"`
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule" mapstructure:"schedule"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// DefaultUserAgent identifies the client to arXiv.
const DefaultUserAgent = "arxiv-digest/0.1"

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Search: SearchConfig{
			HTTPConfig:      HTTPConfig{Timeout: 60 * time.Second, UserAgent: DefaultUserAgent, MaxRetries: 3},
			Query:           "cat:cs.AI",
			DaysBack:        3,
			MaxResults:      100,
			RequestInterval: 3 * time.Second,
		},
		Enrich: EnrichConfig{
			HTTPConfig:  HTTPConfig{Timeout: 120 * time.Second, UserAgent: DefaultUserAgent, MaxRetries: 3},
			Workers:     5,
			Pages:       1,
			WorkDir:     "pdf_folder",
			MaxPDFBytes: 50 << 20,
		},
		AI: AIConfig{
			Provider:  "openai",
			Model:     "gpt-4o",
			Timeout:   2 * time.Minute,
			MaxTokens: 1024,
		},
		Classify: ClassifyConfig{MaxContentChars: 12000},
		Filter:   FilterConfig{Workers: 5},
		Store: StoreConfig{
			TablePath:     "papers.csv",
			SelectionPath: "selection.yaml",
			HistoryPath:   "arxiv-digest.db",
		},
		Lease: LeaseConfig{Path: "arxiv-digest.lock", TTL: 6 * time.Hour},
		Schedule: ScheduleConfig{
			Cron:         "0 */12 * * *",
			Interval:     12 * time.Hour,
			PollInterval: time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "console", Output: "stderr"},
	}
}
