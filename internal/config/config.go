// Package config loads the daemon's configuration from environment
// variables only — there is no file-based configuration layer, since the
// daemon has exactly one deployment shape.
package config

import (
	"os"
	"strconv"
)

// ProviderConfig describes one configured LLM provider.
type ProviderConfig struct {
	Name      string
	Dialect   string // "gemini" or "openaicompat"
	APIKey    string
	BaseURL   string
	Model     string
	Priority  int
	RPM       int     // requests per minute, 0 = unlimited
	CostPer1K float64 // USD per 1k tokens, combined input+output
}

// Config is the daemon's full runtime configuration.
type Config struct {
	// Chat transport
	TelegramBotToken   string
	AllowedChatHandle  string

	// Repo client
	GitHubPAT string
	GitHubOrg string
	GitHubRepo string

	// GitSHA is this process's own build commit, baked in by the container
	// build (see Dockerfile's GIT_SHA build arg) rather than discovered at
	// runtime. The heartbeat's repo auto-sync step compares it against the
	// default branch's tip to decide whether to restart. Empty disables
	// auto-sync entirely — there is nothing to compare against.
	GitSHA string

	// Memory port
	AgentPlaybooksBaseURL    string
	AgentPlaybooksAPIKey     string
	AgentPlaybooksAgentID    string
	AgentPlaybooksPlaybookID string

	// LLM providers, already sorted by priority
	Providers []ProviderConfig

	// Scheduling / paths
	HeartbeatInterval int
	LogLevel          string
	DataDir           string
	LogDir            string

	// Sandbox-forwarded search credentials
	GoogleCSEKey string
	GoogleCSEID  string

	// Ambient/domain-stack additions (all optional)
	RedisURL         string
	AuditDBDSN       string
	MetricsAddr      string
	OTLPEndpoint     string
	StatusJWTSecret  string
}

// FromEnv builds a Config from the process environment, mirroring the
// provider priority ordering of the original Python agent: gemini=1,
// minimax=2, groq=3, openrouter=4, openai=5.
func FromEnv() *Config {
	cfg := &Config{
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		AllowedChatHandle: getenvDefault("ALLOWED_CHAT_HANDLE", "@matebenyovszky"),

		GitHubPAT:  os.Getenv("GITHUB_PAT"),
		GitHubOrg:  os.Getenv("GITHUB_ORG"),
		GitHubRepo: os.Getenv("GITHUB_REPO"),
		GitSHA:     os.Getenv("GIT_SHA"),

		AgentPlaybooksBaseURL:    getenvDefault("AGENTPLAYBOOKS_BASE_URL", "https://agentplaybooks.ai/api"),
		AgentPlaybooksAPIKey:     os.Getenv("AGENTPLAYBOOKS_API_KEY"),
		AgentPlaybooksAgentID:    os.Getenv("AGENTPLAYBOOKS_AGENT_ID"),
		AgentPlaybooksPlaybookID: os.Getenv("AGENTPLAYBOOKS_PLAYBOOK_ID"),

		HeartbeatInterval: getenvInt("HEARTBEAT_INTERVAL", 30),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		DataDir:           getenvDefault("DATA_DIR", "/app/data"),
		LogDir:            getenvDefault("LOG_DIR", "/app/logs"),

		GoogleCSEKey: os.Getenv("GOOGLE_CSE_KEY"),
		GoogleCSEID:  os.Getenv("GOOGLE_CSE_ID"),

		RedisURL:        os.Getenv("REDIS_URL"),
		AuditDBDSN:      getenvDefault("AUDIT_DB_DSN", "file:cradle_audit.db?cache=shared"),
		MetricsAddr:     getenvDefault("METRICS_ADDR", ":9090"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		StatusJWTSecret: os.Getenv("STATUS_JWT_SECRET"),
	}

	cfg.Providers = buildProviders()
	return cfg
}

func buildProviders() []ProviderConfig {
	var providers []ProviderConfig

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			Name:      "gemini",
			Dialect:   "gemini",
			APIKey:    key,
			BaseURL:   "https://generativelanguage.googleapis.com/v1beta",
			Model:     getenvDefault("GEMINI_MODEL", "gemini-2.0-flash"),
			Priority:  1,
			RPM:       15,
			CostPer1K: 0.0,
		})
	}
	if key := os.Getenv("MINIMAX_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			Name:      "minimax",
			Dialect:   "openaicompat",
			APIKey:    key,
			BaseURL:   "https://api.minimax.chat/v1",
			Model:     "abab6.5s-chat",
			Priority:  2,
			RPM:       20,
			CostPer1K: 0.01,
		})
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			Name:      "groq",
			Dialect:   "openaicompat",
			APIKey:    key,
			BaseURL:   "https://api.groq.com/openai/v1",
			Model:     "llama-3.3-70b-versatile",
			Priority:  3,
			RPM:       30,
			CostPer1K: 0.0,
		})
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			Name:      "openrouter",
			Dialect:   "openaicompat",
			APIKey:    key,
			BaseURL:   "https://openrouter.ai/api/v1",
			Model:     "meta-llama/llama-3.3-70b-instruct",
			Priority:  4,
			RPM:       20,
			CostPer1K: 0.02,
		})
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			Name:      "openai",
			Dialect:   "openaicompat",
			APIKey:    key,
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			Priority:  5,
			RPM:       60,
			CostPer1K: 0.15,
		})
	}

	return providers
}

// Validate returns non-fatal warnings for a misconfigured environment.
func (c *Config) Validate() []string {
	var warnings []string
	if len(c.Providers) == 0 {
		warnings = append(warnings, "no LLM providers configured; set at least one of GEMINI_API_KEY/MINIMAX_API_KEY/GROQ_API_KEY/OPENROUTER_API_KEY/OPENAI_API_KEY")
	}
	if c.TelegramBotToken == "" {
		warnings = append(warnings, "TELEGRAM_BOT_TOKEN not set; chat transport disabled")
	}
	if c.GitHubPAT == "" {
		warnings = append(warnings, "GITHUB_PAT not set; self-evolution and repo auto-sync disabled")
	}
	if c.GitHubPAT != "" && c.GitSHA == "" {
		warnings = append(warnings, "GIT_SHA not set; repo auto-sync disabled (nothing to compare the default branch against)")
	}
	return warnings
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
