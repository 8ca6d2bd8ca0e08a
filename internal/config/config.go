package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	Mode           string `mapstructure:"mode"`
	SourcesFile    string `mapstructure:"sources_file"`
	PublishersFile string `mapstructure:"publishers_file"`
	DataDir        string `mapstructure:"data_dir"`

	OpenRouterAPIKey      string        `mapstructure:"open_router_api_key"`
	OpenRouterURL         string        `mapstructure:"open_router_url"`
	OpenRouterModel       string        `mapstructure:"open_router_model"`
	InputPath             string        `mapstructure:"input_path"`
	OutputPath            string        `mapstructure:"output_path"`
	LLMCachePath          string        `mapstructure:"llm_cache_path"`
	LLMCallDelayMs        int64         `mapstructure:"llm_call_delay_ms"`
	LLMDailyQuota         int           `mapstructure:"llm_daily_quota"`
	LLMTimeoutSeconds     int64         `mapstructure:"llm_timeout_seconds"`
	LLMCallDelay          time.Duration `mapstructure:"-"`
	LLMTimeout            time.Duration `mapstructure:"-"`
	SupervisorMaxAttempts int           `mapstructure:"supervisor_max_attempts"`

	BrowserHeadless  bool   `mapstructure:"browser_headless"`
	BrowserExecPath  string `mapstructure:"browser_exec_path"`
	BrowserUserAgent string `mapstructure:"browser_user_agent"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = "configs/.env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()

	v.SetDefault("app_name", "casa-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("mode", "")
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("publishers_file", "")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("open_router_api_key", "")
	v.SetDefault("open_router_url", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("open_router_model", "meta-llama/llama-3.2-3b-instruct:free")
	v.SetDefault("input_path", "")
	v.SetDefault("output_path", "")
	v.SetDefault("llm_cache_path", "./data/llm_cache.txt")
	v.SetDefault("llm_call_delay_ms", 3000) // free tier: 20/min
	v.SetDefault("llm_daily_quota", 200)
	v.SetDefault("llm_timeout_seconds", 120)
	v.SetDefault("supervisor_max_attempts", 20)
	v.SetDefault("browser_headless", true)
	v.SetDefault("browser_exec_path", "")
	v.SetDefault("browser_user_agent", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) normalize() error {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.OpenRouterAPIKey = strings.TrimSpace(cfg.OpenRouterAPIKey)

	if cfg.LLMCallDelayMs < 0 {
		return fmt.Errorf("invalid llm_call_delay_ms (must not be negative)")
	}
	cfg.LLMCallDelay = time.Duration(cfg.LLMCallDelayMs) * time.Millisecond

	if cfg.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid llm_timeout_seconds (must be positive seconds)")
	}
	cfg.LLMTimeout = time.Duration(cfg.LLMTimeoutSeconds) * time.Second

	if cfg.LLMDailyQuota < 0 {
		return fmt.Errorf("invalid llm_daily_quota (must not be negative)")
	}
	if cfg.SupervisorMaxAttempts < 0 {
		return fmt.Errorf("invalid supervisor_max_attempts (must not be negative)")
	}
	return nil
}

// Redacted returns a copy with the API credential masked, for logging.
func (cfg Config) Redacted() Config {
	if cfg.OpenRouterAPIKey != "" {
		cfg.OpenRouterAPIKey = "***"
	}
	return cfg
}
