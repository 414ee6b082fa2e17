// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Form() FormConfig
	Submission() SubmissionConfig
	Bridge() BridgeConfig
	MCP() MCPConfig
	LLM() LLMConfig

	// Setters used by CLI flag overrides.
	SetMCPTransport(string)
	SetMCPListenAddr(string)
	SetMCPEmbeddedFormServer(bool)
	SetFormListenAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	FormCfg       FormConfig       `mapstructure:"form" yaml:"form"`
	SubmissionCfg SubmissionConfig `mapstructure:"submission" yaml:"submission"`
	BridgeCfg     BridgeConfig     `mapstructure:"bridge" yaml:"bridge"`
	MCPCfg        MCPConfig        `mapstructure:"mcp" yaml:"mcp"`
	LLMCfg        LLMConfig        `mapstructure:"llm" yaml:"llm"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Form() FormConfig             { return c.FormCfg }
func (c *Config) Submission() SubmissionConfig { return c.SubmissionCfg }
func (c *Config) Bridge() BridgeConfig         { return c.BridgeCfg }
func (c *Config) MCP() MCPConfig               { return c.MCPCfg }
func (c *Config) LLM() LLMConfig               { return c.LLMCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetMCPTransport(t string)        { c.MCPCfg.Transport = t }
func (c *Config) SetMCPListenAddr(a string)       { c.MCPCfg.ListenAddr = a }
func (c *Config) SetMCPEmbeddedFormServer(b bool) { c.MCPCfg.EmbeddedFormServer = b }
func (c *Config) SetFormListenAddr(a string)      { c.FormCfg.ListenAddr = a }

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// FormConfig configures the form rendering service.
type FormConfig struct {
	ListenAddr  string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	PublicURL   string   `mapstructure:"public_url" yaml:"public_url"`
	CacheDir    string   `mapstructure:"cache_dir" yaml:"cache_dir"`
	RateLimit   float64  `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst   int      `mapstructure:"rate_burst" yaml:"rate_burst"`
	AuthSecret  string   `mapstructure:"auth_secret" yaml:"-"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Port extracts the numeric port from ListenAddr, or 0 if it has none.
func (f FormConfig) Port() int {
	idx := strings.LastIndex(f.ListenAddr, ":")
	if idx < 0 {
		return 0
	}
	var port int
	if _, err := fmt.Sscanf(f.ListenAddr[idx+1:], "%d", &port); err != nil {
		return 0
	}
	return port
}

// SubmissionBackend names a SubmissionChannel implementation.
type SubmissionBackend string

const (
	BackendMemory   SubmissionBackend = "memory"
	BackendFile     SubmissionBackend = "file"
	BackendRedis    SubmissionBackend = "redis"
	BackendPostgres SubmissionBackend = "postgres"
)

// SubmissionConfig selects and configures the rendezvous backend.
type SubmissionConfig struct {
	Backend     SubmissionBackend `mapstructure:"backend" yaml:"backend"`
	RedisURL    string            `mapstructure:"redis_url" yaml:"-"`
	DatabaseURL string            `mapstructure:"database_url" yaml:"-"`
	TTL         time.Duration     `mapstructure:"ttl" yaml:"ttl"`
}

// BridgeSource selects where the bridge looks for submissions.
type BridgeSource string

const (
	// SourceHTTP polls the form server's submission endpoint.
	SourceHTTP BridgeSource = "http"
	// SourceStore reads the configured submission backend directly.
	SourceStore BridgeSource = "store"
)

// BridgeConfig configures the agent-facing polling bridge.
type BridgeConfig struct {
	FormServerURL      string        `mapstructure:"form_server_url" yaml:"form_server_url"`
	PublicURL          string        `mapstructure:"public_url" yaml:"public_url"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	DefaultTimeout     time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	RegisterTimeout    time.Duration `mapstructure:"register_timeout" yaml:"register_timeout"`
	RegisterMaxElapsed time.Duration `mapstructure:"register_max_elapsed" yaml:"register_max_elapsed"`
	Source             BridgeSource  `mapstructure:"source" yaml:"source"`
	Watch              bool          `mapstructure:"watch" yaml:"watch"`
}

// MCPConfig configures the agent transport.
type MCPConfig struct {
	Transport          string `mapstructure:"transport" yaml:"transport"`
	ListenAddr         string `mapstructure:"listen_addr" yaml:"listen_addr"`
	EmbeddedFormServer bool   `mapstructure:"embedded_form_server" yaml:"embedded_form_server"`
}

// LLMConfig configures the schema inference collaborator.
type LLMConfig struct {
	// APIKey is the process-level default credential.
	APIKey  string        `mapstructure:"api_key" yaml:"-"`
	Model   string        `mapstructure:"model" yaml:"model"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewDefaultConfig returns a configuration populated only from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default with the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formbridge")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("form.listen_addr", ":9110")
	v.SetDefault("form.public_url", "http://localhost:9110")
	v.SetDefault("form.cache_dir", ".cache/submissions")
	v.SetDefault("form.rate_limit", 20.0)
	v.SetDefault("form.rate_burst", 40)
	v.SetDefault("form.auth_secret", "")
	v.SetDefault("form.cors_origins", []string{"*"})

	v.SetDefault("submission.backend", string(BackendFile))
	v.SetDefault("submission.redis_url", "")
	v.SetDefault("submission.database_url", "")
	v.SetDefault("submission.ttl", "24h")

	v.SetDefault("bridge.form_server_url", "http://localhost:9110")
	v.SetDefault("bridge.public_url", "")
	v.SetDefault("bridge.poll_interval", "2s")
	v.SetDefault("bridge.default_timeout", "300s")
	v.SetDefault("bridge.register_timeout", "30s")
	v.SetDefault("bridge.register_max_elapsed", "5s")
	v.SetDefault("bridge.source", string(SourceHTTP))
	v.SetDefault("bridge.watch", false)

	v.SetDefault("mcp.transport", "stdio")
	v.SetDefault("mcp.listen_addr", ":8080")
	v.SetDefault("mcp.embedded_form_server", false)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.timeout", "60s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("llm.api_key", "FORMBRIDGE_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("form.auth_secret", "FORMBRIDGE_FORM_AUTH_SECRET")
	_ = v.BindEnv("submission.redis_url", "FORMBRIDGE_SUBMISSION_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("submission.database_url", "FORMBRIDGE_SUBMISSION_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("bridge.form_server_url", "FORMBRIDGE_BRIDGE_FORM_SERVER_URL", "FORM_SERVER_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.FormCfg.CacheDir != "" {
		expanded, err := homedir.Expand(cfg.FormCfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to expand form.cache_dir: %w", err)
		}
		cfg.FormCfg.CacheDir = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.FormCfg.Validate(); err != nil {
		return fmt.Errorf("form configuration invalid: %w", err)
	}
	if err := c.SubmissionCfg.Validate(); err != nil {
		return fmt.Errorf("submission configuration invalid: %w", err)
	}
	if err := c.BridgeCfg.Validate(); err != nil {
		return fmt.Errorf("bridge configuration invalid: %w", err)
	}
	switch c.MCPCfg.Transport {
	case "stdio", "sse":
	default:
		return fmt.Errorf("mcp.transport must be 'stdio' or 'sse', got %q", c.MCPCfg.Transport)
	}
	return nil
}

// Validate checks the form server configuration.
func (f *FormConfig) Validate() error {
	if f.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if f.CacheDir == "" {
		return fmt.Errorf("cache_dir is required")
	}
	if f.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if f.RateLimit > 0 && f.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive when rate_limit is set")
	}
	return nil
}

// Validate checks the submission backend configuration.
func (s *SubmissionConfig) Validate() error {
	switch s.Backend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if s.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis backend")
		}
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	return nil
}

// Validate checks the bridge configuration.
func (b *BridgeConfig) Validate() error {
	if b.FormServerURL == "" {
		return fmt.Errorf("form_server_url is required")
	}
	if _, err := url.Parse(b.FormServerURL); err != nil {
		return fmt.Errorf("form_server_url is not a valid URL: %w", err)
	}
	if b.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if b.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be a positive duration")
	}
	switch b.Source {
	case SourceHTTP, SourceStore:
	default:
		return fmt.Errorf("source must be 'http' or 'store', got %q", b.Source)
	}
	return nil
}

// ProcessDefaultCredential returns the configured credential, falling back to
// the conventional provider variable when config carries none.
func (l LLMConfig) ProcessDefaultCredential() string {
	if l.APIKey != "" {
		return l.APIKey
	}
	return os.Getenv("GOOGLE_API_KEY")
}
