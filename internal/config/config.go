package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 描述了银行助手在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Fraud     FraudConfig     `json:"fraud" yaml:"fraud"`
	Events    EventsConfig    `json:"events" yaml:"events"`
	Speech    SpeechConfig    `json:"speech" yaml:"speech"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Runtime   RuntimeConfig   `json:"runtime" yaml:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address         string   `json:"address" yaml:"address"`
	AllowedOrigins  []string `json:"allowed_origins" yaml:"allowed_origins"`
	ShutdownSeconds int      `json:"shutdown_seconds" yaml:"shutdown_seconds"`
	// MetricsAddress 非空时在独立端口暴露 /metrics，API 端口上的 /metrics 仍然可用。
	MetricsAddress  string   `json:"metrics_address" yaml:"metrics_address"`
}

// ShutdownTimeout 返回优雅关闭的等待时间。
func (s ServerConfig) ShutdownTimeout() time.Duration {
	if s.ShutdownSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ShutdownSeconds) * time.Second
}

// StorageConfig 描述银行数据库的连接信息。
type StorageConfig struct {
	Driver                 string `json:"driver" yaml:"driver"`
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds" yaml:"conn_max_idle_time_seconds"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string  `json:"provider" yaml:"provider"`
	Model          string  `json:"model" yaml:"model"`
	BaseURL        string  `json:"base_url" yaml:"base_url"`
	APIKey         string  `json:"api_key" yaml:"api_key"`
	APIKeyEnv      string  `json:"api_key_env" yaml:"api_key_env"`
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout 返回单次模型调用的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 优先返回显式配置的密钥，否则读取环境变量。
func (c LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}

// AgentConfig 控制专家智能体的推理循环。
type AgentConfig struct {
	MaxSteps int `json:"max_steps" yaml:"max_steps"`
}

// EmbeddingConfig 描述政策检索所需的向量模型。
type EmbeddingConfig struct {
	Provider  string           `json:"provider" yaml:"provider"`
	Model     string           `json:"model" yaml:"model"`
	BaseURL   string           `json:"base_url" yaml:"base_url"`
	APIKeyEnv string           `json:"api_key_env" yaml:"api_key_env"`
	TopK      int              `json:"top_k" yaml:"top_k"`
	Cache     RedisCacheConfig `json:"cache" yaml:"cache"`
}

// RedisCacheConfig 描述查询向量缓存。
type RedisCacheConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Password   string `json:"password" yaml:"password"`
	DB         int    `json:"db" yaml:"db"`
	Prefix     string `json:"prefix" yaml:"prefix"`
	TTLMinutes int    `json:"ttl_minutes" yaml:"ttl_minutes"`
}

// AuthConfig 控制令牌签发。
type AuthConfig struct {
	SecretKey    string `json:"secret_key" yaml:"secret_key"`
	TokenMinutes int    `json:"token_minutes" yaml:"token_minutes"`
	Issuer       string `json:"issuer" yaml:"issuer"`
}

// TokenTTL 返回访问令牌有效期。
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenMinutes) * time.Minute
}

// FraudConfig 描述大额交易阈值，单位为美元。
type FraudConfig struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// EventsConfig 描述事件总线。
type EventsConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Workers  int            `json:"workers" yaml:"workers"`
	Buffer   int            `json:"buffer" yaml:"buffer"`
	Redis    RedisQueue     `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
	// OpsWebhookURL 非空时，欺诈标记等运营类事件同时推送到该 webhook。
	OpsWebhookURL string `json:"ops_webhook_url" yaml:"ops_webhook_url"`
}

// RedisQueue 描述基于 Redis 列表的事件队列。
type RedisQueue struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	Queue     string `json:"queue" yaml:"queue"`
	BlockWait int    `json:"block_wait_seconds" yaml:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 事件队列。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Queue      string `json:"queue" yaml:"queue"`
	Prefetch   int    `json:"prefetch" yaml:"prefetch"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// SpeechConfig 描述语音转写与合成服务。
type SpeechConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	APIKeyEnv  string `json:"api_key_env" yaml:"api_key_env"`
	STTModel   string `json:"stt_model" yaml:"stt_model"`
	TTSModel   string `json:"tts_model" yaml:"tts_model"`
	Voice      string `json:"voice" yaml:"voice"`
	UploadDir  string `json:"upload_dir" yaml:"upload_dir"`
	MaxUploadM int    `json:"max_upload_mb" yaml:"max_upload_mb"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level       string      `json:"level" yaml:"level"`
	Format      string      `json:"format" yaml:"format"`
	OutputPaths []string    `json:"output_paths" yaml:"output_paths"`
	Audit       AuditConfig `json:"audit" yaml:"audit"`
}

// AuditConfig 控制审计日志文件。
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	SeedPolicies bool   `json:"seed_policies" yaml:"seed_policies"`
	// PolicyFile 指向额外的政策 JSON 文件，seed 时一并写入。
	PolicyFile string `json:"policy_file" yaml:"policy_file"`
}

// Load 负责解析指定路径的 JSON 或 YAML 配置文件，并叠加环境变量。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg, err := Parse(content, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults(filepath.Dir(path))
	return cfg, nil
}

// Default 返回不依赖配置文件的默认配置，仅叠加环境变量。
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults(".")
	return cfg
}

// Parse 根据扩展名解码配置内容。
func Parse(content []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置失败: %w", err)
		}
	default:
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}
	return &cfg, nil
}

// applyEnv 读取与部署脚本约定的环境变量。
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Storage.DSN = v
		if c.Storage.Driver == "" || c.Storage.Driver == "memory" {
			c.Storage.Driver = driverFromDSN(v)
		}
	}
	if v := getenv("SECRET_KEY"); v != "" {
		c.Auth.SecretKey = v
	}
	if v := getenv("MODEL_NAME"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("OLLAMA_BASE_URL"); v != "" {
		if c.LLM.Provider == "" || c.LLM.Provider == "ollama" {
			c.LLM.BaseURL = v
		}
		if c.Embedding.Provider == "ollama" && c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = v
		}
	}
	if v := getenv("FRAUD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Fraud.Threshold = f
		}
	}
}

func driverFromDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "sqlite:"), strings.HasSuffix(lower, ".db"), strings.Contains(lower, ":memory:"):
		return "sqlite"
	default:
		return "mysql"
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8000"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	c.Storage.DSN = strings.TrimPrefix(c.Storage.DSN, "sqlite:")

	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama3.2"
	}
	if c.LLM.BaseURL == "" && c.LLM.Provider == "ollama" {
		c.LLM.BaseURL = "http://localhost:11434"
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1024
	}

	if c.Agent.MaxSteps <= 0 {
		c.Agent.MaxSteps = 8
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "none"
	}
	if c.Embedding.TopK <= 0 {
		c.Embedding.TopK = 3
	}
	if c.Embedding.Provider == "ollama" {
		if c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = "http://localhost:11434"
		}
		if c.Embedding.Model == "" {
			c.Embedding.Model = "nomic-embed-text"
		}
	}
	if c.Embedding.Cache.Prefix == "" {
		c.Embedding.Cache.Prefix = "iva:embedding:"
	}
	if c.Embedding.Cache.TTLMinutes <= 0 {
		c.Embedding.Cache.TTLMinutes = 24 * 60
	}

	if c.Auth.SecretKey == "" {
		c.Auth.SecretKey = "dev-secret-change-me"
	}
	if c.Auth.TokenMinutes <= 0 {
		c.Auth.TokenMinutes = 60
	}

	if c.Fraud.Threshold <= 0 {
		c.Fraud.Threshold = 5000
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}
	if c.Events.Workers <= 0 {
		c.Events.Workers = 2
	}
	if c.Events.Buffer <= 0 {
		c.Events.Buffer = 256
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Runtime.PolicyFile != "" && !filepath.IsAbs(c.Runtime.PolicyFile) {
		c.Runtime.PolicyFile = filepath.Join(baseDir, c.Runtime.PolicyFile)
	}

	if c.Speech.UploadDir == "" {
		c.Speech.UploadDir = filepath.Join(c.Runtime.DataDir, "uploads")
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = "alloy"
	}
	if c.Speech.MaxUploadM <= 0 {
		c.Speech.MaxUploadM = 25
	}
}
