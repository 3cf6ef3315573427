package config

import (
	"time"

	"github.com/jackzampolin/stdcheck/internal/analyzer"
	"github.com/jackzampolin/stdcheck/internal/compliance"
	"github.com/jackzampolin/stdcheck/internal/knowledge"
	"github.com/jackzampolin/stdcheck/internal/providers"
	"github.com/jackzampolin/stdcheck/internal/raster"
	"github.com/jackzampolin/stdcheck/internal/retry"
)

// Config holds stdcheck configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Vision    VisionCfg    `mapstructure:"vision" yaml:"vision"`
	Knowledge KnowledgeCfg `mapstructure:"knowledge" yaml:"knowledge"`
	Embedding EmbeddingCfg `mapstructure:"embedding" yaml:"embedding"`
	Retry     RetryCfg     `mapstructure:"retry" yaml:"retry"`
	Server    ServerCfg    `mapstructure:"server" yaml:"server"`
	Storage   StorageCfg   `mapstructure:"storage" yaml:"storage"`
	Report    ReportCfg    `mapstructure:"report" yaml:"report"`
}

// VisionCfg configures the vision model client.
type VisionCfg struct {
	Client      string        `mapstructure:"client" yaml:"client"` // "http", "openai", "mock"
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	Model       string        `mapstructure:"model" yaml:"model"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second, 0 = unlimited
	Zoom        float64       `mapstructure:"zoom" yaml:"zoom"`
	Instruction string        `mapstructure:"instruction" yaml:"instruction"`
}

// KnowledgeCfg configures the LightRAG knowledge engine.
type KnowledgeCfg struct {
	// BaseURL of an external LightRAG server. Ignored when docker.enabled is set.
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string        `mapstructure:"api_key" yaml:"api_key"`
	WorkingDir     string        `mapstructure:"working_dir" yaml:"working_dir"` // empty = {home}/rag_data
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"`
	Mode           string        `mapstructure:"mode" yaml:"mode"`
	QuestionPrefix string        `mapstructure:"question_prefix" yaml:"question_prefix"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	Docker         DockerCfg     `mapstructure:"docker" yaml:"docker"`
}

// DockerCfg holds LightRAG container configuration.
type DockerCfg struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Image         string `mapstructure:"image" yaml:"image"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"` // empty = derived from home path
	Port          string `mapstructure:"port" yaml:"port"`
}

// EmbeddingCfg is passed to the LightRAG container. The endpoint and key
// fall back to the vision ones.
type EmbeddingCfg struct {
	Model   string `mapstructure:"model" yaml:"model"`
	Dim     int    `mapstructure:"dim" yaml:"dim"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
}

// RetryCfg is the retry policy for vision and knowledge calls.
type RetryCfg struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay" yaml:"delay"`
	Backoff     float64       `mapstructure:"backoff" yaml:"backoff"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// StorageCfg configures the report database.
type StorageCfg struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"` // empty = {home}/stdcheck.db
}

// ReportCfg configures record handling.
type ReportCfg struct {
	SchemaFile  string `mapstructure:"schema_file" yaml:"schema_file"` // empty = built-in schema
	KeepUploads bool   `mapstructure:"keep_uploads" yaml:"keep_uploads"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Vision: VisionCfg{
			Client:      providers.CompletionsName,
			BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
			APIKey:      "${DASHSCOPE_API_KEY}",
			Model:       providers.DefaultVisionModel,
			MaxTokens:   providers.DefaultMaxTokens,
			Timeout:     120 * time.Second,
			RateLimit:   0,
			Zoom:        raster.DefaultZoom,
			Instruction: analyzer.DefaultInstruction,
		},
		Knowledge: KnowledgeCfg{
			BaseURL:        "http://localhost:" + knowledge.DefaultPort,
			APIKey:         "${LIGHTRAG_API_KEY}",
			Timeout:        120 * time.Second,
			HealthTimeout:  120 * time.Second,
			Mode:           knowledge.ModeHybrid,
			QuestionPrefix: compliance.DefaultQuestionPrefix,
			CacheTTL:       10 * time.Minute,
			Docker: DockerCfg{
				Enabled: false,
				Image:   knowledge.DefaultImage,
				Port:    knowledge.DefaultPort,
			},
		},
		Embedding: EmbeddingCfg{
			Model: knowledge.DefaultEmbeddingModel,
			Dim:   knowledge.DefaultEmbeddingDim,
		},
		Retry: RetryCfg{
			MaxAttempts: 3,
			Delay:       time.Second,
			Backoff:     2,
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "7861",
		},
		Report: ReportCfg{
			KeepUploads: true,
		},
	}
}

// VisionConfig returns the provider registry configuration with the API
// key resolved.
func (c *Config) VisionConfig() providers.VisionConfig {
	return providers.VisionConfig{
		Type:      c.Vision.Client,
		BaseURL:   c.Vision.BaseURL,
		APIKey:    ResolveEnvVars(c.Vision.APIKey),
		Model:     c.Vision.Model,
		MaxTokens: c.Vision.MaxTokens,
		Timeout:   c.Vision.Timeout,
		RateLimit: c.Vision.RateLimit,
	}
}

// RetryPolicy returns the configured retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		Delay:       c.Retry.Delay,
		Backoff:     c.Retry.Backoff,
	}
}

// KnowledgeConfig returns the engine handle configuration. workingDir and
// homePath fill in the defaults that depend on the home directory.
func (c *Config) KnowledgeConfig(workingDir, homePath string) knowledge.Config {
	k := c.Knowledge
	if k.WorkingDir != "" {
		workingDir = k.WorkingDir
	}
	name := k.Docker.ContainerName
	if name == "" && homePath != "" {
		name = knowledge.GenerateContainerName(homePath)
	}

	embedHost := c.Embedding.BaseURL
	if embedHost == "" {
		embedHost = c.Vision.BaseURL
	}
	embedKey := c.Embedding.APIKey
	if embedKey == "" {
		embedKey = c.Vision.APIKey
	}

	return knowledge.Config{
		BaseURL:       k.BaseURL,
		APIKey:        ResolveEnvVars(k.APIKey),
		WorkingDir:    workingDir,
		Timeout:       k.Timeout,
		HealthTimeout: k.HealthTimeout,
		DockerEnabled: k.Docker.Enabled,
		Docker: knowledge.DockerConfig{
			ContainerName:   name,
			Image:           k.Docker.Image,
			DataPath:        workingDir,
			HostPort:        k.Docker.Port,
			LLMModel:        c.Vision.Model,
			LLMHost:         c.Vision.BaseURL,
			LLMAPIKey:       ResolveEnvVars(c.Vision.APIKey),
			EmbeddingModel:  c.Embedding.Model,
			EmbeddingDim:    c.Embedding.Dim,
			EmbeddingHost:   embedHost,
			EmbeddingAPIKey: ResolveEnvVars(embedKey),
			APIKey:          ResolveEnvVars(k.APIKey),
		},
	}
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Redacted returns a copy safe to show over the API: literal secrets are
// masked, ${ENV_VAR} references are kept as written.
func (c *Config) Redacted() *Config {
	out := *c
	out.Vision.APIKey = redact(c.Vision.APIKey)
	out.Knowledge.APIKey = redact(c.Knowledge.APIKey)
	out.Embedding.APIKey = redact(c.Embedding.APIKey)
	return &out
}

func redact(secret string) string {
	if secret == "" || envPattern.MatchString(secret) {
		return secret
	}
	return "********"
}
