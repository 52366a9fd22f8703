// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 环境变量前缀，例如 ADMATE_RAG_THRESHOLD 覆盖 rag.threshold。
const envPrefix = "ADMATE"

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
// 一个 Config 实例发布后即视为不可变，运行期变更通过 Holder 整体替换。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RAG           RAGConfig           `mapstructure:"rag"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Chat          ChatConfig          `mapstructure:"chat"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PostgresConfig 存储 Postgres（pgvector）连接配置。
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// VectorStoreConfig 选择向量检索后端。
type VectorStoreConfig struct {
	// Backend 取值 mysql | pgvector | elasticsearch | memory。
	Backend string `mapstructure:"backend"`
	// MatchFunction 非空时 pgvector 后端调用该存储过程，而不是内联 SQL。
	MatchFunction string `mapstructure:"match_function"`
	// ScanBatchSize 是 mysql 后端暴力扫描时每批读取的分块数。
	ScanBatchSize int `mapstructure:"scan_batch_size"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	// Provider 取值 openai | ollama | hash。
	Provider   string               `mapstructure:"provider"`
	APIKey     string               `mapstructure:"api_key"`
	BaseURL    string               `mapstructure:"base_url"`
	Model      string               `mapstructure:"model"`
	Dimensions int                  `mapstructure:"dimensions"`
	Timeout    time.Duration        `mapstructure:"timeout"`
	Cache      EmbeddingCacheConfig `mapstructure:"cache"`
}

// EmbeddingCacheConfig 控制查询向量的 Redis 缓存。
type EmbeddingCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	// Provider 取值 ollama | openai。
	Provider   string              `mapstructure:"provider"`
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式。
type LLMPromptConfig struct {
	Rules    string `mapstructure:"rules"`
	RefStart string `mapstructure:"ref_start"`
	RefEnd   string `mapstructure:"ref_end"`
}

// RAGConfig 是检索与回答组装的默认策略。
type RAGConfig struct {
	Limit              int              `mapstructure:"limit"`
	Threshold          float64          `mapstructure:"threshold"`
	MaxContextRunes    int              `mapstructure:"max_context_runes"`
	ExtractiveMaxRunes int              `mapstructure:"extractive_max_runes"`
	SourcePreviewRunes int              `mapstructure:"source_preview_runes"`
	NoResultAnswer     string           `mapstructure:"no_result_answer"`
	UnavailableAnswer  string           `mapstructure:"unavailable_answer"`
	ExtractivePrefix   string           `mapstructure:"extractive_prefix"`
	Confidence         ConfidenceConfig `mapstructure:"confidence"`
}

// ConfidenceConfig 配置置信度启发式检查。
type ConfidenceConfig struct {
	MinAnswerRunes   int               `mapstructure:"min_answer_runes"`
	ShortAnswerRatio float64           `mapstructure:"short_answer_ratio"`
	Checks           []ConfidenceCheck `mapstructure:"checks"`
}

// ConfidenceCheck 是一条具名检查及其扣分。
type ConfidenceCheck struct {
	Name    string  `mapstructure:"name"`
	Penalty float64 `mapstructure:"penalty"`
}

// PipelineConfig 配置索引流水线的分块参数。
type PipelineConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// ChatConfig 配置对话相关的行为。
type ChatConfig struct {
	RenderHTML   bool `mapstructure:"render_html"`
	HistoryLimit int  `mapstructure:"history_limit"`
}

// RateLimitConfig 配置按客户端 IP 的限流。
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// 已知的置信度检查名称。
const (
	CheckEmptyAnswer = "emptyAnswer"
	CheckTooShort    = "tooShort"
	CheckNoGrounding = "noGrounding"
)

// Load 从指定路径读取 YAML 配置，并叠加 .env 与 ADMATE_ 前缀的环境变量。
func Load(configPath string) (*Config, error) {
	// .env 是可选的
	_ = godotenv.Load()

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return decode(v)
}

// Default 返回只包含默认值的配置，主要用于测试与命令行工具。
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Errorf("默认配置无效: %w", err))
	}
	return cfg
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.redis.addr", "localhost:6379")

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "document-index")
	v.SetDefault("kafka.group_id", "admate-rag-indexer")

	v.SetDefault("elasticsearch.index_name", "document_chunks")

	v.SetDefault("vector_store.backend", "memory")
	v.SetDefault("vector_store.scan_batch_size", 500)

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.model", "hash-v1")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.timeout", 10*time.Second)
	v.SetDefault("embedding.cache.ttl", 24*time.Hour)

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "qwen2.5:7b")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.generation.temperature", 0.3)
	v.SetDefault("llm.generation.max_tokens", 2000)
	v.SetDefault("llm.prompt.rules", defaultRules)
	v.SetDefault("llm.prompt.ref_start", "<<REF>>")
	v.SetDefault("llm.prompt.ref_end", "<<END>>")

	v.SetDefault("rag.limit", 5)
	v.SetDefault("rag.threshold", 0.2)
	v.SetDefault("rag.max_context_runes", 1000)
	v.SetDefault("rag.extractive_max_runes", 500)
	v.SetDefault("rag.source_preview_runes", 200)
	v.SetDefault("rag.no_result_answer", "죄송합니다. 질문과 관련된 정보를 찾을 수 없습니다. 다른 질문을 시도해보시거나 관리자에게 문의해주세요.")
	v.SetDefault("rag.unavailable_answer", "죄송합니다. 현재 문서 검색 서비스에 일시적인 문제가 발생했습니다. 잠시 후 다시 시도해주세요.")
	v.SetDefault("rag.extractive_prefix", "현재 AI 답변 생성 서비스를 사용할 수 없어 가장 관련성 높은 문서 내용을 그대로 안내해 드립니다.")
	v.SetDefault("rag.confidence.min_answer_runes", 10)
	v.SetDefault("rag.confidence.short_answer_ratio", 0.5)
	v.SetDefault("rag.confidence.checks", []map[string]interface{}{
		{"name": CheckEmptyAnswer, "penalty": 1.0},
		{"name": CheckTooShort, "penalty": 0.2},
		{"name": CheckNoGrounding, "penalty": 0.3},
	})

	v.SetDefault("pipeline.chunk_size", 1000)
	v.SetDefault("pipeline.chunk_overlap", 100)

	v.SetDefault("chat.history_limit", 20)

	v.SetDefault("rate_limit.rps", 5.0)
	v.SetDefault("rate_limit.burst", 10)
}

const defaultRules = `당신은 Meta(Facebook, Instagram) 광고 정책과 가이드라인에 대한 전문가입니다.
반드시 한국어로만 답변하세요.
아래 참고 문서 내용만을 바탕으로 정확하고 구체적으로 답변하고, 문서에 없는 내용은 모른다고 답하세요.

답변 형식:
**핵심 답변**
**상세 설명**
**관련 정책**
**실무 가이드라인**`

// Validate 检查配置的一致性，任何错误都会阻止该配置被发布。
func (c *Config) Validate() error {
	var errs []error
	switch c.VectorStore.Backend {
	case "mysql", "pgvector", "elasticsearch", "memory":
	default:
		errs = append(errs, fmt.Errorf("未知的向量存储后端: %q", c.VectorStore.Backend))
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "hash":
	default:
		errs = append(errs, fmt.Errorf("未知的 embedding provider: %q", c.Embedding.Provider))
	}
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("未知的 llm provider: %q", c.LLM.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions 必须大于 0"))
	}
	if c.RAG.Limit <= 0 {
		errs = append(errs, errors.New("rag.limit 必须大于 0"))
	}
	if c.RAG.Threshold < 0 || c.RAG.Threshold > 1 {
		errs = append(errs, fmt.Errorf("rag.threshold 必须在 [0,1] 区间内: %v", c.RAG.Threshold))
	}
	if c.Pipeline.ChunkSize <= 0 || c.Pipeline.ChunkOverlap < 0 {
		errs = append(errs, errors.New("pipeline.chunk_size 必须大于 0 且 chunk_overlap 不能为负"))
	}
	for _, check := range c.RAG.Confidence.Checks {
		switch check.Name {
		case CheckEmptyAnswer, CheckTooShort, CheckNoGrounding:
		default:
			errs = append(errs, fmt.Errorf("未知的置信度检查: %q", check.Name))
		}
		if check.Penalty < 0 || check.Penalty > 1 {
			errs = append(errs, fmt.Errorf("置信度检查 %s 的扣分必须在 [0,1] 区间内", check.Name))
		}
	}
	return errors.Join(errs...)
}
