package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config 进程启动时构建一次，之后通过构造函数注入各组件
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Log       LogConfig       `yaml:"log" envconfig:"LOG"`
	LLM       LLMConfig       `yaml:"llm" envconfig:"LLM"`
	Upload    UploadConfig    `yaml:"upload" envconfig:"UPLOAD"`
	Converter ConverterConfig `yaml:"converter" envconfig:"CONVERTER"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	TaskStore TaskStoreConfig `yaml:"taskStore" envconfig:"TASK_STORE"`
	Redis     RedisConfig     `yaml:"redis" envconfig:"REDIS"`
	Postgres  PostgresConfig  `yaml:"postgres" envconfig:"POSTGRES"`
	Graph     GraphConfig     `yaml:"graph" envconfig:"GRAPH"`
	Archive   ArchiveConfig   `yaml:"archive" envconfig:"ARCHIVE"`
	Cleanup   CleanupConfig   `yaml:"cleanup" envconfig:"CLEANUP"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR"`
	AllowedOrigins  []string      `yaml:"allowedOrigins" envconfig:"ALLOWED_ORIGINS"`
	MaxUploadSize   int64         `yaml:"maxUploadSize" envconfig:"MAX_UPLOAD_SIZE"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	Level       string   `yaml:"level" envconfig:"LEVEL"`
	Encoding    string   `yaml:"encoding" envconfig:"ENCODING"`
	OutputPaths []string `yaml:"outputPaths" envconfig:"OUTPUT_PATHS"`
	Development bool     `yaml:"development" envconfig:"DEVELOPMENT"`
}

// LLMConfig 本地推理后端，连接超时按秒计，读超时按分钟计
type LLMConfig struct {
	Provider       string        `yaml:"provider" envconfig:"PROVIDER"` // ollama | openai
	BaseURL        string        `yaml:"baseUrl" envconfig:"BASE_URL"`
	Model          string        `yaml:"model" envconfig:"MODEL"`
	APIKey         string        `yaml:"apiKey" envconfig:"API_KEY"`
	Temperature    float64       `yaml:"temperature" envconfig:"TEMPERATURE"`
	TopP           float64       `yaml:"topP" envconfig:"TOP_P"`
	NumPredict     int           `yaml:"numPredict" envconfig:"NUM_PREDICT"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" envconfig:"CONNECT_TIMEOUT"`
	ReadTimeout    time.Duration `yaml:"readTimeout" envconfig:"READ_TIMEOUT"`
}

type UploadConfig struct {
	Root              string   `yaml:"root" envconfig:"ROOT"`
	AllowedExtensions []string `yaml:"allowedExtensions" envconfig:"ALLOWED_EXTENSIONS"`
}

// ConverterConfig 外部转换脚本及其超时
type ConverterConfig struct {
	PythonBin       string        `yaml:"pythonBin" envconfig:"PYTHON_BIN"`
	Caj2PdfCommand  string        `yaml:"caj2pdfCommand" envconfig:"CAJ2PDF_COMMAND"`
	Pdf2DocxScript  string        `yaml:"pdf2docxScript" envconfig:"PDF2DOCX_SCRIPT"`
	Pdf2TxtScript   string        `yaml:"pdf2txtScript" envconfig:"PDF2TXT_SCRIPT"`
	DoclingScript   string        `yaml:"doclingScript" envconfig:"DOCLING_SCRIPT"`
	Caj2PdfTimeout  time.Duration `yaml:"caj2pdfTimeout" envconfig:"CAJ2PDF_TIMEOUT"`
	Pdf2DocxTimeout time.Duration `yaml:"pdf2docxTimeout" envconfig:"PDF2DOCX_TIMEOUT"`
	Pdf2TxtTimeout  time.Duration `yaml:"pdf2txtTimeout" envconfig:"PDF2TXT_TIMEOUT"`
	DoclingTimeout  time.Duration `yaml:"doclingTimeout" envconfig:"DOCLING_TIMEOUT"`
	DoclingEnabled  bool          `yaml:"doclingEnabled" envconfig:"DOCLING_ENABLED"`
	PDFTextFallback bool          `yaml:"pdfTextFallback" envconfig:"PDF_TEXT_FALLBACK"`
}

type PipelineConfig struct {
	SummaryEnabled bool   `yaml:"summaryEnabled" envconfig:"SUMMARY_ENABLED"`
	Dispatcher     string `yaml:"dispatcher" envconfig:"DISPATCHER"` // pool | asynq
	Workers        int    `yaml:"workers" envconfig:"WORKERS"`
	MaxInFlight    int    `yaml:"maxInFlight" envconfig:"MAX_IN_FLIGHT"`
	MetadataBudget int    `yaml:"metadataBudget" envconfig:"METADATA_BUDGET"`
	ConceptBudget  int    `yaml:"conceptBudget" envconfig:"CONCEPT_BUDGET"`

	// ProcessTimeout 单个任务在 asynq worker 中的最长运行时间
	ProcessTimeout time.Duration `yaml:"processTimeout" envconfig:"PROCESS_TIMEOUT"`
}

type TaskStoreConfig struct {
	Type      string        `yaml:"type" envconfig:"TYPE"` // redis | badger
	TTL       time.Duration `yaml:"ttl" envconfig:"TTL"`   // 只作用于终态任务，0 表示不过期
	BadgerDir string        `yaml:"badgerDir" envconfig:"BADGER_DIR"`
	InMemory  bool          `yaml:"inMemory" envconfig:"IN_MEMORY"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
}

type PostgresConfig struct {
	DSN         string `yaml:"dsn" envconfig:"DSN"`
	AutoMigrate bool   `yaml:"autoMigrate" envconfig:"AUTO_MIGRATE"`
}

// GraphConfig 图谱加载脚本，按标题增量或全量重建
type GraphConfig struct {
	LoaderScript string        `yaml:"loaderScript" envconfig:"LOADER_SCRIPT"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

type ArchiveConfig struct {
	Type  string      `yaml:"type" envconfig:"TYPE"` // none | minio | s3
	Minio MinioConfig `yaml:"minio" envconfig:"MINIO"`
	S3    S3Config    `yaml:"s3" envconfig:"S3"`
}

type CleanupConfig struct {
	Enabled   bool          `yaml:"enabled" envconfig:"ENABLED"`
	Schedule  string        `yaml:"schedule" envconfig:"SCHEDULE"`
	Retention time.Duration `yaml:"retention" envconfig:"RETENTION"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			MaxUploadSize:   50 * 1024 * 1024, // 50MB
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout", "logs/app.log"},
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			BaseURL:        "http://localhost:11434",
			Model:          "ministral-3:3b",
			Temperature:    0.7,
			TopP:           0.9,
			NumPredict:     2048,
			ConnectTimeout: 15 * time.Second,
			ReadTimeout:    3 * time.Minute,
		},
		Upload: UploadConfig{
			Root:              "/manager/upload",
			AllowedExtensions: []string{".pdf", ".caj"},
		},
		Converter: ConverterConfig{
			PythonBin:       "python3",
			Pdf2DocxScript:  "/app/scripts/pdf_converter.py",
			Pdf2TxtScript:   "/app/scripts/pdf_to_text.py",
			DoclingScript:   "/app/scripts/docling_extract.py",
			Caj2PdfTimeout:  5 * time.Minute,
			Pdf2DocxTimeout: 30 * time.Minute,
			Pdf2TxtTimeout:  30 * time.Minute,
			DoclingTimeout:  10 * time.Minute,
			DoclingEnabled:  true,
			PDFTextFallback: true,
		},
		Pipeline: PipelineConfig{
			SummaryEnabled: true,
			Dispatcher:     "pool",
			Workers:        4,
			MaxInFlight:    16,
			MetadataBudget: 12000,
			ConceptBudget:  4000,
			ProcessTimeout: 2 * time.Hour,
		},
		TaskStore: TaskStoreConfig{
			Type:      "redis",
			TTL:       30 * 24 * time.Hour,
			BadgerDir: "data/tasks",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Postgres: PostgresConfig{
			DSN:         "host=localhost user=postgres password=postgres dbname=manager port=5432 sslmode=disable",
			AutoMigrate: true,
		},
		Graph: GraphConfig{
			LoaderScript: "/app/scripts/neo4j_loader.py",
			Timeout:      30 * time.Minute,
		},
		Archive: ArchiveConfig{
			Type: "none",
		},
		Cleanup: CleanupConfig{
			Enabled:   true,
			Schedule:  "0 3 * * *",
			Retention: 7 * 24 * time.Hour,
		},
	}
}

// Load 依次应用默认值、YAML 文件（可选）和环境变量，环境变量优先
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider))
	}
	if c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm base url is required"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm model is required"))
	}
	if c.Upload.Root == "" {
		errs = append(errs, errors.New("upload root is required"))
	}
	switch c.Pipeline.Dispatcher {
	case "pool", "asynq":
	default:
		errs = append(errs, fmt.Errorf("unsupported dispatcher: %s", c.Pipeline.Dispatcher))
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, errors.New("pipeline workers must be positive"))
	}
	if c.Pipeline.MaxInFlight < c.Pipeline.Workers {
		errs = append(errs, errors.New("pipeline max in-flight must be at least the worker count"))
	}
	if c.Pipeline.MetadataBudget <= 0 || c.Pipeline.ConceptBudget <= 0 {
		errs = append(errs, errors.New("context budgets must be positive"))
	}
	switch c.TaskStore.Type {
	case "redis", "badger":
	default:
		errs = append(errs, fmt.Errorf("unsupported task store: %s", c.TaskStore.Type))
	}
	if c.Cleanup.Enabled && c.TaskStore.TTL > 0 && c.TaskStore.TTL <= c.Cleanup.Retention {
		errs = append(errs, errors.New("task store ttl must exceed cleanup retention so cleanup can remove files first"))
	}
	switch strings.ToLower(c.Archive.Type) {
	case "", "none", "minio", "s3":
	default:
		errs = append(errs, fmt.Errorf("unsupported archive type: %s", c.Archive.Type))
	}

	return errors.Join(errs...)
}
