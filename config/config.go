package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the context pipeline
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Assembler  AssemblerConfig  `mapstructure:"assembler"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	History    HistoryConfig    `mapstructure:"history"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	Timezone       string        `mapstructure:"timezone"` // IANA name used when rendering event times
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains chat-completion service settings
type LLMConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	Model        string        `mapstructure:"model"`
	Temperature  float64       `mapstructure:"temperature"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.Endpoint) == "" {
		return fmt.Errorf("llm.endpoint is required")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}

// ToolConfig represents a single capability provider configuration
type ToolConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Normalize strips trailing slashes and applies the default timeout.
func (t ToolConfig) Normalize() ToolConfig {
	t.APIURL = strings.TrimRight(strings.TrimSpace(t.APIURL), "/")
	if t.Timeout <= 0 {
		t.Timeout = 10 * time.Second
	}
	return t
}

// ToolsConfig contains per-provider configurations
type ToolsConfig struct {
	Calendar ToolConfig `mapstructure:"calendar"`
	Weather  ToolConfig `mapstructure:"weather"`
	Quotes   ToolConfig `mapstructure:"quotes"`
}

// RetrievalConfig contains semantic search sidecar settings
type RetrievalConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	TopK         int           `mapstructure:"top_k"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// Normalize applies defaults for unset retrieval values.
func (r RetrievalConfig) Normalize() RetrievalConfig {
	r.APIURL = strings.TrimRight(strings.TrimSpace(r.APIURL), "/")
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.QueryTimeout <= 0 {
		r.QueryTimeout = 6 * time.Second
	}
	if r.FetchTimeout <= 0 {
		r.FetchTimeout = 30 * time.Second
	}
	return r
}

// AssemblerConfig bounds the assembled context
type AssemblerConfig struct {
	MaxContextChars int `mapstructure:"max_context_chars"`
	PassageWidth    int `mapstructure:"passage_width"`
	LargeDocChars   int `mapstructure:"large_doc_chars"`
	WindowLines     int `mapstructure:"window_lines"`
	HugeDocChars    int `mapstructure:"huge_doc_chars"` // beyond this, only guidance is emitted
}

// Normalize applies defaults for unset assembler values.
func (a AssemblerConfig) Normalize() AssemblerConfig {
	if a.MaxContextChars <= 0 {
		a.MaxContextChars = 4000
	}
	if a.PassageWidth <= 0 {
		a.PassageWidth = 800
	}
	if a.LargeDocChars <= 0 {
		a.LargeDocChars = 300000
	}
	if a.WindowLines <= 0 {
		a.WindowLines = 1000
	}
	if a.HugeDocChars <= 0 {
		a.HugeDocChars = a.LargeDocChars
	}
	return a
}

func (a AssemblerConfig) Validate() error {
	if a.PassageWidth > a.MaxContextChars {
		return fmt.Errorf("assembler.passage_width cannot exceed assembler.max_context_chars")
	}
	return nil
}

// SummarizerConfig controls the map-reduce path for oversized documents
type SummarizerConfig struct {
	ChunkSize          int           `mapstructure:"chunk_size"`
	ChunkOverlap       int           `mapstructure:"chunk_overlap"`
	OverviewChars      int           `mapstructure:"overview_chars"`
	MaxChunksAnalyzed  int           `mapstructure:"max_chunks_analyzed"`
	RelevanceThreshold int           `mapstructure:"relevance_threshold"`
	TopSummaries       int           `mapstructure:"top_summaries"`
	MaxInFlight        int           `mapstructure:"max_in_flight"`
	SampleStrategy     string        `mapstructure:"sample_strategy"` // head or uniform
	SynthesisTimeout   time.Duration `mapstructure:"synthesis_timeout"`
}

// Normalize applies defaults for unset summarizer values.
func (s SummarizerConfig) Normalize() SummarizerConfig {
	if s.ChunkSize <= 0 {
		s.ChunkSize = 40000
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		s.ChunkOverlap = 3000
	}
	if s.OverviewChars <= 0 {
		s.OverviewChars = 10000
	}
	if s.MaxChunksAnalyzed <= 0 {
		s.MaxChunksAnalyzed = 10
	}
	if s.RelevanceThreshold <= 0 {
		s.RelevanceThreshold = 6
	}
	if s.TopSummaries <= 0 {
		s.TopSummaries = 5
	}
	if s.MaxInFlight <= 0 {
		s.MaxInFlight = 4
	}
	if s.SampleStrategy == "" {
		s.SampleStrategy = "head"
	}
	if s.SynthesisTimeout <= 0 {
		s.SynthesisTimeout = 600 * time.Second
	}
	return s
}

func (s SummarizerConfig) Validate() error {
	switch s.SampleStrategy {
	case "head", "uniform":
	default:
		return fmt.Errorf("summarizer.sample_strategy must be head or uniform")
	}
	if s.RelevanceThreshold > 10 {
		return fmt.Errorf("summarizer.relevance_threshold cannot exceed 10")
	}
	return nil
}

// HistoryConfig controls the bounded transcript cache
type HistoryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Redis       RedisConfig   `mapstructure:"redis"`
	MaxMessages int           `mapstructure:"max_messages"`
	TTL         time.Duration `mapstructure:"ttl"`
}

// Normalize applies defaults for unset history values.
func (h HistoryConfig) Normalize() HistoryConfig {
	if h.MaxMessages <= 0 {
		h.MaxMessages = 6
	}
	if h.TTL <= 0 {
		h.TTL = time.Hour
	}
	return h
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("history.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("history.redis.port required")
	}
	return nil
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	LogFile string `mapstructure:"log_file"`
}

// LoadConfig loads config from file
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.timezone", "America/Denver")
	viper.SetDefault("general.default_timeout", "10s")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.system_prompt", "You are a helpful assistant. Respond in markdown format.")
	viper.SetDefault("llm.timeout", "600s")
	viper.SetDefault("server.address", ":5050")
	viper.SetDefault("retrieval.top_k", 5)
	viper.SetDefault("assembler.max_context_chars", 4000)
	viper.SetDefault("assembler.passage_width", 800)
	viper.SetDefault("summarizer.sample_strategy", "head")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("INSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	config.Tools.Calendar = config.Tools.Calendar.Normalize()
	config.Tools.Weather = config.Tools.Weather.Normalize()
	config.Tools.Quotes = config.Tools.Quotes.Normalize()
	config.Retrieval = config.Retrieval.Normalize()
	config.Assembler = config.Assembler.Normalize()
	config.Summarizer = config.Summarizer.Normalize()
	config.History = config.History.Normalize()

	if err := config.LLM.Validate(); err != nil {
		return nil, err
	}
	if err := config.Assembler.Validate(); err != nil {
		return nil, err
	}
	if err := config.Summarizer.Validate(); err != nil {
		return nil, err
	}
	if config.History.Enabled {
		if err := config.History.Redis.Validate(); err != nil {
			return nil, err
		}
	}
	return &config, nil
}
