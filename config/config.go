package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the triage service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Watsonx   WatsonxConfig   `mapstructure:"watsonx"`
	Triage    TriageConfig    `mapstructure:"triage"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen    string `mapstructure:"listen"`
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// WatsonxConfig contains credentials and endpoints for the remote agent platform
type WatsonxConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	TokenURL        string        `mapstructure:"token_url"`
	HostURL         string        `mapstructure:"host_url"`
	OrchestrationID string        `mapstructure:"orchestration_id"`
	AgentID         string        `mapstructure:"agent_id"`
	GenerationURL   string        `mapstructure:"generation_url"`
	ModelID         string        `mapstructure:"model_id"`
	ProjectID       string        `mapstructure:"project_id"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (w WatsonxConfig) Validate() error {
	if strings.TrimSpace(w.APIKey) == "" {
		return fmt.Errorf("watsonx.api_key required")
	}
	if strings.TrimSpace(w.HostURL) == "" {
		return fmt.Errorf("watsonx.host_url required")
	}
	if strings.TrimSpace(w.AgentID) == "" {
		return fmt.Errorf("watsonx.agent_id required")
	}
	return nil
}

// TriageConfig tunes the run polling loop and the grouping engine
type TriageConfig struct {
	MaxAttempts        int           `mapstructure:"max_attempts"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MaxRedirects       int           `mapstructure:"max_redirects"`
	CandidateLimit     int           `mapstructure:"candidate_limit"`
	PlaceholderPhrases []string      `mapstructure:"placeholder_phrases"`
}

func (t TriageConfig) Validate() error {
	if t.MaxAttempts <= 0 {
		return fmt.Errorf("triage.max_attempts must be > 0")
	}
	if t.PollInterval <= 0 {
		return fmt.Errorf("triage.poll_interval must be > 0")
	}
	return nil
}

// StorageConfig contains storage configurations
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN assembles a postgres connection string from the individual fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
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
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// KnowledgeConfig controls the flat-file knowledge corpus and its index
type KnowledgeConfig struct {
	Dir         string `mapstructure:"dir"`
	MaxResults  int    `mapstructure:"max_results"`
	ReindexCron string `mapstructure:"reindex_cron"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.listen", ":8000")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("watsonx.token_url", "https://iam.cloud.ibm.com/identity/token")
	viper.SetDefault("watsonx.generation_url", "https://us-south.ml.cloud.ibm.com/ml/v1/text/generation?version=2023-05-29")
	viper.SetDefault("watsonx.model_id", "ibm/granite-13b-chat-v2")
	viper.SetDefault("watsonx.timeout", 30*time.Second)
	viper.SetDefault("triage.max_attempts", 60)
	viper.SetDefault("triage.poll_interval", 2*time.Second)
	viper.SetDefault("triage.max_redirects", 3)
	viper.SetDefault("triage.candidate_limit", 20)
	viper.SetDefault("triage.placeholder_phrases", []string{
		"A new flow has started",
		"flow has started",
		"tool is processing",
	})
	viper.SetDefault("knowledge.dir", "knowledge")
	viper.SetDefault("knowledge.max_results", 5)
	viper.SetDefault("knowledge.reindex_cron", "@hourly")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("LOOPBACK")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Watsonx.Validate(); err != nil {
		panic(err)
	}
	if err := config.Triage.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	return &config
}
