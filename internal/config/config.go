// Package config loads vsearch settings from defaults, an optional config
// file and VSEARCH_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kdimtricp/vsearch/internal/analysis"
	"github.com/kdimtricp/vsearch/internal/database"
)

const EnvPrefix = "VSEARCH"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Models   ModelsConfig   `mapstructure:"models"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Query    QueryConfig    `mapstructure:"query"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	MaxUploadSize   int64         `mapstructure:"maxuploadsize"`
	ShutdownTimeout time.Duration `mapstructure:"shutdowntimeout"`
}

type DatabaseConfig struct {
	Type       string `mapstructure:"type"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"name"`
	SQLitePath string `mapstructure:"sqlitepath"`
}

type StorageConfig struct {
	UploadDir string `mapstructure:"uploaddir"`
	FrameDir  string `mapstructure:"framedir"`
}

type ModelsConfig struct {
	DetectorURL         string  `mapstructure:"detectorurl"`
	DetectorConfidence  float64 `mapstructure:"detectorconfidence"`
	PrimaryAttributeURL string  `mapstructure:"primaryattributeurl"`
	OpenAIAPIKey        string  `mapstructure:"openaiapikey"`
	OpenAIBaseURL       string  `mapstructure:"openaibaseurl"`
	FallbackModel       string  `mapstructure:"fallbackmodel"`
	CaptionModel        string  `mapstructure:"captionmodel"`
}

type AnalysisConfig struct {
	MaxFrames             int           `mapstructure:"maxframes"`
	MinFrames             int           `mapstructure:"minframes"`
	FrameSize             int           `mapstructure:"framesize"`
	FrameWorkers          int           `mapstructure:"frameworkers"`
	PersonWorkers         int           `mapstructure:"personworkers"`
	Aggregation           string        `mapstructure:"aggregation"`
	FallbackCostPerCall   float64       `mapstructure:"fallbackcostpercall"`
	MaxFallbackCalls      int           `mapstructure:"maxfallbackcalls"`
	FallbackRatePerSecond float64       `mapstructure:"fallbackratepersecond"`
	CallTimeout           time.Duration `mapstructure:"calltimeout"`
	RetryAttempts         int           `mapstructure:"retryattempts"`
}

type QueryConfig struct {
	MaxResults int           `mapstructure:"maxresults"`
	CacheTTL   time.Duration `mapstructure:"cachettl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DB converts the section into the database package's form.
func (c DatabaseConfig) DB() database.Config {
	return database.Config{
		Type:       c.Type,
		Host:       c.Host,
		Port:       c.Port,
		User:       c.User,
		Password:   c.Password,
		Name:       c.Name,
		SQLitePath: c.SQLitePath,
	}
}

// New returns a viper instance with defaults and environment binding set up.
// Every key has a default so AutomaticEnv can see it during Unmarshal.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.maxuploadsize", 100<<20)
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "vsearch")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "vsearch")
	v.SetDefault("database.sqlitepath", "./vsearch.db")

	v.SetDefault("storage.uploaddir", "./uploads")
	v.SetDefault("storage.framedir", "./frames")

	v.SetDefault("models.detectorurl", "http://localhost:8001")
	v.SetDefault("models.detectorconfidence", 0.25)
	v.SetDefault("models.primaryattributeurl", "http://localhost:8002")
	v.SetDefault("models.openaiapikey", "")
	v.SetDefault("models.openaibaseurl", "")
	v.SetDefault("models.fallbackmodel", "gpt-4o-mini")
	v.SetDefault("models.captionmodel", "gpt-4o-mini")

	v.SetDefault("analysis.maxframes", 100)
	v.SetDefault("analysis.minframes", 5)
	v.SetDefault("analysis.framesize", 512)
	v.SetDefault("analysis.frameworkers", 4)
	v.SetDefault("analysis.personworkers", 4)
	v.SetDefault("analysis.aggregation", string(analysis.AggregateMin))
	v.SetDefault("analysis.fallbackcostpercall", analysis.DefaultFallbackCostPerCall)
	v.SetDefault("analysis.maxfallbackcalls", analysis.DefaultMaxFallbackCalls)
	v.SetDefault("analysis.fallbackratepersecond", 2.0)
	v.SetDefault("analysis.calltimeout", 30*time.Second)
	v.SetDefault("analysis.retryattempts", 3)

	v.SetDefault("query.maxresults", 20)
	v.SetDefault("query.cachettl", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configFile when given, otherwise config.yaml from the working
// directory if one exists, and decodes the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.type %q: want sqlite or postgres", c.Database.Type)
	}
	if _, err := analysis.ParseAggregation(c.Analysis.Aggregation); err != nil {
		return fmt.Errorf("invalid analysis.aggregation: %w", err)
	}
	if c.Analysis.MinFrames < 1 || c.Analysis.MaxFrames < c.Analysis.MinFrames {
		return fmt.Errorf("invalid frame bounds: min %d, max %d", c.Analysis.MinFrames, c.Analysis.MaxFrames)
	}
	if c.Server.MaxUploadSize <= 0 {
		return errors.New("server.maxuploadsize must be positive")
	}
	return nil
}
