package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/risk-cli/internal/classifier"
	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/source"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	Model    ModelConfig    `yaml:"model" mapstructure:"model"`
	Artifact ArtifactConfig `yaml:"artifact" mapstructure:"artifact"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the training run registry.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourceConfig configures the incident feed.
type SourceConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	Dataset        string  `yaml:"dataset" mapstructure:"dataset"`
	AppToken       string  `yaml:"app_token" mapstructure:"app_token"`
	PageSize       int     `yaml:"page_size" mapstructure:"page_size"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// Client returns a feed client for these settings.
func (c SourceConfig) Client() *source.Client {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:           time.Duration(c.TimeoutSecs) * time.Second,
		MaxRetries:        c.MaxRetries,
		RequestsPerSecond: c.RequestsPerSec,
	})
	return source.NewClient(f, source.Config{
		BaseURL:  c.BaseURL,
		Dataset:  c.Dataset,
		AppToken: c.AppToken,
		PageSize: c.PageSize,
	})
}

// ModelConfig holds the classifier kind and its hyperparameters. When
// ParamsFile is set, the file supplies the hyperparameters instead.
type ModelConfig struct {
	Kind              string `yaml:"kind" mapstructure:"kind"`
	ParamsFile        string `yaml:"params_file" mapstructure:"params_file"`
	classifier.Params `yaml:",inline" mapstructure:",squash"`
}

// Hyperparameters returns the effective, validated hyperparameters.
func (c ModelConfig) Hyperparameters() (classifier.Params, error) {
	p := c.Params
	if c.ParamsFile != "" {
		var err error
		if p, err = classifier.LoadParams(c.ParamsFile); err != nil {
			return classifier.Params{}, err
		}
	}
	if err := p.Validate(); err != nil {
		return classifier.Params{}, err
	}
	return p, nil
}

// ArtifactConfig locates the model artifact.
type ArtifactConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ExportConfig configures the PostGIS export.
type ExportConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so AutomaticEnv can see it on Unmarshal.
	params := classifier.DefaultParams()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "risk.db")
	v.SetDefault("source.base_url", source.DefaultBaseURL)
	v.SetDefault("source.dataset", source.DefaultDataset)
	v.SetDefault("source.app_token", "")
	v.SetDefault("source.page_size", source.DefaultPageSize)
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.requests_per_sec", 5.0)
	v.SetDefault("model.kind", classifier.KindGBDT)
	v.SetDefault("model.params_file", "")
	v.SetDefault("model.n_estimators", params.NEstimators)
	v.SetDefault("model.max_depth", params.MaxDepth)
	v.SetDefault("model.learning_rate", params.LearningRate)
	v.SetDefault("model.min_child_weight", params.MinChildWeight)
	v.SetDefault("model.lambda", params.Lambda)
	v.SetDefault("model.gamma", params.Gamma)
	v.SetDefault("model.subsample", params.Subsample)
	v.SetDefault("model.scale_pos_weight", params.ScalePosWeight)
	v.SetDefault("model.threshold", params.Threshold)
	v.SetDefault("model.seed", params.Seed)
	v.SetDefault("artifact.path", "models/risk.rska")
	v.SetDefault("export.database_url", "")
	v.SetDefault("export.table", "risk.location_features")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "train",
// "fetch", "export" or "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "train":
		if c.Artifact.Path == "" {
			errs = append(errs, "artifact.path is required")
		}
		if c.Model.Kind == "" {
			errs = append(errs, "model.kind is required")
		}
		if _, err := c.Model.Hyperparameters(); err != nil {
			errs = append(errs, err.Error())
		}
		errs = append(errs, c.validateStore()...)
	case "fetch":
		if c.Source.BaseURL == "" {
			errs = append(errs, "source.base_url is required")
		}
		if c.Source.Dataset == "" {
			errs = append(errs, "source.dataset is required")
		}
		if c.Source.PageSize <= 0 {
			errs = append(errs, "source.page_size must be > 0")
		}
		if c.Source.RequestsPerSec <= 0 {
			errs = append(errs, "source.requests_per_sec must be > 0")
		}
	case "export":
		if c.ExportURL() == "" {
			errs = append(errs, "export.database_url (or store.database_url with the postgres driver) is required")
		}
		if c.Export.Table == "" {
			errs = append(errs, "export.table is required")
		}
	case "runs":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
	if c.Store.DatabaseURL == "" {
		return []string{"store.database_url is required"}
	}
	return nil
}

// ExportURL returns the export database, falling back to the store when it
// is Postgres.
func (c *Config) ExportURL() string {
	if c.Export.DatabaseURL != "" {
		return c.Export.DatabaseURL
	}
	if c.Store.Driver == "postgres" {
		return c.Store.DatabaseURL
	}
	return ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
