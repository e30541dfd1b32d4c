// Package config loads InsightML settings from defaults, an optional YAML
// file, a .env file and INSIGHTML_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "INSIGHTML"

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "insightml.yaml"

// Config is the full configuration.
type Config struct {
	DatasetsDir string         `mapstructure:"datasets_dir" yaml:"datasets_dir"`
	ModelsDir   string         `mapstructure:"models_dir" yaml:"models_dir"`
	CatalogPath string         `mapstructure:"catalog_path" yaml:"catalog_path"`
	Server      ServerConfig   `mapstructure:"server" yaml:"server"`
	Log         LogConfig      `mapstructure:"log" yaml:"log"`
	Cleaning    CleaningConfig `mapstructure:"cleaning" yaml:"cleaning"`
	Train       TrainConfig    `mapstructure:"train" yaml:"train"`
	Explain     ExplainConfig  `mapstructure:"explain" yaml:"explain"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type CleaningConfig struct {
	SlashColumns       []string `mapstructure:"slash_columns" yaml:"slash_columns"`
	CategoricalColumns []string `mapstructure:"categorical_columns" yaml:"categorical_columns"`
	NumericThreshold   float64  `mapstructure:"numeric_threshold" yaml:"numeric_threshold"`
}

type TrainConfig struct {
	TestSize float64 `mapstructure:"test_size" yaml:"test_size"`
	Seed     int64   `mapstructure:"seed" yaml:"seed"`
	Model    string  `mapstructure:"model" yaml:"model"`
}

type ExplainConfig struct {
	MaxRows        int   `mapstructure:"max_rows" yaml:"max_rows"`
	BackgroundSize int   `mapstructure:"background_size" yaml:"background_size"`
	Permutations   int   `mapstructure:"permutations" yaml:"permutations"`
	Seed           int64 `mapstructure:"seed" yaml:"seed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("datasets_dir", "datasets")
	v.SetDefault("models_dir", "models")
	v.SetDefault("catalog_path", filepath.Join("models", "catalog.db"))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("cleaning.slash_columns", []string{"Age", "Fees"})
	v.SetDefault("cleaning.categorical_columns", []string{})
	v.SetDefault("cleaning.numeric_threshold", 0.8)
	v.SetDefault("train.test_size", 0.2)
	v.SetDefault("train.seed", 42)
	v.SetDefault("train.model", "random_forest")
	v.SetDefault("explain.max_rows", 100)
	v.SetDefault("explain.background_size", 25)
	v.SetDefault("explain.permutations", 4)
	v.SetDefault("explain.seed", 0)
}

// Default returns the configuration with no file or environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// defaults always decode
	_ = v.Unmarshal(&c)
	return &c
}

// Load reads configuration. Precedence: environment (including .env) >
// config file > defaults. An empty cfgFile means DefaultFile if it exists.
func Load(cfgFile string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", cfgFile)
		}
	} else if _, err := os.Stat(DefaultFile); err == nil {
		v.SetConfigFile(DefaultFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", DefaultFile)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// loadDotEnv applies path to the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "load %s", path)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DatasetsDir == "" {
		return errors.NewValidationError("datasets_dir", "must be set", c.DatasetsDir)
	}
	if c.ModelsDir == "" {
		return errors.NewValidationError("models_dir", "must be set", c.ModelsDir)
	}
	if c.Cleaning.NumericThreshold <= 0 || c.Cleaning.NumericThreshold > 1 {
		return errors.NewValidationError("cleaning.numeric_threshold", "must be in (0, 1]", c.Cleaning.NumericThreshold)
	}
	if c.Train.TestSize < 0 || c.Train.TestSize >= 1 {
		return errors.NewValidationError("train.test_size", "must be in [0, 1)", c.Train.TestSize)
	}
	if c.Explain.MaxRows < 0 || c.Explain.BackgroundSize < 0 || c.Explain.Permutations < 0 {
		return errors.NewValidationError("explain", "sizes must not be negative", c.Explain)
	}
	return nil
}

// Save writes c as YAML, creating the parent directory.
func Save(c *Config, path string) error {
	if path == "" {
		path = DefaultFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "mkdir config dir")
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal yaml")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrap(err, "write config")
	}
	return nil
}
