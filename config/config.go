// Package config loads heartpredict settings from defaults, an optional config file,
// HEARTPREDICT_* environment variables and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// EnvPrefix is prepended to every environment variable, e.g. HEARTPREDICT_SERVER_PORT.
const EnvPrefix = "HEARTPREDICT"

// Config is the root configuration.
type Config struct {
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Training TrainingConfig `mapstructure:"training"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatasetConfig locates the training CSV.
type DatasetConfig struct {
	Path  string `mapstructure:"path" validate:"required"`
	Label string `mapstructure:"label" validate:"required"`
}

// TrainingConfig controls the holdout split and the classifiers' hyperparameters.
type TrainingConfig struct {
	TestSize float64 `mapstructure:"test_size" validate:"gt=0,lt=1"`
	// Seed makes the split and the forest reproducible. Unset means a fresh split per run.
	Seed        *uint64 `mapstructure:"seed"`
	NEstimators int     `mapstructure:"n_estimators" validate:"gte=1"`
	NNeighbors  int     `mapstructure:"n_neighbors" validate:"gte=1"`
	MaxIter     int     `mapstructure:"max_iter" validate:"gte=1"`
	Scaler      string  `mapstructure:"scaler" validate:"oneof=standard minmax none"`
	NJobs       int     `mapstructure:"n_jobs" validate:"gte=0"`
}

// ServerConfig configures the HTTP listener and the model that answers /predict.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	Model           string        `mapstructure:"model" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig configures pkg/log. File enables a rotating log file next to stdout.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" validate:"gte=0"`
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetDefaultConfig returns the configuration used when nothing is overridden.
func GetDefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Path:  "./heart.csv",
			Label: "target",
		},
		Training: TrainingConfig{
			TestSize:    0.2,
			NEstimators: 100,
			NNeighbors:  5,
			MaxIter:     1000,
			Scaler:      "standard",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5000,
			Model:           "Random Forest Classifier",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			MaxSize: 100,
		},
	}
}

func setDefault(v *viper.Viper) {
	d := GetDefaultConfig()
	// [dataset]
	v.SetDefault("dataset.path", d.Dataset.Path)
	v.SetDefault("dataset.label", d.Dataset.Label)
	// [training]
	v.SetDefault("training.test_size", d.Training.TestSize)
	v.SetDefault("training.n_estimators", d.Training.NEstimators)
	v.SetDefault("training.n_neighbors", d.Training.NNeighbors)
	v.SetDefault("training.max_iter", d.Training.MaxIter)
	v.SetDefault("training.scaler", d.Training.Scaler)
	v.SetDefault("training.n_jobs", d.Training.NJobs)
	// [server]
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.model", d.Server.Model)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	// [log]
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
}

// keys lists every setting; AutomaticEnv only resolves keys viper already knows,
// so keys without a default (training.seed) are bound explicitly.
var keys = []string{
	"dataset.path", "dataset.label",
	"training.test_size", "training.seed", "training.n_estimators", "training.n_neighbors",
	"training.max_iter", "training.scaler", "training.n_jobs",
	"server.host", "server.port", "server.model", "server.shutdown_timeout",
	"log.level", "log.file", "log.max_size", "log.max_backups", "log.max_age",
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return errors.Wrapf(err, "bind env %s", key)
		}
	}
	return nil
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"dataset":   "dataset.path",
	"label":     "dataset.label",
	"test-size": "training.test_size",
	"seed":      "training.seed",
	"n-jobs":    "training.n_jobs",
	"http-host": "server.host",
	"http-port": "server.port",
	"model":     "server.model",
	"log-level": "log.level",
	"log-file":  "log.file",
}

// BindFlags binds the flags the user actually set. Unset flags fall through to the
// environment, the config file and the defaults, so an unset --seed stays unseeded.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

// Load reads the configuration. configFile may be empty; its format follows the
// extension (yaml, toml, json).
func Load(v *viper.Viper, configFile string) (*Config, error) {
	setDefault(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and reports the first violation.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return errors.NewValidationError(fe.Namespace(),
			fmt.Sprintf("failed '%s' constraint %s", fe.Tag(), fe.Param()), fe.Value())
	}
	return errors.Wrap(err, "validate config")
}
