package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
	assert.Nil(t, cfg.Training.Seed)
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.Addr())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartpredict.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataset:
  path: /data/heart.csv
training:
  test_size: 0.25
  seed: 42
  n_estimators: 50
  scaler: minmax
server:
  port: 8080
  model: KNN
  shutdown_timeout: 3s
log:
  level: debug
`), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "/data/heart.csv", cfg.Dataset.Path)
	assert.Equal(t, "target", cfg.Dataset.Label)
	assert.Equal(t, 0.25, cfg.Training.TestSize)
	require.NotNil(t, cfg.Training.Seed)
	assert.Equal(t, uint64(42), *cfg.Training.Seed)
	assert.Equal(t, 50, cfg.Training.NEstimators)
	assert.Equal(t, 5, cfg.Training.NNeighbors)
	assert.Equal(t, "minmax", cfg.Training.Scaler)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "KNN", cfg.Server.Model)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

type environmentVariable struct {
	key   string
	value string
}

func TestLoad_Env(t *testing.T) {
	variables := []environmentVariable{
		{"HEARTPREDICT_DATASET_PATH", "/env/heart.csv"},
		{"HEARTPREDICT_DATASET_LABEL", "outcome"},
		{"HEARTPREDICT_TRAINING_TEST_SIZE", "0.3"},
		{"HEARTPREDICT_TRAINING_SEED", "7"},
		{"HEARTPREDICT_SERVER_HOST", "0.0.0.0"},
		{"HEARTPREDICT_SERVER_PORT", "9000"},
		{"HEARTPREDICT_LOG_LEVEL", "warn"},
		{"HEARTPREDICT_LOG_FILE", "/var/log/heartpredict.log"},
	}
	for _, variable := range variables {
		t.Setenv(variable.key, variable.value)
	}

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "/env/heart.csv", cfg.Dataset.Path)
	assert.Equal(t, "outcome", cfg.Dataset.Label)
	assert.Equal(t, 0.3, cfg.Training.TestSize)
	require.NotNil(t, cfg.Training.Seed)
	assert.Equal(t, uint64(7), *cfg.Training.Seed)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/var/log/heartpredict.log", cfg.Log.File)
	assert.Equal(t, 100, cfg.Log.MaxSize)
}

func TestBindFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("dataset", "./heart.csv", "")
	flags.Uint64("seed", 0, "")
	flags.Int("http-port", 5000, "")
	require.NoError(t, flags.Parse([]string{"--dataset", "/flag/heart.csv", "--http-port", "6000"}))

	v := viper.New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "/flag/heart.csv", cfg.Dataset.Path)
	assert.Equal(t, 6000, cfg.Server.Port)
	// 指定されていない --seed は既定値 0 を持ち込まない
	assert.Nil(t, cfg.Training.Seed)
}

func TestBindFlags_Log(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("log-file", "", "")
	require.NoError(t, flags.Parse([]string{"--log-file=/tmp/heartpredict.log", "--log-level=debug"}))

	v := viper.New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/heartpredict.log", cfg.Log.File)
	assert.Equal(t, 100, cfg.Log.MaxSize)
}

func TestBindFlags_Seed(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint64("seed", 0, "")
	require.NoError(t, flags.Parse([]string{"--seed", "0"}))

	v := viper.New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v, "")
	require.NoError(t, err)
	require.NotNil(t, cfg.Training.Seed)
	assert.Equal(t, uint64(0), *cfg.Training.Seed)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"test size zero", func(c *Config) { c.Training.TestSize = 0 }},
		{"test size one", func(c *Config) { c.Training.TestSize = 1 }},
		{"no estimators", func(c *Config) { c.Training.NEstimators = 0 }},
		{"no neighbours", func(c *Config) { c.Training.NNeighbors = 0 }},
		{"unknown scaler", func(c *Config) { c.Training.Scaler = "robust" }},
		{"empty path", func(c *Config) { c.Dataset.Path = "" }},
		{"empty label", func(c *Config) { c.Dataset.Label = "" }},
		{"port range", func(c *Config) { c.Server.Port = 70000 }},
		{"empty model", func(c *Config) { c.Server.Model = "" }},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
	assert.NoError(t, GetDefaultConfig().Validate())
}
