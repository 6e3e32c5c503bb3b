package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/heartpredict/config"
	"github.com/YuminosukeSato/heartpredict/dataset"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
	"github.com/YuminosukeSato/heartpredict/pkg/log"
	"github.com/YuminosukeSato/heartpredict/registry"
	"github.com/YuminosukeSato/heartpredict/report"
	"github.com/YuminosukeSato/heartpredict/server"
	"github.com/YuminosukeSato/heartpredict/service"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "heartpredict",
		Short:         "Heart disease prediction service.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "configuration file (yaml, toml or json)")
	root.PersistentFlags().String("dataset", "", "path of the training CSV")
	root.PersistentFlags().String("label", "", "name of the label column")
	root.PersistentFlags().Uint64("seed", 0, "random seed for the split and the forest (unseeded when omitted)")
	root.PersistentFlags().Float64("test-size", 0, "holdout fraction")
	root.PersistentFlags().Int("n-jobs", 0, "concurrent tree fits (0 uses every CPU)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-file", "", "also write logs to this rotating file")
	root.PersistentFlags().Bool("debug", false, "use debug log level")

	root.AddCommand(newServeCommand(), newEvaluateCommand(), newOpenAPICommand())
	return root
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Train the classifiers and serve POST /predict.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := service.New(ctx, cfg, logger)
			if err != nil {
				logger.Error("Failed to train models", err)
				return err
			}
			logger.Info("Models ready", log.ModelNameKey, svc.ServingModel())

			srv := server.NewRestServer(svc, logger, cfg.Server.Addr())
			if err := srv.Serve(ctx, cfg.Server.ShutdownTimeout); err != nil {
				logger.Error("Http server stopped", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("http-host", "", "host of the HTTP server")
	cmd.Flags().Int("http-port", 0, "port of the HTTP server")
	cmd.Flags().String("model", "", "registry name of the model answering /predict")
	return cmd
}

func newEvaluateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Train the classifiers once and report their holdout accuracy.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := service.New(ctx, cfg, logger)
			if err != nil {
				logger.Error("Failed to train models", err)
				return err
			}

			var cv []service.CVScore
			if folds, _ := cmd.Flags().GetInt("cv"); folds > 0 {
				ds, err := dataset.LoadCSV(cfg.Dataset.Path, cfg.Dataset.Label)
				if err != nil {
					return err
				}
				if cv, err = service.CrossValidate(ctx, ds, registry.Default(), service.Params(cfg), folds); err != nil {
					logger.Error("Cross-validation failed", err)
					return err
				}
			}
			report.WriteTable(cmd.OutOrStdout(), svc.Models(), svc.ServingModel(), cv)

			if path, _ := cmd.Flags().GetString("plot"); path != "" {
				if err := report.PlotAccuracy(path, svc.Models()); err != nil {
					return err
				}
				logger.Info("Accuracy chart saved", "report.path", path)
			}
			return nil
		},
	}
	cmd.Flags().String("plot", "", "save an accuracy bar chart to this file")
	cmd.Flags().Int("cv", 0, "also run stratified k-fold cross-validation with this many folds")
	return cmd
}

func newOpenAPICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI (Swagger 2.0) description of the HTTP API.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := json.MarshalIndent(server.OpenAPI(version), "", "  ")
			if err != nil {
				return errors.Wrap(err, "marshal openapi")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

// setup loads the configuration and installs the logger as the estimator warning sink.
func setup(cmd *cobra.Command) (*config.Config, log.Logger, error) {
	v := viper.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, nil, err
	}
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}

	logger, err := log.SetupLogger(cfg.Log.Level, log.FileOptions{
		Path:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	if err != nil {
		return nil, nil, err
	}
	errors.SetWarningHandler(log.WarningHandler(logger))
	return cfg, logger, nil
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "heartpredict:", err)
		os.Exit(1)
	}
}
