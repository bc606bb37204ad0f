package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"perftests-app/internal/chart"
	"perftests-app/internal/config"
	"perftests-app/internal/repository"
	"perftests-app/internal/router"
	"perftests-app/internal/sampledata"
	"perftests-app/internal/store"
	"perftests-app/internal/telemetry"
	"perftests-app/internal/util"
)

const serviceName = "perftests-api"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "perftests-api",
		Short: "Records build performance measurements and renders them as charts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file or directory containing config.yaml")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func LoggerInitialize(cfg config.LogConfig) (*zap.Logger, func(), error) {
	logger, flush, err := util.NewLogger(cfg.Level, cfg.Dir, cfg.File)
	if err != nil {
		fmt.Println("Failed to initialize logger:", err)
		return nil, nil, err
	}

	logger.Info("Service started")

	currentTime := time.Now().Format(time.RFC3339)

	fmt.Fprintf(os.Stderr, "\n%s: PerfTests service started \n", currentTime)

	return logger, flush, nil
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, flush, err := LoggerInitialize(cfg.Log)
	if err != nil {
		return err
	}
	defer flush()

	shutdownTracing, err := telemetry.InitTracing(cfg.TracingConfig(), serviceName, os.Stdout)
	if err != nil {
		logger.Error("Failed to initialize tracing", zap.Error(err))
		return err
	}
	defer shutdownTracing(context.Background())

	metrics := telemetry.NewMetrics()

	if dir := cfg.GatewayConfig().DataDir(); dir != "" {
		if err := util.CheckAndCreateLogFolder(dir); err != nil {
			logger.Error("Failed to create database folder", zap.String("dir", dir), zap.Error(err))
			return err
		}
	}

	gw := store.New(cfg.GatewayConfig(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := gw.Init(ctx); err != nil {
		logger.Error("Failed to initialize measurement store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return err
	}
	defer gw.Close()

	if err := gw.Bootstrap(ctx); err != nil {
		logger.Error("Failed to bootstrap measurement schema", zap.Error(err))
		return err
	}

	if err := metrics.RegisterDB(gw.DB()); err != nil {
		logger.Warn("Registering pool statistics", zap.Error(err))
	}

	generator := sampledata.NewGenerator(cfg.SampleConfig(), uint64(time.Now().UnixNano()), logger, metrics)

	return router.Run(router.Deps{
		Repo:      repository.NewMeasurements(gw, metrics),
		Renderer:  chart.NewRenderer(),
		Generator: generator,
		Store:     gw,
		Metrics:   metrics,
		Logger:    logger,
	}, cfg.Server)
}
