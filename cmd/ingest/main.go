package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"perftests-app/internal/config"
	"perftests-app/internal/repository"
	"perftests-app/internal/sampledata"
	"perftests-app/internal/store"
	"perftests-app/internal/util"
)

func main() {
	var (
		configPath string
		count      int
		name       string
		branch     string
		seed       uint64
	)

	rootCmd := &cobra.Command{
		Use:   "perftests-ingest",
		Short: "Loads synthetic measurements into the measurement store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			sample := cfg.SampleConfig()
			if cmd.Flags().Changed("count") {
				sample.Count = count
			}
			if cmd.Flags().Changed("name") {
				sample.Name = name
			}
			if cmd.Flags().Changed("branch") {
				sample.Branch = branch
			}
			if !cmd.Flags().Changed("seed") {
				seed = uint64(time.Now().UnixNano())
			}

			return ingest(cmd.Context(), cfg, sample, seed)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "config file or directory containing config.yaml")
	flags.IntVar(&count, "count", 30, "number of builds to generate")
	flags.StringVar(&name, "name", "", "test name of the generated measurements")
	flags.StringVar(&branch, "branch", "", "branch of the generated measurements")
	flags.Uint64Var(&seed, "seed", 0, "random seed; defaults to the current time")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func ingest(ctx context.Context, cfg *config.Config, sample sampledata.Config, seed uint64) error {
	logger, flush, err := util.NewLogger(cfg.Log.Level, "", "")
	if err != nil {
		return err
	}
	defer flush()

	if dir := cfg.GatewayConfig().DataDir(); dir != "" {
		if err := util.CheckAndCreateLogFolder(dir); err != nil {
			logger.Error("Failed to create database folder", zap.String("dir", dir), zap.Error(err))
			return err
		}
	}

	gw := store.New(cfg.GatewayConfig(), logger)
	if err := gw.Init(ctx); err != nil {
		logger.Error("Failed to initialize measurement store for ingestion", zap.Error(err))
		return err
	}
	defer gw.Close()

	if err := gw.Bootstrap(ctx); err != nil {
		logger.Error("Failed to bootstrap measurement schema", zap.Error(err))
		return err
	}

	logger.Info("Ingesting test measurements",
		zap.String("name", sample.Name),
		zap.String("branch", sample.Branch),
		zap.Int("count", sample.Count))

	res := sampledata.NewGenerator(sample, seed, logger, nil).Load(ctx, repository.NewMeasurements(gw, nil))
	if err := res.Err(); err != nil {
		logger.Error("Data ingestion incomplete", zap.String("result", res.String()), zap.Error(err))
		return err
	}

	logger.Info("Data ingestion complete.", zap.String("result", res.String()))
	return nil
}
