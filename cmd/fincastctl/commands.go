package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"FinCast/internal/di"
	"FinCast/internal/domain/models"
	"FinCast/pkg/config"
	"FinCast/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	assetIDs    []string
	clearCache  bool
	pipeline    *di.Pipeline
	cleanupDeps func()

	rootCmd = &cobra.Command{
		Use:          "fincastctl",
		Short:        "Operator commands for the FinCast forecasting pipeline",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return err
			}
			pipeline, cleanupDeps, err = di.InitializePipeline(cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cleanupDeps != nil {
				cleanupDeps()
			}
		},
	}

	initAssetsCmd = &cobra.Command{
		Use:   "init-assets",
		Short: "Register the default assets and onboard the new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initAssets(cmd.Context(), pipeline, cmd.OutOrStdout())
		},
	}

	retrainCmd = &cobra.Command{
		Use:   "retrain",
		Short: "Retrain models, reference asset first",
		Long: `Retrain every asset, or only those given with --asset.
The reference asset always trains before the assets that depend on it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return retrain(cmd.Context(), pipeline, cmd.OutOrStdout(), assetIDs, clearCache)
		},
	}

	runPipelineCmd = &cobra.Command{
		Use:   "run-pipeline",
		Short: "Fetch history for every asset, then run a training sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), pipeline, cmd.OutOrStdout())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	retrainCmd.Flags().StringSliceVar(&assetIDs, "asset", nil, "external id of an asset to retrain (repeatable)")
	retrainCmd.Flags().BoolVar(&clearCache, "clear-cache", false, "drop cached forecasts of the retrained assets first")

	rootCmd.AddCommand(initAssetsCmd, retrainCmd, runPipelineCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd.SetContext(ctx)
	cobra.OnFinalize(stop)
}

func initAssets(ctx context.Context, p *di.Pipeline, w io.Writer) error {
	created, err := p.Onboarding.EnsureDefaults(ctx)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Fprintln(w, "all default assets already registered")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tPOINTS\tATTEMPTS\tTRAINING\tVERSION\tERROR")
	for _, a := range created {
		res, err := p.Onboarding.Onboard(ctx, a.ID)
		if res == nil {
			return err
		}
		if err != nil {
			p.Logger.Error("onboarding failed", logger.Asset(a.ExternalID), logger.Error(err))
		}
		training, version, msg := "-", "-", res.Fetch.Error
		if res.Train != nil {
			training = string(res.Train.Status)
			if res.Train.Version > 0 {
				version = fmt.Sprint(res.Train.Version)
			}
			if res.Train.Error != "" {
				msg = res.Train.Error
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			res.Asset, res.Fetch.Points, res.Fetch.Attempts, training, version, msg)
	}
	return tw.Flush()
}

func retrain(ctx context.Context, p *di.Pipeline, w io.Writer, ids []string, clearFirst bool) error {
	if clearFirst {
		if err := clearCached(ctx, p, ids); err != nil {
			return err
		}
		fmt.Fprintln(w, "forecast cache cleared")
	}
	report, err := p.Orchestrator.RetrainAssets(ctx, ids)
	if err != nil {
		return err
	}
	return writeSweep(w, report)
}

func clearCached(ctx context.Context, p *di.Pipeline, ids []string) error {
	if len(ids) == 0 {
		return p.Cache.Clear(ctx)
	}
	for _, id := range ids {
		if err := p.Cache.InvalidateAsset(ctx, id); err != nil {
			return fmt.Errorf("clear cache for %s: %w", id, err)
		}
	}
	return nil
}

func runPipeline(ctx context.Context, p *di.Pipeline, w io.Writer) error {
	fetched, err := p.Fetcher.FetchAll(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tPOINTS\tATTEMPTS\tERROR")
	for _, r := range fetched {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", r.Asset, r.Points, r.Attempts, r.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	report, err := p.Orchestrator.TrainAll(ctx)
	if err != nil {
		return err
	}
	return writeSweep(w, report)
}

func writeSweep(w io.Writer, report *models.SweepReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tSTATUS\tVERSION\tDURATION\tERROR")
	for _, r := range report.Results() {
		version := "-"
		if r.Version > 0 {
			version = fmt.Sprint(r.Version)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Asset, r.Status, version, r.Duration.Round(time.Millisecond), r.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d succeeded, %d skipped, %d failed\n",
		report.Count(models.RunSucceeded), report.Count(models.RunSkipped), report.Count(models.RunFailed))
	return nil
}
