package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tanq16/megumi/internal/config"
	"github.com/tanq16/megumi/internal/lockfile"
	"github.com/tanq16/megumi/internal/pipeline"
	"github.com/tanq16/megumi/internal/remote"
	"github.com/tanq16/megumi/internal/scheduler"
	"github.com/tanq16/megumi/internal/subtitle"
	"github.com/tanq16/megumi/internal/tools"
	"github.com/tanq16/megumi/utils"
)

var (
	configDir  string
	workers    int
	reportPath string
	debug      bool
)

var MegumiVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "megumi",
	Short:   "Megumi fetches new episodes, sorts them into your library, and patches their subtitles",
	Version: MegumiVersion,
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		lock, err := lockfile.Acquire(lockfile.DefaultPath())
		if err != nil {
			if errors.Is(err, lockfile.ErrAlreadyRunning) {
				utils.PrintError("Another instance of megumi is already running")
			} else {
				utils.PrintError(fmt.Sprintf("Failed to acquire instance lock: %v", err))
			}
			os.Exit(1)
		}
		defer lock.Release()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(configDir)
		if err != nil {
			utils.PrintError(fmt.Sprintf("Configuration error: %v", err))
			os.Exit(1)
		}
		groups, err := config.LoadGroups(configDir)
		if err != nil {
			utils.PrintError(fmt.Sprintf("Configuration error: %v", err))
			os.Exit(1)
		}
		series, err := config.LoadSeries(configDir)
		if err != nil {
			utils.PrintError(fmt.Sprintf("Configuration error: %v", err))
			os.Exit(1)
		}

		run := &pipeline.Pipeline{
			Config:  cfg,
			Groups:  groups,
			Series:  series,
			Workers: workers,
		}
		if !cfg.MoveLocal {
			store, err := remote.Connect(ctx, cfg)
			if err != nil {
				utils.PrintError(fmt.Sprintf("Connection error: %v", err))
				os.Exit(1)
			}
			defer store.Close()
			run.Store = store
		}
		if patcher, err := subtitle.NewPipeline(tools.NewRunner()); err != nil {
			logger := utils.GetLogger("cmd")
			logger.Warn().Err(err).Msg("Subtitle tools unavailable, patching disabled")
		} else {
			run.Patcher = patcher
		}

		report, err := run.Run(ctx)
		if err != nil {
			utils.PrintError(fmt.Sprintf("Run failed: %v", err))
			os.Exit(1)
		}
		if reportPath != "" {
			if err := report.Write(reportPath); err != nil {
				utils.PrintWarning(fmt.Sprintf("Failed to write report: %v", err))
			}
		}
		utils.PrintTally(report.TallyRows())
		if report.Failed > 0 {
			utils.PrintError(fmt.Sprintf("%d file(s) failed, %d succeeded", report.Failed, report.Succeeded))
			os.Exit(1)
		}
		utils.PrintSuccess(fmt.Sprintf("All done: %d file(s) processed", report.Succeeded))
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "Directory holding config.megumi, groups.megumi and serieslist.megumi")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", scheduler.DefaultWorkers, "Number of files to transfer in parallel")
	rootCmd.Flags().StringVarP(&reportPath, "report", "r", "", "Write a YAML run report to this path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
