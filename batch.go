package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TIANLI0/MatteKit/service"
	"github.com/TIANLI0/MatteKit/utils"
	"github.com/spf13/cobra"
)

func newBatchCommand() *cobra.Command {
	var (
		input   string
		output  string
		workers int
		matte   string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Remove backgrounds from every image in a folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer utils.Sync()

			// 命令行参数优先于配置文件
			if cmd.Flags().Changed("input") {
				cfg.Batch.InputDir = input
			}
			if cmd.Flags().Changed("output") {
				cfg.Batch.OutputDir = output
			}
			if cmd.Flags().Changed("workers") {
				cfg.Batch.Workers = workers
			}
			if cmd.Flags().Changed("matte") {
				cfg.Segmentation.Matte = matte
			}

			opts, err := service.OptionsFromConfig(&cfg.Segmentation)
			if err != nil {
				return err
			}
			pipeline, err := service.NewPipeline(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := service.NewBatchProcessor(pipeline, cfg.Batch.Workers).
				Run(ctx, cfg.Batch.InputDir, cfg.Batch.OutputDir)
			if err != nil {
				return err
			}

			for _, item := range report.Items {
				if item.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", item.Input, item.Err)
					continue
				}
				status := "ok"
				if !item.Converged {
					status = "ok (not converged)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s %s\n", item.Input, item.Output, status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d succeeded, %d failed in %s\n",
				report.Succeeded, report.Failed, report.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "input folder")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output folder")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of parallel workers")
	cmd.Flags().StringVar(&matte, "matte", "", "background fill: transparent, white, black or #rrggbb")
	return cmd
}
