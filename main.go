package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/config"
	"github.com/fachebot/ai-news-digest/internal/content"
	"github.com/fachebot/ai-news-digest/internal/engine"
	"github.com/fachebot/ai-news-digest/internal/logger"
	"github.com/fachebot/ai-news-digest/internal/scheduler"
	"github.com/fachebot/ai-news-digest/internal/svc"
	"github.com/spf13/cobra"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:          "ai-news-digest",
		Short:        "Token-budgeted daily and range news digests",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "file", "f", "etc/config.yaml", "the config file")
	root.AddCommand(serveCMD(), dailyCMD(), rangeCMD(), importCMD())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadServiceContext() *svc.ServiceContext {
	// 读取配置文件
	c, err := config.LoadFromFile(configFile)
	if err != nil {
		logger.Fatalf("读取配置文件失败, %s", err)
	}
	return svc.NewServiceContext(c)
}

func newScheduler(svcCtx *svc.ServiceContext) *scheduler.Scheduler {
	return scheduler.NewScheduler(
		svcCtx.Engine,
		svcCtx.ArtifactStore,
		svcCtx.Publisher,
		svcCtx.RecordModel,
		svcCtx.DailyRunModel,
		&svcCtx.Config.Summary,
	)
}

func serveCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cron scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCtx := loadServiceContext()
			defer svcCtx.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// 指标服务
			if listen := svcCtx.Config.Metrics.Listen; listen != "" {
				go func() {
					if err := svcCtx.Metrics.Serve(ctx, listen); err != nil {
						logger.Errorf("[Metrics] 指标服务退出: %v", err)
					}
				}()
			}

			// 创建并启动调度器
			schedulerInstance := newScheduler(svcCtx)
			if err := schedulerInstance.Start(); err != nil {
				return fmt.Errorf("[Scheduler] 启动调度器失败: %w", err)
			}

			// 等待程序退出
			ch := make(chan os.Signal, 2)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			<-ch

			// 优雅关闭
			logger.Infof("正在关闭服务...")
			cancel()
			schedulerInstance.Stop()
			logger.Infof("服务已停止")
			return nil
		},
	}
}

func dailyCMD() *cobra.Command {
	var (
		date   string
		force  bool
		budget int64
	)
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Generate the daily report for one UTC date",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCtx := loadServiceContext()
			defer svcCtx.Close()

			opts := engine.Options{Force: force, TokenBudget: budget}
			return newScheduler(svcCtx).Execute(cmd.Context(), engine.RunKindDaily, date, date, opts)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "report date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate even if the content is unchanged")
	cmd.Flags().Int64Var(&budget, "budget", 0, "token budget for this run (0 = config value)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func rangeCMD() *cobra.Command {
	var (
		start, end string
		strategy   string
		label      string
		force      bool
		budget     int64
	)
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Generate a weekly, monthly or custom range report",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCtx := loadServiceContext()
			defer svcCtx.Close()

			parsed, err := artifact.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			if strategy == "" {
				parsed = artifact.Strategy(svcCtx.Config.Summary.RangeStrategy)
			}
			opts := engine.Options{Strategy: parsed, Force: force, TokenBudget: budget, Label: label}
			return newScheduler(svcCtx).Execute(cmd.Context(), engine.RunKindRange, start, end, opts)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day of the range, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "daily_summaries, raw_content or hybrid (default from config)")
	cmd.Flags().StringVar(&label, "label", "", "report title")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate even if the inputs are unchanged")
	cmd.Flags().Int64Var(&budget, "budget", 0, "token budget for this run (0 = config value)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func importCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "import <records.json>",
		Short: "Import a JSON array of content records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("读取文件失败: %w", err)
			}
			var records []content.Record
			if err := json.Unmarshal(data, &records); err != nil {
				return fmt.Errorf("解析内容记录失败: %w", err)
			}

			svcCtx := loadServiceContext()
			defer svcCtx.Close()

			n, err := svcCtx.RecordModel.Create(cmd.Context(), records)
			if err != nil {
				return err
			}
			logger.Infof("已导入 %d 条内容", n)
			return nil
		},
	}
}
