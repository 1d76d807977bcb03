package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fachebot/ai-news-digest/internal/artifact"
	"github.com/fachebot/ai-news-digest/internal/config"
	"github.com/fachebot/ai-news-digest/internal/engine"
	"github.com/fachebot/ai-news-digest/internal/logger"
	"github.com/fachebot/ai-news-digest/internal/model"
	"github.com/fachebot/ai-news-digest/internal/publish"
	"github.com/robfig/cron/v3"
)

const dateLayout = "2006-01-02"

// Generator 报告生成引擎
type Generator interface {
	GenerateDaily(ctx context.Context, dateStr string, opts engine.Options) *engine.Result
	GenerateForRange(ctx context.Context, startDate, endDate string, opts engine.Options) *engine.Result
}

// Saver 报告存储
type Saver interface {
	Save(ctx context.Context, stored *artifact.Stored) error
}

// RecordCleaner 清理过期的原始内容
type RecordCleaner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	cron          *cron.Cron
	generator     Generator
	saver         Saver
	publisher     *publish.Publisher
	records       RecordCleaner
	dailyRunModel *model.DailyRunModel
	config        *config.Summary
	retryInterval time.Duration
	now           func() time.Time
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.Mutex
}

// locUTC UTC 标准时间（UTC）
var locUTC = time.UTC

func NewScheduler(
	generator Generator,
	saver Saver,
	publisher *publish.Publisher,
	records RecordCleaner,
	dailyRunModel *model.DailyRunModel,
	cfg *config.Summary,
) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithLocation(locUTC)),
		generator:     generator,
		saver:         saver,
		publisher:     publisher,
		records:       records,
		dailyRunModel: dailyRunModel,
		config:        cfg,
		retryInterval: time.Duration(cfg.RetryInterval) * time.Second,
		now:           time.Now,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	// 注册每日报告任务
	if _, err := s.cron.AddFunc(s.config.Cron, s.runDaily); err != nil {
		return fmt.Errorf("注册每日报告任务失败: %w", err)
	}
	// 注册区间报告任务
	if s.config.RangeCron != "" {
		if _, err := s.cron.AddFunc(s.config.RangeCron, s.runRange); err != nil {
			return fmt.Errorf("注册区间报告任务失败: %w", err)
		}
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，每日报告任务: %s, 区间报告任务: %q", s.config.Cron, s.config.RangeCron)

	// 启动时恢复未完成的运行
	go s.recover()

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Infof("[Scheduler] 调度器已停止")
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// yesterday 前一个 UTC 自然日
func (s *Scheduler) yesterday() time.Time {
	now := s.now().In(locUTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, locUTC)
	return today.AddDate(0, 0, -1)
}

// rangeWindow 以昨天结尾、长度为 RangeDays 的区间
func (s *Scheduler) rangeWindow() (string, string) {
	end := s.yesterday()
	start := end.AddDate(0, 0, -(max(s.config.RangeDays, 1) - 1))
	return start.Format(dateLayout), end.Format(dateLayout)
}

// runDaily 生成前一天的每日报告（cron 触发）
func (s *Scheduler) runDaily() {
	date := s.yesterday().Format(dateLayout)
	if err := s.Execute(s.runContext(), engine.RunKindDaily, date, date, engine.Options{}); err != nil {
		logger.Errorf("[Scheduler] 每日报告执行失败: %v", err)
	}
}

// runRange 生成区间报告（cron 触发）
func (s *Scheduler) runRange() {
	start, end := s.rangeWindow()
	opts := engine.Options{Strategy: artifact.Strategy(s.config.RangeStrategy)}
	if err := s.Execute(s.runContext(), engine.RunKindRange, start, end, opts); err != nil {
		logger.Errorf("[Scheduler] 区间报告执行失败: %v", err)
	}
}

// recover 恢复未完成的运行，并补跑缺失的前一天每日报告
func (s *Scheduler) recover() {
	ctx := s.runContext()
	logger.Infof("[Scheduler] 开始恢复未完成的运行")

	// 1. 恢复未完成的运行
	runs, err := s.dailyRunModel.GetIncompleteRuns(ctx)
	if err != nil {
		logger.Errorf("[Scheduler] 查询未完成运行失败: %v", err)
	}
	for _, run := range runs {
		select {
		case <-ctx.Done():
			logger.Infof("[Scheduler] 恢复已取消")
			return
		default:
		}
		logger.Infof("[Scheduler] 恢复未完成运行: kind=%s, %s ~ %s", run.Kind, run.StartDate, run.EndDate)
		opts := engine.Options{}
		if run.Kind == engine.RunKindRange {
			opts.Strategy = artifact.Strategy(s.config.RangeStrategy)
		}
		if err := s.Execute(ctx, run.Kind, run.StartDate, run.EndDate, opts); err != nil {
			logger.Errorf("[Scheduler] 恢复运行失败: %v", err)
		}
	}

	// 2. 前一天没有运行记录视为漏跑
	date := s.yesterday().Format(dateLayout)
	_, err = s.dailyRunModel.GetByDateRange(ctx, engine.RunKindDaily, date, date)
	if errors.Is(err, model.ErrNotFound) {
		logger.Infof("[Scheduler] %s 无每日运行记录，补跑", date)
		if err := s.Execute(ctx, engine.RunKindDaily, date, date, engine.Options{}); err != nil {
			logger.Errorf("[Scheduler] 补跑每日报告失败: %v", err)
		}
	} else if err != nil {
		logger.Errorf("[Scheduler] 查询每日运行记录失败: %v", err)
	}

	logger.Infof("[Scheduler] 恢复完成")
}

// Execute 执行一次报告生成并记录运行状态；已完成的运行在未强制时跳过
func (s *Scheduler) Execute(ctx context.Context, kind, startDate, endDate string, opts engine.Options) error {
	run, err := s.dailyRunModel.GetOrCreate(ctx, kind, startDate, endDate, model.StatusInProgress)
	if err != nil {
		return fmt.Errorf("获取或创建运行记录失败: %w", err)
	}
	if run.Status == model.StatusCompleted && !opts.Force {
		logger.Infof("[Scheduler] %s %s ~ %s 已完成，跳过", kind, startDate, endDate)
		return nil
	}
	if run.Status != model.StatusInProgress {
		if err := s.dailyRunModel.MarkInProgress(ctx, run.ID); err != nil {
			return err
		}
	}

	if err := s.generate(ctx, kind, startDate, endDate, opts); err != nil {
		_ = s.dailyRunModel.MarkFailed(ctx, run.ID, err.Error())
		return err
	}
	return s.dailyRunModel.MarkCompleted(ctx, run.ID)
}

// generate 生成报告（带重试），随后保存、发布，并清理过期内容
func (s *Scheduler) generate(ctx context.Context, kind, startDate, endDate string, opts engine.Options) error {
	retryTimes := max(s.config.RetryTimes, 1)

	var result *engine.Result
	for attempt := 1; attempt <= retryTimes; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("任务已取消")
		default:
		}

		logger.Debugf("[Scheduler] %s %s ~ %s: 尝试生成报告 (第 %d/%d 次)", kind, startDate, endDate, attempt, retryTimes)
		if kind == engine.RunKindDaily {
			result = s.generator.GenerateDaily(ctx, startDate, opts)
		} else {
			result = s.generator.GenerateForRange(ctx, startDate, endDate, opts)
		}
		if result.Success {
			break
		}

		logger.Warnf("[Scheduler] %s %s ~ %s: 报告生成失败 (第 %d/%d 次): %v", kind, startDate, endDate, attempt, retryTimes, result.Error)
		var cfgErr *engine.ConfigurationError
		if errors.As(result.Error, &cfgErr) {
			break
		}
		if attempt < retryTimes {
			select {
			case <-ctx.Done():
				return fmt.Errorf("任务已取消")
			case <-time.After(s.retryInterval):
			}
		}
	}
	if !result.Success {
		return fmt.Errorf("报告生成失败，已尝试 %d 次: %w", retryTimes, result.Error)
	}

	if result.Artifact != nil {
		stored, err := result.Artifact.ToStored()
		if err != nil {
			return err
		}
		stored.UpdatedAt = s.now().UTC()
		if err := s.saver.Save(ctx, stored); err != nil {
			return fmt.Errorf("保存报告失败: %w", err)
		}
		s.publishReport(ctx, result.Artifact)
	}

	if kind == engine.RunKindDaily {
		s.cleanupRecords(ctx)
	}
	return nil
}

// publishReport 写出报告文件；报告已保存，发布失败不影响运行状态
func (s *Scheduler) publishReport(ctx context.Context, report *artifact.Report) {
	if !s.publisher.Enabled() {
		return
	}

	const publishRetryTimes = 2
	for attempt := 1; attempt <= publishRetryTimes; attempt++ {
		_, err := s.publisher.Publish(report)
		if err == nil {
			return
		}
		logger.Warnf("[Scheduler] 报告 %s 发布失败 (第 %d/%d 次): %v", report.Date, attempt, publishRetryTimes, err)
		if attempt < publishRetryTimes {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryInterval / 2):
			}
		}
	}
	logger.Errorf("[Scheduler] 报告 %s 发布失败，已重试 %d 次", report.Date, publishRetryTimes)
}

// cleanupRecords 删除超过保留期的原始内容
func (s *Scheduler) cleanupRecords(ctx context.Context) {
	if s.config.RetentionDays <= 0 || s.records == nil {
		return
	}

	cutoff := s.yesterday().AddDate(0, 0, -s.config.RetentionDays)
	logger.Infof("[Scheduler] 开始清理 %s 之前的内容", cutoff.Format(dateLayout))
	deleted, err := s.records.DeleteBefore(ctx, cutoff)
	if err != nil {
		logger.Errorf("[Scheduler] 清理内容失败: %v", err)
	} else {
		logger.Infof("[Scheduler] 已清理 %d 条内容", deleted)
	}
}
