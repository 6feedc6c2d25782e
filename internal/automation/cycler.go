// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package automation 后台自动化循环。每个周期按固定顺序执行五项扫描：
// 确认时限过期、选时段时限过期、候补补位、面试提醒、风险刷新。
// 任一扫描或单个条目失败都不阻断后续，错误统一收集进循环总结日志。
package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/cronexpr"
	"github.com/hashicorp/go-multierror"

	"hiring-platform/internal/audit"
	"hiring-platform/internal/engine"
	"hiring-platform/internal/flags"
	"hiring-platform/internal/outbound/email"
	"hiring-platform/internal/outbound/risk"
	"hiring-platform/internal/storage"
	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/log"
	"hiring-platform/pkg/metrics"
)

// DefaultPeriod 循环周期
const DefaultPeriod = 5 * time.Minute

// DefaultErrorAlertThreshold 单轮错误数超过该值触发管理员告警
const DefaultErrorAlertThreshold = 3

// DefaultRiskTimeout 风险刷新的单请求超时
const DefaultRiskTimeout = 5 * time.Second

// DefaultRiskDelta 风险变动超过该幅度才记 risk_score_updated
const DefaultRiskDelta = 0.1

// DefaultLeaseTTL 循环互斥租约时长
const DefaultLeaseTTL = 2 * time.Minute

// 提醒窗口：距开场 23–25 小时
const (
	reminderWindowLow  = 23 * time.Hour
	reminderWindowHigh = 25 * time.Hour
)

const leaseName = "automation_cycle"

// Interviews 循环需要的面试引擎面
type Interviews interface {
	ExpireInvitation(ctx context.Context, interviewID string) (engine.Outcome, error)
	ExpireSlotSelection(ctx context.Context, interviewID string) (engine.Outcome, error)
}

// Shortlists 循环需要的入围引擎面
type Shortlists interface {
	BackfillBuffer(ctx context.Context, jobID string) (engine.Outcome, error)
}

// Observer 健康监控回调；*monitoring.Monitor 天然满足
type Observer interface {
	RecordAutomation(task string, ok bool)
	RecordCycle(d time.Duration)
}

// Store 循环需要的存储面
type Store interface {
	ListDueConfirmations(ctx context.Context, now time.Time) ([]*storage.Interview, error)
	ListDueSlotSelections(ctx context.Context, now time.Time) ([]*storage.Interview, error)
	ListActiveJobs(ctx context.Context) ([]*storage.Job, error)
	CountApplicationsByStatus(ctx context.Context, jobID string) (map[storage.ShortlistStatus]int, error)
	ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*storage.Interview, error)
	ListConfirmedUpcoming(ctx context.Context, now time.Time) ([]*storage.Interview, error)
	HasLog(ctx context.Context, actionType, interviewID string) (bool, error)
	UpdateInterviewRisk(ctx context.Context, id string, riskScore float64) error
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error
}

// Config 循环参数
type Config struct {
	// Period 周期；Schedule 非空时被忽略
	Period time.Duration
	// Schedule 可选 cron 表达式，如 "*/5 * * * *"
	Schedule string
	// ErrorAlertThreshold 单轮错误告警阈值
	ErrorAlertThreshold int
	// LeaseEnabled 多副本互斥；单实例部署关闭
	LeaseEnabled bool
	LeaseTTL     time.Duration
	RiskTimeout  time.Duration
	RiskDelta    float64
}

// Summary 一轮循环的执行结果
type Summary struct {
	Duration    time.Duration
	Expired     int
	SlotExpired int
	Backfilled  int
	Reminders   int
	RiskWrites  int
	Skipped     int
	Errors      int
}

// Cycler 后台循环器。RunCycle 可被定时器或手工触发，
// 进程内同一时刻至多一轮在跑。
type Cycler struct {
	store      Store
	interviews Interviews
	shortlists Shortlists
	risk       risk.Client
	emails     email.Queue
	flags      *flags.Resolver
	sink       *audit.Sink
	logger     *log.Logger
	cfg        Config
	schedule   *cronexpr.Expression
	observer   Observer
	owner      string
	running    atomic.Bool
	now        func() time.Time
}

// New 创建循环器。riskClient 为 nil 时跳过风险刷新。
func New(store Store, interviews Interviews, shortlists Shortlists, riskClient risk.Client, emails email.Queue, resolver *flags.Resolver, sink *audit.Sink, logger *log.Logger, cfg Config) (*Cycler, error) {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.ErrorAlertThreshold <= 0 {
		cfg.ErrorAlertThreshold = DefaultErrorAlertThreshold
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if cfg.RiskTimeout <= 0 {
		cfg.RiskTimeout = DefaultRiskTimeout
	}
	if cfg.RiskDelta <= 0 {
		cfg.RiskDelta = DefaultRiskDelta
	}
	if logger == nil {
		logger, _ = log.NewLogger(nil)
	}
	c := &Cycler{
		store:      store,
		interviews: interviews,
		shortlists: shortlists,
		risk:       riskClient,
		emails:     emails,
		flags:      resolver,
		sink:       sink,
		logger:     logger,
		cfg:        cfg,
		owner:      uuid.NewString(),
		now:        time.Now,
	}
	if cfg.Schedule != "" {
		expr, err := cronexpr.Parse(cfg.Schedule)
		if err != nil {
			return nil, perrors.Invalidf("cron 表达式 %q 无法解析: %v", cfg.Schedule, err)
		}
		c.schedule = expr
	}
	return c, nil
}

// WithObserver 挂接健康监控
func (c *Cycler) WithObserver(o Observer) *Cycler {
	c.observer = o
	return c
}

// Run 周期执行直到 ctx 取消。取消时不打断正在执行的一轮：
// 循环体持剥离取消信号的 context，收到关停后做完当前轮才返回。
func (c *Cycler) Run(ctx context.Context) {
	c.logger.Info("自动化循环启动", "period", c.cfg.Period.String(), "schedule", c.cfg.Schedule, "lease", c.cfg.LeaseEnabled)
	defer func() {
		if c.cfg.LeaseEnabled {
			_ = c.store.ReleaseLease(context.WithoutCancel(ctx), leaseName, c.owner)
		}
		c.logger.Info("自动化循环停止")
	}()

	for {
		timer := time.NewTimer(time.Until(c.nextWake(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.RunCycle(context.WithoutCancel(ctx))
		}
	}
}

func (c *Cycler) nextWake(now time.Time) time.Time {
	if c.schedule != nil {
		return c.schedule.Next(now)
	}
	return now.Add(c.cfg.Period)
}

// RunCycle 执行一轮。上一轮未结束时跳过并返回 nil；
// 租约开启且未持有时同样返回 nil。
func (c *Cycler) RunCycle(ctx context.Context) *Summary {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Warn("上一轮循环仍在执行，跳过本轮")
		return nil
	}
	defer c.running.Store(false)

	if c.cfg.LeaseEnabled {
		held, err := c.store.AcquireLease(ctx, leaseName, c.owner, c.cfg.LeaseTTL)
		if err != nil {
			// 租约存储抖动不应停摆自动化；条目级 CAS 能兜住重复执行
			c.logger.Warn("租约获取失败，本轮照常执行", "error", err)
		} else if !held {
			return nil
		}
	}

	start := c.now()
	sum := &Summary{}
	var errs *multierror.Error

	c.task("confirmation_sweep", &errs, func() error { return c.sweepConfirmations(ctx, sum) })
	c.task("slot_sweep", &errs, func() error { return c.sweepSlotSelections(ctx, sum) })
	c.task("buffer_sweep", &errs, func() error { return c.sweepBufferHealth(ctx, sum) })
	c.task("reminder_sweep", &errs, func() error { return c.sweepReminders(ctx, sum) })
	c.task("risk_refresh", &errs, func() error { return c.refreshRisk(ctx, sum) })

	sum.Duration = c.now().Sub(start)
	sum.Errors = len(errs.WrappedErrors())
	metrics.CycleDuration.Observe(sum.Duration.Seconds())
	if c.observer != nil {
		c.observer.RecordCycle(sum.Duration)
	}

	details := map[string]any{
		"duration_ms":  sum.Duration.Milliseconds(),
		"expired":      sum.Expired,
		"slot_expired": sum.SlotExpired,
		"backfilled":   sum.Backfilled,
		"reminders":    sum.Reminders,
		"risk_writes":  sum.RiskWrites,
		"skipped":      sum.Skipped,
		"errors":       sum.Errors,
	}
	c.sink.Record(ctx, audit.Event{
		ActionType: audit.ActionBackgroundCycle,
		Trigger:    storage.TriggerScheduled,
		Details:    details,
	})
	c.logger.Info("循环完成", "duration_ms", sum.Duration.Milliseconds(), "errors", sum.Errors)

	if sum.Errors > c.cfg.ErrorAlertThreshold {
		metrics.AdminAlertTotal.WithLabelValues("cycle_errors").Inc()
		c.sink.Record(ctx, audit.Event{
			ActionType: audit.ActionAdminAlert,
			Trigger:    storage.TriggerScheduled,
			Details: map[string]any{
				"reason": "cycle_errors",
				"errors": sum.Errors,
				"detail": errs.Error(),
			},
		})
		c.logger.Error("循环错误数超过阈值", "errors", sum.Errors, "threshold", c.cfg.ErrorAlertThreshold)
	}
	return sum
}

// task 单任务故障边界：错误与 panic 都只计入本轮收集，不外溢。
// 条目级错误逐条展开，告警阈值数的是条目而非任务。
func (c *Cycler) task(name string, errs **multierror.Error, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CycleTaskErrorTotal.WithLabelValues(name).Inc()
			*errs = multierror.Append(*errs, fmt.Errorf("%s panic: %v", name, r))
			c.logger.Error("循环任务 panic", "task", name, "panic", fmt.Sprint(r))
			if c.observer != nil {
				c.observer.RecordAutomation(name, false)
			}
		}
	}()
	err := fn()
	if c.observer != nil {
		c.observer.RecordAutomation(name, err == nil)
	}
	if err == nil {
		return
	}
	metrics.CycleTaskErrorTotal.WithLabelValues(name).Inc()
	c.logger.Warn("循环任务有错误", "task", name, "error", err)
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, item := range merr.Errors {
			*errs = multierror.Append(*errs, fmt.Errorf("%s: %w", name, item))
		}
		return
	}
	*errs = multierror.Append(*errs, fmt.Errorf("%s: %w", name, err))
}

func (c *Cycler) sweepConfirmations(ctx context.Context, sum *Summary) error {
	due, err := c.store.ListDueConfirmations(ctx, c.now())
	if err != nil {
		return err
	}
	var errs *multierror.Error
	for _, iv := range due {
		out, err := c.interviews.ExpireInvitation(ctx, iv.ID)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("interview %s: %w", iv.ID, err))
			continue
		}
		if out.OK {
			sum.Expired++
		} else {
			sum.Skipped++
		}
	}
	return errs.ErrorOrNil()
}

func (c *Cycler) sweepSlotSelections(ctx context.Context, sum *Summary) error {
	due, err := c.store.ListDueSlotSelections(ctx, c.now())
	if err != nil {
		return err
	}
	var errs *multierror.Error
	for _, iv := range due {
		out, err := c.interviews.ExpireSlotSelection(ctx, iv.ID)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("interview %s: %w", iv.ID, err))
			continue
		}
		if out.OK {
			sum.SlotExpired++
		} else {
			sum.Skipped++
		}
	}
	return errs.ErrorOrNil()
}

func (c *Cycler) sweepBufferHealth(ctx context.Context, sum *Summary) error {
	jobs, err := c.store.ListActiveJobs(ctx)
	if err != nil {
		return err
	}
	var errs *multierror.Error
	for _, job := range jobs {
		counts, err := c.store.CountApplicationsByStatus(ctx, job.ID)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}
		if counts[storage.ShortlistBuffer] >= job.BufferTarget {
			continue
		}
		out, err := c.shortlists.BackfillBuffer(ctx, job.ID)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}
		if added, ok := out.Details["added"].(int); ok {
			sum.Backfilled += added
		}
	}
	return errs.ErrorOrNil()
}

func (c *Cycler) sweepReminders(ctx context.Context, sum *Summary) error {
	if c.emails == nil {
		return nil
	}
	now := c.now()
	upcoming, err := c.store.ListConfirmedBetween(ctx, now.Add(reminderWindowLow), now.Add(reminderWindowHigh))
	if err != nil {
		return err
	}
	var errs *multierror.Error
	for _, iv := range upcoming {
		sent, err := c.store.HasLog(ctx, audit.ActionReminderSent, iv.ID)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("interview %s: %w", iv.ID, err))
			continue
		}
		if sent {
			continue
		}
		data := map[string]any{
			"interview_id":   iv.ID,
			"candidate_name": iv.CandidateName,
			"scheduled_time": iv.ScheduledTime.Format(time.RFC3339),
		}
		var itemErr error
		for _, to := range []string{iv.CandidateEmail, iv.RecruiterEmail} {
			if _, err := c.emails.Enqueue(ctx, to, email.TemplateReminder, data); err != nil {
				itemErr = err
			}
		}
		if itemErr != nil {
			errs = multierror.Append(errs, fmt.Errorf("interview %s: %w", iv.ID, itemErr))
			continue
		}
		c.sink.Record(ctx, audit.Event{
			JobID:      iv.JobID,
			ActionType: audit.ActionReminderSent,
			Trigger:    storage.TriggerScheduled,
			Details:    data,
		})
		sum.Reminders++
	}
	return errs.ErrorOrNil()
}

func (c *Cycler) refreshRisk(ctx context.Context, sum *Summary) error {
	if c.risk == nil || !c.flags.IsEnabled(ctx, flags.NoShowPrediction) {
		return nil
	}
	upcoming, err := c.store.ListConfirmedUpcoming(ctx, c.now())
	if err != nil {
		return err
	}
	var errs *multierror.Error
	for _, iv := range upcoming {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.RiskTimeout)
		assessment, err := c.risk.Analyze(rctx, iv.ID, iv.ApplicationID)
		cancel()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("interview %s: %w", iv.ID, err))
			continue
		}
		if math.Abs(assessment.NoShowRisk-iv.NoShowRisk) > c.cfg.RiskDelta {
			c.sink.Record(ctx, audit.Event{
				JobID:      iv.JobID,
				ActionType: audit.ActionRiskScoreUpdated,
				Trigger:    storage.TriggerScheduled,
				Details: map[string]any{
					"interview_id": iv.ID,
					"candidate_id": iv.ApplicationID,
					"old":          iv.NoShowRisk,
					"new":          assessment.NoShowRisk,
				},
			})
		}
		if err := c.store.UpdateInterviewRisk(ctx, iv.ID, assessment.NoShowRisk); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("interview %s: %w", iv.ID, err))
			continue
		}
		sum.RiskWrites++
	}
	return errs.ErrorOrNil()
}
