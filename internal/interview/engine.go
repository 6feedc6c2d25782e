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

// Package interview 面试生命周期引擎：邀约、接受/拒绝、选时段、确认、
// 取消与出席登记。所有状态迁移走存储层 CAS，前置状态不符返回 Conflict，
// 对外统一呈现为 InvalidState；令牌的一次性由状态前置隐式保证。
package interview

import (
	"context"
	"time"

	"github.com/google/uuid"

	"hiring-platform/internal/audit"
	"hiring-platform/internal/engine"
	"hiring-platform/internal/flags"
	"hiring-platform/internal/outbound/calendar"
	"hiring-platform/internal/outbound/email"
	"hiring-platform/internal/outbound/risk"
	"hiring-platform/internal/storage"
	"hiring-platform/internal/token"
	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/log"
	"hiring-platform/pkg/metrics"
)

// DefaultConfirmationTTL 邀约确认时限
const DefaultConfirmationTTL = 48 * time.Hour

// DefaultSlotTTL 接受后选定时段的时限
const DefaultSlotTTL = 24 * time.Hour

// DefaultInitialRisk 创建面试时的初始爽约风险
const DefaultInitialRisk = 0.5

// 出席登记结果
const (
	AttendanceCompleted = "completed"
	AttendanceNoShow    = "no_show"
)

// Store 面试引擎需要的存储面
type Store interface {
	GetJob(ctx context.Context, id string) (*storage.Job, error)
	GetApplication(ctx context.Context, id string) (*storage.Application, error)
	RejectApplication(ctx context.Context, id string) error
	CreateInterview(ctx context.Context, iv *storage.Interview) error
	GetInterview(ctx context.Context, id string) (*storage.Interview, error)
	GetInterviewByApplication(ctx context.Context, applicationID string) (*storage.Interview, error)
	TransitionInterview(ctx context.Context, id string, from, to storage.InterviewStatus, upd storage.InterviewUpdate) (*storage.Interview, error)
	UpdateInterviewRisk(ctx context.Context, id string, riskScore float64) error
}

// Tokens 候选人动作令牌的签发与校验
type Tokens interface {
	Generate(interviewID string, action token.Action) (string, error)
	Validate(interviewID, tokenStr string, expected token.Action) (*token.Claims, error)
}

// Promoter 空出名次后的候补晋升入口。入围引擎实现它；
// 反方向的"邀请晋升者"走注入回调，两侧各持一条单向窄接口。
type Promoter interface {
	PromoteFromBuffer(ctx context.Context, jobID string, vacatedRank int) (engine.Outcome, error)
}

// Config 排期时限
type Config struct {
	ConfirmationTTL time.Duration
	SlotTTL         time.Duration
}

// Engine 面试状态机引擎
type Engine struct {
	store    Store
	tokens   Tokens
	flags    *flags.Resolver
	sink     *audit.Sink
	emails   email.Queue
	cal      calendar.Client
	risk     risk.Client
	promoter Promoter
	logger   *log.Logger
	cfg      Config
	now      func() time.Time
}

// NewEngine 创建面试引擎。cal、riskClient、promoter 均可为 nil，
// 对应的旁路动作直接跳过。
func NewEngine(store Store, tokens Tokens, resolver *flags.Resolver, sink *audit.Sink, emails email.Queue, cal calendar.Client, riskClient risk.Client, promoter Promoter, logger *log.Logger, cfg Config) *Engine {
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = DefaultConfirmationTTL
	}
	if cfg.SlotTTL <= 0 {
		cfg.SlotTTL = DefaultSlotTTL
	}
	if logger == nil {
		logger, _ = log.NewLogger(nil)
	}
	return &Engine{
		store:    store,
		tokens:   tokens,
		flags:    resolver,
		sink:     sink,
		emails:   emails,
		cal:      cal,
		risk:     riskClient,
		promoter: promoter,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetPromoter 注入候补晋升实现。入围引擎与面试引擎互相引用，
// 装配时先建一侧再回填另一侧。
func (e *Engine) SetPromoter(p Promoter) { e.promoter = p }

// WithClock 替换时钟（测试用）
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.now = clock
	return e
}

// SendInvitation 向申请的候选人发出面试邀约。幂等：已有面试时原样返回，
// 不产生任何副作用。受 global_automation 与职位级开关门控。
func (e *Engine) SendInvitation(ctx context.Context, applicationID string) (engine.Outcome, error) {
	if applicationID == "" {
		return engine.Outcome{}, perrors.Invalidf("application_id 不能为空")
	}
	app, err := e.store.GetApplication(ctx, applicationID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if existing, err := e.store.GetInterviewByApplication(ctx, applicationID); err == nil {
		return engine.Done(map[string]any{"interview_id": existing.ID, "existing": true}), nil
	} else if !perrors.Is(err, perrors.ErrNotFound) {
		return engine.Outcome{}, err
	}

	job, err := e.store.GetJob(ctx, app.JobID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if !e.flags.IsEnabledForJob(ctx, flags.GlobalAutomation, job) {
		metrics.AutomationActionTotal.WithLabelValues("send_invitation", "disabled").Inc()
		return engine.Disabled(), nil
	}

	now := e.now()
	deadline := now.Add(e.cfg.ConfirmationTTL)
	iv := &storage.Interview{
		ID:                   uuid.NewString(),
		ApplicationID:        app.ID,
		JobID:                app.JobID,
		RecruiterEmail:       job.PostedBy,
		CandidateName:        app.CandidateName,
		CandidateEmail:       app.CandidateEmail,
		RankAtTime:           app.Rank,
		Status:               storage.InterviewInvitationSent,
		ConfirmationDeadline: &deadline,
		NoShowRisk:           DefaultInitialRisk,
	}

	acceptToken, err := e.tokens.Generate(iv.ID, token.ActionAccept)
	if err != nil {
		return engine.Outcome{}, perrors.Wrap(err, "generate accept token")
	}
	rejectToken, err := e.tokens.Generate(iv.ID, token.ActionReject)
	if err != nil {
		return engine.Outcome{}, perrors.Wrap(err, "generate reject token")
	}

	if err := e.store.CreateInterview(ctx, iv); err != nil {
		// 并发下另一路先建成：退回幂等语义
		if perrors.Is(err, perrors.ErrConflict) {
			if existing, gerr := e.store.GetInterviewByApplication(ctx, applicationID); gerr == nil {
				return engine.Done(map[string]any{"interview_id": existing.ID, "existing": true}), nil
			}
		}
		metrics.AutomationActionTotal.WithLabelValues("send_invitation", "failure").Inc()
		return engine.Outcome{}, err
	}

	if e.emails != nil {
		_, err := e.emails.Enqueue(ctx, iv.CandidateEmail, email.TemplateInvitation, map[string]any{
			"interview_id":          iv.ID,
			"candidate_name":        iv.CandidateName,
			"job_title":             job.Title,
			"accept_token":          acceptToken,
			"reject_token":          rejectToken,
			"confirmation_deadline": deadline.Format(time.RFC3339),
		})
		if err != nil {
			e.logger.Warn("邀约邮件入队失败", "interview_id", iv.ID, "error", err)
		}
	}

	e.sink.Record(ctx, audit.Event{
		JobID:      iv.JobID,
		ActionType: audit.ActionInvitationSent,
		Details: map[string]any{
			"interview_id": iv.ID,
			"candidate_id": iv.ApplicationID,
			"candidate":    iv.CandidateName,
			"rank":         iv.RankAtTime,
		},
	})
	metrics.AutomationActionTotal.WithLabelValues("send_invitation", "success").Inc()
	metrics.InterviewTransitionTotal.WithLabelValues("none", string(storage.InterviewInvitationSent)).Inc()
	e.logger.Info("面试邀约已发出", "interview_id", iv.ID, "candidate_id", iv.ApplicationID, "job_id", iv.JobID)

	return engine.Done(map[string]any{"interview_id": iv.ID}), nil
}

// HandleAccept 候选人持令牌接受邀约：invitation_sent → slot_pending，
// 选时段时限为当前时刻起 24h，确认时限随之清空。重放因状态前置失败而被拒。
func (e *Engine) HandleAccept(ctx context.Context, interviewID, tokenStr string) (*storage.Interview, error) {
	if _, err := e.tokens.Validate(interviewID, tokenStr, token.ActionAccept); err != nil {
		return nil, err
	}
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != storage.InterviewInvitationSent {
		return nil, perrors.InvalidStatef("面试 %s 处于 %s，邀约已处理", iv.ID, iv.Status)
	}
	now := e.now()
	if iv.ConfirmationDeadline != nil && now.After(*iv.ConfirmationDeadline) {
		return nil, perrors.InvalidStatef("面试 %s 确认时限已过", iv.ID)
	}

	slotDeadline := now.Add(e.cfg.SlotTTL)
	updated, err := e.store.TransitionInterview(ctx, iv.ID,
		storage.InterviewInvitationSent, storage.InterviewSlotPending,
		storage.InterviewUpdate{
			SlotSelectionDeadline:     &slotDeadline,
			ClearConfirmationDeadline: true,
		})
	if err != nil {
		if perrors.Is(err, perrors.ErrConflict) {
			return nil, perrors.InvalidStatef("面试 %s 邀约已处理", iv.ID)
		}
		return nil, err
	}

	if e.emails != nil {
		_, err := e.emails.Enqueue(ctx, updated.CandidateEmail, email.TemplateSlotSelection, map[string]any{
			"interview_id":            updated.ID,
			"candidate_name":          updated.CandidateName,
			"slot_selection_deadline": slotDeadline.Format(time.RFC3339),
		})
		if err != nil {
			e.logger.Warn("选时段邮件入队失败", "interview_id", updated.ID, "error", err)
		}
	}

	e.sink.Record(ctx, audit.Event{
		JobID:      updated.JobID,
		ActionType: audit.ActionInvitationAccepted,
		Trigger:    storage.TriggerManual,
		Actor:      "candidate",
		Details: map[string]any{
			"interview_id": updated.ID,
			"candidate_id": updated.ApplicationID,
		},
	})
	metrics.InterviewTransitionTotal.WithLabelValues(
		string(storage.InterviewInvitationSent), string(storage.InterviewSlotPending)).Inc()

	return updated, nil
}

// HandleReject 候选人持令牌拒绝邀约：面试取消、申请置为 rejected，
// 随后尝试候补晋升。晋升失败只记日志，不影响拒绝本身。
func (e *Engine) HandleReject(ctx context.Context, interviewID, tokenStr string) (*storage.Interview, error) {
	if _, err := e.tokens.Validate(interviewID, tokenStr, token.ActionReject); err != nil {
		return nil, err
	}
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != storage.InterviewInvitationSent {
		return nil, perrors.InvalidStatef("面试 %s 处于 %s，邀约已处理", iv.ID, iv.Status)
	}

	updated, err := e.store.TransitionInterview(ctx, iv.ID,
		storage.InterviewInvitationSent, storage.InterviewCancelled, storage.InterviewUpdate{})
	if err != nil {
		if perrors.Is(err, perrors.ErrConflict) {
			return nil, perrors.InvalidStatef("面试 %s 邀约已处理", iv.ID)
		}
		return nil, err
	}
	if err := e.store.RejectApplication(ctx, updated.ApplicationID); err != nil {
		return nil, perrors.Wrap(err, "reject application")
	}

	e.sink.Record(ctx, audit.Event{
		JobID:      updated.JobID,
		ActionType: audit.ActionInvitationRejected,
		Trigger:    storage.TriggerManual,
		Actor:      "candidate",
		Details: map[string]any{
			"interview_id": updated.ID,
			"candidate_id": updated.ApplicationID,
			"rank":         updated.RankAtTime,
		},
	})
	metrics.InterviewTransitionTotal.WithLabelValues(
		string(storage.InterviewInvitationSent), string(storage.InterviewCancelled)).Inc()

	e.promote(ctx, updated.JobID, updated.RankAtTime)
	return updated, nil
}

// SelectSlot 候选人选定面试时段。只写 scheduled_time/scheduled_end，
// 不推进状态，confirm 是显式的下一步。时段必须落在工作日营业时间内；
// 日历可用时校验与招聘官空闲时段的包含关系，日历故障放行。
func (e *Engine) SelectSlot(ctx context.Context, interviewID string, start, end time.Time) (*storage.Interview, error) {
	if start.IsZero() {
		return nil, perrors.Invalidf("slot start 不能为空")
	}
	if end.IsZero() {
		end = start.Add(time.Hour)
	}
	if !calendar.WithinBusinessHours(start, end) {
		return nil, perrors.Invalidf("时段 %s–%s 不在工作日营业时间内",
			start.Format(time.RFC3339), end.Format("15:04"))
	}
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != storage.InterviewSlotPending {
		return nil, perrors.InvalidStatef("面试 %s 处于 %s，不能选时段", iv.ID, iv.Status)
	}
	now := e.now()
	if iv.SlotSelectionDeadline != nil && now.After(*iv.SlotSelectionDeadline) {
		return nil, perrors.InvalidStatef("面试 %s 选时段时限已过", iv.ID)
	}
	if err := e.checkSlotFree(ctx, iv, start, end); err != nil {
		return nil, err
	}

	updated, err := e.store.TransitionInterview(ctx, iv.ID,
		storage.InterviewSlotPending, storage.InterviewSlotPending,
		storage.InterviewUpdate{ScheduledTime: &start, ScheduledEnd: &end})
	if err != nil {
		if perrors.Is(err, perrors.ErrConflict) {
			return nil, perrors.InvalidStatef("面试 %s 状态已变化", iv.ID)
		}
		return nil, err
	}

	e.sink.Record(ctx, audit.Event{
		JobID:      updated.JobID,
		ActionType: audit.ActionSlotSelected,
		Trigger:    storage.TriggerManual,
		Actor:      "candidate",
		Details: map[string]any{
			"interview_id":   updated.ID,
			"candidate_id":   updated.ApplicationID,
			"scheduled_time": start.Format(time.RFC3339),
		},
	})
	return updated, nil
}

// checkSlotFree 与招聘官空闲时段求包含。开关关闭或日历未接入时跳过；
// 拉取失败也放行，外部日历不挡候选人操作。
func (e *Engine) checkSlotFree(ctx context.Context, iv *storage.Interview, start, end time.Time) error {
	if e.cal == nil || !e.flags.IsEnabled(ctx, flags.CalendarIntegration) {
		return nil
	}
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	free, err := e.cal.GetFreeSlots(ctx, iv.RecruiterEmail, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		e.logger.Warn("空闲时段拉取失败，跳过冲突校验", "interview_id", iv.ID, "error", err)
		return nil
	}
	for _, s := range free {
		if !start.Before(s.Start) && !end.After(s.End) {
			return nil
		}
	}
	return perrors.Invalidf("时段 %s 与招聘官忙碌时间冲突", start.Format(time.RFC3339))
}

// Confirm 确认已选定的时段：slot_pending → confirmed。日历事件、双方
// 确认邮件和风险刷新各自独立执行，失败不回滚确认，只在日志与指标中留痕。
func (e *Engine) Confirm(ctx context.Context, interviewID string) (*storage.Interview, error) {
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != storage.InterviewSlotPending {
		return nil, perrors.InvalidStatef("面试 %s 处于 %s，不能确认", iv.ID, iv.Status)
	}
	if iv.ScheduledTime == nil {
		return nil, perrors.InvalidStatef("面试 %s 未选定时段", iv.ID)
	}

	updated, err := e.store.TransitionInterview(ctx, iv.ID,
		storage.InterviewSlotPending, storage.InterviewConfirmed, storage.InterviewUpdate{})
	if err != nil {
		if perrors.Is(err, perrors.ErrConflict) {
			return nil, perrors.InvalidStatef("面试 %s 状态已变化", iv.ID)
		}
		return nil, err
	}

	details := map[string]any{
		"interview_id":   updated.ID,
		"candidate_id":   updated.ApplicationID,
		"scheduled_time": updated.ScheduledTime.Format(time.RFC3339),
	}
	e.createCalendarEvent(ctx, updated, details)
	e.sendConfirmationEmails(ctx, updated, details)
	e.refreshRisk(ctx, updated, details)

	e.sink.Record(ctx, audit.Event{
		JobID:      updated.JobID,
		ActionType: audit.ActionSlotConfirmed,
		Trigger:    storage.TriggerManual,
		Actor:      "candidate",
		Details:    details,
	})
	metrics.InterviewTransitionTotal.WithLabelValues(
		string(storage.InterviewSlotPending), string(storage.InterviewConfirmed)).Inc()
	e.logger.Info("面试已确认", "interview_id", updated.ID,
		"scheduled_time", updated.ScheduledTime.Format(time.RFC3339))

	return updated, nil
}

func (e *Engine) createCalendarEvent(ctx context.Context, iv *storage.Interview, details map[string]any) {
	if e.cal == nil || !e.flags.IsEnabled(ctx, flags.CalendarIntegration) {
		return
	}
	end := iv.ScheduledTime.Add(time.Hour)
	if iv.ScheduledEnd != nil {
		end = *iv.ScheduledEnd
	}
	ref, err := e.cal.CreateEvent(ctx, calendar.EventRequest{
		RecruiterID:    iv.RecruiterEmail,
		CandidateID:    iv.ApplicationID,
		CandidateEmail: iv.CandidateEmail,
		Title:          "Interview: " + iv.CandidateName,
		Start:          *iv.ScheduledTime,
		End:            end,
	})
	if err != nil {
		details["calendar_event_failed"] = err.Error()
		e.logger.Warn("日历事件创建失败", "interview_id", iv.ID, "error", err)
		return
	}
	if _, err := e.store.TransitionInterview(ctx, iv.ID,
		storage.InterviewConfirmed, storage.InterviewConfirmed,
		storage.InterviewUpdate{CalendarEventRef: &ref}); err != nil {
		e.logger.Warn("日历事件引用落库失败", "interview_id", iv.ID, "error", err)
		return
	}
	iv.CalendarEventRef = ref
}

func (e *Engine) sendConfirmationEmails(ctx context.Context, iv *storage.Interview, details map[string]any) {
	if e.emails == nil {
		return
	}
	data := map[string]any{
		"interview_id":    iv.ID,
		"candidate_name":  iv.CandidateName,
		"recruiter_email": iv.RecruiterEmail,
		"scheduled_time":  iv.ScheduledTime.Format(time.RFC3339),
	}
	for _, to := range []string{iv.CandidateEmail, iv.RecruiterEmail} {
		if _, err := e.emails.Enqueue(ctx, to, email.TemplateConfirmation, data); err != nil {
			details["email_send_failed"] = err.Error()
			e.logger.Warn("确认邮件入队失败", "interview_id", iv.ID, "to", to, "error", err)
		}
	}
}

func (e *Engine) refreshRisk(ctx context.Context, iv *storage.Interview, details map[string]any) {
	if e.risk == nil || !e.flags.IsEnabled(ctx, flags.NoShowPrediction) {
		return
	}
	assessment, err := e.risk.Analyze(ctx, iv.ID, iv.ApplicationID)
	if err != nil {
		details["risk_refresh_failed"] = err.Error()
		e.logger.Warn("风险评估失败", "interview_id", iv.ID, "error", err)
		return
	}
	if err := e.store.UpdateInterviewRisk(ctx, iv.ID, assessment.NoShowRisk); err != nil {
		details["risk_refresh_failed"] = err.Error()
		e.logger.Warn("风险分落库失败", "interview_id", iv.ID, "error", err)
		return
	}
	iv.NoShowRisk = assessment.NoShowRisk
	details["no_show_risk"] = assessment.NoShowRisk
}

// Cancel 招聘方取消面试。任何非终态均可取消；申请随之置为 rejected
// 腾出名次，再尝试候补晋升。
func (e *Engine) Cancel(ctx context.Context, interviewID, reason string) (*storage.Interview, error) {
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status.IsTerminal() {
		return nil, perrors.InvalidStatef("面试 %s 已处于终态 %s", iv.ID, iv.Status)
	}

	updated, err := e.store.TransitionInterview(ctx, iv.ID,
		iv.Status, storage.InterviewCancelled, storage.InterviewUpdate{})
	if err != nil {
		if perrors.Is(err, perrors.ErrConflict) {
			return nil, perrors.InvalidStatef("面试 %s 状态已变化", iv.ID)
		}
		return nil, err
	}
	if err := e.store.RejectApplication(ctx, updated.ApplicationID); err != nil {
		return nil, perrors.Wrap(err, "reject application")
	}

	e.sink.Record(ctx, audit.Event{
		JobID:      updated.JobID,
		ActionType: audit.ActionInterviewCancelled,
		Trigger:    storage.TriggerManual,
		Actor:      "recruiter",
		Details: map[string]any{
			"interview_id": updated.ID,
			"candidate_id": updated.ApplicationID,
			"reason":       reason,
		},
	})
	metrics.InterviewTransitionTotal.WithLabelValues(
		string(iv.Status), string(storage.InterviewCancelled)).Inc()

	e.promote(ctx, updated.JobID, updated.RankAtTime)
	return updated, nil
}

// MarkAttendance 招聘方登记出席结果：confirmed → completed | no_show。
// no_show 无自动信号来源，只能人工登记。
func (e *Engine) MarkAttendance(ctx context.Context, interviewID, outcome string) (*storage.Interview, error) {
	var target storage.InterviewStatus
	var action string
	switch outcome {
	case AttendanceCompleted:
		target, action = storage.InterviewCompleted, audit.ActionInterviewCompleted
	case AttendanceNoShow:
		target, action = storage.InterviewNoShow, audit.ActionInterviewNoShow
	default:
		return nil, perrors.Invalidf("outcome %q 必须是 completed 或 no_show", outcome)
	}
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != storage.InterviewConfirmed {
		return nil, perrors.InvalidStatef("面试 %s 处于 %s，不能登记出席", iv.ID, iv.Status)
	}

	updated, err := e.store.TransitionInterview(ctx, iv.ID,
		storage.InterviewConfirmed, target, storage.InterviewUpdate{})
	if err != nil {
		if perrors.Is(err, perrors.ErrConflict) {
			return nil, perrors.InvalidStatef("面试 %s 状态已变化", iv.ID)
		}
		return nil, err
	}

	e.sink.Record(ctx, audit.Event{
		JobID:      updated.JobID,
		ActionType: action,
		Trigger:    storage.TriggerManual,
		Actor:      "recruiter",
		Details: map[string]any{
			"interview_id": updated.ID,
			"candidate_id": updated.ApplicationID,
			"outcome":      outcome,
		},
	})
	metrics.InterviewTransitionTotal.WithLabelValues(
		string(storage.InterviewConfirmed), string(target)).Inc()

	return updated, nil
}

// ExpireInvitation 确认时限已过的邀约过期：invitation_sent → expired，
// 申请置为 rejected 并尝试候补晋升。后台扫描按职位开关门控（S6 语义
// 由调用方透传的开关解析器承担）。
func (e *Engine) ExpireInvitation(ctx context.Context, interviewID string) (engine.Outcome, error) {
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if iv.Status != storage.InterviewInvitationSent {
		return engine.Outcome{}, perrors.InvalidStatef("面试 %s 处于 %s，无确认时限可过期", iv.ID, iv.Status)
	}
	now := e.now()
	if iv.ConfirmationDeadline == nil || now.Before(*iv.ConfirmationDeadline) {
		return engine.Outcome{}, perrors.Invalidf("面试 %s 确认时限未到", iv.ID)
	}
	job, err := e.store.GetJob(ctx, iv.JobID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if !e.flags.IsEnabledForJob(ctx, flags.GlobalAutomation, job) {
		return engine.Disabled(), nil
	}

	return e.expire(ctx, iv, storage.InterviewInvitationSent, audit.ActionInvitationExpired)
}

// ExpireSlotSelection 选时段时限已过的面试过期，处理与邀约过期对称
func (e *Engine) ExpireSlotSelection(ctx context.Context, interviewID string) (engine.Outcome, error) {
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if iv.Status != storage.InterviewSlotPending {
		return engine.Outcome{}, perrors.InvalidStatef("面试 %s 处于 %s，无选时段时限可过期", iv.ID, iv.Status)
	}
	now := e.now()
	if iv.SlotSelectionDeadline == nil || now.Before(*iv.SlotSelectionDeadline) {
		return engine.Outcome{}, perrors.Invalidf("面试 %s 选时段时限未到", iv.ID)
	}
	job, err := e.store.GetJob(ctx, iv.JobID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if !e.flags.IsEnabledForJob(ctx, flags.GlobalAutomation, job) {
		return engine.Disabled(), nil
	}

	return e.expire(ctx, iv, storage.InterviewSlotPending, audit.ActionSlotSelectionExpired)
}

func (e *Engine) expire(ctx context.Context, iv *storage.Interview, from storage.InterviewStatus, action string) (engine.Outcome, error) {
	updated, err := e.store.TransitionInterview(ctx, iv.ID, from, storage.InterviewExpired, storage.InterviewUpdate{})
	if err != nil {
		// 扫描与候选人操作赛跑，输掉就算处理过了
		if perrors.Is(err, perrors.ErrConflict) {
			return engine.Skipped("already_transitioned"), nil
		}
		return engine.Outcome{}, err
	}
	if err := e.store.RejectApplication(ctx, updated.ApplicationID); err != nil {
		return engine.Outcome{}, perrors.Wrap(err, "reject application")
	}

	e.sink.Record(ctx, audit.Event{
		JobID:      updated.JobID,
		ActionType: action,
		Trigger:    storage.TriggerScheduled,
		Details: map[string]any{
			"interview_id": updated.ID,
			"candidate_id": updated.ApplicationID,
			"rank":         updated.RankAtTime,
		},
	})
	metrics.InterviewTransitionTotal.WithLabelValues(string(from), string(storage.InterviewExpired)).Inc()
	e.logger.Info("面试已过期", "interview_id", updated.ID, "from", string(from))

	e.promote(ctx, updated.JobID, updated.RankAtTime)
	return engine.Done(map[string]any{"interview_id": updated.ID}), nil
}

// promote 名次空出后的候补晋升，失败不回传
func (e *Engine) promote(ctx context.Context, jobID string, rank int) {
	if e.promoter == nil || rank < 1 {
		return
	}
	if _, err := e.promoter.PromoteFromBuffer(ctx, jobID, rank); err != nil {
		e.logger.Warn("候补晋升失败", "job_id", jobID, "rank", rank, "error", err)
	}
}
