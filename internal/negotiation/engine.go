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

package negotiation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"hiring-platform/internal/audit"
	"hiring-platform/internal/engine"
	"hiring-platform/internal/flags"
	"hiring-platform/internal/model/llm"
	"hiring-platform/internal/outbound/calendar"
	"hiring-platform/internal/outbound/email"
	"hiring-platform/internal/storage"
	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/log"
)

// 会话历史中的角色
const (
	ActorCandidate = "candidate"
	ActorBot       = "bot"
)

// DefaultMaxRounds 协商轮次上限
const DefaultMaxRounds = 3

// ReasonBotDisabled 机器人开关关闭时的结果原因
const ReasonBotDisabled = "negotiation_bot_disabled"

// Store 协商引擎需要的存储面
type Store interface {
	GetInterview(ctx context.Context, id string) (*storage.Interview, error)
	GetNegotiationByInterview(ctx context.Context, interviewID string) (*storage.NegotiationSession, error)
	CreateNegotiation(ctx context.Context, sess *storage.NegotiationSession) error
	UpdateNegotiation(ctx context.Context, sess *storage.NegotiationSession) error
}

// FreeSlotSource 招聘官空闲时段来源
type FreeSlotSource interface {
	GetFreeSlots(ctx context.Context, recruiterID string, from, to time.Time) ([]calendar.Slot, error)
}

// Config 协商参数
type Config struct {
	MaxRounds       int
	SuggestionLimit int
	LLMTimeout      time.Duration
}

// Engine 有界轮次的时段协商。每条候选人消息至多推进一轮；
// 轮次触顶仍无交集则升级给招聘官。
type Engine struct {
	store  Store
	slots  FreeSlotSource
	llm    llm.Client
	flags  *flags.Resolver
	sink   *audit.Sink
	emails email.Queue
	logger *log.Logger
	cfg    Config
	now    func() time.Time
}

// NewEngine 创建协商引擎。llmClient 可为 nil，此时只走规则解析与固定文案。
func NewEngine(store Store, slots FreeSlotSource, llmClient llm.Client, resolver *flags.Resolver, sink *audit.Sink, emails email.Queue, logger *log.Logger, cfg Config) *Engine {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.SuggestionLimit <= 0 {
		cfg.SuggestionLimit = DefaultSuggestionLimit
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 10 * time.Second
	}
	if logger == nil {
		logger, _ = log.NewLogger(nil)
	}
	return &Engine{
		store:  store,
		slots:  slots,
		llm:    llmClient,
		flags:  resolver,
		sink:   sink,
		emails: emails,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Negotiate 处理一条候选人的可用性消息。面试必须处于 slot_pending。
// 日历取不到时返回错误且不落任何改动，当次调用视为未发生。
func (e *Engine) Negotiate(ctx context.Context, interviewID, message string) (engine.Outcome, error) {
	message = strings.TrimSpace(message)
	if interviewID == "" || message == "" {
		return engine.Outcome{}, perrors.Invalidf("interview_id 与 message 不能为空")
	}
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if iv.Status != storage.InterviewSlotPending {
		return engine.Outcome{}, perrors.InvalidStatef("面试 %s 处于 %s，不能协商时段", iv.ID, iv.Status)
	}
	if !e.flags.IsEnabled(ctx, flags.NegotiationBot) {
		return engine.Skipped(ReasonBotDisabled), nil
	}

	now := e.now()
	sess, isNew, err := e.loadSession(ctx, interviewID, now)
	if err != nil {
		return engine.Outcome{}, err
	}
	if sess.State != storage.NegotiationActive {
		return engine.Outcome{}, perrors.InvalidStatef("协商会话已 %s", sess.State)
	}

	// 上一轮已给建议、候选人却继续发文本：这条消息消耗一次轮次推进
	advanced := false
	if sess.AwaitingPick {
		if sess.Round < sess.MaxRounds {
			sess.Round++
		}
		advanced = true
		sess.AwaitingPick = false
	}
	sess.History = append(sess.History, storage.NegotiationTurn{
		Actor:     ActorCandidate,
		Message:   message,
		Timestamp: now,
	})

	av := e.parse(ctx, message, now)
	from := av.Start
	if from.Before(now) {
		from = now
	}
	free, err := e.slots.GetFreeSlots(ctx, iv.RecruiterEmail, from, av.End)
	if err != nil {
		return engine.Outcome{}, err
	}
	matched := MatchSlots(free, av, e.cfg.SuggestionLimit)

	switch {
	case len(matched) > 0:
		return e.suggest(ctx, iv, sess, isNew, matched, now)
	case sess.Round < sess.MaxRounds:
		if !advanced {
			sess.Round++
		}
		return e.reask(ctx, iv, sess, isNew, now)
	default:
		return e.escalate(ctx, iv, sess, isNew, now)
	}
}

// suggest 有交集：给出至多三个建议，留在 active 等候选人挑选
func (e *Engine) suggest(ctx context.Context, iv *storage.Interview, sess *storage.NegotiationSession, isNew bool, matched []calendar.Slot, now time.Time) (engine.Outcome, error) {
	reply := e.respond(ctx, "suggest_slots",
		map[string]any{"candidate": iv.CandidateName, "slots": formatSlots(matched)},
		"Here are some times that work on our side: "+formatSlots(matched)+". Reply with the one that suits you, or suggest other times.")

	sess.AwaitingPick = true
	sess.History = append(sess.History, storage.NegotiationTurn{Actor: ActorBot, Message: reply, Timestamp: now})
	if err := e.persist(ctx, sess, isNew); err != nil {
		return engine.Outcome{}, err
	}
	e.recordRound(ctx, iv, sess, len(matched))

	return engine.Done(map[string]any{
		"state":       string(sess.State),
		"round":       sess.Round,
		"reply":       reply,
		"suggestions": slotPayload(matched),
	}), nil
}

// reask 无交集但还有轮次：请候选人另给时间
func (e *Engine) reask(ctx context.Context, iv *storage.Interview, sess *storage.NegotiationSession, isNew bool, now time.Time) (engine.Outcome, error) {
	reply := e.respond(ctx, "ask_alternatives",
		map[string]any{"candidate": iv.CandidateName, "round": sess.Round},
		"None of our open times match your availability. Could you share a few more options over the next two weeks?")

	sess.History = append(sess.History, storage.NegotiationTurn{Actor: ActorBot, Message: reply, Timestamp: now})
	if err := e.persist(ctx, sess, isNew); err != nil {
		return engine.Outcome{}, err
	}
	e.recordRound(ctx, iv, sess, 0)

	return engine.Done(map[string]any{
		"state":       string(sess.State),
		"round":       sess.Round,
		"reply":       reply,
		"suggestions": []map[string]string{},
	}), nil
}

// escalate 轮次耗尽仍无交集：会话升级，通知招聘官
func (e *Engine) escalate(ctx context.Context, iv *storage.Interview, sess *storage.NegotiationSession, isNew bool, now time.Time) (engine.Outcome, error) {
	reply := "I couldn't find a time that works after several tries. The recruiter will reach out to you directly."
	sess.State = storage.NegotiationEscalated
	sess.History = append(sess.History, storage.NegotiationTurn{Actor: ActorBot, Message: reply, Timestamp: now})
	if err := e.persist(ctx, sess, isNew); err != nil {
		return engine.Outcome{}, err
	}

	if e.emails != nil {
		_, err := e.emails.Enqueue(ctx, iv.RecruiterEmail, email.TemplateEscalation, map[string]any{
			"interview_id":    iv.ID,
			"candidate_name":  iv.CandidateName,
			"candidate_email": iv.CandidateEmail,
			"rounds":          sess.Round,
		})
		if err != nil {
			e.logger.Warn("升级邮件入队失败", "interview_id", iv.ID, "error", err)
		}
	}
	e.sink.Record(ctx, audit.Event{
		JobID:      iv.JobID,
		ActionType: audit.ActionNegotiationEscalated,
		Details: map[string]any{
			"interview_id": iv.ID,
			"candidate_id": iv.ApplicationID,
			"round":        sess.Round,
		},
	})
	e.logger.Info("协商升级", "interview_id", iv.ID, "round", sess.Round)

	return engine.Outcome{
		OK:     false,
		Reason: engine.ReasonEscalated,
		Details: map[string]any{
			"state": string(sess.State),
			"round": sess.Round,
			"reply": reply,
		},
	}, nil
}

// Resolve 候选人完成挑选后关闭会话。没有会话不算错。
func (e *Engine) Resolve(ctx context.Context, interviewID string) error {
	sess, err := e.store.GetNegotiationByInterview(ctx, interviewID)
	if err != nil {
		if perrors.Is(err, perrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if sess.State != storage.NegotiationActive {
		return nil
	}
	sess.State = storage.NegotiationResolved
	sess.AwaitingPick = false
	return e.store.UpdateNegotiation(ctx, sess)
}

func (e *Engine) loadSession(ctx context.Context, interviewID string, now time.Time) (*storage.NegotiationSession, bool, error) {
	sess, err := e.store.GetNegotiationByInterview(ctx, interviewID)
	if err == nil {
		return sess, false, nil
	}
	if !perrors.Is(err, perrors.ErrNotFound) {
		return nil, false, err
	}
	return &storage.NegotiationSession{
		ID:          uuid.NewString(),
		InterviewID: interviewID,
		Round:       1,
		MaxRounds:   e.cfg.MaxRounds,
		State:       storage.NegotiationActive,
		CreatedAt:   now,
	}, true, nil
}

func (e *Engine) persist(ctx context.Context, sess *storage.NegotiationSession, isNew bool) error {
	if isNew {
		return e.store.CreateNegotiation(ctx, sess)
	}
	return e.store.UpdateNegotiation(ctx, sess)
}

// parse LLM 优先（开关通过且有客户端），失败静默回退规则
func (e *Engine) parse(ctx context.Context, message string, now time.Time) *Availability {
	if e.llm != nil && e.flags.IsEnabled(ctx, flags.GeminiParsing) {
		if av := llmExtract(ctx, e.llm, message, now, e.cfg.LLMTimeout); av != nil {
			return av
		}
	}
	return ParseRules(message, now)
}

// respond 回复文案：gemini_responses 通过时先试 LLM，空则用固定文案
func (e *Engine) respond(ctx context.Context, kind string, detail map[string]any, fallback string) string {
	if e.llm != nil && e.flags.IsEnabled(ctx, flags.GeminiResponses) {
		if out := llmRespond(ctx, e.llm, kind, detail, e.cfg.LLMTimeout); out != "" {
			return out
		}
	}
	return fallback
}

func (e *Engine) recordRound(ctx context.Context, iv *storage.Interview, sess *storage.NegotiationSession, suggested int) {
	e.sink.Record(ctx, audit.Event{
		JobID:      iv.JobID,
		ActionType: audit.ActionNegotiationRound,
		Details: map[string]any{
			"interview_id":     iv.ID,
			"candidate_id":     iv.ApplicationID,
			"round":            sess.Round,
			"suggestion_count": suggested,
		},
	})
	e.logger.Info("协商轮次", "interview_id", iv.ID, "round", sess.Round, "suggestions", suggested)
}

func formatSlots(slots []calendar.Slot) string {
	parts := lo.Map(slots, func(s calendar.Slot, _ int) string {
		return fmt.Sprintf("%s–%s", s.Start.Format("Mon Jan 2 15:04"), s.End.Format("15:04"))
	})
	return strings.Join(parts, "; ")
}

func slotPayload(slots []calendar.Slot) []map[string]string {
	return lo.Map(slots, func(s calendar.Slot, _ int) map[string]string {
		return map[string]string{
			"start": s.Start.Format(time.RFC3339),
			"end":   s.End.Format(time.RFC3339),
		}
	})
}
