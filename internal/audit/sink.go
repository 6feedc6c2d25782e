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

// Package audit 自动化日志落地：每个变更动作一条追加记录。写入尽力而为，
// 存储故障时降级为 stderr 结构化行，绝不让日志失败打断主流程。
package audit

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"hiring-platform/internal/storage"
	"hiring-platform/pkg/log"
)

// 动作类型。查询与提醒去重按字面值匹配，改动即破坏历史数据。
const (
	ActionInvitationSent       = "invitation_sent"
	ActionInvitationAccepted   = "invitation_accepted"
	ActionInvitationRejected   = "invitation_rejected"
	ActionInvitationExpired    = "invitation_expired"
	ActionSlotSelected         = "slot_selected"
	ActionSlotConfirmed        = "slot_confirmed"
	ActionSlotSelectionExpired = "slot_selection_expired"
	ActionInterviewCancelled   = "interview_cancelled"
	ActionInterviewCompleted   = "interview_completed"
	ActionInterviewNoShow      = "interview_no_show"
	ActionReminderSent         = "interview_reminder_sent"
	ActionRiskScoreUpdated     = "risk_score_updated"
	ActionAutoShortlist        = "auto_shortlist"
	ActionBufferPromotion      = "buffer_promotion"
	ActionBufferBackfill       = "buffer_backfill"
	ActionNegotiationRound     = "negotiation_round"
	ActionNegotiationEscalated = "negotiation_escalated"
	ActionBackgroundCycle      = "background_cycle"
	ActionAdminAlert           = "admin_alert"
	ActionApplicationScored    = "application_scored"
	ActionScoringFailed        = "scoring_failed"
)

// Event 一条待落地的自动化日志
type Event struct {
	JobID      string
	ActionType string
	Trigger    storage.TriggerSource
	Actor      string
	Details    map[string]any
}

// Sink 日志落地器
type Sink struct {
	store  storage.LogStore
	logger *log.Logger
	clock  func() time.Time
}

// NewSink 创建日志落地器
func NewSink(store storage.LogStore, logger *log.Logger) *Sink {
	return &Sink{store: store, logger: logger, clock: time.Now}
}

// Record 追加一条日志。失败时写 stderr 结构化行并返回，不向调用方报错。
func (s *Sink) Record(ctx context.Context, ev Event) {
	if ev.Trigger == "" {
		ev.Trigger = storage.TriggerAuto
	}
	entry := &storage.AutomationLog{
		JobID:         ev.JobID,
		ActionType:    ev.ActionType,
		TriggerSource: ev.Trigger,
		Actor:         ev.Actor,
		Details:       ev.Details,
		CreatedAt:     s.clock(),
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.fallback(entry, err)
	}
}

// fallback 存储不可用时的兜底：stderr 一行 JSON，保留事件内容
func (s *Sink) fallback(entry *storage.AutomationLog, cause error) {
	if s.logger != nil {
		s.logger.Error("自动化日志写入失败，降级 stderr", "action", entry.ActionType, "error", cause)
	}
	line := map[string]any{
		"fallback":       true,
		"job_id":         entry.JobID,
		"action_type":    entry.ActionType,
		"trigger_source": entry.TriggerSource,
		"actor":          entry.Actor,
		"details":        entry.Details,
		"created_at":     entry.CreatedAt.Format(time.RFC3339),
		"error":          cause.Error(),
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	_, _ = os.Stderr.Write(append(data, '\n'))
}

// HasInterviewLog 是否已有该动作针对该面试的日志（提醒去重）
func (s *Sink) HasInterviewLog(ctx context.Context, actionType, interviewID string) (bool, error) {
	return s.store.HasLog(ctx, actionType, interviewID)
}

// Query 分页查询；limit<=0 时默认 50，上限 200
func (s *Sink) Query(ctx context.Context, filter storage.LogFilter, page storage.Pagination) ([]*storage.AutomationLog, int64, error) {
	if page.Limit <= 0 {
		page.Limit = 50
	}
	if page.Limit > 200 {
		page.Limit = 200
	}
	list, err := s.store.ListLogs(ctx, filter, page)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountLogs(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Counts 按动作与触发来源聚合
func (s *Sink) Counts(ctx context.Context, jobID string) (*storage.LogCounts, error) {
	return s.store.AggregateLogCounts(ctx, jobID)
}
