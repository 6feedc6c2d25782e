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

// Package storage 招聘实体的类型化存储网关：职位、申请、面试、协商会话、
// 特性开关与自动化日志。只做持久化与原子提交，不含业务决策。
package storage

import "time"

// ShortlistStatus 申请的入围分区
type ShortlistStatus string

const (
	ShortlistPending     ShortlistStatus = "pending"
	ShortlistShortlisted ShortlistStatus = "shortlisted"
	ShortlistBuffer      ShortlistStatus = "buffer"
	ShortlistRejected    ShortlistStatus = "rejected"
)

// InterviewStatus 面试状态机状态
type InterviewStatus string

const (
	InterviewInvitationSent InterviewStatus = "invitation_sent"
	InterviewSlotPending    InterviewStatus = "slot_pending"
	InterviewConfirmed      InterviewStatus = "confirmed"
	InterviewCompleted      InterviewStatus = "completed"
	InterviewCancelled      InterviewStatus = "cancelled"
	InterviewExpired        InterviewStatus = "expired"
	InterviewNoShow         InterviewStatus = "no_show"
)

// IsTerminal 终态不再迁移
func (s InterviewStatus) IsTerminal() bool {
	switch s {
	case InterviewCompleted, InterviewCancelled, InterviewExpired, InterviewNoShow:
		return true
	}
	return false
}

// NegotiationState 协商会话状态
type NegotiationState string

const (
	NegotiationActive    NegotiationState = "active"
	NegotiationResolved  NegotiationState = "resolved"
	NegotiationEscalated NegotiationState = "escalated"
)

// TriggerSource 日志触发来源
type TriggerSource string

const (
	TriggerAuto      TriggerSource = "auto"
	TriggerManual    TriggerSource = "manual"
	TriggerScheduled TriggerSource = "scheduled"
)

// Job 职位。申请关闭（ApplicationsClosed）后进入自动化管辖；Expired 为终态。
type Job struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	PostedBy           string    `json:"posted_by"` // 招聘者邮箱
	Openings           int       `json:"openings"`  // >= 1
	BufferTarget       int       `json:"buffer_target"`
	ApplicationsClosed bool      `json:"applications_closed"`
	Expired            bool      `json:"expired"`
	AutomationEnabled  bool      `json:"automation_enabled"` // 职位级自动化开关
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Application 候选人投递。Rank=0 表示未定级；FitScore 在评分完成前为 nil。
type Application struct {
	ID             string          `json:"id"`
	JobID          string          `json:"job_id"`
	CandidateName  string          `json:"candidate_name"`
	CandidateEmail string          `json:"candidate_email"`
	ResumeURL      string          `json:"resume_url"`
	FitScore       *float64        `json:"fit_score"` // [0,100]
	AISummary      string          `json:"ai_summary"`
	Rank           int             `json:"rank"` // >=1，0 为未定级
	Status         ShortlistStatus `json:"shortlist_status"`
	AIProcessed    bool            `json:"ai_processed"`
	ManualOverride bool            `json:"manual_override"` // true 时自动化不得改动分区
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Interview 面试。每个申请至多一条（application_id 唯一）。
type Interview struct {
	ID                    string          `json:"id"`
	ApplicationID         string          `json:"application_id"`
	JobID                 string          `json:"job_id"`
	RecruiterEmail        string          `json:"recruiter_email"`
	CandidateName         string          `json:"candidate_name"`
	CandidateEmail        string          `json:"candidate_email"`
	RankAtTime            int             `json:"rank_at_time"`
	Status                InterviewStatus `json:"status"`
	ConfirmationDeadline  *time.Time      `json:"confirmation_deadline"`
	SlotSelectionDeadline *time.Time      `json:"slot_selection_deadline"`
	ScheduledTime         *time.Time      `json:"scheduled_time"`
	ScheduledEnd          *time.Time      `json:"scheduled_end"`
	NoShowRisk            float64         `json:"no_show_risk"` // [0,1]
	CalendarEventRef      string          `json:"calendar_event_ref"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// NegotiationTurn 协商历史单条记录
type NegotiationTurn struct {
	Actor     string    `json:"actor"` // candidate | bot
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NegotiationSession 时段协商会话，每面试至多一条。
type NegotiationSession struct {
	ID          string           `json:"id"`
	InterviewID string           `json:"interview_id"`
	Round       int              `json:"round"` // >= 1
	MaxRounds   int              `json:"max_rounds"`
	State       NegotiationState `json:"state"`
	// AwaitingPick 上一轮已给出建议、等候选人挑选；候选人再发文本而非挑选时轮次前进
	AwaitingPick bool              `json:"awaiting_pick"`
	History      []NegotiationTurn `json:"history"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// FeatureFlag 特性开关（按 name 唯一）
type FeatureFlag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AutomationLog 追加式自动化日志；JobID 为空表示全局事件。
type AutomationLog struct {
	ID            string         `json:"id"`
	JobID         string         `json:"job_id"`
	ActionType    string         `json:"action_type"`
	TriggerSource TriggerSource  `json:"trigger_source"`
	Actor         string         `json:"actor"`
	Details       map[string]any `json:"details"`
	CreatedAt     time.Time      `json:"created_at"`
}

// RankAssignment 一次分区变更：把申请置为 Status 并赋 Rank。
// ExpectStatus 为提交时的前置；不匹配则整体回滚并返回 Conflict。
type RankAssignment struct {
	ApplicationID string
	Rank          int // 0 表示清除
	Status        ShortlistStatus
	ExpectStatus  ShortlistStatus
}

// InterviewUpdate 状态迁移时可写字段；nil 表示保持不变。
type InterviewUpdate struct {
	ConfirmationDeadline  *time.Time
	SlotSelectionDeadline *time.Time
	ScheduledTime         *time.Time
	ScheduledEnd          *time.Time
	NoShowRisk            *float64
	CalendarEventRef      *string
	// ClearConfirmationDeadline 接受邀约后确认时限已无意义，显式清空
	ClearConfirmationDeadline bool
}

// ApplicationFilter 按职位列申请的过滤条件
type ApplicationFilter struct {
	Statuses []ShortlistStatus // 空表示全部
}

// LogFilter 日志查询过滤条件
type LogFilter struct {
	JobID       string
	ActionTypes []string
	From        *time.Time
	To          *time.Time
	InterviewID string // 匹配 details.interview_id
	CandidateID string // 匹配 details.candidate_id
}

// Pagination 分页参数
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// LogCounts 日志聚合计数
type LogCounts struct {
	Total     int64            `json:"total"`
	ByAction  map[string]int64 `json:"by_action"`
	ByTrigger map[string]int64 `json:"by_trigger"`
}
