package storage

import (
	"context"
	"time"
)

// Store 存储网关接口。单实体读线性化；范围查询排序确定：
// 申请按 (rank asc, id asc)（未定级排最后），日志按 (created_at desc, id desc)。
// 错误归类：NotFound / Conflict（唯一冲突或前置失败）/ Transient（可重试）。
type Store interface {
	JobStore
	ApplicationStore
	InterviewStore
	NegotiationStore
	FlagStore
	LogStore
	LeaseStore
	Close() error
}

// JobStore 职位存取
type JobStore interface {
	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdateJob(ctx context.Context, j *Job) error
	DeleteJob(ctx context.Context, id string) error
	// ListOpenJobs 列未过期职位，id asc
	ListOpenJobs(ctx context.Context) ([]*Job, error)
	// ListActiveJobs 列自动化管辖职位：applications_closed 且未过期，id asc
	ListActiveJobs(ctx context.Context) ([]*Job, error)
}

// ApplicationStore 申请存取与入围分区的原子提交
type ApplicationStore interface {
	CreateApplication(ctx context.Context, a *Application) error
	GetApplication(ctx context.Context, id string) (*Application, error)
	UpdateApplication(ctx context.Context, a *Application) error
	// ListApplicationsByJob 按 (rank asc, id asc) 返回；rank=0 排最后
	ListApplicationsByJob(ctx context.Context, jobID string, filter ApplicationFilter) ([]*Application, error)
	// ListScoredPending 返回 ai_processed 且 pending 的申请，按 (fit_score desc, id asc)
	ListScoredPending(ctx context.Context, jobID string) ([]*Application, error)
	CountApplicationsByStatus(ctx context.Context, jobID string) (map[ShortlistStatus]int, error)

	// ApplyAssignments 在单个事务内提交一批分区变更；任一行的 ExpectStatus
	// 前置不满足则全部回滚并返回 Conflict。与 PromoteBufferCandidate 在
	// 同一职位上串行。
	ApplyAssignments(ctx context.Context, jobID string, assigns []RankAssignment) error

	// PromoteBufferCandidate 原子转正：取 rank 最小的 buffer 申请，置为
	// shortlisted 且 rank=vacatedRank，并将其余 buffer 申请的 rank 前移一位
	// 保持连续。buffer 为空返回 NotFound 且无任何写入。
	PromoteBufferCandidate(ctx context.Context, jobID string, vacatedRank int) (*Application, error)

	// RejectApplication 置为 rejected 并清除 rank
	RejectApplication(ctx context.Context, id string) error
}

// InterviewStore 面试存取。状态迁移走 CAS：status 前置不匹配返回 Conflict。
type InterviewStore interface {
	// CreateInterview application_id 已有面试时返回 Conflict
	CreateInterview(ctx context.Context, iv *Interview) error
	GetInterview(ctx context.Context, id string) (*Interview, error)
	GetInterviewByApplication(ctx context.Context, applicationID string) (*Interview, error)
	ListInterviewsByJob(ctx context.Context, jobID string) ([]*Interview, error)

	// TransitionInterview 仅当当前 status=from 时迁移到 to 并应用 upd；
	// 返回迁移后的记录。status 不匹配返回 Conflict，记录缺失返回 NotFound。
	// from=to 用于 slot_pending 内写 scheduled_time。
	TransitionInterview(ctx context.Context, id string, from, to InterviewStatus, upd InterviewUpdate) (*Interview, error)

	// UpdateInterviewRisk 无条件写入 no_show_risk
	UpdateInterviewRisk(ctx context.Context, id string, risk float64) error

	// ListDueConfirmations status=invitation_sent 且 confirmation_deadline<=now，id asc
	ListDueConfirmations(ctx context.Context, now time.Time) ([]*Interview, error)
	// ListDueSlotSelections status=slot_pending 且 slot_selection_deadline<=now，id asc
	ListDueSlotSelections(ctx context.Context, now time.Time) ([]*Interview, error)
	// ListConfirmedBetween status=confirmed 且 scheduled_time∈[from,to]，id asc
	ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*Interview, error)
	// ListConfirmedUpcoming status=confirmed 且 scheduled_time>now，id asc
	ListConfirmedUpcoming(ctx context.Context, now time.Time) ([]*Interview, error)
}

// NegotiationStore 协商会话存取
type NegotiationStore interface {
	CreateNegotiation(ctx context.Context, s *NegotiationSession) error
	GetNegotiationByInterview(ctx context.Context, interviewID string) (*NegotiationSession, error)
	UpdateNegotiation(ctx context.Context, s *NegotiationSession) error
}

// FlagStore 特性开关存取
type FlagStore interface {
	GetFlag(ctx context.Context, name string) (*FeatureFlag, error)
	ListFlags(ctx context.Context) ([]*FeatureFlag, error)
	UpsertFlag(ctx context.Context, f *FeatureFlag) error
}

// LogStore 自动化日志的追加与查询
type LogStore interface {
	AppendLog(ctx context.Context, entry *AutomationLog) error
	ListLogs(ctx context.Context, filter LogFilter, page Pagination) ([]*AutomationLog, error)
	CountLogs(ctx context.Context, filter LogFilter) (int64, error)
	// AggregateLogCounts 按 action_type 与 trigger_source 聚合
	AggregateLogCounts(ctx context.Context, jobID string) (*LogCounts, error)
	// HasLog 是否存在 action_type 且 details.interview_id 匹配的日志（提醒去重）
	HasLog(ctx context.Context, actionType, interviewID string) (bool, error)
}

// LeaseStore 循环互斥租约（多副本时仅一个实例执行扫描）
type LeaseStore interface {
	// AcquireLease 获取或接管已过期的租约；返回是否持有
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	// RenewLease 续租；owner 不匹配返回 false
	RenewLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error
}
