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

// Package shortlist 入围引擎：按 fit_score 划分 shortlisted/buffer 分区、
// 空缺时候补转正与候补回填。分区 rank 始终保持 1..n 连续前缀；
// manual_override 的申请自动化一律不碰。
package shortlist

import (
	"context"
	"time"

	"github.com/samber/lo"

	"hiring-platform/internal/audit"
	"hiring-platform/internal/engine"
	"hiring-platform/internal/flags"
	"hiring-platform/internal/storage"
	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/log"
	"hiring-platform/pkg/metrics"
)

// DefaultPromotionFreeze 临近面试冻结窗口：窗口内有已确认面试时不做转正
const DefaultPromotionFreeze = 24 * time.Hour

// ReasonPromotionFrozen 冻结窗口拦截转正时的结果原因
const ReasonPromotionFrozen = "promotion_frozen"

// Store 入围引擎需要的存储面
type Store interface {
	GetJob(ctx context.Context, id string) (*storage.Job, error)
	ListScoredPending(ctx context.Context, jobID string) ([]*storage.Application, error)
	ApplyAssignments(ctx context.Context, jobID string, assigns []storage.RankAssignment) error
	PromoteBufferCandidate(ctx context.Context, jobID string, vacatedRank int) (*storage.Application, error)
	CountApplicationsByStatus(ctx context.Context, jobID string) (map[storage.ShortlistStatus]int, error)
	ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*storage.Interview, error)
}

// Inviter 给转正候选人发面试邀请的回调，由面试引擎实现。
// 入围引擎只认识这一个窄接口，不反向依赖面试包。
type Inviter interface {
	InvitePromoted(ctx context.Context, applicationID string) error
}

// InviterFunc 函数适配器
type InviterFunc func(ctx context.Context, applicationID string) error

// InvitePromoted 实现 Inviter
func (f InviterFunc) InvitePromoted(ctx context.Context, applicationID string) error {
	return f(ctx, applicationID)
}

// Engine 入围引擎
type Engine struct {
	store   Store
	flags   *flags.Resolver
	sink    *audit.Sink
	inviter Inviter
	logger  *log.Logger
	freeze  time.Duration
	now     func() time.Time
}

// NewEngine 创建入围引擎。inviter 可为 nil（则转正后不自动发邀请）。
func NewEngine(store Store, resolver *flags.Resolver, sink *audit.Sink, inviter Inviter, logger *log.Logger, freeze time.Duration) *Engine {
	if freeze <= 0 {
		freeze = DefaultPromotionFreeze
	}
	if logger == nil {
		logger, _ = log.NewLogger(nil)
	}
	return &Engine{
		store:   store,
		flags:   resolver,
		sink:    sink,
		inviter: inviter,
		logger:  logger,
		freeze:  freeze,
		now:     time.Now,
	}
}

// AutoShortlist 按 fit_score desc、id asc 给 pending 申请定级：
// 先补满 openings 个 shortlisted，再补满 buffer_target 个 buffer，
// rank 接在现有分区前缀之后连续分配。重复调用在分区已满时是空操作。
func (e *Engine) AutoShortlist(ctx context.Context, jobID string) (engine.Outcome, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if !e.flags.IsEnabledForJob(ctx, flags.AutoShortlisting, job) {
		metrics.AutomationActionTotal.WithLabelValues("auto_shortlist", "disabled").Inc()
		return engine.Disabled(), nil
	}

	counts, err := e.store.CountApplicationsByStatus(ctx, jobID)
	if err != nil {
		return engine.Outcome{}, err
	}
	shortTake := job.Openings - counts[storage.ShortlistShortlisted]
	bufTake := job.BufferTarget - counts[storage.ShortlistBuffer]
	if shortTake <= 0 && bufTake <= 0 {
		return engine.Done(map[string]any{"shortlisted": 0, "buffer": 0}), nil
	}

	pool, err := e.pendingPool(ctx, jobID)
	if err != nil {
		return engine.Outcome{}, err
	}

	nextRank := counts[storage.ShortlistShortlisted] + counts[storage.ShortlistBuffer]
	var assigns []storage.RankAssignment
	shortlisted, buffered := 0, 0
	for _, app := range pool {
		var status storage.ShortlistStatus
		switch {
		case shortlisted < shortTake:
			status = storage.ShortlistShortlisted
			shortlisted++
		case buffered < bufTake:
			status = storage.ShortlistBuffer
			buffered++
		default:
			// 其余留在 pending
		}
		if status == "" {
			break
		}
		nextRank++
		assigns = append(assigns, storage.RankAssignment{
			ApplicationID: app.ID,
			Rank:          nextRank,
			Status:        status,
			ExpectStatus:  storage.ShortlistPending,
		})
	}
	if len(assigns) == 0 {
		return engine.Done(map[string]any{"shortlisted": 0, "buffer": 0}), nil
	}

	if err := e.store.ApplyAssignments(ctx, jobID, assigns); err != nil {
		metrics.AutomationActionTotal.WithLabelValues("auto_shortlist", "failure").Inc()
		return engine.Outcome{}, err
	}

	e.sink.Record(ctx, audit.Event{
		JobID:      jobID,
		ActionType: audit.ActionAutoShortlist,
		Details:    map[string]any{"shortlisted": shortlisted, "buffer": buffered},
	})
	metrics.AutomationActionTotal.WithLabelValues("auto_shortlist", "success").Inc()
	e.logger.Info("自动入围完成", "job_id", jobID, "shortlisted", shortlisted, "buffer", buffered)

	return engine.Done(map[string]any{"shortlisted": shortlisted, "buffer": buffered}), nil
}

// PromoteFromBuffer 空缺出现时把 rank 最小的候补转正到空出的 rank。
// 候补为空返回 empty_buffer 且不做任何改动；冻结窗口内有已确认面试时
// 返回 promotion_frozen。成功后回填候补并给转正者发邀请，两者失败都
// 不影响转正本身。
func (e *Engine) PromoteFromBuffer(ctx context.Context, jobID string, vacatedRank int) (engine.Outcome, error) {
	if vacatedRank < 1 {
		return engine.Outcome{}, perrors.Invalidf("vacated rank %d 非法", vacatedRank)
	}
	ok, err := e.CanPromote(ctx, jobID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if !ok {
		metrics.AutomationActionTotal.WithLabelValues("buffer_promotion", "skipped").Inc()
		return engine.Skipped(ReasonPromotionFrozen), nil
	}

	promoted, err := e.store.PromoteBufferCandidate(ctx, jobID, vacatedRank)
	if err != nil {
		if perrors.Is(err, perrors.ErrNotFound) {
			metrics.AutomationActionTotal.WithLabelValues("buffer_promotion", "skipped").Inc()
			return engine.Skipped(engine.ReasonEmptyBuffer), nil
		}
		metrics.AutomationActionTotal.WithLabelValues("buffer_promotion", "failure").Inc()
		return engine.Outcome{}, err
	}

	e.sink.Record(ctx, audit.Event{
		JobID:      jobID,
		ActionType: audit.ActionBufferPromotion,
		Details: map[string]any{
			"candidate_id": promoted.ID,
			"candidate":    promoted.CandidateName,
			"rank":         promoted.Rank,
		},
	})
	metrics.AutomationActionTotal.WithLabelValues("buffer_promotion", "success").Inc()
	e.logger.Info("候补转正", "job_id", jobID, "application_id", promoted.ID, "rank", promoted.Rank)

	if _, err := e.BackfillBuffer(ctx, jobID); err != nil {
		e.logger.Warn("转正后回填候补失败", "job_id", jobID, "error", err)
	}
	if e.inviter != nil {
		if err := e.inviter.InvitePromoted(ctx, promoted.ID); err != nil {
			e.logger.Warn("给转正候选人发邀请失败", "application_id", promoted.ID, "error", err)
		}
	}

	return engine.Done(map[string]any{
		"application_id": promoted.ID,
		"rank":           promoted.Rank,
	}), nil
}

// BackfillBuffer 从 pending 里按分数补满候补。满员时为空操作，可安全重复调用。
func (e *Engine) BackfillBuffer(ctx context.Context, jobID string) (engine.Outcome, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if !e.flags.IsEnabledForJob(ctx, flags.AutoPromotion, job) {
		return engine.Disabled(), nil
	}

	counts, err := e.store.CountApplicationsByStatus(ctx, jobID)
	if err != nil {
		return engine.Outcome{}, err
	}
	need := job.BufferTarget - counts[storage.ShortlistBuffer]
	if need <= 0 {
		return engine.Done(map[string]any{"added": 0}), nil
	}

	pool, err := e.pendingPool(ctx, jobID)
	if err != nil {
		return engine.Outcome{}, err
	}
	if len(pool) > need {
		pool = pool[:need]
	}
	if len(pool) == 0 {
		return engine.Done(map[string]any{"added": 0}), nil
	}

	nextRank := counts[storage.ShortlistShortlisted] + counts[storage.ShortlistBuffer]
	assigns := lo.Map(pool, func(app *storage.Application, i int) storage.RankAssignment {
		return storage.RankAssignment{
			ApplicationID: app.ID,
			Rank:          nextRank + 1 + i,
			Status:        storage.ShortlistBuffer,
			ExpectStatus:  storage.ShortlistPending,
		}
	})
	if err := e.store.ApplyAssignments(ctx, jobID, assigns); err != nil {
		return engine.Outcome{}, err
	}

	e.sink.Record(ctx, audit.Event{
		JobID:      jobID,
		ActionType: audit.ActionBufferBackfill,
		Details:    map[string]any{"added": len(assigns)},
	})
	metrics.AutomationActionTotal.WithLabelValues("buffer_backfill", "success").Inc()

	return engine.Done(map[string]any{"added": len(assigns)}), nil
}

// CanPromote 冻结窗口内该职位有已确认面试时返回 false，避免临场换人
func (e *Engine) CanPromote(ctx context.Context, jobID string) (bool, error) {
	now := e.now()
	confirmed, err := e.store.ListConfirmedBetween(ctx, now, now.Add(e.freeze))
	if err != nil {
		return false, err
	}
	for _, iv := range confirmed {
		if iv.JobID == jobID {
			return false, nil
		}
	}
	return true, nil
}

// Status 各分区的申请数
func (e *Engine) Status(ctx context.Context, jobID string) (map[storage.ShortlistStatus]int, error) {
	return e.store.CountApplicationsByStatus(ctx, jobID)
}

// pendingPool 已评分、pending 且未被人工锁定的申请，按 fit desc, id asc
func (e *Engine) pendingPool(ctx context.Context, jobID string) ([]*storage.Application, error) {
	pending, err := e.store.ListScoredPending(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return lo.Filter(pending, func(a *storage.Application, _ int) bool {
		return !a.ManualOverride
	}), nil
}
