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

package http

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/samber/lo"

	"hiring-platform/internal/audit"
	"hiring-platform/internal/storage"
	"hiring-platform/pkg/auth"
)

// DashboardCandidates 职位下的候选人列表，按 rank 升序；?status= 过滤分区，
// 逗号分隔多值。
// GET /api/v1/dashboard/candidates/:jobId
func (h *Handler) DashboardCandidates(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("jobId")
	if _, err := h.authorizeJob(ctx, c, jobID, auth.CanViewJob); err != nil {
		fail(ctx, c, err)
		return
	}

	var filter storage.ApplicationFilter
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, ok := parseShortlistStatus(strings.TrimSpace(part))
			if !ok {
				failInvalid(ctx, c, "未知的分区 %q", part)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	apps, err := h.store.ListApplicationsByJob(ctx, jobID, filter)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	counts, err := h.store.CountApplicationsByStatus(ctx, jobID)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]any{
		"job_id":     jobID,
		"candidates": apps,
		"total":      len(apps),
		"counts":     counts,
	})
}

// DashboardActivityLog 自动化日志分页查询
// GET /api/v1/dashboard/activity-log/:jobId?action_type=&startDate=&endDate=&limit=&offset=
func (h *Handler) DashboardActivityLog(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("jobId")
	if _, err := h.authorizeJob(ctx, c, jobID, auth.CanViewJob); err != nil {
		fail(ctx, c, err)
		return
	}

	filter := storage.LogFilter{JobID: jobID}
	if raw := strings.TrimSpace(c.Query("action_type")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if t := strings.TrimSpace(part); t != "" {
				filter.ActionTypes = append(filter.ActionTypes, t)
			}
		}
	}

	from, dateOnly, err := parseTimeParam(c.Query("startDate"))
	if err != nil {
		failInvalid(ctx, c, "startDate 无法解析: %v", err)
		return
	}
	if !from.IsZero() {
		filter.From = &from
	}
	to, dateOnly, err := parseTimeParam(c.Query("endDate"))
	if err != nil {
		failInvalid(ctx, c, "endDate 无法解析: %v", err)
		return
	}
	if !to.IsZero() {
		// 仅给日期时按整天取闭区间
		if dateOnly {
			to = to.Add(24 * time.Hour)
		}
		filter.To = &to
	}

	page, err := parsePagination(c)
	if err != nil {
		failInvalid(ctx, c, "%v", err)
		return
	}

	logs, total, err := h.sink.Query(ctx, filter, page)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]any{
		"logs":   logs,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// analyticsResponse 职位维度的漏斗与自动化指标
type analyticsResponse struct {
	JobID       string          `json:"job_id"`
	Funnel      funnelStats     `json:"funnel"`
	Interviews  interviewStats  `json:"interviews"`
	Invitations invitationStats `json:"invitations"`
	Automation  automationStats `json:"automation"`
}

type funnelStats struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Shortlisted int `json:"shortlisted"`
	Buffer      int `json:"buffer"`
	Rejected    int `json:"rejected"`
}

type interviewStats struct {
	Total             int            `json:"total"`
	ByStatus          map[string]int `json:"by_status"`
	UpcomingConfirmed int            `json:"upcoming_confirmed"`
	AvgNoShowRisk     float64        `json:"avg_no_show_risk"`
}

type invitationStats struct {
	Sent           int64   `json:"sent"`
	Accepted       int64   `json:"accepted"`
	Rejected       int64   `json:"rejected"`
	Expired        int64   `json:"expired"`
	AcceptanceRate float64 `json:"acceptance_rate"`
}

type automationStats struct {
	TotalActions int64            `json:"total_actions"`
	ByAction     map[string]int64 `json:"by_action"`
	ByTrigger    map[string]int64 `json:"by_trigger"`
}

// DashboardAnalytics 职位分析：分区漏斗、面试状态分布、邀约转化率、
// 自动化动作聚合。全部由当前状态和日志流推导，无独立存储。
// GET /api/v1/dashboard/analytics/:jobId
func (h *Handler) DashboardAnalytics(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("jobId")
	if _, err := h.authorizeJob(ctx, c, jobID, auth.CanViewJob); err != nil {
		fail(ctx, c, err)
		return
	}

	counts, err := h.store.CountApplicationsByStatus(ctx, jobID)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	interviews, err := h.store.ListInterviewsByJob(ctx, jobID)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	logCounts, err := h.sink.Counts(ctx, jobID)
	if err != nil {
		fail(ctx, c, err)
		return
	}

	resp := analyticsResponse{
		JobID: jobID,
		Funnel: funnelStats{
			Total:       lo.Sum(lo.Values(counts)),
			Pending:     counts[storage.ShortlistPending],
			Shortlisted: counts[storage.ShortlistShortlisted],
			Buffer:      counts[storage.ShortlistBuffer],
			Rejected:    counts[storage.ShortlistRejected],
		},
		Interviews: buildInterviewStats(interviews, time.Now()),
	}

	sent := logCounts.ByAction[audit.ActionInvitationSent]
	resp.Invitations = invitationStats{
		Sent:     sent,
		Accepted: logCounts.ByAction[audit.ActionInvitationAccepted],
		Rejected: logCounts.ByAction[audit.ActionInvitationRejected],
		Expired:  logCounts.ByAction[audit.ActionInvitationExpired],
	}
	if sent > 0 {
		resp.Invitations.AcceptanceRate = float64(resp.Invitations.Accepted) / float64(sent)
	}
	resp.Automation = automationStats{
		TotalActions: logCounts.Total,
		ByAction:     logCounts.ByAction,
		ByTrigger:    logCounts.ByTrigger,
	}

	c.JSON(consts.StatusOK, resp)
}

func buildInterviewStats(interviews []*storage.Interview, now time.Time) interviewStats {
	stats := interviewStats{
		Total: len(interviews),
		ByStatus: lo.CountValuesBy(interviews, func(iv *storage.Interview) string {
			return string(iv.Status)
		}),
	}
	confirmed := lo.Filter(interviews, func(iv *storage.Interview, _ int) bool {
		return iv.Status == storage.InterviewConfirmed
	})
	stats.UpcomingConfirmed = lo.CountBy(confirmed, func(iv *storage.Interview) bool {
		return iv.ScheduledTime != nil && iv.ScheduledTime.After(now)
	})
	if len(confirmed) > 0 {
		sum := lo.SumBy(confirmed, func(iv *storage.Interview) float64 { return iv.NoShowRisk })
		stats.AvgNoShowRisk = sum / float64(len(confirmed))
	}
	return stats
}

func parseShortlistStatus(s string) (storage.ShortlistStatus, bool) {
	switch storage.ShortlistStatus(s) {
	case storage.ShortlistPending, storage.ShortlistShortlisted,
		storage.ShortlistBuffer, storage.ShortlistRejected:
		return storage.ShortlistStatus(s), true
	}
	return "", false
}

// parseTimeParam 解析时间参数：RFC3339 或纯日期 2006-01-02；空串返回零值
func parseTimeParam(raw string) (t time.Time, dateOnly bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, nil
	}
	if t, err = time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	if t, err = time.Parse("2006-01-02", raw); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, err
}

func parsePagination(c *app.RequestContext) (storage.Pagination, error) {
	var page storage.Pagination
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, err
		}
		page.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, err
		}
		if n < 0 {
			n = 0
		}
		page.Offset = n
	}
	return page, nil
}
