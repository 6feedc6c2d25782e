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
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"hiring-platform/internal/interview"
	"hiring-platform/internal/outbound/calendar"
	"hiring-platform/internal/storage"
	perrors "hiring-platform/pkg/errors"
)

// availableSlotHorizon 默认向后取两周空闲时段
const availableSlotHorizon = 14 * 24 * time.Hour

// SendInvitation 人工发出邀约；开关拦截时返回 200 + ok=false
// POST /api/v1/interview/invite/:applicationId
func (h *Handler) SendInvitation(ctx context.Context, c *app.RequestContext) {
	if err := h.authorizeApplication(ctx, c, c.Param("applicationId")); err != nil {
		fail(ctx, c, err)
		return
	}
	out, err := h.interviews.SendInvitation(ctx, c.Param("applicationId"))
	if err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, out)
}

// AcceptInvitation 候选人接受落地页。令牌即授权，不要求会话。
// 配置了前端地址时 302 到结果页，否则返回 JSON。
// GET /api/v1/interview/accept/:interviewId/:token
func (h *Handler) AcceptInvitation(ctx context.Context, c *app.RequestContext) {
	iv, err := h.interviews.HandleAccept(ctx, c.Param("interviewId"), c.Param("token"))
	if err != nil {
		fail(ctx, c, err)
		return
	}
	h.candidateLanding(c, iv, "accepted")
}

// RejectInvitation 候选人拒绝落地页
// GET /api/v1/interview/reject/:interviewId/:token
func (h *Handler) RejectInvitation(ctx context.Context, c *app.RequestContext) {
	iv, err := h.interviews.HandleReject(ctx, c.Param("interviewId"), c.Param("token"))
	if err != nil {
		fail(ctx, c, err)
		return
	}
	h.candidateLanding(c, iv, "rejected")
}

func (h *Handler) candidateLanding(c *app.RequestContext, iv *storage.Interview, outcome string) {
	if h.frontend != "" {
		q := url.Values{"interview_id": {iv.ID}, "outcome": {outcome}}
		c.Redirect(consts.StatusFound, []byte(strings.TrimSuffix(h.frontend, "/")+"/interview/result?"+q.Encode()))
		return
	}
	c.JSON(consts.StatusOK, map[string]any{"success": true, "outcome": outcome, "interview": iv})
}

// AvailableSlots 招聘官空闲时段，仅工作时间（周一至周五 9:00–18:00）
// GET /api/v1/interview/available-slots/:interviewId
func (h *Handler) AvailableSlots(ctx context.Context, c *app.RequestContext) {
	iv, err := h.store.GetInterview(ctx, c.Param("interviewId"))
	if err != nil {
		fail(ctx, c, err)
		return
	}
	if iv.Status != storage.InterviewSlotPending {
		fail(ctx, c, perrors.InvalidStatef("面试 %s 处于 %s，无法取时段", iv.ID, iv.Status))
		return
	}
	if h.calendar == nil {
		c.JSON(consts.StatusOK, map[string]any{"slots": []calendar.Slot{}, "total": 0})
		return
	}
	now := time.Now()
	slots, err := h.calendar.GetFreeSlots(ctx, iv.RecruiterEmail, now, now.Add(availableSlotHorizon))
	if err != nil {
		fail(ctx, c, perrors.Transientf("获取空闲时段失败: %v", err))
		return
	}
	slots = calendar.FilterBusinessHours(slots)
	c.JSON(consts.StatusOK, map[string]any{"slots": slots, "total": len(slots)})
}

type selectSlotRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SelectSlot 候选人选定时段；同时关闭未决的协商会话
// POST /api/v1/interview/select-slot/:interviewId
func (h *Handler) SelectSlot(ctx context.Context, c *app.RequestContext) {
	var req selectSlotRequest
	if err := c.BindJSON(&req); err != nil {
		failInvalid(ctx, c, "请求体不是合法 JSON: %v", err)
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		failInvalid(ctx, c, "start 需要 RFC3339 时间: %v", err)
		return
	}
	var end time.Time
	if req.End != "" {
		end, err = time.Parse(time.RFC3339, req.End)
		if err != nil {
			failInvalid(ctx, c, "end 需要 RFC3339 时间: %v", err)
			return
		}
	}

	interviewID := c.Param("interviewId")
	iv, err := h.interviews.SelectSlot(ctx, interviewID, start, end)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	if h.negotiations != nil {
		if err := h.negotiations.Resolve(ctx, interviewID); err != nil {
			hlog.CtxWarnf(ctx, "resolve negotiation failed: interview=%s err=%v", interviewID, err)
		}
	}
	c.JSON(consts.StatusOK, iv)
}

// ConfirmInterview 终确认：排期落定、日历事件、双方邮件、风险刷新
// POST /api/v1/interview/confirm/:interviewId
func (h *Handler) ConfirmInterview(ctx context.Context, c *app.RequestContext) {
	iv, err := h.interviews.Confirm(ctx, c.Param("interviewId"))
	if err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, iv)
}

type negotiateRequest struct {
	Message string `json:"message"`
}

// Negotiate 候选人可用性协商；升级也是 200 + ok=false
// POST /api/v1/interview/negotiate/:interviewId
func (h *Handler) Negotiate(ctx context.Context, c *app.RequestContext) {
	var req negotiateRequest
	if err := c.BindJSON(&req); err != nil {
		failInvalid(ctx, c, "请求体不是合法 JSON: %v", err)
		return
	}
	if h.negotiations == nil {
		fail(ctx, c, perrors.InvalidStatef("协商功能未启用：未配置日历服务"))
		return
	}
	out, err := h.negotiations.Negotiate(ctx, c.Param("interviewId"), req.Message)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, out)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelInterview 招聘官取消面试；空出的名额触发候补转正
// POST /api/v1/interview/cancel/:interviewId
func (h *Handler) CancelInterview(ctx context.Context, c *app.RequestContext) {
	var req cancelRequest
	if err := c.BindJSON(&req); err != nil {
		failInvalid(ctx, c, "请求体不是合法 JSON: %v", err)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		failInvalid(ctx, c, "reason 不能为空")
		return
	}
	if err := h.authorizeInterview(ctx, c, c.Param("interviewId")); err != nil {
		fail(ctx, c, err)
		return
	}
	iv, err := h.interviews.Cancel(ctx, c.Param("interviewId"), req.Reason)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, iv)
}

type attendanceRequest struct {
	Outcome string `json:"outcome"`
}

// MarkAttendance 面试后记录到场结果
// POST /api/v1/interview/attendance/:interviewId
func (h *Handler) MarkAttendance(ctx context.Context, c *app.RequestContext) {
	var req attendanceRequest
	if err := c.BindJSON(&req); err != nil {
		failInvalid(ctx, c, "请求体不是合法 JSON: %v", err)
		return
	}
	if req.Outcome != interview.AttendanceCompleted && req.Outcome != interview.AttendanceNoShow {
		failInvalid(ctx, c, "outcome 必须是 %s 或 %s",
			interview.AttendanceCompleted, interview.AttendanceNoShow)
		return
	}
	if err := h.authorizeInterview(ctx, c, c.Param("interviewId")); err != nil {
		fail(ctx, c, err)
		return
	}
	iv, err := h.interviews.MarkAttendance(ctx, c.Param("interviewId"), req.Outcome)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, iv)
}
