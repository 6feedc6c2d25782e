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
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"hiring-platform/internal/api/http/middleware"
	"hiring-platform/internal/storage"
	"hiring-platform/pkg/auth"
	perrors "hiring-platform/pkg/errors"
)

// DefaultBufferTarget 未配置时的候补席位数
const DefaultBufferTarget = 3

type jobRequest struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	PostedBy           string `json:"posted_by"`
	Openings           int    `json:"openings"`
	BufferTarget       int    `json:"buffer_target"`
	ApplicationsClosed *bool  `json:"applications_closed"`
	Expired            *bool  `json:"expired"`
	AutomationEnabled  *bool  `json:"automation_enabled"`
}

// ListJobs 列未过期职位
// GET /api/v1/job
func (h *Handler) ListJobs(ctx context.Context, c *app.RequestContext) {
	jobs, err := h.store.ListOpenJobs(ctx)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]any{"jobs": jobs, "total": len(jobs)})
}

// GetJob 读单个职位
// GET /api/v1/job/:id
func (h *Handler) GetJob(ctx context.Context, c *app.RequestContext) {
	job, err := h.store.GetJob(ctx, c.Param("id"))
	if err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, job)
}

// CreateJob 创建职位
// POST /api/v1/job
func (h *Handler) CreateJob(ctx context.Context, c *app.RequestContext) {
	var req jobRequest
	if err := c.BindJSON(&req); err != nil {
		failInvalid(ctx, c, "请求体不是合法 JSON: %v", err)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.PostedBy = strings.TrimSpace(req.PostedBy)
	// 会话存在时 posted_by 缺省取会话主体；非 admin 不得替他人建职位
	if id, ok := middleware.Identity(c); ok {
		if req.PostedBy == "" {
			req.PostedBy = id.Subject
		} else if !auth.CanManageJob(id, req.PostedBy) {
			fail(ctx, c, perrors.Forbiddenf("会话 %s 不能以 %s 名义创建职位", id.Subject, req.PostedBy))
			return
		}
	}
	if req.Title == "" {
		failInvalid(ctx, c, "title 不能为空")
		return
	}
	if req.PostedBy == "" {
		failInvalid(ctx, c, "posted_by 不能为空")
		return
	}
	if req.Openings < 1 {
		failInvalid(ctx, c, "openings 必须 >= 1")
		return
	}

	job := &storage.Job{
		ID:                uuid.NewString(),
		Title:             req.Title,
		Description:       req.Description,
		PostedBy:          req.PostedBy,
		Openings:          req.Openings,
		BufferTarget:      req.BufferTarget,
		AutomationEnabled: true,
	}
	if job.BufferTarget <= 0 {
		job.BufferTarget = DefaultBufferTarget
	}
	if req.AutomationEnabled != nil {
		job.AutomationEnabled = *req.AutomationEnabled
	}
	if err := h.store.CreateJob(ctx, job); err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, job)
}

// UpdateJob 更新职位。applications_closed 由 false 翻到 true 时
// 触发一次自动入围；入围结果随响应返回，失败不影响更新本身。
// PUT /api/v1/job/:id
func (h *Handler) UpdateJob(ctx context.Context, c *app.RequestContext) {
	var req jobRequest
	if err := c.BindJSON(&req); err != nil {
		failInvalid(ctx, c, "请求体不是合法 JSON: %v", err)
		return
	}
	job, err := h.authorizeJob(ctx, c, c.Param("id"), auth.CanManageJob)
	if err != nil {
		fail(ctx, c, err)
		return
	}

	if t := strings.TrimSpace(req.Title); t != "" {
		job.Title = t
	}
	if req.Description != "" {
		job.Description = req.Description
	}
	if req.Openings > 0 {
		job.Openings = req.Openings
	}
	if req.BufferTarget > 0 {
		job.BufferTarget = req.BufferTarget
	}
	if req.Expired != nil {
		job.Expired = *req.Expired
	}
	if req.AutomationEnabled != nil {
		job.AutomationEnabled = *req.AutomationEnabled
	}
	justClosed := false
	if req.ApplicationsClosed != nil {
		justClosed = *req.ApplicationsClosed && !job.ApplicationsClosed
		job.ApplicationsClosed = *req.ApplicationsClosed
	}

	if err := h.store.UpdateJob(ctx, job); err != nil {
		fail(ctx, c, err)
		return
	}

	resp := map[string]any{"job": job}
	if justClosed && h.shortlists != nil {
		out, err := h.shortlists.AutoShortlist(ctx, job.ID)
		if err != nil {
			hlog.CtxWarnf(ctx, "auto shortlist after close failed: job=%s err=%v", job.ID, err)
		} else {
			resp["shortlist"] = out
		}
	}
	c.JSON(consts.StatusOK, resp)
}

// DeleteJob 删除职位
// DELETE /api/v1/job/:id
func (h *Handler) DeleteJob(ctx context.Context, c *app.RequestContext) {
	if _, err := h.authorizeJob(ctx, c, c.Param("id"), auth.CanManageJob); err != nil {
		fail(ctx, c, err)
		return
	}
	if err := h.store.DeleteJob(ctx, c.Param("id")); err != nil {
		fail(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]any{"success": true})
}

type applicationRequest struct {
	JobID          string `json:"job_id"`
	CandidateName  string `json:"candidate_name"`
	CandidateEmail string `json:"candidate_email"`
	ResumeURL      string `json:"resume_url"`
}

// SubmitApplication 提交投递并异步触发简历评分
// POST /api/v1/application
func (h *Handler) SubmitApplication(ctx context.Context, c *app.RequestContext) {
	var req applicationRequest
	if err := c.BindJSON(&req); err != nil {
		failInvalid(ctx, c, "请求体不是合法 JSON: %v", err)
		return
	}
	req.CandidateName = strings.TrimSpace(req.CandidateName)
	req.CandidateEmail = strings.TrimSpace(req.CandidateEmail)
	if req.JobID == "" || req.CandidateName == "" || req.CandidateEmail == "" {
		failInvalid(ctx, c, "job_id、candidate_name、candidate_email 不能为空")
		return
	}

	job, err := h.store.GetJob(ctx, req.JobID)
	if err != nil {
		fail(ctx, c, err)
		return
	}
	if job.ApplicationsClosed || job.Expired {
		fail(ctx, c, perrors.InvalidStatef("职位 %s 已停止接收投递", job.ID))
		return
	}

	application := &storage.Application{
		ID:             uuid.NewString(),
		JobID:          job.ID,
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
		ResumeURL:      req.ResumeURL,
		Status:         storage.ShortlistPending,
	}
	if err := h.store.CreateApplication(ctx, application); err != nil {
		fail(ctx, c, err)
		return
	}
	if h.scoring != nil {
		h.scoring.ProcessAsync(application, job)
	}
	c.JSON(consts.StatusCreated, application)
}
