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

	"github.com/cloudwego/hertz/pkg/app"

	"hiring-platform/internal/api/http/middleware"
	"hiring-platform/internal/storage"
	"hiring-platform/pkg/auth"
	perrors "hiring-platform/pkg/errors"
)

// authorizeJob 职位归属判定。JWT 未启用时请求上下文无身份，直接放行；
// 有身份则按 posted_by 比对，admin 跨职位。返回职位本身供处理器复用。
func (h *Handler) authorizeJob(ctx context.Context, c *app.RequestContext, jobID string, check func(auth.Identity, string) bool) (*storage.Job, error) {
	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	id, ok := middleware.Identity(c)
	if !ok {
		return job, nil
	}
	if !check(id, job.PostedBy) {
		return nil, perrors.Forbiddenf("会话 %s 无权操作职位 %s", id.Subject, jobID)
	}
	return job, nil
}

// authorizeApplication 经投递定位职位后做归属判定
func (h *Handler) authorizeApplication(ctx context.Context, c *app.RequestContext, applicationID string) error {
	if _, ok := middleware.Identity(c); !ok {
		return nil
	}
	application, err := h.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	_, err = h.authorizeJob(ctx, c, application.JobID, auth.CanManageJob)
	return err
}

// authorizeInterview 经面试定位职位后做归属判定
func (h *Handler) authorizeInterview(ctx context.Context, c *app.RequestContext, interviewID string) error {
	if _, ok := middleware.Identity(c); !ok {
		return nil
	}
	iv, err := h.store.GetInterview(ctx, interviewID)
	if err != nil {
		return err
	}
	_, err = h.authorizeJob(ctx, c, iv.JobID, auth.CanManageJob)
	return err
}
