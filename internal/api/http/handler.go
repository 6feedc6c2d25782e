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

// Package http 招聘编排的 HTTP 层。处理器保持薄：参数校验、单次引擎
// 调用、结构化响应；业务规则全部在引擎层。错误体统一为
// {success:false, message, code}，状态码由 pkg/errors 映射。
package http

import (
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"hiring-platform/internal/audit"
	"hiring-platform/internal/interview"
	"hiring-platform/internal/negotiation"
	"hiring-platform/internal/outbound/calendar"
	"hiring-platform/internal/outbound/scoring"
	"hiring-platform/internal/shortlist"
	"hiring-platform/internal/storage"
	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/metrics"
	"hiring-platform/pkg/monitoring"
)

// Handler HTTP 处理器。必需依赖走构造函数，可选外设走 Set*。
type Handler struct {
	store        storage.Store
	interviews   *interview.Engine
	shortlists   *shortlist.Engine
	negotiations *negotiation.Engine
	sink         *audit.Sink

	calendar calendar.Client
	scoring  *scoring.Processor
	monitor  *monitoring.Monitor
	frontend string
}

// NewHandler 创建处理器
func NewHandler(store storage.Store, interviews *interview.Engine, shortlists *shortlist.Engine, negotiations *negotiation.Engine, sink *audit.Sink) *Handler {
	return &Handler{
		store:        store,
		interviews:   interviews,
		shortlists:   shortlists,
		negotiations: negotiations,
		sink:         sink,
	}
}

// SetCalendar 挂接日历客户端（available-slots 端点用）
func (h *Handler) SetCalendar(c calendar.Client) { h.calendar = c }

// SetScoring 挂接简历评分处理器（投递后异步触发）
func (h *Handler) SetScoring(p *scoring.Processor) { h.scoring = p }

// SetMonitor 挂接健康监控
func (h *Handler) SetMonitor(m *monitoring.Monitor) { h.monitor = m }

// SetFrontendBaseURL 候选人落地页地址；非空时 accept/reject 以 302 跳转
func (h *Handler) SetFrontendBaseURL(base string) { h.frontend = base }

// errorBody 统一错误响应体
type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// invalidTokenMessage 令牌失败对候选人只呈现一句话，失败原因只进日志
const invalidTokenMessage = "链接无效或已过期"

// fail 按错误类别写出错误响应
func fail(ctx context.Context, c *app.RequestContext, err error) {
	status := perrors.HTTPStatus(err)
	if status >= consts.StatusInternalServerError {
		hlog.CtxErrorf(ctx, "request failed: %v", err)
	} else {
		hlog.CtxWarnf(ctx, "request rejected: %v", err)
	}
	msg := err.Error()
	if perrors.Is(err, perrors.ErrInvalidToken) {
		msg = invalidTokenMessage
	}
	c.JSON(status, errorBody{Success: false, Message: msg, Code: status})
}

// failInvalid 参数校验失败的 400 快捷出口
func failInvalid(ctx context.Context, c *app.RequestContext, format string, args ...any) {
	fail(ctx, c, perrors.Invalidf(format, args...))
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "hiring-api",
		"timestamp": time.Now().Unix(),
	})
}

// SystemHealth 系统健康档位与告警
// GET /api/v1/system/health
func (h *Handler) SystemHealth(ctx context.Context, c *app.RequestContext) {
	if h.monitor == nil {
		c.JSON(consts.StatusOK, map[string]any{"status": monitoring.StatusHealthy, "alerts": []any{}})
		return
	}
	c.JSON(consts.StatusOK, h.monitor.SystemHealth())
}

// Metrics Prometheus 文本输出
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		fail(ctx, c, err)
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
