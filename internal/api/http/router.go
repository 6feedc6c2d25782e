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
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"hiring-platform/internal/api/http/middleware"
)

// Router HTTP 路由器。候选人动作端点以令牌为凭证不挂会话认证；
// 招聘方操作与看板在配置启用时挂 JWT。
type Router struct {
	handler *Handler
	mw      *middleware.Middleware

	jwtAuth *jwt.HertzJWTMiddleware
	tracing app.HandlerFunc
	cors    []string
	corsOn  bool
	rateRPS int
}

// NewRouter 创建路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, mw: mw}
}

// SetJWT 启用招聘方路由的 JWT 校验
func (r *Router) SetJWT(auth *jwt.HertzJWTMiddleware) { r.jwtAuth = auth }

// SetTracing 挂接链路追踪中间件；需在 Build 前调用才能覆盖全部路由
func (r *Router) SetTracing(mw app.HandlerFunc) { r.tracing = mw }

// SetCORS 启用 CORS；origins 为空表示放行任意来源
func (r *Router) SetCORS(origins []string) {
	r.corsOn = true
	r.cors = origins
}

// SetRateLimit 启用进程级限流
func (r *Router) SetRateLimit(rps int) { r.rateRPS = rps }

// Build 创建 Hertz 服务并注册全部路由。全局中间件必须先于路由注册挂载，
// 否则不会进入已注册路由的处理链。
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	s := server.Default(append([]config.Option{server.WithHostPorts(addr)}, opts...)...)

	if r.tracing != nil {
		s.Use(r.tracing)
	}
	if r.corsOn {
		s.Use(r.mw.CORS(r.cors))
	}
	s.Use(r.mw.AccessLog())
	s.Use(r.mw.RequestMetrics(r.handler.monitor))
	if r.rateRPS > 0 {
		s.Use(r.mw.RateLimit(r.rateRPS))
	}

	r.register(s)
	return s
}

func (r *Router) register(s *server.Hertz) {
	s.GET("/metrics", r.handler.Metrics)

	api := s.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	v1 := api.Group("/v1")
	v1.GET("/system/health", r.handler.SystemHealth)

	// 职位读接口（公开）
	v1.GET("/job", r.handler.ListJobs)
	v1.GET("/job/:id", r.handler.GetJob)

	// 候选人动作：投递与邀约链接，令牌即授权
	v1.POST("/application", r.handler.SubmitApplication)
	iv := v1.Group("/interview")
	{
		iv.GET("/accept/:interviewId/:token", r.handler.AcceptInvitation)
		iv.GET("/reject/:interviewId/:token", r.handler.RejectInvitation)
		iv.GET("/available-slots/:interviewId", r.handler.AvailableSlots)
		iv.POST("/select-slot/:interviewId", r.handler.SelectSlot)
		iv.POST("/confirm/:interviewId", r.handler.ConfirmInterview)
		iv.POST("/negotiate/:interviewId", r.handler.Negotiate)
	}

	// 招聘方操作与看板
	emp := v1.Group("/")
	if r.jwtAuth != nil {
		emp.Use(r.jwtAuth.MiddlewareFunc())
	}
	{
		emp.POST("/job", r.handler.CreateJob)
		emp.PUT("/job/:id", r.handler.UpdateJob)
		emp.DELETE("/job/:id", r.handler.DeleteJob)
		emp.POST("/interview/invite/:applicationId", r.handler.SendInvitation)
		emp.POST("/interview/cancel/:interviewId", r.handler.CancelInterview)
		emp.POST("/interview/attendance/:interviewId", r.handler.MarkAttendance)
		emp.GET("/dashboard/candidates/:jobId", r.handler.DashboardCandidates)
		emp.GET("/dashboard/activity-log/:jobId", r.handler.DashboardActivityLog)
		emp.GET("/dashboard/analytics/:jobId", r.handler.DashboardAnalytics)
	}
}
