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

// Package api API 应用装配：存储网关之上拼出令牌服务、三个引擎、
// 发件箱与外部客户端，挂到 HTTP 路由。主存储为 memory 时循环器与
// 投递循环随 API 进程内跑；postgres 时默认交给 worker（控制面/数据面
// 分离），可用 automation.in_process 强制覆盖。
package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	httpapi "hiring-platform/internal/api/http"
	"hiring-platform/internal/api/http/middleware"
	"hiring-platform/internal/app"
	"hiring-platform/internal/audit"
	"hiring-platform/internal/automation"
	"hiring-platform/internal/flags"
	"hiring-platform/internal/interview"
	"hiring-platform/internal/model/llm"
	"hiring-platform/internal/negotiation"
	"hiring-platform/internal/outbound/calendar"
	"hiring-platform/internal/outbound/email"
	"hiring-platform/internal/outbound/risk"
	"hiring-platform/internal/outbound/scoring"
	"hiring-platform/internal/shortlist"
	"hiring-platform/internal/token"
	"hiring-platform/pkg/monitoring"
	"hiring-platform/pkg/utils"
)

// otelProviderShutdown 优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用
type App struct {
	bootstrap *app.Bootstrap
	router    *httpapi.Router
	hertz     *server.Hertz

	dispatcher *email.Dispatcher
	cycler     *automation.Cycler
	scoring    *scoring.Processor

	otelProvider otelProviderShutdown
	cyclerCancel context.CancelFunc
	cyclerDone   chan struct{}
	inProcess    bool
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(ctx context.Context, bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config
	logger := bootstrap.Logger
	store := bootstrap.Store

	sink := audit.NewSink(store, logger)
	resolver := flags.NewResolver(store, logger)

	secret, err := bootstrap.TokenSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("解析令牌签名密钥failed: %w", err)
	}
	tokens := token.NewService(secret,
		utils.ParseDuration(cfg.Token.TTL, token.DefaultTTL), cfg.Token.Issuer)

	// 发件箱：postgres 主存储时借用同一个连接池，否则进程内存队列
	var queue email.Queue
	if pool := bootstrap.PgPool(); pool != nil {
		queue = email.NewPgQueue(pool)
	} else {
		queue = email.NewMemoryQueue()
	}

	// 外部协作方按配置挂接；缺配置的直接为 nil，引擎按无此外设处理
	var cal calendar.Client
	if cfg.Services.Calendar.Endpoint != "" {
		cal = calendar.NewHTTPClient(cfg.Services.Calendar.Endpoint,
			utils.ParseDuration(cfg.Services.Calendar.Timeout, 10*time.Second),
			bootstrap.Cache,
			utils.ParseDuration(cfg.Services.Calendar.CacheTTL, 5*time.Minute))
	}
	var riskClient risk.Client
	if cfg.Services.Risk.Endpoint != "" {
		riskClient = risk.NewHTTPClient(cfg.Services.Risk.Endpoint,
			utils.ParseDuration(cfg.Services.Risk.Timeout, 5*time.Second))
	}

	llmClient, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		logger.Warn("LLM 客户端初始化失败，协商只走规则解析", "error", err)
		llmClient = nil
	}

	interviews := interview.NewEngine(store, tokens, resolver, sink, queue, cal, riskClient, nil, logger,
		interview.Config{
			ConfirmationTTL: utils.ParseDuration(cfg.Scheduling.ConfirmationDeadline, interview.DefaultConfirmationTTL),
			SlotTTL:         utils.ParseDuration(cfg.Scheduling.SlotDeadline, interview.DefaultSlotTTL),
		})
	shortlists := shortlist.NewEngine(store, resolver, sink,
		shortlist.InviterFunc(func(ctx context.Context, applicationID string) error {
			_, err := interviews.SendInvitation(ctx, applicationID)
			return err
		}),
		logger, utils.ParseDuration(cfg.Shortlist.PromotionWait, shortlist.DefaultPromotionFreeze))
	interviews.SetPromoter(shortlists)

	// 协商引擎依赖空闲时段来源；没配日历服务就不启用协商
	var negotiations *negotiation.Engine
	if cal != nil {
		negotiations = negotiation.NewEngine(store, cal, llmClient, resolver, sink, queue, logger,
			negotiation.Config{
				MaxRounds:       cfg.Negotiation.MaxRounds,
				SuggestionLimit: cfg.Negotiation.SuggestionLimit,
			})
	}

	monitor := monitoring.New(monitoring.Config{})

	handler := httpapi.NewHandler(store, interviews, shortlists, negotiations, sink)
	handler.SetMonitor(monitor)
	if cfg.Frontend.BaseURL != "" {
		handler.SetFrontendBaseURL(cfg.Frontend.BaseURL)
	}
	if cal != nil {
		handler.SetCalendar(cal)
	}

	appObj := &App{bootstrap: bootstrap}

	if cfg.Services.Scoring.Endpoint != "" {
		scoringClient := scoring.NewHTTPClient(cfg.Services.Scoring.Endpoint,
			utils.ParseDuration(cfg.Services.Scoring.Timeout, 5*time.Second))
		appObj.scoring = scoring.NewProcessor(scoringClient, store, sink, logger,
			utils.ParseDuration(cfg.Services.Scoring.Timeout, 5*time.Second))
		handler.SetScoring(appObj.scoring)
	}

	mw := middleware.NewMiddleware()
	router := httpapi.NewRouter(handler, mw)
	if cfg.API.CORS.Enable {
		router.SetCORS(cfg.API.CORS.AllowOrigins)
	}
	if cfg.API.Middleware.RateLimit {
		router.SetRateLimit(utils.DefaultInt(cfg.API.Middleware.RateLimitRPS, 100))
	}
	if cfg.API.Middleware.Auth && cfg.API.Middleware.JWTKey != "" {
		timeout := utils.ParseDuration(cfg.API.Middleware.JWTTimeout, time.Hour)
		maxRefresh := utils.ParseDuration(cfg.API.Middleware.JWTMaxRefresh, time.Hour)
		jwtAuth, err := middleware.NewJWTAuth([]byte(cfg.API.Middleware.JWTKey), timeout, maxRefresh)
		if err != nil {
			logger.Warn("JWT 初始化失败，将跳过认证", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			logger.Info("JWT 认证已启用")
		}
	}
	appObj.router = router

	// 循环器与投递循环的归属：memory 存储只有本进程看得到数据，必须随进程跑；
	// postgres 时默认 worker 执行，automation.in_process 可覆盖
	appObj.inProcess = cfg.Storage.Primary.Type != "postgres"
	if cfg.Automation.InProcess != nil {
		appObj.inProcess = *cfg.Automation.InProcess
	}
	if appObj.inProcess {
		cycler, err := automation.New(store, interviews, shortlists, riskClient, queue, resolver, sink, logger,
			automation.Config{
				Period:              utils.ParseDuration(cfg.Automation.CyclePeriod, automation.DefaultPeriod),
				Schedule:            cfg.Automation.Schedule,
				ErrorAlertThreshold: cfg.Automation.ErrorAlertThreshold,
				LeaseEnabled:        cfg.Automation.Lease.Enabled,
				LeaseTTL:            utils.ParseDuration(cfg.Automation.Lease.Duration, automation.DefaultLeaseTTL),
			})
		if err != nil {
			return nil, fmt.Errorf("初始化自动化循环failed: %w", err)
		}
		appObj.cycler = cycler.WithObserver(monitor)

		if cfg.Services.Email.Endpoint != "" {
			sender := email.NewHTTPSender(cfg.Services.Email.Endpoint, cfg.Services.Email.From,
				utils.ParseDuration(cfg.Services.Email.Timeout, 5*time.Second))
			appObj.dispatcher = email.NewDispatcher(queue, sender, email.DispatcherConfig{
				WorkerID: "api",
				RPS:      cfg.Services.Email.DispatchRPS,
			}, logger)
		}
	}

	return appObj, nil
}

// Run 启动 HTTP 服务，addr 如 ":8080"。阻塞到服务退出。
func (a *App) Run(addr string) error {
	logger := a.bootstrap.Logger
	cfg := a.bootstrap.Config
	logger.Info("API 服务启动", "addr", addr, "in_process_automation", a.inProcess)

	// Hertz 走 slog 扩展，与 bootstrap 日志配置对齐
	output := os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件failed: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	switch cfg.Log.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	// 可选链路追踪。追踪中间件必须在 Build 前挂上才覆盖全部路由
	if cfg.Monitoring.Tracing.Enable {
		serviceName := utils.CoalesceString(cfg.Monitoring.Tracing.ServiceName, "hiring-api")
		exportEndpoint := utils.CoalesceString(cfg.Monitoring.Tracing.ExportEndpoint,
			os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if cfg.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
			tracerOpt, tracerCfg := hertztracing.NewServerTracer()
			a.router.SetTracing(hertztracing.ServerMiddleware(tracerCfg))
			a.hertz = a.router.Build(addr, tracerOpt)
			logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		} else {
			a.hertz = a.router.Build(addr)
		}
	} else {
		a.hertz = a.router.Build(addr)
	}

	if a.dispatcher != nil {
		a.dispatcher.Start(context.Background())
	}
	if a.cycler != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.cyclerCancel = cancel
		a.cyclerDone = make(chan struct{})
		go func() {
			defer close(a.cyclerDone)
			a.cycler.Run(ctx)
		}()
	}

	return a.hertz.Run()
}

// Shutdown 优雅关闭：停循环器（做完在途一轮）、停投递、等评分写回，再关 HTTP
func (a *App) Shutdown(ctx context.Context) error {
	if a.cyclerCancel != nil {
		a.cyclerCancel()
		select {
		case <-a.cyclerDone:
		case <-ctx.Done():
		}
	}
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.scoring != nil {
		a.scoring.Wait()
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
