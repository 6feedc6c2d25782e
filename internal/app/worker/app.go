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

// Package worker Worker 应用：自动化循环与邮件投递的宿主进程。
// 与 API 共享 postgres 存储时构成控制面/数据面分离——API 只写状态，
// 到期扫描、候补修复、提醒与风险刷新都在这里执行。多副本部署时
// 打开 automation.lease，由存储租约保证同一时刻只有一个副本扫描。
package worker

import (
	"context"
	"fmt"
	"time"

	"hiring-platform/internal/app"
	"hiring-platform/internal/audit"
	"hiring-platform/internal/automation"
	"hiring-platform/internal/flags"
	"hiring-platform/internal/interview"
	"hiring-platform/internal/outbound/calendar"
	"hiring-platform/internal/outbound/email"
	"hiring-platform/internal/outbound/risk"
	"hiring-platform/internal/shortlist"
	"hiring-platform/internal/token"
	"hiring-platform/pkg/config"
	"hiring-platform/pkg/utils"
)

// App Worker 应用
type App struct {
	bootstrap  *app.Bootstrap
	cycler     *automation.Cycler
	dispatcher *email.Dispatcher

	cyclerCancel context.CancelFunc
	cyclerDone   chan struct{}
}

// NewApp 创建 Worker 应用。存储为 memory 时循环只看得到本进程的数据，
// 仅适合本地调试；生产部署应指向与 API 相同的 postgres。
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	bootstrap, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger := bootstrap.Logger
	store := bootstrap.Store
	cfg = bootstrap.Config

	if cfg.Storage.Primary.Type != "postgres" {
		logger.Warn("worker 使用 memory 存储：与 API 进程不共享数据，仅用于调试")
	}

	sink := audit.NewSink(store, logger)
	resolver := flags.NewResolver(store, logger)

	secret, err := bootstrap.TokenSecret(ctx)
	if err != nil {
		bootstrap.Close()
		return nil, fmt.Errorf("解析令牌签名密钥failed: %w", err)
	}
	tokens := token.NewService(secret,
		utils.ParseDuration(cfg.Token.TTL, token.DefaultTTL), cfg.Token.Issuer)

	var queue email.Queue
	if pool := bootstrap.PgPool(); pool != nil {
		queue = email.NewPgQueue(pool)
	} else {
		queue = email.NewMemoryQueue()
	}

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

	// 循环触发的到期处理会走完整的拒绝→转正→再邀约链路，
	// 所以 worker 同样装配两个引擎并互相回填
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

	cycler, err := automation.New(store, interviews, shortlists, riskClient, queue, resolver, sink, logger,
		automation.Config{
			Period:              utils.ParseDuration(cfg.Automation.CyclePeriod, automation.DefaultPeriod),
			Schedule:            cfg.Automation.Schedule,
			ErrorAlertThreshold: cfg.Automation.ErrorAlertThreshold,
			LeaseEnabled:        cfg.Automation.Lease.Enabled,
			LeaseTTL:            utils.ParseDuration(cfg.Automation.Lease.Duration, automation.DefaultLeaseTTL),
		})
	if err != nil {
		bootstrap.Close()
		return nil, fmt.Errorf("初始化自动化循环failed: %w", err)
	}

	appObj := &App{bootstrap: bootstrap, cycler: cycler}
	if cfg.Services.Email.Endpoint != "" {
		sender := email.NewHTTPSender(cfg.Services.Email.Endpoint, cfg.Services.Email.From,
			utils.ParseDuration(cfg.Services.Email.Timeout, 5*time.Second))
		appObj.dispatcher = email.NewDispatcher(queue, sender, email.DispatcherConfig{
			WorkerID: "worker",
			RPS:      cfg.Services.Email.DispatchRPS,
		}, logger)
	} else {
		logger.Warn("未配置邮件服务端点，发件箱只入队不投递")
	}
	return appObj, nil
}

// Start 启动循环器与投递循环
func (a *App) Start() error {
	a.bootstrap.Logger.Info("worker 应用启动")
	if a.dispatcher != nil {
		a.dispatcher.Start(context.Background())
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cyclerCancel = cancel
	a.cyclerDone = make(chan struct{})
	go func() {
		defer close(a.cyclerDone)
		a.cycler.Run(ctx)
	}()
	return nil
}

// Shutdown 优雅关闭：循环器做完在途一轮，投递完手头邮件，再关存储
func (a *App) Shutdown(ctx context.Context) error {
	a.bootstrap.Logger.Info("worker 应用关闭中")
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
	return a.bootstrap.Close()
}
