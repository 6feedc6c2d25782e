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

package scoring

import (
	"context"
	"sync"
	"time"

	"hiring-platform/internal/audit"
	"hiring-platform/internal/storage"
	"hiring-platform/pkg/log"
)

// writeBackTimeout 评分结果写回的独立期限
const writeBackTimeout = 3 * time.Second

// applicationStore Processor 需要的最小存储面
type applicationStore interface {
	GetApplication(ctx context.Context, id string) (*storage.Application, error)
	UpdateApplication(ctx context.Context, a *storage.Application) error
}

// Processor 异步评分编排：调评分服务并把结果写回申请。
// 评分失败不外抛：fit_score=0、ai_processed=true，错误进自动化日志。
type Processor struct {
	client  Client
	store   applicationStore
	sink    *audit.Sink
	logger  *log.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewProcessor 创建评分编排器；timeout<=0 默认 5s
func NewProcessor(client Client, store applicationStore, sink *audit.Sink, logger *log.Logger, timeout time.Duration) *Processor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger, _ = log.NewLogger(nil)
	}
	return &Processor{
		client:  client,
		store:   store,
		sink:    sink,
		logger:  logger,
		timeout: timeout,
	}
}

// ProcessAsync 后台评分一份申请。与请求生命周期解耦，用独立上下文。
func (p *Processor) ProcessAsync(app *storage.Application, job *storage.Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.Process(ctx, app, job)
	}()
}

// Process 同步评分一份申请并写回结果
func (p *Processor) Process(ctx context.Context, app *storage.Application, job *storage.Job) {
	jobDescription := ""
	if job != nil {
		jobDescription = job.Description
	}

	result, err := p.client.ProcessResume(ctx, app.ID, app.ResumeURL, jobDescription)

	// 评分超时会把 ctx 一并耗尽；写回走脱离取消链的新期限，
	// 保证失败约定（fit_score=0、ai_processed=true）一定落库
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
	defer cancel()

	if err != nil {
		p.logger.Warn("简历评分失败", "application_id", app.ID, "error", err)
		p.writeBack(wctx, app.ID, 0, "")
		p.sink.Record(wctx, audit.Event{
			JobID:      app.JobID,
			ActionType: audit.ActionScoringFailed,
			Details: map[string]any{
				"application_id": app.ID,
				"error":          err.Error(),
			},
		})
		return
	}

	p.writeBack(wctx, app.ID, result.FitScore, result.Summary)
	p.sink.Record(wctx, audit.Event{
		JobID:      app.JobID,
		ActionType: audit.ActionApplicationScored,
		Details: map[string]any{
			"application_id": app.ID,
			"fit_score":      result.FitScore,
		},
	})
}

// writeBack 读-改-写申请行；重取确保不覆盖并发的分区变更
func (p *Processor) writeBack(ctx context.Context, applicationID string, score float64, summary string) {
	current, err := p.store.GetApplication(ctx, applicationID)
	if err != nil {
		p.logger.Error("评分写回读取申请失败", "application_id", applicationID, "error", err)
		return
	}
	current.FitScore = &score
	current.AISummary = summary
	current.AIProcessed = true
	if err := p.store.UpdateApplication(ctx, current); err != nil {
		p.logger.Error("评分写回失败", "application_id", applicationID, "error", err)
	}
}

// Wait 等待在途评分完成（优雅退出用）
func (p *Processor) Wait() {
	p.wg.Wait()
}
