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

package email

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"

	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/log"
	"hiring-platform/pkg/metrics"
)

// DispatcherConfig 出队投递配置
type DispatcherConfig struct {
	WorkerID     string
	RPS          int           // 出队速率上限，<=0 默认 5
	PollInterval time.Duration // 空队列时的轮询间隔，<=0 默认 2s
	MaxAttempts  int           // 单封邮件的入队内重试上限，<=0 默认 5
	RetryDelay   time.Duration // 单次投递内退避基数，<=0 默认 1s（1s/2s/4s）
}

// Dispatcher 发件箱出队投递循环。限速认领 pending 邮件逐封投递；
// Transient 失败退回队列等下一轮，其余失败置为 failed。
type Dispatcher struct {
	queue   Queue
	sender  Sender
	config  DispatcherConfig
	limiter *rate.Limiter
	logger  *log.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher 创建投递循环；logger 为 nil 时使用默认配置
func NewDispatcher(queue Queue, sender Sender, config DispatcherConfig, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger, _ = log.NewLogger(nil)
	}
	if config.RPS <= 0 {
		config.RPS = 5
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.WorkerID == "" {
		config.WorkerID = "dispatcher"
	}
	return &Dispatcher{
		queue:   queue,
		sender:  sender,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RPS), 1),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start 启动出队循环
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			msg, err := d.queue.ClaimOne(ctx, d.config.WorkerID)
			if err != nil {
				d.logger.Warn("认领邮件失败", "error", err)
				d.sleep()
				continue
			}
			if msg == nil {
				d.sleep()
				continue
			}
			d.deliver(ctx, msg)
		}
	}()
}

// deliver 投递一封：有界退避重试后落 MarkSent / MarkFailed
func (d *Dispatcher) deliver(ctx context.Context, msg *Message) {
	err := retry.Do(
		func() error { return d.sender.Send(ctx, msg) },
		retry.Attempts(3),
		retry.Delay(d.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return perrors.Is(err, perrors.ErrTransient) }),
		retry.Context(ctx),
	)
	if err == nil {
		if err := d.queue.MarkSent(ctx, msg.ID); err != nil {
			d.logger.Warn("标记邮件已投递失败", "id", msg.ID, "error", err)
		}
		metrics.EmailDispatchTotal.WithLabelValues("sent").Inc()
		d.logger.Info("邮件已投递", "id", msg.ID, "template", msg.Template, "to", msg.To)
		return
	}

	requeue := perrors.Is(err, perrors.ErrTransient) && msg.Attempts+1 < d.config.MaxAttempts
	if markErr := d.queue.MarkFailed(ctx, msg.ID, err.Error(), requeue); markErr != nil {
		d.logger.Warn("标记邮件失败状态失败", "id", msg.ID, "error", markErr)
	}
	if requeue {
		metrics.EmailDispatchTotal.WithLabelValues("retried").Inc()
		d.logger.Warn("邮件投递失败，退回队列", "id", msg.ID, "attempts", msg.Attempts+1, "error", err)
	} else {
		metrics.EmailDispatchTotal.WithLabelValues("failed").Inc()
		d.logger.Error("邮件投递失败，放弃", "id", msg.ID, "template", msg.Template, "error", err)
	}
}

func (d *Dispatcher) sleep() {
	select {
	case <-d.stopCh:
	case <-time.After(d.config.PollInterval):
	}
}

// Stop 停止循环并等待在投邮件处理完
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}
