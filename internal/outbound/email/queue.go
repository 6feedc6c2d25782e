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

// Package email 邮件发件箱：引擎只入队，投递由独立 Dispatcher 出队执行，
// 状态迁移从不等待外部邮件服务。
package email

import (
	"context"
	"time"
)

// 邮件模板名，与外部邮件服务约定一致
const (
	TemplateInvitation    = "invitation"
	TemplateSlotSelection = "slot_selection"
	TemplateConfirmation  = "confirmation"
	TemplateReminder      = "reminder"
	TemplatePromotion     = "promotion"
	TemplateEscalation    = "escalation"
)

// 队列内状态
const (
	StatusPending = "pending"
	StatusClaimed = "claimed"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Message 一封待投递邮件
type Message struct {
	ID        string         `json:"id"`
	To        string         `json:"to"`
	Template  string         `json:"template"`
	Data      map[string]any `json:"data"`
	Status    string         `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
}

// Queue 发件箱队列：API/引擎入队，Dispatcher 认领并投递
type Queue interface {
	// Enqueue 入队一封 pending 邮件，返回 id
	Enqueue(ctx context.Context, to, template string, data map[string]any) (string, error)
	// ClaimOne 原子认领最早的一封 pending；队列为空返回 nil, nil
	ClaimOne(ctx context.Context, workerID string) (*Message, error)
	// MarkSent 投递成功
	MarkSent(ctx context.Context, id string) error
	// MarkFailed 投递失败；requeue=true 时退回 pending 供下一轮重试
	MarkFailed(ctx context.Context, id string, errMsg string, requeue bool) error
	// CountByStatus 按状态计数（监控用）
	CountByStatus(ctx context.Context) (map[string]int, error)
}
