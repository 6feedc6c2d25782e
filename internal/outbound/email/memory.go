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

	"github.com/google/uuid"

	perrors "hiring-platform/pkg/errors"
)

// MemoryQueue 内存发件箱，单进程部署与测试用
type MemoryQueue struct {
	mu    sync.Mutex
	items map[string]*Message
	order []string // 入队顺序
	clock func() time.Time
}

// NewMemoryQueue 创建内存发件箱
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		items: make(map[string]*Message),
		clock: time.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, to, template string, data map[string]any) (string, error) {
	if to == "" || template == "" {
		return "", perrors.Invalidf("email to and template required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	id := "mail-" + uuid.New().String()
	q.items[id] = &Message{
		ID:        id,
		To:        to,
		Template:  template,
		Data:      data,
		Status:    StatusPending,
		CreatedAt: q.clock(),
	}
	q.order = append(q.order, id)
	return id, nil
}

func (q *MemoryQueue) ClaimOne(ctx context.Context, workerID string) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		m := q.items[id]
		if m.Status != StatusPending {
			continue
		}
		m.Status = StatusClaimed
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (q *MemoryQueue) MarkSent(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, exists := q.items[id]
	if !exists {
		return perrors.NotFoundf("email %s", id)
	}
	now := q.clock()
	m.Status = StatusSent
	m.SentAt = &now
	return nil
}

func (q *MemoryQueue) MarkFailed(ctx context.Context, id string, errMsg string, requeue bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, exists := q.items[id]
	if !exists {
		return perrors.NotFoundf("email %s", id)
	}
	m.Attempts++
	m.LastError = errMsg
	if requeue {
		m.Status = StatusPending
	} else {
		m.Status = StatusFailed
	}
	return nil
}

func (q *MemoryQueue) CountByStatus(ctx context.Context) (map[string]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]int)
	for _, m := range q.items {
		out[m.Status]++
	}
	return out, nil
}

// Sent 返回已投递邮件（测试断言用）
func (q *MemoryQueue) Sent() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Message
	for _, id := range q.order {
		if m := q.items[id]; m.Status == StatusSent {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out
}

// All 返回全部邮件快照（测试断言用）
func (q *MemoryQueue) All() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Message, 0, len(q.order))
	for _, id := range q.order {
		cp := *q.items[id]
		out = append(out, &cp)
	}
	return out
}
