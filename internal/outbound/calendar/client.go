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

// Package calendar 日历服务客户端：拉取招聘官空闲时段、创建面试日历事件。
// 空闲时段只保留工作日营业时间内的，短 TTL 缓存降低外部调用频率。
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"

	"hiring-platform/internal/storage/cache"
	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/metrics"
)

// 营业时间窗口：工作日 09:00–18:00（时段所在时区的本地时间）
const (
	BusinessHourStart = 9
	BusinessHourEnd   = 18
)

// Slot 一个可约时段
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EventRequest 创建日历事件的请求
type EventRequest struct {
	RecruiterID    string    `json:"recruiter_id"`
	CandidateID    string    `json:"candidate_id"`
	CandidateEmail string    `json:"candidate_email,omitempty"`
	Title          string    `json:"title,omitempty"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

// Client 日历服务能力
type Client interface {
	// GetFreeSlots 招聘官在 [from, to] 内的空闲时段，已过滤营业时间
	GetFreeSlots(ctx context.Context, recruiterID string, from, to time.Time) ([]Slot, error)
	// CreateEvent 创建日历事件，返回事件引用
	CreateEvent(ctx context.Context, req EventRequest) (string, error)
}

// HTTPClient 通过外部日历服务的 HTTP 接口实现 Client
type HTTPClient struct {
	endpoint string
	client   *resty.Client
	cache    cache.Store
	cacheTTL time.Duration
}

// NewHTTPClient 创建日历客户端；timeout<=0 默认 10s，store 为 nil 时不缓存
func NewHTTPClient(endpoint string, timeout time.Duration, store cache.Store, cacheTTL time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	client := resty.New()
	client.SetTimeout(timeout)
	return &HTTPClient{
		endpoint: endpoint,
		client:   client,
		cache:    store,
		cacheTTL: cacheTTL,
	}
}

type freeSlotsResponse struct {
	Slots []Slot `json:"slots"`
}

type createEventResponse struct {
	EventRef string `json:"event_ref"`
}

// GetFreeSlots 拉取空闲时段。缓存命中直接返回；未命中时带退避重试请求服务，
// 过滤出营业时间内的时段后回填缓存。
func (c *HTTPClient) GetFreeSlots(ctx context.Context, recruiterID string, from, to time.Time) ([]Slot, error) {
	if recruiterID == "" {
		return nil, perrors.Invalidf("recruiter id required")
	}
	key := fmt.Sprintf("calendar:slots:%s:%d:%d", recruiterID, from.Unix(), to.Unix())
	if c.cache != nil {
		var cached []Slot
		if err := c.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	var slots []Slot
	err := retry.Do(
		func() error {
			var out freeSlotsResponse
			resp, err := c.client.R().
				SetContext(ctx).
				SetQueryParams(map[string]string{
					"recruiter": recruiterID,
					"from":      from.Format(time.RFC3339),
					"to":        to.Format(time.RFC3339),
				}).
				SetResult(&out).
				Get(c.endpoint + "/free-slots")
			if err != nil {
				return perrors.Transientf("calendar service: %v", err)
			}
			if resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests {
				return perrors.Transientf("calendar service status %d", resp.StatusCode())
			}
			if resp.StatusCode() != http.StatusOK {
				return perrors.Invalidf("calendar service status %d: %s", resp.StatusCode(), resp.String())
			}
			slots = out.Slots
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return perrors.Is(err, perrors.ErrTransient) }),
		retry.Context(ctx),
	)
	if err != nil {
		metrics.OutboundRequestTotal.WithLabelValues("calendar", "failure").Inc()
		return nil, err
	}
	metrics.OutboundRequestTotal.WithLabelValues("calendar", "success").Inc()

	slots = FilterBusinessHours(slots)
	if c.cache != nil {
		_ = c.cache.Set(ctx, key, slots, c.cacheTTL)
	}
	return slots, nil
}

// CreateEvent 创建日历事件，瞬态失败带退避重试
func (c *HTTPClient) CreateEvent(ctx context.Context, req EventRequest) (string, error) {
	if req.RecruiterID == "" || req.Start.IsZero() || req.End.IsZero() {
		return "", perrors.Invalidf("recruiter id and start/end required")
	}

	var ref string
	err := retry.Do(
		func() error {
			var out createEventResponse
			resp, err := c.client.R().
				SetContext(ctx).
				SetHeader("Content-Type", "application/json").
				SetBody(req).
				SetResult(&out).
				Post(c.endpoint + "/events")
			if err != nil {
				return perrors.Transientf("calendar service: %v", err)
			}
			switch {
			case resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusCreated:
				ref = out.EventRef
				return nil
			case resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests:
				return perrors.Transientf("calendar service status %d", resp.StatusCode())
			default:
				return perrors.Invalidf("calendar service status %d: %s", resp.StatusCode(), resp.String())
			}
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return perrors.Is(err, perrors.ErrTransient) }),
		retry.Context(ctx),
	)
	if err != nil {
		metrics.OutboundRequestTotal.WithLabelValues("calendar", "failure").Inc()
		return "", err
	}
	if ref == "" {
		metrics.OutboundRequestTotal.WithLabelValues("calendar", "failure").Inc()
		return "", perrors.Transientf("calendar service returned empty event_ref")
	}
	metrics.OutboundRequestTotal.WithLabelValues("calendar", "success").Inc()
	return ref, nil
}

// WithinBusinessHours 时段是否完整落在工作日营业时间内。
// 按时段自带时区的本地时间判断；跨 18:00 或跨天的时段视为超出。
func WithinBusinessHours(start, end time.Time) bool {
	if !start.Before(end) {
		return false
	}
	if start.Weekday() == time.Saturday || start.Weekday() == time.Sunday {
		return false
	}
	if start.Hour() < BusinessHourStart {
		return false
	}
	// 结束边界：当天 18:00 整点可触达
	dayEnd := time.Date(start.Year(), start.Month(), start.Day(), BusinessHourEnd, 0, 0, 0, start.Location())
	return !end.After(dayEnd)
}

// FilterBusinessHours 只保留营业时间内的时段，保持原顺序
func FilterBusinessHours(slots []Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if WithinBusinessHours(s.Start, s.End) {
			out = append(out, s)
		}
	}
	return out
}
