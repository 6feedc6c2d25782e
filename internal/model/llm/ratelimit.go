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

package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hiring-platform/pkg/metrics"
)

// LimitConfig provider 维度限流配置
type LimitConfig struct {
	TokensPerMinute   int     `yaml:"tokens_per_minute"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	MaxConcurrent     int     `yaml:"max_concurrent"`
}

// Limiter provider 维度的限流器：RPS + token 预算 + 并发上限。
// 协商高峰（候选人批量回信）不会冲垮模型配额。
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*providerLimiter
	defaults LimitConfig
}

type providerLimiter struct {
	requests  *rate.Limiter
	tokens    *rate.Limiter
	semaphore chan struct{}
}

// NewLimiter 创建限流器；defaults 为 nil 时用内置默认值
func NewLimiter(defaults *LimitConfig) *Limiter {
	if defaults == nil {
		defaults = &LimitConfig{
			TokensPerMinute:   90000,
			RequestsPerMinute: 3500,
			MaxConcurrent:     50,
		}
	}
	return &Limiter{
		limiters: make(map[string]*providerLimiter),
		defaults: *defaults,
	}
}

func (l *Limiter) forProvider(provider string) *providerLimiter {
	l.mu.RLock()
	pl, ok := l.limiters[provider]
	l.mu.RUnlock()
	if ok {
		return pl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if pl, ok = l.limiters[provider]; ok {
		return pl
	}
	pl = &providerLimiter{}
	if l.defaults.RequestsPerMinute > 0 {
		rps := l.defaults.RequestsPerMinute / 60.0
		burst := int(rps * 2)
		if burst < 1 {
			burst = 1
		}
		pl.requests = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if l.defaults.TokensPerMinute > 0 {
		tps := float64(l.defaults.TokensPerMinute) / 60.0
		burst := l.defaults.TokensPerMinute / 60 * 2
		if burst < 1 {
			burst = 1
		}
		pl.tokens = rate.NewLimiter(rate.Limit(tps), burst)
	}
	if l.defaults.MaxConcurrent > 0 {
		pl.semaphore = make(chan struct{}, l.defaults.MaxConcurrent)
	}
	l.limiters[provider] = pl
	return pl
}

// Wait 等待执行许可：先过 RPS，再预扣 token 预算，最后占并发位
func (l *Limiter) Wait(ctx context.Context, provider string, estimatedTokens int) error {
	pl := l.forProvider(provider)

	if pl.requests != nil {
		if err := pl.requests.Wait(ctx); err != nil {
			return fmt.Errorf("request rate limit wait failed: %w", err)
		}
	}
	if pl.tokens != nil && estimatedTokens > 0 {
		n := estimatedTokens
		if burst := pl.tokens.Burst(); n > burst {
			n = burst
		}
		if err := pl.tokens.WaitN(ctx, n); err != nil {
			return fmt.Errorf("token budget wait failed: %w", err)
		}
	}
	if pl.semaphore != nil {
		select {
		case pl.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Release 释放并发位，调用结束后必须配对调用
func (l *Limiter) Release(provider string) {
	l.mu.RLock()
	pl, ok := l.limiters[provider]
	l.mu.RUnlock()
	if !ok || pl.semaphore == nil {
		return
	}
	select {
	case <-pl.semaphore:
	default:
	}
}

// Limited 包装任意 Client，调用前后执行限流
type Limited struct {
	inner   Client
	limiter *Limiter
}

// NewLimited 创建带限流的客户端；limiter 为 nil 时退化为直接调用
func NewLimited(inner Client, limiter *Limiter) *Limited {
	return &Limited{inner: inner, limiter: limiter}
}

// Generate 实现 Client.Generate
func (c *Limited) Generate(prompt string, options GenerateOptions) (string, error) {
	return c.GenerateWithContext(context.Background(), prompt, options)
}

// GenerateWithContext 实现 Client.GenerateWithContext
func (c *Limited) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	if err := c.acquire(ctx, len(prompt), options.MaxTokens); err != nil {
		return "", err
	}
	defer c.release()
	return c.inner.GenerateWithContext(ctx, prompt, options)
}

// Chat 实现 Client.Chat
func (c *Limited) Chat(messages []Message, options GenerateOptions) (string, error) {
	return c.ChatWithContext(context.Background(), messages, options)
}

// ChatWithContext 实现 Client.ChatWithContext
func (c *Limited) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	if err := c.acquire(ctx, chars, options.MaxTokens); err != nil {
		return "", err
	}
	defer c.release()
	return c.inner.ChatWithContext(ctx, messages, options)
}

func (c *Limited) acquire(ctx context.Context, promptChars, maxTokens int) error {
	if c.limiter == nil {
		return nil
	}
	start := time.Now()
	if err := c.limiter.Wait(ctx, c.inner.Provider(), estimateTokens(promptChars, maxTokens)); err != nil {
		return err
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		metrics.RateLimitWaitSeconds.WithLabelValues("llm", c.inner.Provider()).Observe(waited.Seconds())
	}
	return nil
}

func (c *Limited) release() {
	if c.limiter != nil {
		c.limiter.Release(c.inner.Provider())
	}
}

// Model 返回底层模型名称
func (c *Limited) Model() string { return c.inner.Model() }

// Provider 返回底层提供商名称
func (c *Limited) Provider() string { return c.inner.Provider() }

// estimateTokens 粗略估算请求 token 数（4 字符 ≈ 1 token）
func estimateTokens(promptChars, maxTokens int) int {
	estimated := promptChars / 4
	if maxTokens > 0 {
		estimated += maxTokens
	}
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
