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

// Package monitoring 进程内健康监控：环形缓冲保留 24 小时样本，
// 按窗口计算各端点 p95、错误率、自动化成功率与循环均时，
// 聚合为 healthy / degraded / critical 三档。单进程自用，不跨进程共享。
package monitoring

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// 样本种类
type kind uint8

const (
	kindRequest kind = iota
	kindAutomation
	kindCycle
	kindOutbound
)

// 缺省阈值与窗口
const (
	DefaultCapacity       = 65536
	DefaultRetention      = 24 * time.Hour
	DefaultLatencyWindow  = 60 * time.Minute
	DefaultLatencyWarn    = 2 * time.Second
	DefaultErrorWindow    = 10 * time.Minute
	DefaultErrorCritical  = 0.05
	DefaultSuccessWindow  = 60 * time.Minute
	DefaultSuccessWarn    = 0.90
	DefaultCycleAvgWarn   = 60 * time.Second
	minRequestsForP95     = 5
	minRequestsForErrRate = 5
)

// 健康档位
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// 告警级别
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// sample 单条观测，所有种类共用一个槽型
type sample struct {
	at    time.Time
	kind  kind
	label string // 端点路由 / 自动化任务 / 外呼服务
	dur   time.Duration
	ok    bool
}

// Config 监控参数；零值取缺省
type Config struct {
	Capacity      int
	Retention     time.Duration
	LatencyWindow time.Duration
	LatencyWarn   time.Duration
	ErrorWindow   time.Duration
	ErrorCritical float64
	SuccessWindow time.Duration
	SuccessWarn   float64
	CycleAvgWarn  time.Duration
}

// Alert 一条越限告警
type Alert struct {
	Severity  string  `json:"severity"`
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Health 系统健康快照
type Health struct {
	Status  string         `json:"status"`
	Metrics map[string]any `json:"metrics"`
	Alerts  []Alert        `json:"alerts"`
}

// Monitor 环形样本缓冲。写满后覆盖最旧样本，查询时再按保留期过滤，
// 容量与时间两道上限谁先到谁生效。
type Monitor struct {
	mu   sync.Mutex
	cfg  Config
	ring []sample
	next int
	full bool
	now  func() time.Time
}

// New 创建监控器
func New(cfg Config) *Monitor {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = DefaultLatencyWindow
	}
	if cfg.LatencyWarn <= 0 {
		cfg.LatencyWarn = DefaultLatencyWarn
	}
	if cfg.ErrorWindow <= 0 {
		cfg.ErrorWindow = DefaultErrorWindow
	}
	if cfg.ErrorCritical <= 0 {
		cfg.ErrorCritical = DefaultErrorCritical
	}
	if cfg.SuccessWindow <= 0 {
		cfg.SuccessWindow = DefaultSuccessWindow
	}
	if cfg.SuccessWarn <= 0 {
		cfg.SuccessWarn = DefaultSuccessWarn
	}
	if cfg.CycleAvgWarn <= 0 {
		cfg.CycleAvgWarn = DefaultCycleAvgWarn
	}
	return &Monitor{
		cfg:  cfg,
		ring: make([]sample, cfg.Capacity),
		now:  time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (m *Monitor) WithClock(clock func() time.Time) *Monitor {
	m.now = clock
	return m
}

// RecordRequest 记录一次 HTTP 请求：端点、耗时、是否成功（5xx 为失败）
func (m *Monitor) RecordRequest(endpoint string, d time.Duration, ok bool) {
	m.append(sample{kind: kindRequest, label: endpoint, dur: d, ok: ok})
}

// RecordAutomation 记录一次自动化动作结果
func (m *Monitor) RecordAutomation(action string, ok bool) {
	m.append(sample{kind: kindAutomation, label: action, ok: ok})
}

// RecordCycle 记录一轮后台循环耗时
func (m *Monitor) RecordCycle(d time.Duration) {
	m.append(sample{kind: kindCycle, dur: d, ok: true})
}

// RecordOutbound 记录一次外呼（邮件/日历/风险/LLM）结果
func (m *Monitor) RecordOutbound(service string, ok bool) {
	m.append(sample{kind: kindOutbound, label: service, ok: ok})
}

func (m *Monitor) append(s sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.at = m.now()
	m.ring[m.next] = s
	m.next++
	if m.next == len(m.ring) {
		m.next = 0
		m.full = true
	}
}

// SystemHealth 计算当前健康档位。任一 critical 告警 → critical，
// 仅有 warning → degraded，否则 healthy。
func (m *Monitor) SystemHealth() Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.cfg.Retention)
	var requests, autos, cycles, outbounds []sample
	m.eachLocked(func(s sample) {
		if s.at.Before(cutoff) {
			return
		}
		switch s.kind {
		case kindRequest:
			requests = append(requests, s)
		case kindAutomation:
			autos = append(autos, s)
		case kindCycle:
			cycles = append(cycles, s)
		case kindOutbound:
			outbounds = append(outbounds, s)
		}
	})

	var alerts []Alert
	metricsOut := map[string]any{}

	// 各端点近 60 分钟 p95
	p95s := endpointP95(requests, now.Add(-m.cfg.LatencyWindow))
	endpointMetrics := map[string]float64{}
	for _, ep := range sortedKeys(p95s) {
		p95 := p95s[ep]
		endpointMetrics[ep] = float64(p95.Milliseconds())
		if p95 > m.cfg.LatencyWarn {
			alerts = append(alerts, Alert{
				Severity:  SeverityWarning,
				Code:      "slow_endpoint",
				Message:   fmt.Sprintf("endpoint %s p95 %dms", ep, p95.Milliseconds()),
				Value:     float64(p95.Milliseconds()),
				Threshold: float64(m.cfg.LatencyWarn.Milliseconds()),
			})
		}
	}
	metricsOut["endpoint_p95_ms"] = endpointMetrics

	// 近 10 分钟错误率
	errRate, errTotal := failureRate(requests, now.Add(-m.cfg.ErrorWindow))
	metricsOut["error_rate_10m"] = errRate
	metricsOut["request_count_10m"] = errTotal
	if errTotal >= minRequestsForErrRate && errRate > m.cfg.ErrorCritical {
		alerts = append(alerts, Alert{
			Severity:  SeverityCritical,
			Code:      "high_error_rate",
			Message:   fmt.Sprintf("error rate %.1f%% over last %s", errRate*100, m.cfg.ErrorWindow),
			Value:     errRate,
			Threshold: m.cfg.ErrorCritical,
		})
	}

	// 近 60 分钟自动化成功率
	failRate, autoTotal := failureRate(autos, now.Add(-m.cfg.SuccessWindow))
	successRate := 1 - failRate
	metricsOut["automation_success_60m"] = successRate
	metricsOut["automation_count_60m"] = autoTotal
	if autoTotal > 0 && successRate < m.cfg.SuccessWarn {
		alerts = append(alerts, Alert{
			Severity:  SeverityWarning,
			Code:      "low_automation_success",
			Message:   fmt.Sprintf("automation success %.1f%% over last %s", successRate*100, m.cfg.SuccessWindow),
			Value:     successRate,
			Threshold: m.cfg.SuccessWarn,
		})
	}

	// 保留期内循环均时
	avgCycle := avgDuration(cycles)
	metricsOut["avg_cycle_seconds"] = avgCycle.Seconds()
	metricsOut["cycle_count"] = len(cycles)
	if len(cycles) > 0 && avgCycle > m.cfg.CycleAvgWarn {
		alerts = append(alerts, Alert{
			Severity:  SeverityWarning,
			Code:      "slow_cycle",
			Message:   fmt.Sprintf("average cycle %.1fs", avgCycle.Seconds()),
			Value:     avgCycle.Seconds(),
			Threshold: m.cfg.CycleAvgWarn.Seconds(),
		})
	}

	// 外呼失败率仅入指标，不单列告警；失败最终会体现在错误率与成功率上
	obFail, obTotal := failureRate(outbounds, cutoff)
	metricsOut["outbound_failure_24h"] = obFail
	metricsOut["outbound_count_24h"] = obTotal

	status := StatusHealthy
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			status = StatusCritical
			break
		}
		status = StatusDegraded
	}
	return Health{Status: status, Metrics: metricsOut, Alerts: alerts}
}

// eachLocked 按写入序遍历有效样本；调用方须持锁
func (m *Monitor) eachLocked(fn func(sample)) {
	if m.full {
		for i := m.next; i < len(m.ring); i++ {
			fn(m.ring[i])
		}
	}
	for i := 0; i < m.next; i++ {
		fn(m.ring[i])
	}
}

// endpointP95 近窗口内按端点聚合 p95；样本过少的端点不参与
func endpointP95(requests []sample, since time.Time) map[string]time.Duration {
	grouped := map[string][]time.Duration{}
	for _, s := range requests {
		if s.at.Before(since) {
			continue
		}
		grouped[s.label] = append(grouped[s.label], s.dur)
	}
	out := map[string]time.Duration{}
	for ep, durs := range grouped {
		if len(durs) < minRequestsForP95 {
			continue
		}
		sort.Slice(durs, func(i, j int) bool { return durs[i] < durs[j] })
		idx := (len(durs)*95+99)/100 - 1
		if idx < 0 {
			idx = 0
		}
		out[ep] = durs[idx]
	}
	return out
}

func failureRate(samples []sample, since time.Time) (rate float64, total int) {
	var failures int
	for _, s := range samples {
		if s.at.Before(since) {
			continue
		}
		total++
		if !s.ok {
			failures++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(failures) / float64(total), total
}

func avgDuration(samples []sample) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s.dur
	}
	return sum / time.Duration(len(samples))
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
