// Copyright 2026 fanjia1024

package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	monitor *Monitor
	clock   time.Time
}

func newFixture(cfg Config) *fixture {
	f := &fixture{clock: monday}
	f.monitor = New(cfg).WithClock(func() time.Time { return f.clock })
	return f
}

func TestSystemHealth_EmptyIsHealthy(t *testing.T) {
	f := newFixture(Config{})

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Empty(t, health.Alerts)
	assert.Equal(t, 0, health.Metrics["request_count_10m"])
}

func TestSystemHealth_SlowEndpointDegrades(t *testing.T) {
	f := newFixture(Config{})
	for i := 0; i < 10; i++ {
		f.monitor.RecordRequest("/api/v1/jobs/:jobId/shortlist", 3*time.Second, true)
	}

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusDegraded, health.Status)
	require.Len(t, health.Alerts, 1)
	assert.Equal(t, "slow_endpoint", health.Alerts[0].Code)
	assert.Equal(t, SeverityWarning, health.Alerts[0].Severity)
	assert.Equal(t, float64(3000), health.Alerts[0].Value)

	p95s, ok := health.Metrics["endpoint_p95_ms"].(map[string]float64)
	require.True(t, ok)
	assert.Equal(t, float64(3000), p95s["/api/v1/jobs/:jobId/shortlist"])
}

// 单个离群慢请求不应触发 p95 告警
func TestSystemHealth_SingleOutlierBelowP95(t *testing.T) {
	f := newFixture(Config{})
	for i := 0; i < 19; i++ {
		f.monitor.RecordRequest("/api/health", 100*time.Millisecond, true)
	}
	f.monitor.RecordRequest("/api/health", 5*time.Second, true)

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Empty(t, health.Alerts)
}

func TestSystemHealth_HighErrorRateIsCritical(t *testing.T) {
	f := newFixture(Config{})
	for i := 0; i < 9; i++ {
		f.monitor.RecordRequest("/api/v1/applications", 50*time.Millisecond, true)
	}
	f.monitor.RecordRequest("/api/v1/applications", 50*time.Millisecond, false)

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusCritical, health.Status)
	require.Len(t, health.Alerts, 1)
	assert.Equal(t, "high_error_rate", health.Alerts[0].Code)
	assert.Equal(t, SeverityCritical, health.Alerts[0].Severity)
	assert.InDelta(t, 0.1, health.Metrics["error_rate_10m"], 1e-9)
}

// 样本太少时错误率不告警，避免冷启动误报
func TestSystemHealth_TooFewRequestsNoErrorAlert(t *testing.T) {
	f := newFixture(Config{})
	f.monitor.RecordRequest("/api/v1/applications", 50*time.Millisecond, false)
	f.monitor.RecordRequest("/api/v1/applications", 50*time.Millisecond, true)

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Empty(t, health.Alerts)
}

func TestSystemHealth_LowAutomationSuccessDegrades(t *testing.T) {
	f := newFixture(Config{})
	for i := 0; i < 8; i++ {
		f.monitor.RecordAutomation("confirmation_sweep", true)
	}
	f.monitor.RecordAutomation("confirmation_sweep", false)
	f.monitor.RecordAutomation("risk_refresh", false)

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusDegraded, health.Status)
	require.Len(t, health.Alerts, 1)
	assert.Equal(t, "low_automation_success", health.Alerts[0].Code)
	assert.InDelta(t, 0.8, health.Metrics["automation_success_60m"], 1e-9)
}

func TestSystemHealth_SlowCycleAverageDegrades(t *testing.T) {
	f := newFixture(Config{})
	f.monitor.RecordCycle(30 * time.Second)
	f.monitor.RecordCycle(90 * time.Second)
	f.monitor.RecordCycle(90 * time.Second)

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusDegraded, health.Status)
	require.Len(t, health.Alerts, 1)
	assert.Equal(t, "slow_cycle", health.Alerts[0].Code)
	assert.InDelta(t, 70.0, health.Metrics["avg_cycle_seconds"], 1e-9)
}

// critical 告警优先于 warning
func TestSystemHealth_CriticalOutranksWarning(t *testing.T) {
	f := newFixture(Config{})
	for i := 0; i < 10; i++ {
		f.monitor.RecordRequest("/api/v1/interviews", 3*time.Second, i != 0)
	}

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusCritical, health.Status)
	assert.Len(t, health.Alerts, 2)
}

// 超出保留期的样本不参与计算
func TestSystemHealth_OldSamplesEvicted(t *testing.T) {
	f := newFixture(Config{})
	for i := 0; i < 10; i++ {
		f.monitor.RecordRequest("/api/v1/applications", 50*time.Millisecond, false)
	}
	f.monitor.RecordCycle(2 * time.Minute)

	f.clock = f.clock.Add(25 * time.Hour)
	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Empty(t, health.Alerts)
	assert.Equal(t, 0, health.Metrics["cycle_count"])
}

// 错误率窗口比延迟窗口短：30 分钟前的失败算进 p95 统计但不算进 10 分钟错误率
func TestSystemHealth_WindowsAreIndependent(t *testing.T) {
	f := newFixture(Config{})
	for i := 0; i < 10; i++ {
		f.monitor.RecordRequest("/api/v1/offers", 50*time.Millisecond, false)
	}
	f.clock = f.clock.Add(30 * time.Minute)
	for i := 0; i < 10; i++ {
		f.monitor.RecordRequest("/api/v1/offers", 50*time.Millisecond, true)
	}

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, 10, health.Metrics["request_count_10m"])
	assert.InDelta(t, 0.0, health.Metrics["error_rate_10m"], 1e-9)
}

// 写满后覆盖最旧样本
func TestMonitor_RingWraps(t *testing.T) {
	f := newFixture(Config{Capacity: 8})
	for i := 0; i < 8; i++ {
		f.monitor.RecordAutomation("buffer_sweep", false)
	}
	for i := 0; i < 8; i++ {
		f.monitor.RecordAutomation("buffer_sweep", true)
	}

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, 8, health.Metrics["automation_count_60m"])
	assert.InDelta(t, 1.0, health.Metrics["automation_success_60m"], 1e-9)
}

func TestSystemHealth_ThresholdsConfigurable(t *testing.T) {
	f := newFixture(Config{LatencyWarn: 10 * time.Second, CycleAvgWarn: 5 * time.Minute})
	for i := 0; i < 10; i++ {
		f.monitor.RecordRequest("/api/v1/jobs", 3*time.Second, true)
	}
	f.monitor.RecordCycle(2 * time.Minute)

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Empty(t, health.Alerts)
}

func TestSystemHealth_OutboundFailuresInMetricsOnly(t *testing.T) {
	f := newFixture(Config{})
	f.monitor.RecordOutbound("email", false)
	f.monitor.RecordOutbound("email", true)
	f.monitor.RecordOutbound("calendar", true)
	f.monitor.RecordOutbound("risk", true)

	health := f.monitor.SystemHealth()

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, 4, health.Metrics["outbound_count_24h"])
	assert.InDelta(t, 0.25, health.Metrics["outbound_failure_24h"], 1e-9)
}
