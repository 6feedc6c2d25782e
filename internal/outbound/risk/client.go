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

// Package risk 爽约风险服务客户端
package risk

import (
	"context"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"

	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/metrics"
)

// Assessment 风险评估结果
type Assessment struct {
	NoShowRisk float64 `json:"no_show_risk"` // ∈ [0,1]
	RiskLevel  string  `json:"risk_level"`   // low | medium | high
}

// Client 风险服务能力
type Client interface {
	// Analyze 评估候选人爽约风险
	Analyze(ctx context.Context, interviewID, candidateID string) (*Assessment, error)
}

// HTTPClient 通过外部风险服务的 HTTP 接口实现 Client
type HTTPClient struct {
	endpoint string
	client   *resty.Client
}

// NewHTTPClient 创建风险客户端；timeout<=0 默认 5s
func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	return &HTTPClient{endpoint: endpoint, client: client}
}

// Analyze 调用 /analyze-risk。返回值越界时收敛到 [0,1]，瞬态失败带退避重试。
func (c *HTTPClient) Analyze(ctx context.Context, interviewID, candidateID string) (*Assessment, error) {
	if interviewID == "" || candidateID == "" {
		return nil, perrors.Invalidf("interview id and candidate id required")
	}

	var out Assessment
	err := retry.Do(
		func() error {
			resp, err := c.client.R().
				SetContext(ctx).
				SetHeader("Content-Type", "application/json").
				SetBody(map[string]string{
					"interview_id": interviewID,
					"candidate_id": candidateID,
				}).
				SetResult(&out).
				Post(c.endpoint + "/analyze-risk")
			if err != nil {
				return perrors.Transientf("risk service: %v", err)
			}
			if resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests {
				return perrors.Transientf("risk service status %d", resp.StatusCode())
			}
			if resp.StatusCode() != http.StatusOK {
				return perrors.Invalidf("risk service status %d: %s", resp.StatusCode(), resp.String())
			}
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
		metrics.OutboundRequestTotal.WithLabelValues("risk", "failure").Inc()
		return nil, err
	}
	metrics.OutboundRequestTotal.WithLabelValues("risk", "success").Inc()

	if out.NoShowRisk < 0 {
		out.NoShowRisk = 0
	}
	if out.NoShowRisk > 1 {
		out.NoShowRisk = 1
	}
	return &out, nil
}
