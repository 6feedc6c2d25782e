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

// Package scoring 简历评分服务客户端。投递提交后异步触发，评分失败不阻塞
// 投递流程：fit_score 落 0 并标记已处理，由日志留痕。
package scoring

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/metrics"
)

// Result 评分结果
type Result struct {
	FitScore float64        `json:"fit_score"` // [0,100]
	Summary  string         `json:"summary"`
	Features map[string]any `json:"features"`
}

// Client 评分服务能力
type Client interface {
	ProcessResume(ctx context.Context, applicationID, resumeURL, jobDescription string) (*Result, error)
}

// HTTPClient 通过外部评分服务的 HTTP 接口实现 Client
type HTTPClient struct {
	endpoint string
	client   *resty.Client
}

// NewHTTPClient 创建评分客户端；timeout<=0 默认 5s
func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(4 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= 500
	})
	return &HTTPClient{endpoint: endpoint, client: client}
}

// ProcessResume 调用 /process-resume，分数收敛到 [0,100]
func (c *HTTPClient) ProcessResume(ctx context.Context, applicationID, resumeURL, jobDescription string) (*Result, error) {
	if applicationID == "" {
		return nil, perrors.Invalidf("application id required")
	}

	var out Result
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"application_id":  applicationID,
			"resume_url":      resumeURL,
			"job_description": jobDescription,
		}).
		SetResult(&out).
		Post(c.endpoint + "/process-resume")
	if err != nil {
		metrics.OutboundRequestTotal.WithLabelValues("scoring", "failure").Inc()
		return nil, perrors.Transientf("scoring service: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		metrics.OutboundRequestTotal.WithLabelValues("scoring", "failure").Inc()
		if resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests {
			return nil, perrors.Transientf("scoring service status %d", resp.StatusCode())
		}
		return nil, perrors.Invalidf("scoring service status %d: %s", resp.StatusCode(), resp.String())
	}
	metrics.OutboundRequestTotal.WithLabelValues("scoring", "success").Inc()

	if out.FitScore < 0 {
		out.FitScore = 0
	}
	if out.FitScore > 100 {
		out.FitScore = 100
	}
	return &out, nil
}
