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
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/metrics"
)

// Sender 单封邮件投递
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// HTTPSender 通过外部邮件服务的 HTTP 接口投递
type HTTPSender struct {
	endpoint string
	from     string
	client   *resty.Client
}

// NewHTTPSender 创建 HTTP 投递器；timeout<=0 时默认 5s
func NewHTTPSender(endpoint, from string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	return &HTTPSender{endpoint: endpoint, from: from, client: client}
}

// Send 投递一封邮件。5xx 与网络错误归为 Transient（可重试），4xx 归为 Invalid。
func (s *HTTPSender) Send(ctx context.Context, msg *Message) error {
	body := map[string]any{
		"to":       msg.To,
		"from":     s.from,
		"template": msg.Template,
		"data":     msg.Data,
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(s.endpoint + "/queue")
	if err != nil {
		metrics.OutboundRequestTotal.WithLabelValues("email", "failure").Inc()
		return perrors.Transientf("email service: %v", err)
	}
	switch {
	case resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusAccepted:
		metrics.OutboundRequestTotal.WithLabelValues("email", "success").Inc()
		return nil
	case resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests:
		metrics.OutboundRequestTotal.WithLabelValues("email", "failure").Inc()
		return perrors.Transientf("email service status %d: %s", resp.StatusCode(), resp.String())
	default:
		metrics.OutboundRequestTotal.WithLabelValues("email", "failure").Inc()
		return perrors.Invalidf("email service status %d: %s", resp.StatusCode(), resp.String())
	}
}
