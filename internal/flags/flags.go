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

// Package flags 特性开关解析：缺记录时放行（fail-open），职位级
// automation_enabled=false 压制该职位的自动化类开关。每次调用读库，
// 不做缓存，读到旧值不影响正确性。
package flags

import (
	"context"

	"hiring-platform/internal/storage"
	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/log"
)

// 识别的开关名
const (
	GlobalAutomation    = "global_automation"
	AutoShortlisting    = "auto_shortlisting"
	AutoPromotion       = "auto_promotion"
	NegotiationBot      = "negotiation_bot"
	GeminiParsing       = "gemini_parsing"
	GeminiResponses     = "gemini_responses"
	CalendarIntegration = "calendar_integration"
	NoShowPrediction    = "no_show_prediction"
)

// jobScoped 受职位级 automation_enabled 压制的开关
var jobScoped = map[string]bool{
	GlobalAutomation: true,
	AutoShortlisting: true,
	AutoPromotion:    true,
}

// Resolver 特性开关解析器
type Resolver struct {
	store  storage.FlagStore
	logger *log.Logger
}

// NewResolver 创建解析器
func NewResolver(store storage.FlagStore, logger *log.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// IsEnabled 全局判定：记录缺失放行；enabled=false 拒绝。
// 存储故障同样放行并记日志，自动化不因开关存储抖动而停摆。
func (r *Resolver) IsEnabled(ctx context.Context, name string) bool {
	f, err := r.store.GetFlag(ctx, name)
	if err != nil {
		if !perrors.Is(err, perrors.ErrNotFound) && r.logger != nil {
			r.logger.Warn("读取特性开关失败，按放行处理", "flag", name, "error", err)
		}
		return true
	}
	return f.Enabled
}

// IsEnabledForJob 职位级判定：先全局判定，再对自动化类开关叠加
// job.automation_enabled 压制。job 为 nil 时等同全局判定。
func (r *Resolver) IsEnabledForJob(ctx context.Context, name string, job *storage.Job) bool {
	if !r.IsEnabled(ctx, name) {
		return false
	}
	if job != nil && jobScoped[name] && !job.AutomationEnabled {
		return false
	}
	return true
}

// Defaults 返回全部识别开关的默认记录（enabled=true），供初始化种子
func Defaults() []*storage.FeatureFlag {
	return []*storage.FeatureFlag{
		{Name: GlobalAutomation, Enabled: true, Description: "总开关：关闭后全部自动化停止"},
		{Name: AutoShortlisting, Enabled: true, Description: "申请关闭后自动入围"},
		{Name: AutoPromotion, Enabled: true, Description: "候补自动转正与补位"},
		{Name: NegotiationBot, Enabled: true, Description: "面试时段自动协商"},
		{Name: GeminiParsing, Enabled: true, Description: "可用性文本走 LLM 解析（失败回退规则）"},
		{Name: GeminiResponses, Enabled: true, Description: "协商回复走 LLM 生成（失败回退模板）"},
		{Name: CalendarIntegration, Enabled: true, Description: "确认面试时创建日历事件"},
		{Name: NoShowPrediction, Enabled: true, Description: "爽约风险预测与刷新"},
	}
}

// Seed 将缺失的默认开关写入存储；已存在的不覆盖
func Seed(ctx context.Context, store storage.FlagStore) error {
	for _, f := range Defaults() {
		if _, err := store.GetFlag(ctx, f.Name); err == nil {
			continue
		} else if !perrors.Is(err, perrors.ErrNotFound) {
			return err
		}
		if err := store.UpsertFlag(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
