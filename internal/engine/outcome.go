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

// Package engine 各业务引擎共享的操作结果类型。
package engine

// 约定的未执行原因
const (
	ReasonAutomationDisabled = "automation_disabled"
	ReasonEmptyBuffer        = "empty_buffer"
	ReasonEscalated          = "escalated"
)

// Outcome 引擎操作的结构化结果。特性开关拦截与空候补不是错误，
// 用 OK=false + Reason 表达；错误保留给真正的失败。
type Outcome struct {
	OK      bool           `json:"ok"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Disabled 开关拦截结果
func Disabled() Outcome {
	return Outcome{OK: false, Reason: ReasonAutomationDisabled}
}

// Skipped 未执行结果
func Skipped(reason string) Outcome {
	return Outcome{OK: false, Reason: reason}
}

// Done 成功结果
func Done(details map[string]any) Outcome {
	return Outcome{OK: true, Details: details}
}
