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

package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"hiring-platform/internal/model/llm"
)

const extractPrompt = `Extract interview availability from the candidate message below.
Reply with ONLY a JSON object, no prose:
{"start_date":"YYYY-MM-DD or null","end_date":"YYYY-MM-DD or null","preferred_days":["monday",...] or null,"preferred_hours":{"start":H,"end":H} or null}
Hours are 24h. Today is %s (%s).

Candidate message: %s`

// llmAvailability Gemini 抽取结果的线格式
type llmAvailability struct {
	StartDate      *string    `json:"start_date"`
	EndDate        *string    `json:"end_date"`
	PreferredDays  []string   `json:"preferred_days"`
	PreferredHours *HourRange `json:"preferred_hours"`
}

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// llmExtract 用 LLM 抽取可用性。任何失败（超时、调不通、答非 JSON、
// 日期非法）都返回 nil，调用方回退规则解析，不让模型故障扩散到协商流程。
func llmExtract(ctx context.Context, client llm.Client, text string, now time.Time, timeout time.Duration) *Availability {
	if client == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := fmt.Sprintf(extractPrompt, now.Format("2006-01-02"), now.Weekday(), text)
	raw, err := client.GenerateWithContext(ctx, prompt, llm.GenerateOptions{
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		return nil
	}

	var wire llmAvailability
	if err := json.Unmarshal([]byte(stripFences(raw)), &wire); err != nil {
		return nil
	}
	return wire.toAvailability(now)
}

func (w *llmAvailability) toAvailability(now time.Time) *Availability {
	today := startOfDay(now)
	av := &Availability{
		Start: today,
		End:   today.AddDate(0, 0, 8),
	}
	if w.StartDate != nil {
		t, err := time.ParseInLocation("2006-01-02", *w.StartDate, now.Location())
		if err != nil {
			return nil
		}
		av.Start = t
	}
	if w.EndDate != nil {
		t, err := time.ParseInLocation("2006-01-02", *w.EndDate, now.Location())
		if err != nil {
			return nil
		}
		av.End = t.AddDate(0, 0, 1)
	}
	if !av.Start.Before(av.End) {
		return nil
	}
	for _, name := range w.PreferredDays {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil
		}
		av.PreferredDays = append(av.PreferredDays, day)
	}
	if w.PreferredHours != nil {
		if validRange(w.PreferredHours.Start, w.PreferredHours.End) == nil {
			return nil
		}
		av.PreferredHours = w.PreferredHours
	}
	return av
}

// llmRespond 生成一段候选人回复文案，kind 区分场景（建议时段、无交集、升级）。
// 失败返回空串，调用方改用固定文案。
func llmRespond(ctx context.Context, client llm.Client, kind string, detail map[string]any, timeout time.Duration) string {
	if client == nil {
		return ""
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(detail)
	if err != nil {
		return ""
	}
	prompt := fmt.Sprintf(
		"Write a short, friendly reply to an interview candidate. Scenario: %s. Facts: %s. Reply with the message text only, under 80 words.",
		kind, payload,
	)
	out, err := client.GenerateWithContext(ctx, prompt, llm.GenerateOptions{
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// stripFences 去掉 ```json ... ``` 围栏
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
