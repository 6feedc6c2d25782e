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

// Package negotiation 面试时段协商：候选人可用性解析、与招聘官空闲时段
// 的确定性求交、有界轮次推进与升级。LLM 解析失败一律静默回退规则路径。
package negotiation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// HourRange 小时偏好，[Start, End) 24 小时制
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Availability 候选人可约窗口与偏好。窗口为 [Start, End)；
// PreferredDays 为空、PreferredHours 为 nil 表示无该维度约束。
type Availability struct {
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	PreferredDays  []time.Weekday `json:"preferred_days,omitempty"`
	PreferredHours *HourRange     `json:"preferred_hours,omitempty"`
}

var (
	isoDateRe = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	// "2-5 pm" / "2 – 5 PM" / "2pm to 5pm"
	hourRangeRe = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)?\s*(?:-|–|—|to)\s*(\d{1,2})\s*(am|pm)\b`)
	// "3 pm" / "10am"
	singleHourRe = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
	nextRe       = regexp.MustCompile(`\bnext\s+(week|mon|tue|wed|thu|fri|sat|sun)`)

	dayPatterns = []struct {
		re  *regexp.Regexp
		day time.Weekday
	}{
		{regexp.MustCompile(`\b(?:monday|mon)\b`), time.Monday},
		{regexp.MustCompile(`\b(?:tuesday|tues|tue)\b`), time.Tuesday},
		{regexp.MustCompile(`\b(?:wednesday|wed)\b`), time.Wednesday},
		{regexp.MustCompile(`\b(?:thursday|thurs|thur|thu)\b`), time.Thursday},
		{regexp.MustCompile(`\b(?:friday|fri)\b`), time.Friday},
		{regexp.MustCompile(`\b(?:saturday|sat)\b`), time.Saturday},
		{regexp.MustCompile(`\b(?:sunday|sun)\b`), time.Sunday},
	}
)

// ParseRules 规则解析候选人消息。总能给出结果：识别不到任何约束时
// 退化为未来 7 天全天窗口。相对词（today/tomorrow/next week）以 now 为锚。
func ParseRules(text string, now time.Time) *Availability {
	lower := strings.ToLower(text)
	today := startOfDay(now)

	av := &Availability{
		Start: today,
		End:   today.AddDate(0, 0, 8), // 默认看未来一周
	}

	// 显式日期优先
	if dates := isoDateRe.FindAllString(lower, -1); len(dates) > 0 {
		first, errFirst := time.ParseInLocation("2006-01-02", dates[0], now.Location())
		last, errLast := time.ParseInLocation("2006-01-02", dates[len(dates)-1], now.Location())
		if errFirst == nil && errLast == nil {
			if last.Before(first) {
				first, last = last, first
			}
			av.Start = first
			av.End = last.AddDate(0, 0, 1)
		}
	} else {
		switch {
		case strings.Contains(lower, "today"):
			av.Start = today
			av.End = today.AddDate(0, 0, 1)
		case strings.Contains(lower, "tomorrow"):
			av.Start = today.AddDate(0, 0, 1)
			av.End = today.AddDate(0, 0, 2)
		case nextRe.MatchString(lower):
			// 下周一起的一整周
			av.Start = nextMonday(today)
			av.End = av.Start.AddDate(0, 0, 7)
		}
	}

	for _, p := range dayPatterns {
		if p.re.MatchString(lower) {
			av.PreferredDays = append(av.PreferredDays, p.day)
		}
	}

	av.PreferredHours = parseHours(lower)
	return av
}

// parseHours 解析小时偏好：显式区间 > 单个钟点 > 时段词
func parseHours(lower string) *HourRange {
	if m := hourRangeRe.FindStringSubmatch(lower); m != nil {
		startRaw, _ := strconv.Atoi(m[1])
		endRaw, _ := strconv.Atoi(m[3])
		end := to24Hour(endRaw, m[4])
		if m[2] != "" {
			if r := validRange(to24Hour(startRaw, m[2]), end); r != nil {
				return r
			}
		} else {
			// "2-5 pm" 共用后缀；跨午线的 "11-2pm" 回退为上午起点
			if r := validRange(to24Hour(startRaw, m[4]), end); r != nil {
				return r
			}
			if r := validRange(startRaw, end); r != nil {
				return r
			}
		}
	}

	if m := singleHourRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		h = to24Hour(h, m[2])
		if r := validRange(h, h+1); r != nil {
			return r
		}
	}

	switch {
	case strings.Contains(lower, "morning"):
		return &HourRange{Start: 9, End: 12}
	case strings.Contains(lower, "afternoon"):
		return &HourRange{Start: 12, End: 17}
	case strings.Contains(lower, "evening"):
		return &HourRange{Start: 17, End: 20}
	}
	return nil
}

func to24Hour(h int, suffix string) int {
	if suffix == "pm" && h < 12 {
		return h + 12
	}
	if suffix == "am" && h == 12 {
		return 0
	}
	return h
}

func validRange(start, end int) *HourRange {
	if start < 0 || start > 23 || end <= start || end > 24 {
		return nil
	}
	return &HourRange{Start: start, End: end}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// nextMonday 严格晚于 today 的下一个周一
func nextMonday(today time.Time) time.Time {
	offset := (int(time.Monday) - int(today.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return today.AddDate(0, 0, offset)
}
