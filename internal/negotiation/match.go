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
	"sort"
	"time"

	"github.com/samber/lo"

	"hiring-platform/internal/outbound/calendar"
)

// DefaultSuggestionLimit 单轮最多给候选人的建议数
const DefaultSuggestionLimit = 3

// Matches 判断时段起点是否落在窗口与偏好内
func (a *Availability) Matches(s calendar.Slot) bool {
	if s.Start.Before(a.Start) || !s.Start.Before(a.End) {
		return false
	}
	if len(a.PreferredDays) > 0 && !lo.Contains(a.PreferredDays, s.Start.Weekday()) {
		return false
	}
	if a.PreferredHours != nil {
		h := s.Start.Hour()
		if h < a.PreferredHours.Start || h >= a.PreferredHours.End {
			return false
		}
	}
	return true
}

// MatchSlots 求招聘官空闲与候选人可用性的交集，升序去重后截断。
// 相同输入总产出相同建议，候选人两次发同样的消息不会得到不同排列。
func MatchSlots(free []calendar.Slot, av *Availability, limit int) []calendar.Slot {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	matched := lo.Filter(free, func(s calendar.Slot, _ int) bool {
		return av.Matches(s)
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Start.Equal(matched[j].Start) {
			return matched[i].Start.Before(matched[j].Start)
		}
		return matched[i].End.Before(matched[j].End)
	})
	matched = lo.UniqBy(matched, func(s calendar.Slot) string {
		return s.Start.Format(time.RFC3339) + "/" + s.End.Format(time.RFC3339)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
