package negotiation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiring-platform/internal/outbound/calendar"
)

func hourSlot(day time.Time, hour int) calendar.Slot {
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
	return calendar.Slot{Start: start, End: start.Add(time.Hour)}
}

// 下周一/周二共 12 个 1 小时空闲段
func twelveFreeSlots(mon time.Time) []calendar.Slot {
	tue := mon.AddDate(0, 0, 1)
	var out []calendar.Slot
	for _, h := range []int{9, 10, 11, 13, 14, 15} {
		out = append(out, hourSlot(mon, h))
	}
	for _, h := range []int{9, 10, 11, 14, 15, 16} {
		out = append(out, hourSlot(tue, h))
	}
	return out
}

func TestMatchSlots_HonorsEveryConstraint(t *testing.T) {
	mon := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	free := twelveFreeSlots(mon)
	av := &Availability{
		Start:          mon,
		End:            mon.AddDate(0, 0, 7),
		PreferredDays:  []time.Weekday{time.Monday, time.Tuesday},
		PreferredHours: &HourRange{Start: 14, End: 17},
	}

	got := MatchSlots(free, av, 3)

	require.Len(t, got, 3)
	for _, s := range got {
		day := s.Start.Weekday()
		assert.True(t, day == time.Monday || day == time.Tuesday)
		assert.GreaterOrEqual(t, s.Start.Hour(), 14)
		assert.Less(t, s.Start.Hour(), 17)
		assert.Contains(t, free, s) // 建议必须出自给定空闲段
	}
	// 最早开始优先
	assert.Equal(t, hourSlot(mon, 14), got[0])
	assert.Equal(t, hourSlot(mon, 15), got[1])
	assert.Equal(t, hourSlot(mon.AddDate(0, 0, 1), 14), got[2])
}

func TestMatchSlots_DeterministicAcrossInputOrder(t *testing.T) {
	mon := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	free := twelveFreeSlots(mon)
	reversed := make([]calendar.Slot, len(free))
	for i, s := range free {
		reversed[len(free)-1-i] = s
	}
	av := &Availability{
		Start:          mon,
		End:            mon.AddDate(0, 0, 7),
		PreferredHours: &HourRange{Start: 9, End: 12},
	}

	first := MatchSlots(free, av, 3)
	second := MatchSlots(reversed, av, 3)

	assert.Equal(t, first, second)
	assert.Equal(t, MatchSlots(free, av, 3), first) // 同输入同输出
}

func TestMatchSlots_DeduplicatesAndCaps(t *testing.T) {
	mon := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	dup := hourSlot(mon, 10)
	free := []calendar.Slot{dup, dup, hourSlot(mon, 11), hourSlot(mon, 9), hourSlot(mon, 13)}
	av := &Availability{Start: mon, End: mon.AddDate(0, 0, 1)}

	got := MatchSlots(free, av, 0) // 0 退化为默认上限

	require.Len(t, got, 3)
	assert.Equal(t, hourSlot(mon, 9), got[0])
	assert.Equal(t, hourSlot(mon, 10), got[1])
	assert.Equal(t, hourSlot(mon, 11), got[2])
}

func TestMatchSlots_WindowExcludesOutside(t *testing.T) {
	mon := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	free := []calendar.Slot{hourSlot(mon.AddDate(0, 0, -1), 10), hourSlot(mon, 10), hourSlot(mon.AddDate(0, 0, 2), 10)}
	av := &Availability{Start: mon, End: mon.AddDate(0, 0, 1)}

	got := MatchSlots(free, av, 3)

	require.Len(t, got, 1)
	assert.Equal(t, hourSlot(mon, 10), got[0])
}
