package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiring-platform/internal/storage"
)

// failingLogStore 模拟存储故障，验证写失败不外抛
type failingLogStore struct {
	storage.LogStore
}

func (f *failingLogStore) AppendLog(ctx context.Context, entry *storage.AutomationLog) error {
	return errors.New("storage down")
}

func TestRecord_AppendsEntry(t *testing.T) {
	store := storage.NewMemoryStore()
	sink := NewSink(store, nil)
	ctx := context.Background()

	sink.Record(ctx, Event{
		JobID:      "job-1",
		ActionType: ActionInvitationSent,
		Details:    map[string]any{"interview_id": "iv-1"},
	})

	list, err := store.ListLogs(ctx, storage.LogFilter{JobID: "job-1"}, storage.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ActionInvitationSent, list[0].ActionType)
	assert.Equal(t, storage.TriggerAuto, list[0].TriggerSource, "未指定触发来源时默认 auto")
}

func TestRecord_StorageFailureDoesNotPanic(t *testing.T) {
	sink := NewSink(&failingLogStore{}, nil)
	// 只要不 panic 即通过；事件降级到 stderr
	sink.Record(context.Background(), Event{ActionType: ActionBackgroundCycle})
}

func TestHasInterviewLog_Dedupe(t *testing.T) {
	store := storage.NewMemoryStore()
	sink := NewSink(store, nil)
	ctx := context.Background()

	found, err := sink.HasInterviewLog(ctx, ActionReminderSent, "iv-9")
	require.NoError(t, err)
	assert.False(t, found)

	sink.Record(ctx, Event{
		JobID:      "job-1",
		ActionType: ActionReminderSent,
		Details:    map[string]any{"interview_id": "iv-9"},
	})

	found, err = sink.HasInterviewLog(ctx, ActionReminderSent, "iv-9")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestQuery_PaginationDefaults(t *testing.T) {
	store := storage.NewMemoryStore()
	sink := NewSink(store, nil)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		require.NoError(t, store.AppendLog(ctx, &storage.AutomationLog{
			JobID:      "job-1",
			ActionType: ActionBackgroundCycle,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, total, err := sink.Query(ctx, storage.LogFilter{JobID: "job-1"}, storage.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(60), total)
	assert.Len(t, list, 50, "默认每页 50")
	// 时间倒序
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))
}

func TestCounts_Aggregate(t *testing.T) {
	store := storage.NewMemoryStore()
	sink := NewSink(store, nil)
	ctx := context.Background()

	sink.Record(ctx, Event{JobID: "job-1", ActionType: ActionInvitationSent})
	sink.Record(ctx, Event{JobID: "job-1", ActionType: ActionInvitationSent, Trigger: storage.TriggerManual})
	sink.Record(ctx, Event{JobID: "job-1", ActionType: ActionBufferPromotion, Trigger: storage.TriggerScheduled})

	counts, err := sink.Counts(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Total)
	assert.Equal(t, int64(2), counts.ByAction[ActionInvitationSent])
	assert.Equal(t, int64(1), counts.ByTrigger[string(storage.TriggerScheduled)])
}
