package shortlist

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiring-platform/internal/audit"
	"hiring-platform/internal/engine"
	"hiring-platform/internal/flags"
	"hiring-platform/internal/storage"
	perrors "hiring-platform/pkg/errors"
)

type fakeInviter struct {
	invited []string
	err     error
}

func (f *fakeInviter) InvitePromoted(ctx context.Context, applicationID string) error {
	f.invited = append(f.invited, applicationID)
	return f.err
}

func newEngine(t *testing.T) (*Engine, *storage.MemoryStore, *fakeInviter) {
	t.Helper()
	store := storage.NewMemoryStore()
	inviter := &fakeInviter{}
	eng := NewEngine(store, flags.NewResolver(store, nil), audit.NewSink(store, nil), inviter, nil, 0)
	return eng, store, inviter
}

func seedJob(t *testing.T, store *storage.MemoryStore, openings, bufferTarget int) *storage.Job {
	t.Helper()
	job := &storage.Job{
		ID:                 "job-1",
		Title:              "Backend Engineer",
		PostedBy:           "recruiter@acme.dev",
		Openings:           openings,
		BufferTarget:       bufferTarget,
		ApplicationsClosed: true,
		AutomationEnabled:  true,
	}
	require.NoError(t, store.CreateJob(context.Background(), job))
	return job
}

func seedScored(t *testing.T, store *storage.MemoryStore, id string, score float64) *storage.Application {
	t.Helper()
	app := &storage.Application{
		ID:          id,
		JobID:       "job-1",
		FitScore:    &score,
		AIProcessed: true,
	}
	require.NoError(t, store.CreateApplication(context.Background(), app))
	return app
}

func TestAutoShortlist_PartitionsByScore(t *testing.T) {
	ctx := context.Background()
	eng, store, _ := newEngine(t)
	seedJob(t, store, 3, 3)
	scores := []float64{90, 85, 80, 75, 70, 65, 60, 55, 50, 45}
	for i, sc := range scores {
		seedScored(t, store, fmt.Sprintf("app-%02d", i+1), sc)
	}

	out, err := eng.AutoShortlist(ctx, "job-1")

	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 3, out.Details["shortlisted"])
	assert.Equal(t, 3, out.Details["buffer"])

	wantStatus := []storage.ShortlistStatus{
		storage.ShortlistShortlisted, storage.ShortlistShortlisted, storage.ShortlistShortlisted,
		storage.ShortlistBuffer, storage.ShortlistBuffer, storage.ShortlistBuffer,
		storage.ShortlistPending, storage.ShortlistPending, storage.ShortlistPending, storage.ShortlistPending,
	}
	for i := range scores {
		app, gerr := store.GetApplication(ctx, fmt.Sprintf("app-%02d", i+1))
		require.NoError(t, gerr)
		assert.Equal(t, wantStatus[i], app.Status, "app %d", i+1)
		if i < 6 {
			assert.Equal(t, i+1, app.Rank, "app %d", i+1)
		} else {
			assert.Zero(t, app.Rank, "app %d", i+1)
		}
	}

	n, err := store.CountLogs(ctx, storage.LogFilter{JobID: "job-1", ActionTypes: []string{audit.ActionAutoShortlist}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestAutoShortlist_TieBreaksByID(t *testing.T) {
	ctx := context.Background()
	eng, store, _ := newEngine(t)
	seedJob(t, store, 1, 1)
	seedScored(t, store, "app-b", 88)
	seedScored(t, store, "app-a", 88)

	_, err := eng.AutoShortlist(ctx, "job-1")
	require.NoError(t, err)

	a, _ := store.GetApplication(ctx, "app-a")
	b, _ := store.GetApplication(ctx, "app-b")
	assert.Equal(t, storage.ShortlistShortlisted, a.Status)
	assert.Equal(t, 1, a.Rank)
	assert.Equal(t, storage.ShortlistBuffer, b.Status)
	assert.Equal(t, 2, b.Rank)
}

func TestAutoShortlist_SkipsManualOverride(t *testing.T) {
	ctx := context.Background()
	eng, store, _ := newEngine(t)
	seedJob(t, store, 1, 1)
	locked := seedScored(t, store, "app-locked", 99)
	locked.ManualOverride = true
	require.NoError(t, store.UpdateApplication(ctx, locked))
	seedScored(t, store, "app-free", 50)

	_, err := eng.AutoShortlist(ctx, "job-1")
	require.NoError(t, err)

	got, _ := store.GetApplication(ctx, "app-locked")
	assert.Equal(t, storage.ShortlistPending, got.Status) // 人工锁定不被自动化触碰
	free, _ := store.GetApplication(ctx, "app-free")
	assert.Equal(t, storage.ShortlistShortlisted, free.Status)
}

func TestAutoShortlist_GatedByFlagAndJobToggle(t *testing.T) {
	ctx := context.Background()
	eng, store, _ := newEngine(t)
	job := seedJob(t, store, 2, 2)
	seedScored(t, store, "app-1", 80)

	require.NoError(t, store.UpsertFlag(ctx, &storage.FeatureFlag{Name: flags.AutoShortlisting, Enabled: false}))
	out, err := eng.AutoShortlist(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, engine.ReasonAutomationDisabled, out.Reason)

	// 职位级开关同样压制
	require.NoError(t, store.UpsertFlag(ctx, &storage.FeatureFlag{Name: flags.AutoShortlisting, Enabled: true}))
	job.AutomationEnabled = false
	require.NoError(t, store.UpdateJob(ctx, job))
	out, err = eng.AutoShortlist(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonAutomationDisabled, out.Reason)

	app, _ := store.GetApplication(ctx, "app-1")
	assert.Equal(t, storage.ShortlistPending, app.Status)
}

func TestAutoShortlist_RerunIsNoOpWhenFull(t *testing.T) {
	ctx := context.Background()
	eng, store, _ := newEngine(t)
	seedJob(t, store, 2, 1)
	for i, sc := range []float64{90, 85, 80, 75} {
		seedScored(t, store, fmt.Sprintf("app-%d", i+1), sc)
	}

	_, err := eng.AutoShortlist(ctx, "job-1")
	require.NoError(t, err)
	out, err := eng.AutoShortlist(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 0, out.Details["shortlisted"])
	assert.Equal(t, 0, out.Details["buffer"])
}

func TestPromoteFromBuffer_PromotesLowestRank(t *testing.T) {
	ctx := context.Background()
	eng, store, inviter := newEngine(t)
	seedJob(t, store, 3, 3)
	for i, sc := range []float64{90, 85, 80, 75, 70, 65, 60} {
		seedScored(t, store, fmt.Sprintf("app-%d", i+1), sc)
	}
	_, err := eng.AutoShortlist(ctx, "job-1")
	require.NoError(t, err)

	// rank 2 的候选人退出，空出 rank 2
	require.NoError(t, store.RejectApplication(ctx, "app-2"))

	// rank 4（75 分）应转正为 rank 2，候补从 pending 回填
	out, err := eng.PromoteFromBuffer(ctx, "job-1", 2)

	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "app-4", out.Details["application_id"])
	assert.Equal(t, 2, out.Details["rank"])

	promoted, _ := store.GetApplication(ctx, "app-4")
	assert.Equal(t, storage.ShortlistShortlisted, promoted.Status)
	assert.Equal(t, 2, promoted.Rank)

	// 其余候补前移，回填把 60 分的 app-7 拉进候补，rank 前缀保持连续
	counts, _ := store.CountApplicationsByStatus(ctx, "job-1")
	assert.Equal(t, 3, counts[storage.ShortlistBuffer])
	refilled, _ := store.GetApplication(ctx, "app-7")
	assert.Equal(t, storage.ShortlistBuffer, refilled.Status)

	assert.Equal(t, []string{"app-4"}, inviter.invited)

	n, _ := store.CountLogs(ctx, storage.LogFilter{JobID: "job-1", ActionTypes: []string{audit.ActionBufferPromotion}})
	assert.EqualValues(t, 1, n)
}

func TestPromoteFromBuffer_EmptyBuffer(t *testing.T) {
	ctx := context.Background()
	eng, store, inviter := newEngine(t)
	seedJob(t, store, 1, 1)

	out, err := eng.PromoteFromBuffer(ctx, "job-1", 1)

	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, engine.ReasonEmptyBuffer, out.Reason)
	assert.Empty(t, inviter.invited)
}

func TestPromoteFromBuffer_FrozenNearConfirmedInterview(t *testing.T) {
	ctx := context.Background()
	eng, store, _ := newEngine(t)
	seedJob(t, store, 2, 2)
	for i, sc := range []float64{90, 85, 80} {
		seedScored(t, store, fmt.Sprintf("app-%d", i+1), sc)
	}
	_, err := eng.AutoShortlist(ctx, "job-1")
	require.NoError(t, err)

	soon := time.Now().Add(2 * time.Hour)
	require.NoError(t, store.CreateInterview(ctx, &storage.Interview{
		ID:            "iv-1",
		ApplicationID: "app-1",
		JobID:         "job-1",
		Status:        storage.InterviewConfirmed,
		ScheduledTime: &soon,
	}))

	out, err := eng.PromoteFromBuffer(ctx, "job-1", 2)

	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, ReasonPromotionFrozen, out.Reason)
	buffered, _ := store.GetApplication(ctx, "app-3")
	assert.Equal(t, storage.ShortlistBuffer, buffered.Status) // 未被动过
}

func TestBackfillBuffer_IdempotentOnceFull(t *testing.T) {
	ctx := context.Background()
	eng, store, _ := newEngine(t)
	seedJob(t, store, 1, 2)
	for i, sc := range []float64{90, 85, 80, 75} {
		seedScored(t, store, fmt.Sprintf("app-%d", i+1), sc)
	}

	out, err := eng.BackfillBuffer(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Details["added"])

	out, err = eng.BackfillBuffer(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 0, out.Details["added"])

	counts, _ := store.CountApplicationsByStatus(ctx, "job-1")
	assert.Equal(t, 2, counts[storage.ShortlistBuffer])
}

func TestBackfillBuffer_GatedByAutoPromotion(t *testing.T) {
	ctx := context.Background()
	eng, store, _ := newEngine(t)
	seedJob(t, store, 1, 2)
	seedScored(t, store, "app-1", 90)
	require.NoError(t, store.UpsertFlag(ctx, &storage.FeatureFlag{Name: flags.AutoPromotion, Enabled: false}))

	out, err := eng.BackfillBuffer(ctx, "job-1")

	require.NoError(t, err)
	assert.Equal(t, engine.ReasonAutomationDisabled, out.Reason)
}

func TestPromoteFromBuffer_Validation(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newEngine(t)

	_, err := eng.PromoteFromBuffer(ctx, "job-1", 0)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidArg))
}

func TestStatus_CountsPartitions(t *testing.T) {
	ctx := context.Background()
	eng, store, _ := newEngine(t)
	seedJob(t, store, 1, 1)
	for i, sc := range []float64{90, 85, 80} {
		seedScored(t, store, fmt.Sprintf("app-%d", i+1), sc)
	}
	_, err := eng.AutoShortlist(ctx, "job-1")
	require.NoError(t, err)

	counts, err := eng.Status(ctx, "job-1")

	require.NoError(t, err)
	assert.Equal(t, 1, counts[storage.ShortlistShortlisted])
	assert.Equal(t, 1, counts[storage.ShortlistBuffer])
	assert.Equal(t, 1, counts[storage.ShortlistPending])
}
