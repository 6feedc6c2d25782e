package flags

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiring-platform/internal/storage"
)

func newResolver(t *testing.T) (*Resolver, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewResolver(store, nil), store
}

func TestIsEnabled_MissingFlagFailsOpen(t *testing.T) {
	r, _ := newResolver(t)
	assert.True(t, r.IsEnabled(context.Background(), GlobalAutomation))
}

func TestIsEnabled_DisabledFlag(t *testing.T) {
	r, store := newResolver(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertFlag(ctx, &storage.FeatureFlag{Name: GeminiParsing, Enabled: false}))
	assert.False(t, r.IsEnabled(ctx, GeminiParsing))
}

func TestIsEnabledForJob_AutomationDisabledOnJob(t *testing.T) {
	r, store := newResolver(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertFlag(ctx, &storage.FeatureFlag{Name: AutoShortlisting, Enabled: true}))

	jobOff := &storage.Job{ID: "job-1", AutomationEnabled: false}
	jobOn := &storage.Job{ID: "job-2", AutomationEnabled: true}

	assert.False(t, r.IsEnabledForJob(ctx, AutoShortlisting, jobOff), "职位关自动化时自动化类开关应被压制")
	assert.True(t, r.IsEnabledForJob(ctx, AutoShortlisting, jobOn))

	// 非自动化类开关不受职位压制
	assert.True(t, r.IsEnabledForJob(ctx, NegotiationBot, jobOff))
}

func TestIsEnabledForJob_NilJob(t *testing.T) {
	r, store := newResolver(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertFlag(ctx, &storage.FeatureFlag{Name: GlobalAutomation, Enabled: true}))
	assert.True(t, r.IsEnabledForJob(ctx, GlobalAutomation, nil))
}

func TestSeed_Idempotent(t *testing.T) {
	_, store := newResolver(t)
	ctx := context.Background()

	require.NoError(t, Seed(ctx, store))
	list, err := store.ListFlags(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(Defaults()))

	// 手工关闭一个开关后再次 Seed 不得覆盖
	require.NoError(t, store.UpsertFlag(ctx, &storage.FeatureFlag{Name: AutoPromotion, Enabled: false}))
	require.NoError(t, Seed(ctx, store))
	f, err := store.GetFlag(ctx, AutoPromotion)
	require.NoError(t, err)
	assert.False(t, f.Enabled)
}
