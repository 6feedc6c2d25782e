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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiring-platform/internal/audit"
	"hiring-platform/internal/engine"
	"hiring-platform/internal/flags"
	"hiring-platform/internal/model/llm"
	"hiring-platform/internal/outbound/calendar"
	"hiring-platform/internal/outbound/email"
	"hiring-platform/internal/storage"
	perrors "hiring-platform/pkg/errors"
)

type fakeSlots struct {
	slots    []calendar.Slot
	err      error
	calls    int
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeSlots) GetFreeSlots(ctx context.Context, recruiterID string, from, to time.Time) ([]calendar.Slot, error) {
	f.calls++
	f.lastFrom, f.lastTo = from, to
	if f.err != nil {
		return nil, f.err
	}
	return f.slots, nil
}

type fakeLLM struct {
	out string
	err error
}

func (f *fakeLLM) Generate(prompt string, o llm.GenerateOptions) (string, error) {
	return f.out, f.err
}

func (f *fakeLLM) GenerateWithContext(ctx context.Context, prompt string, o llm.GenerateOptions) (string, error) {
	return f.out, f.err
}

func (f *fakeLLM) Chat(ms []llm.Message, o llm.GenerateOptions) (string, error) {
	return f.out, f.err
}

func (f *fakeLLM) ChatWithContext(ctx context.Context, ms []llm.Message, o llm.GenerateOptions) (string, error) {
	return f.out, f.err
}

func (f *fakeLLM) Model() string    { return "fake" }
func (f *fakeLLM) Provider() string { return "fake" }

type fixture struct {
	store  *storage.MemoryStore
	slots  *fakeSlots
	emails *email.MemoryQueue
	engine *Engine
}

func newFixture(t *testing.T, llmClient llm.Client, slots *fakeSlots) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	emails := email.NewMemoryQueue()
	eng := NewEngine(store, slots, llmClient, flags.NewResolver(store, nil), audit.NewSink(store, nil), emails, nil, Config{})
	eng.now = func() time.Time { return wednesday }
	return &fixture{store: store, slots: slots, emails: emails, engine: eng}
}

func seedSlotPending(t *testing.T, store *storage.MemoryStore) *storage.Interview {
	t.Helper()
	iv := &storage.Interview{
		ID:             "iv-1",
		ApplicationID:  "app-1",
		JobID:          "job-1",
		RecruiterEmail: "recruiter@acme.dev",
		CandidateName:  "Dana",
		CandidateEmail: "dana@example.com",
		Status:         storage.InterviewSlotPending,
	}
	require.NoError(t, store.CreateInterview(context.Background(), iv))
	return iv
}

func negotiationRoundCount(t *testing.T, store *storage.MemoryStore, action string) int64 {
	t.Helper()
	n, err := store.CountLogs(context.Background(), storage.LogFilter{
		JobID:       "job-1",
		ActionTypes: []string{action},
	})
	require.NoError(t, err)
	return n
}

func TestNegotiate_ReturnsBoundedSuggestions(t *testing.T) {
	ctx := context.Background()
	mon := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	fx := newFixture(t, nil, &fakeSlots{slots: twelveFreeSlots(mon)})
	iv := seedSlotPending(t, fx.store)

	out, err := fx.engine.Negotiate(ctx, iv.ID, "I'm available next Monday or Tuesday, 2–5 PM")

	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 1, out.Details["round"])

	suggestions, ok := out.Details["suggestions"].([]map[string]string)
	require.True(t, ok)
	require.Len(t, suggestions, 3)
	for _, sg := range suggestions {
		start, perr := time.Parse(time.RFC3339, sg["start"])
		require.NoError(t, perr)
		day := start.Weekday()
		assert.True(t, day == time.Monday || day == time.Tuesday)
		assert.GreaterOrEqual(t, start.Hour(), 14)
		assert.Less(t, start.Hour(), 17)
	}

	sess, err := fx.store.GetNegotiationByInterview(ctx, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.NegotiationActive, sess.State)
	assert.Equal(t, 1, sess.Round)
	assert.True(t, sess.AwaitingPick)
	require.Len(t, sess.History, 2)
	assert.Equal(t, ActorCandidate, sess.History[0].Actor)
	assert.Equal(t, ActorBot, sess.History[1].Actor)

	assert.EqualValues(t, 1, negotiationRoundCount(t, fx.store, audit.ActionNegotiationRound))
}

func TestNegotiate_RespondingWithoutPickingAdvancesRound(t *testing.T) {
	ctx := context.Background()
	mon := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	fx := newFixture(t, nil, &fakeSlots{slots: twelveFreeSlots(mon)})
	iv := seedSlotPending(t, fx.store)

	_, err := fx.engine.Negotiate(ctx, iv.ID, "next monday afternoon")
	require.NoError(t, err)

	out, err := fx.engine.Negotiate(ctx, iv.ID, "hmm, what about next tuesday morning?")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 2, out.Details["round"])

	sess, err := fx.store.GetNegotiationByInterview(ctx, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sess.Round)
	assert.True(t, sess.AwaitingPick)
}

func TestNegotiate_EscalatesWhenRoundsExhausted(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil, &fakeSlots{}) // 招聘官完全没空闲
	iv := seedSlotPending(t, fx.store)

	out, err := fx.engine.Negotiate(ctx, iv.ID, "only sundays work for me")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 2, out.Details["round"])
	assert.Empty(t, out.Details["suggestions"])

	out, err = fx.engine.Negotiate(ctx, iv.ID, "sunday evening maybe?")
	require.NoError(t, err)
	assert.Equal(t, 3, out.Details["round"])

	out, err = fx.engine.Negotiate(ctx, iv.ID, "still only sunday")
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, engine.ReasonEscalated, out.Reason)

	sess, err := fx.store.GetNegotiationByInterview(ctx, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.NegotiationEscalated, sess.State)
	assert.Equal(t, 3, sess.Round)

	// 升级邮件发给招聘官
	all := fx.emails.All()
	require.Len(t, all, 1)
	assert.Equal(t, email.TemplateEscalation, all[0].Template)
	assert.Equal(t, "recruiter@acme.dev", all[0].To)

	assert.EqualValues(t, 2, negotiationRoundCount(t, fx.store, audit.ActionNegotiationRound))
	assert.EqualValues(t, 1, negotiationRoundCount(t, fx.store, audit.ActionNegotiationEscalated))

	// 升级后的会话不再接收消息
	_, err = fx.engine.Negotiate(ctx, iv.ID, "one more try")
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidState))
}

func TestNegotiate_BotFlagDisabled(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil, &fakeSlots{})
	iv := seedSlotPending(t, fx.store)
	require.NoError(t, fx.store.UpsertFlag(ctx, &storage.FeatureFlag{Name: flags.NegotiationBot, Enabled: false}))

	out, err := fx.engine.Negotiate(ctx, iv.ID, "next monday")

	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Equal(t, ReasonBotDisabled, out.Reason)
	assert.Zero(t, fx.slots.calls)

	_, err = fx.store.GetNegotiationByInterview(ctx, iv.ID)
	assert.True(t, perrors.Is(err, perrors.ErrNotFound))
}

func TestNegotiate_RequiresSlotPending(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil, &fakeSlots{})
	iv := &storage.Interview{
		ID:            "iv-2",
		ApplicationID: "app-2",
		JobID:         "job-1",
		Status:        storage.InterviewInvitationSent,
	}
	require.NoError(t, fx.store.CreateInterview(ctx, iv))

	_, err := fx.engine.Negotiate(ctx, iv.ID, "next monday")

	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidState))
}

func TestNegotiate_CalendarFailureConsumesNoRound(t *testing.T) {
	ctx := context.Background()
	mon := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	slots := &fakeSlots{err: perrors.Transientf("calendar down")}
	fx := newFixture(t, nil, slots)
	iv := seedSlotPending(t, fx.store)

	_, err := fx.engine.Negotiate(ctx, iv.ID, "next monday afternoon")
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrTransient))

	// 本次调用未落库，重试不损失轮次
	_, err = fx.store.GetNegotiationByInterview(ctx, iv.ID)
	assert.True(t, perrors.Is(err, perrors.ErrNotFound))

	slots.err = nil
	slots.slots = twelveFreeSlots(mon)
	out, err := fx.engine.Negotiate(ctx, iv.ID, "next monday afternoon")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 1, out.Details["round"])
}

func TestNegotiate_WindowStartsNoEarlierThanNow(t *testing.T) {
	ctx := context.Background()
	slots := &fakeSlots{}
	fx := newFixture(t, nil, slots)
	iv := seedSlotPending(t, fx.store)

	_, err := fx.engine.Negotiate(ctx, iv.ID, "today works for me")

	require.NoError(t, err)
	require.Equal(t, 1, slots.calls)
	// “today” 的窗口起点被钳到当前时刻，不查已过去的时段
	assert.Equal(t, wednesday, slots.lastFrom)
	assert.Equal(t, startOfDay(wednesday).AddDate(0, 0, 1), slots.lastTo)
}

func TestNegotiate_LLMParsingNarrowsMatch(t *testing.T) {
	ctx := context.Background()
	mon := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)
	free := []calendar.Slot{hourSlot(mon, 14), hourSlot(tue, 14)}
	client := &fakeLLM{out: "```json\n{\"start_date\":\"2026-05-11\",\"end_date\":\"2026-05-12\",\"preferred_days\":[\"monday\"],\"preferred_hours\":{\"start\":14,\"end\":16}}\n```"}
	fx := newFixture(t, client, &fakeSlots{slots: free})
	iv := seedSlotPending(t, fx.store)

	out, err := fx.engine.Negotiate(ctx, iv.ID, "whenever")

	require.NoError(t, err)
	suggestions := out.Details["suggestions"].([]map[string]string)
	require.Len(t, suggestions, 1)
	start, perr := time.Parse(time.RFC3339, suggestions[0]["start"])
	require.NoError(t, perr)
	assert.Equal(t, time.Monday, start.Weekday())
}

func TestNegotiate_LLMFailureFallsBackToRules(t *testing.T) {
	ctx := context.Background()
	mon := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)
	free := []calendar.Slot{hourSlot(mon, 14), hourSlot(tue, 14)}
	client := &fakeLLM{err: perrors.Transientf("llm unavailable")}
	fx := newFixture(t, client, &fakeSlots{slots: free})
	iv := seedSlotPending(t, fx.store)

	out, err := fx.engine.Negotiate(ctx, iv.ID, "whenever")

	require.NoError(t, err)
	// 规则兜底：默认一周窗口，两个时段都算匹配
	suggestions := out.Details["suggestions"].([]map[string]string)
	assert.Len(t, suggestions, 2)
}

func TestNegotiate_Validation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil, &fakeSlots{})

	_, err := fx.engine.Negotiate(ctx, "iv-1", "   ")
	assert.True(t, perrors.Is(err, perrors.ErrInvalidArg))

	_, err = fx.engine.Negotiate(ctx, "missing", "next monday")
	assert.True(t, perrors.Is(err, perrors.ErrNotFound))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	mon := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	fx := newFixture(t, nil, &fakeSlots{slots: twelveFreeSlots(mon)})
	iv := seedSlotPending(t, fx.store)

	_, err := fx.engine.Negotiate(ctx, iv.ID, "next monday afternoon")
	require.NoError(t, err)

	require.NoError(t, fx.engine.Resolve(ctx, iv.ID))
	sess, err := fx.store.GetNegotiationByInterview(ctx, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.NegotiationResolved, sess.State)
	assert.False(t, sess.AwaitingPick)

	// 已关闭与不存在的会话都是安静的空操作
	require.NoError(t, fx.engine.Resolve(ctx, iv.ID))
	require.NoError(t, fx.engine.Resolve(ctx, "no-session"))
}
