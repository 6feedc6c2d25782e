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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"hiring-platform/internal/api/http/middleware"
	"hiring-platform/internal/audit"
	"hiring-platform/internal/flags"
	"hiring-platform/internal/interview"
	"hiring-platform/internal/negotiation"
	"hiring-platform/internal/outbound/calendar"
	"hiring-platform/internal/outbound/email"
	"hiring-platform/internal/shortlist"
	"hiring-platform/internal/storage"
	"hiring-platform/internal/token"
	"hiring-platform/pkg/monitoring"
)

// 2026-05-04 是周一
var monday = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fakeCalendar struct {
	slots []calendar.Slot
}

func (f *fakeCalendar) GetFreeSlots(ctx context.Context, recruiterID string, from, to time.Time) ([]calendar.Slot, error) {
	return f.slots, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, req calendar.EventRequest) (string, error) {
	return "evt-1", nil
}

type fixture struct {
	store   *storage.MemoryStore
	emails  *email.MemoryQueue
	tokens  *token.Service
	iv      *interview.Engine
	sl      *shortlist.Engine
	ng      *negotiation.Engine
	handler *Handler
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  storage.NewMemoryStore(),
		emails: email.NewMemoryQueue(),
		clock:  monday,
	}
	clock := func() time.Time { return f.clock }
	f.tokens = token.NewService([]byte("test-secret"), 0, "hiring-test").WithClock(clock)
	resolver := flags.NewResolver(f.store, nil)
	sink := audit.NewSink(f.store, nil)

	f.sl = shortlist.NewEngine(f.store, resolver, sink, shortlist.InviterFunc(func(ctx context.Context, applicationID string) error {
		_, err := f.iv.SendInvitation(ctx, applicationID)
		return err
	}), nil, 0)
	f.iv = interview.NewEngine(f.store, f.tokens, resolver, sink, f.emails,
		nil, nil, f.sl, nil, interview.Config{}).WithClock(clock)
	f.ng = negotiation.NewEngine(f.store, &fakeCalendar{}, nil, resolver, sink, f.emails, nil, negotiation.Config{})
	f.handler = NewHandler(f.store, f.iv, f.sl, f.ng, sink)
	return f
}

// server 经真实路由器组装，测试同时覆盖路由注册
func (f *fixture) server() *server.Hertz {
	return NewRouter(f.handler, middleware.NewMiddleware()).Build(":0")
}

func (f *fixture) seedJob(t *testing.T, closed bool) *storage.Job {
	t.Helper()
	job := &storage.Job{
		ID:                 "job-1",
		Title:              "Backend Engineer",
		PostedBy:           "recruiter@acme.dev",
		Openings:           2,
		BufferTarget:       2,
		ApplicationsClosed: closed,
		AutomationEnabled:  true,
	}
	if err := f.store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (f *fixture) seedScoredApp(t *testing.T, id string, score float64) {
	t.Helper()
	app := &storage.Application{
		ID:             id,
		JobID:          "job-1",
		CandidateName:  "Candidate " + id,
		CandidateEmail: id + "@example.com",
		FitScore:       &score,
		Status:         storage.ShortlistPending,
		AIProcessed:    true,
	}
	if err := f.store.CreateApplication(context.Background(), app); err != nil {
		t.Fatalf("CreateApplication: %v", err)
	}
}

// slotPendingInterview 推进到候选人已接受：invite → accept
func (f *fixture) slotPendingInterview(t *testing.T, appID string) string {
	t.Helper()
	ctx := context.Background()
	out, err := f.iv.SendInvitation(ctx, appID)
	if err != nil || !out.OK {
		t.Fatalf("SendInvitation: out=%+v err=%v", out, err)
	}
	ivID := out.Details["interview_id"].(string)
	tok, err := f.tokens.Generate(ivID, token.ActionAccept)
	if err != nil {
		t.Fatalf("Generate token: %v", err)
	}
	if _, err := f.iv.HandleAccept(ctx, ivID, tok); err != nil {
		t.Fatalf("HandleAccept: %v", err)
	}
	return ivID
}

func doJSON(t *testing.T, s *server.Hertz, method, path string, body any) *ut.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	return ut.PerformRequest(s.Engine, method, path,
		&ut.Body{Body: bytes.NewReader(raw), Len: len(raw)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	w := doJSON(t, f.server(), "GET", "/api/health", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Errorf("HealthCheck status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("hiring-api")) {
		t.Errorf("HealthCheck body: %s", resp.Body())
	}
}

func TestCreateJob_Defaults(t *testing.T) {
	f := newFixture(t)
	w := doJSON(t, f.server(), "POST", "/api/v1/job", map[string]any{
		"title":     "Backend Engineer",
		"posted_by": "recruiter@acme.dev",
		"openings":  2,
	})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("CreateJob status: got %d body %s", resp.StatusCode(), resp.Body())
	}
	var job storage.Job
	if err := json.Unmarshal(resp.Body(), &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.ID == "" {
		t.Error("job id empty")
	}
	if job.BufferTarget != DefaultBufferTarget {
		t.Errorf("buffer_target = %d, want %d", job.BufferTarget, DefaultBufferTarget)
	}
	if !job.AutomationEnabled {
		t.Error("automation_enabled should default to true")
	}
}

func TestCreateJob_Validation(t *testing.T) {
	f := newFixture(t)
	s := f.server()

	w := doJSON(t, s, "POST", "/api/v1/job", map[string]any{"posted_by": "r@acme.dev", "openings": 1})
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("missing title status = %d, want 400", got)
	}
	if !bytes.Contains(w.Result().Body(), []byte(`"success":false`)) {
		t.Errorf("error body shape: %s", w.Result().Body())
	}

	w = doJSON(t, s, "POST", "/api/v1/job", map[string]any{"title": "X", "posted_by": "r@acme.dev", "openings": 0})
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("zero openings status = %d, want 400", got)
	}
}

func TestSubmitApplication(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, false)
	s := f.server()

	w := doJSON(t, s, "POST", "/api/v1/application", map[string]any{
		"job_id":          "job-1",
		"candidate_name":  "Dana",
		"candidate_email": "dana@example.com",
		"resume_url":      "https://cv.example.com/dana.pdf",
	})
	resp := w.Result()
	if resp.StatusCode() != 201 {
		t.Fatalf("SubmitApplication status: got %d body %s", resp.StatusCode(), resp.Body())
	}
	var app storage.Application
	if err := json.Unmarshal(resp.Body(), &app); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if app.Status != storage.ShortlistPending {
		t.Errorf("status = %s, want pending", app.Status)
	}
}

func TestSubmitApplication_ClosedJob(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)

	w := doJSON(t, f.server(), "POST", "/api/v1/application", map[string]any{
		"job_id":          "job-1",
		"candidate_name":  "Dana",
		"candidate_email": "dana@example.com",
	})
	resp := w.Result()
	if resp.StatusCode() != 409 {
		t.Errorf("closed job status = %d, want 409", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(`"code":409`)) {
		t.Errorf("error body: %s", resp.Body())
	}
}

func TestUpdateJob_CloseTriggersShortlist(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, false)
	f.seedScoredApp(t, "app-1", 90)
	f.seedScoredApp(t, "app-2", 80)
	f.seedScoredApp(t, "app-3", 70)

	w := doJSON(t, f.server(), "PUT", "/api/v1/job/job-1", map[string]any{
		"applications_closed": true,
	})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("UpdateJob status: got %d body %s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"shortlist"`)) {
		t.Errorf("response missing shortlist outcome: %s", resp.Body())
	}

	ctx := context.Background()
	counts, err := f.store.CountApplicationsByStatus(ctx, "job-1")
	if err != nil {
		t.Fatalf("CountApplicationsByStatus: %v", err)
	}
	if counts[storage.ShortlistShortlisted] != 2 {
		t.Errorf("shortlisted = %d, want 2", counts[storage.ShortlistShortlisted])
	}
	if counts[storage.ShortlistBuffer] != 1 {
		t.Errorf("buffer = %d, want 1", counts[storage.ShortlistBuffer])
	}
	interviews, err := f.store.ListInterviewsByJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListInterviewsByJob: %v", err)
	}
	if len(interviews) != 2 {
		t.Errorf("interviews = %d, want 2（入围即发邀约）", len(interviews))
	}
}

func TestAcceptInvitation_JSON(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	ctx := context.Background()
	out, err := f.iv.SendInvitation(ctx, "app-1")
	if err != nil || !out.OK {
		t.Fatalf("SendInvitation: out=%+v err=%v", out, err)
	}
	ivID := out.Details["interview_id"].(string)
	tok, err := f.tokens.Generate(ivID, token.ActionAccept)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	w := doJSON(t, f.server(), "GET", "/api/v1/interview/accept/"+ivID+"/"+tok, nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("accept status = %d body %s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"outcome":"accepted"`)) {
		t.Errorf("accept body: %s", resp.Body())
	}
	iv, err := f.store.GetInterview(ctx, ivID)
	if err != nil {
		t.Fatalf("GetInterview: %v", err)
	}
	if iv.Status != storage.InterviewSlotPending {
		t.Errorf("status = %s, want slot_pending", iv.Status)
	}
}

func TestAcceptInvitation_FrontendRedirect(t *testing.T) {
	f := newFixture(t)
	f.handler.SetFrontendBaseURL("https://hire.example.dev/")
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	out, err := f.iv.SendInvitation(context.Background(), "app-1")
	if err != nil || !out.OK {
		t.Fatalf("SendInvitation: out=%+v err=%v", out, err)
	}
	ivID := out.Details["interview_id"].(string)
	tok, _ := f.tokens.Generate(ivID, token.ActionReject)

	w := doJSON(t, f.server(), "GET", "/api/v1/interview/reject/"+ivID+"/"+tok, nil)
	resp := w.Result()
	if resp.StatusCode() != 302 {
		t.Fatalf("reject status = %d, want 302", resp.StatusCode())
	}
	loc := resp.Header.Get("Location")
	if !bytes.Contains([]byte(loc), []byte("https://hire.example.dev/interview/result?")) ||
		!bytes.Contains([]byte(loc), []byte("outcome=rejected")) {
		t.Errorf("Location = %q", loc)
	}
}

func TestAcceptInvitation_BadToken(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	out, _ := f.iv.SendInvitation(context.Background(), "app-1")
	ivID := out.Details["interview_id"].(string)

	w := doJSON(t, f.server(), "GET", "/api/v1/interview/accept/"+ivID+"/not-a-token", nil)
	resp := w.Result()
	if resp.StatusCode() != 401 {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(`"code":401`)) {
		t.Errorf("error body: %s", resp.Body())
	}
}

// 无论令牌坏在哪里，候选人看到的都是同一句话，不暴露失败原因
func TestAcceptInvitation_TokenErrorsIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	out, _ := f.iv.SendInvitation(context.Background(), "app-1")
	ivID := out.Details["interview_id"].(string)
	s := f.server()

	otherToken, err := f.tokens.Generate("iv-other", token.ActionAccept)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rejectToken, err := f.tokens.Generate(ivID, token.ActionReject)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var bodies [][]byte
	for _, tok := range []string{"not-a-token", otherToken, rejectToken} {
		w := doJSON(t, s, "GET", "/api/v1/interview/accept/"+ivID+"/"+tok, nil)
		resp := w.Result()
		if resp.StatusCode() != 401 {
			t.Fatalf("token %q status = %d, want 401", tok, resp.StatusCode())
		}
		bodies = append(bodies, append([]byte(nil), resp.Body()...))
	}

	if !bytes.Contains(bodies[0], []byte("链接无效或已过期")) {
		t.Errorf("error body: %s", bodies[0])
	}
	for i := 1; i < len(bodies); i++ {
		if !bytes.Equal(bodies[0], bodies[i]) {
			t.Errorf("响应体因失败原因而异:\n%s\n%s", bodies[0], bodies[i])
		}
	}
}

func TestSelectSlot(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	ivID := f.slotPendingInterview(t, "app-1")
	s := f.server()

	// 周二 10:00，营业时间内
	w := doJSON(t, s, "POST", "/api/v1/interview/select-slot/"+ivID, map[string]any{
		"start": "2026-05-05T10:00:00Z",
	})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("select-slot status = %d body %s", resp.StatusCode(), resp.Body())
	}
	iv, err := f.store.GetInterview(context.Background(), ivID)
	if err != nil {
		t.Fatalf("GetInterview: %v", err)
	}
	if iv.ScheduledTime == nil || !iv.ScheduledTime.Equal(time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("scheduled_time = %v", iv.ScheduledTime)
	}
}

func TestSelectSlot_BadTime(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	ivID := f.slotPendingInterview(t, "app-1")

	w := doJSON(t, f.server(), "POST", "/api/v1/interview/select-slot/"+ivID, map[string]any{
		"start": "next tuesday",
	})
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("bad start status = %d, want 400", got)
	}
}

func TestSelectSlot_ResolvesNegotiation(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	ivID := f.slotPendingInterview(t, "app-1")
	ctx := context.Background()
	if err := f.store.CreateNegotiation(ctx, &storage.NegotiationSession{
		ID:          "neg-1",
		InterviewID: ivID,
		Round:       1,
		MaxRounds:   3,
		State:       storage.NegotiationActive,
	}); err != nil {
		t.Fatalf("CreateNegotiation: %v", err)
	}

	w := doJSON(t, f.server(), "POST", "/api/v1/interview/select-slot/"+ivID, map[string]any{
		"start": "2026-05-05T14:00:00Z",
		"end":   "2026-05-05T15:00:00Z",
	})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("select-slot status = %d body %s", got, w.Result().Body())
	}
	sess, err := f.store.GetNegotiationByInterview(ctx, ivID)
	if err != nil {
		t.Fatalf("GetNegotiationByInterview: %v", err)
	}
	if sess.State != storage.NegotiationResolved {
		t.Errorf("negotiation state = %s, want resolved", sess.State)
	}
}

func TestNegotiate_BotDisabled(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	ivID := f.slotPendingInterview(t, "app-1")
	ctx := context.Background()
	if err := f.store.UpsertFlag(ctx, &storage.FeatureFlag{Name: flags.NegotiationBot, Enabled: false}); err != nil {
		t.Fatalf("UpsertFlag: %v", err)
	}

	w := doJSON(t, f.server(), "POST", "/api/v1/interview/negotiate/"+ivID, map[string]any{
		"message": "周二上午都不行，下午可以",
	})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("negotiate status = %d body %s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte("negotiation_bot_disabled")) {
		t.Errorf("negotiate body: %s", resp.Body())
	}
}

func TestMarkAttendance(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	ivID := f.slotPendingInterview(t, "app-1")
	ctx := context.Background()
	if _, err := f.iv.SelectSlot(ctx, ivID, time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC), time.Time{}); err != nil {
		t.Fatalf("SelectSlot: %v", err)
	}
	if _, err := f.iv.Confirm(ctx, ivID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	s := f.server()

	w := doJSON(t, s, "POST", "/api/v1/interview/attendance/"+ivID, map[string]any{"outcome": "maybe"})
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("bad outcome status = %d, want 400", got)
	}

	w = doJSON(t, s, "POST", "/api/v1/interview/attendance/"+ivID, map[string]any{"outcome": "completed"})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("attendance status = %d body %s", got, w.Result().Body())
	}
	iv, _ := f.store.GetInterview(ctx, ivID)
	if iv.Status != storage.InterviewCompleted {
		t.Errorf("status = %s, want completed", iv.Status)
	}
}

func TestDashboardCandidates_Filter(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	f.seedScoredApp(t, "app-2", 80)
	ctx := context.Background()
	if _, err := f.sl.AutoShortlist(ctx, "job-1"); err != nil {
		t.Fatalf("AutoShortlist: %v", err)
	}
	s := f.server()

	w := doJSON(t, s, "GET", "/api/v1/dashboard/candidates/job-1?status=shortlisted", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("candidates status = %d body %s", resp.StatusCode(), resp.Body())
	}
	var body struct {
		Total      int                    `json:"total"`
		Candidates []*storage.Application `json:"candidates"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Total != 2 {
		t.Errorf("total = %d, want 2", body.Total)
	}
	for _, app := range body.Candidates {
		if app.Status != storage.ShortlistShortlisted {
			t.Errorf("candidate %s status = %s", app.ID, app.Status)
		}
	}

	w = doJSON(t, s, "GET", "/api/v1/dashboard/candidates/job-1?status=bogus", nil)
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("bogus status filter = %d, want 400", got)
	}

	w = doJSON(t, s, "GET", "/api/v1/dashboard/candidates/missing", nil)
	if got := w.Result().StatusCode(); got != 404 {
		t.Errorf("missing job = %d, want 404", got)
	}
}

func TestDashboardActivityLog(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	if _, err := f.sl.AutoShortlist(context.Background(), "job-1"); err != nil {
		t.Fatalf("AutoShortlist: %v", err)
	}
	s := f.server()

	w := doJSON(t, s, "GET", "/api/v1/dashboard/activity-log/job-1", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("activity-log status = %d body %s", resp.StatusCode(), resp.Body())
	}
	var body struct {
		Total  int64 `json:"total"`
		Limit  int   `json:"limit"`
		Offset int   `json:"offset"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Total == 0 {
		t.Error("total = 0, want > 0（入围与邀约都应有日志）")
	}
	if body.Limit != 50 {
		t.Errorf("default limit = %d, want 50", body.Limit)
	}

	w = doJSON(t, s, "GET", "/api/v1/dashboard/activity-log/job-1?action_type=auto_shortlist", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("filtered activity-log status = %d", got)
	}
	if !bytes.Contains(w.Result().Body(), []byte("auto_shortlist")) {
		t.Errorf("filtered body: %s", w.Result().Body())
	}

	w = doJSON(t, s, "GET", "/api/v1/dashboard/activity-log/job-1?limit=abc", nil)
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("bad limit status = %d, want 400", got)
	}

	w = doJSON(t, s, "GET", "/api/v1/dashboard/activity-log/job-1?startDate=not-a-date", nil)
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("bad startDate status = %d, want 400", got)
	}
}

func TestDashboardAnalytics(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, true)
	f.seedScoredApp(t, "app-1", 90)
	f.seedScoredApp(t, "app-2", 80)
	f.seedScoredApp(t, "app-3", 70)
	if _, err := f.sl.AutoShortlist(context.Background(), "job-1"); err != nil {
		t.Fatalf("AutoShortlist: %v", err)
	}

	w := doJSON(t, f.server(), "GET", "/api/v1/dashboard/analytics/job-1", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("analytics status = %d body %s", resp.StatusCode(), resp.Body())
	}
	var body analyticsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Funnel.Total != 3 || body.Funnel.Shortlisted != 2 || body.Funnel.Buffer != 1 {
		t.Errorf("funnel = %+v", body.Funnel)
	}
	if body.Interviews.Total != 2 {
		t.Errorf("interviews total = %d, want 2", body.Interviews.Total)
	}
	if body.Invitations.Sent != 2 {
		t.Errorf("invitations sent = %d, want 2", body.Invitations.Sent)
	}
	if body.Automation.TotalActions == 0 {
		t.Error("automation total = 0, want > 0")
	}
}

func TestSystemHealth(t *testing.T) {
	f := newFixture(t)
	f.handler.SetMonitor(monitoring.New(monitoring.Config{}))

	w := doJSON(t, f.server(), "GET", "/api/v1/system/health", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("system health status = %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("healthy")) {
		t.Errorf("system health body: %s", resp.Body())
	}
}
