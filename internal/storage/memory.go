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

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	perrors "hiring-platform/pkg/errors"
)

// MemoryStore 内存存储实现。单进程内所有写操作持同一把锁，
// ApplyAssignments 与 PromoteBufferCandidate 天然串行。
type MemoryStore struct {
	mu           sync.RWMutex
	jobs         map[string]*Job
	apps         map[string]*Application
	interviews   map[string]*Interview
	ivByApp      map[string]string // application_id -> interview_id
	negotiations map[string]*NegotiationSession
	negByIv      map[string]string // interview_id -> negotiation_id
	flags        map[string]*FeatureFlag
	logs         []*AutomationLog
	leases       map[string]*memLease
	clock        func() time.Time
}

type memLease struct {
	owner   string
	expires time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:         make(map[string]*Job),
		apps:         make(map[string]*Application),
		interviews:   make(map[string]*Interview),
		ivByApp:      make(map[string]string),
		negotiations: make(map[string]*NegotiationSession),
		negByIv:      make(map[string]string),
		flags:        make(map[string]*FeatureFlag),
		leases:       make(map[string]*memLease),
		clock:        time.Now,
	}
}

// Close 关闭存储连接
func (s *MemoryStore) Close() error { return nil }

func newID(prefix string) string { return prefix + "-" + uuid.New().String() }

// ---- Job ----

func (s *MemoryStore) CreateJob(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = newID("job")
	}
	if _, exists := s.jobs[j.ID]; exists {
		return perrors.Conflictf("job %s already exists", j.ID)
	}
	now := s.clock()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	s.jobs[j.ID] = cloneJob(j)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, exists := s.jobs[id]
	if !exists {
		return nil, perrors.NotFoundf("job %s", id)
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) UpdateJob(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; !exists {
		return perrors.NotFoundf("job %s", j.ID)
	}
	j.UpdatedAt = s.clock()
	s.jobs[j.ID] = cloneJob(j)
	return nil
}

func (s *MemoryStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return perrors.NotFoundf("job %s", id)
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) ListOpenJobs(ctx context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Job
	for _, j := range s.jobs {
		if !j.Expired {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (s *MemoryStore) ListActiveJobs(ctx context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Job
	for _, j := range s.jobs {
		if j.ApplicationsClosed && !j.Expired {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

// ---- Application ----

func (s *MemoryStore) CreateApplication(ctx context.Context, a *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = newID("app")
	}
	if _, exists := s.apps[a.ID]; exists {
		return perrors.Conflictf("application %s already exists", a.ID)
	}
	if _, exists := s.jobs[a.JobID]; !exists {
		return perrors.NotFoundf("job %s", a.JobID)
	}
	now := s.clock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = ShortlistPending
	}
	s.apps[a.ID] = cloneApp(a)
	return nil
}

func (s *MemoryStore) GetApplication(ctx context.Context, id string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.apps[id]
	if !exists {
		return nil, perrors.NotFoundf("application %s", id)
	}
	return cloneApp(a), nil
}

func (s *MemoryStore) UpdateApplication(ctx context.Context, a *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apps[a.ID]; !exists {
		return perrors.NotFoundf("application %s", a.ID)
	}
	a.UpdatedAt = s.clock()
	s.apps[a.ID] = cloneApp(a)
	return nil
}

func (s *MemoryStore) ListApplicationsByJob(ctx context.Context, jobID string, filter ApplicationFilter) ([]*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Application
	for _, a := range s.apps {
		if a.JobID != jobID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, a.Status) {
			continue
		}
		out = append(out, cloneApp(a))
	}
	sortByRank(out)
	return out, nil
}

func (s *MemoryStore) ListScoredPending(ctx context.Context, jobID string) ([]*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Application
	for _, a := range s.apps {
		if a.JobID == jobID && a.AIProcessed && a.Status == ShortlistPending {
			out = append(out, cloneApp(a))
		}
	}
	sort.Slice(out, func(i, k int) bool {
		si, sk := scoreOf(out[i]), scoreOf(out[k])
		if si != sk {
			return si > sk
		}
		return out[i].ID < out[k].ID
	})
	return out, nil
}

func (s *MemoryStore) CountApplicationsByStatus(ctx context.Context, jobID string) (map[ShortlistStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[ShortlistStatus]int)
	for _, a := range s.apps {
		if a.JobID == jobID {
			counts[a.Status]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) ApplyAssignments(ctx context.Context, jobID string, assigns []RankAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 先整体校验前置，任一失败则不落任何写入
	for _, as := range assigns {
		a, exists := s.apps[as.ApplicationID]
		if !exists {
			return perrors.NotFoundf("application %s", as.ApplicationID)
		}
		if a.JobID != jobID {
			return perrors.Invalidf("application %s not in job %s", as.ApplicationID, jobID)
		}
		if as.ExpectStatus != "" && a.Status != as.ExpectStatus {
			return perrors.Conflictf("application %s status %s, expected %s", as.ApplicationID, a.Status, as.ExpectStatus)
		}
	}
	now := s.clock()
	for _, as := range assigns {
		a := s.apps[as.ApplicationID]
		a.Status = as.Status
		a.Rank = as.Rank
		a.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) PromoteBufferCandidate(ctx context.Context, jobID string, vacatedRank int) (*Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidate *Application
	for _, a := range s.apps {
		if a.JobID != jobID || a.Status != ShortlistBuffer {
			continue
		}
		if candidate == nil || a.Rank < candidate.Rank || (a.Rank == candidate.Rank && a.ID < candidate.ID) {
			candidate = a
		}
	}
	if candidate == nil {
		return nil, perrors.NotFoundf("no buffer candidate for job %s", jobID)
	}

	oldRank := candidate.Rank
	now := s.clock()
	candidate.Status = ShortlistShortlisted
	candidate.Rank = vacatedRank
	candidate.UpdatedAt = now

	// 其余 buffer 前移一位，保持 rank 连续
	for _, a := range s.apps {
		if a.JobID == jobID && a.Status == ShortlistBuffer && a.Rank > oldRank {
			a.Rank--
			a.UpdatedAt = now
		}
	}
	return cloneApp(candidate), nil
}

func (s *MemoryStore) RejectApplication(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.apps[id]
	if !exists {
		return perrors.NotFoundf("application %s", id)
	}
	a.Status = ShortlistRejected
	a.Rank = 0
	a.UpdatedAt = s.clock()
	return nil
}

// ---- Interview ----

func (s *MemoryStore) CreateInterview(ctx context.Context, iv *Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if iv.ID == "" {
		iv.ID = newID("iv")
	}
	if _, exists := s.interviews[iv.ID]; exists {
		return perrors.Conflictf("interview %s already exists", iv.ID)
	}
	if existing, exists := s.ivByApp[iv.ApplicationID]; exists {
		return perrors.Conflictf("application %s already has interview %s", iv.ApplicationID, existing)
	}
	now := s.clock()
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = now
	}
	iv.UpdatedAt = now
	s.interviews[iv.ID] = cloneInterview(iv)
	s.ivByApp[iv.ApplicationID] = iv.ID
	return nil
}

func (s *MemoryStore) GetInterview(ctx context.Context, id string) (*Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iv, exists := s.interviews[id]
	if !exists {
		return nil, perrors.NotFoundf("interview %s", id)
	}
	return cloneInterview(iv), nil
}

func (s *MemoryStore) GetInterviewByApplication(ctx context.Context, applicationID string) (*Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.ivByApp[applicationID]
	if !exists {
		return nil, perrors.NotFoundf("interview for application %s", applicationID)
	}
	return cloneInterview(s.interviews[id]), nil
}

func (s *MemoryStore) ListInterviewsByJob(ctx context.Context, jobID string) ([]*Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Interview
	for _, iv := range s.interviews {
		if iv.JobID == jobID {
			out = append(out, cloneInterview(iv))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (s *MemoryStore) TransitionInterview(ctx context.Context, id string, from, to InterviewStatus, upd InterviewUpdate) (*Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, exists := s.interviews[id]
	if !exists {
		return nil, perrors.NotFoundf("interview %s", id)
	}
	if iv.Status != from {
		return nil, perrors.Conflictf("interview %s status %s, expected %s", id, iv.Status, from)
	}
	iv.Status = to
	applyInterviewUpdate(iv, upd)
	iv.UpdatedAt = s.clock()
	return cloneInterview(iv), nil
}

func (s *MemoryStore) UpdateInterviewRisk(ctx context.Context, id string, risk float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, exists := s.interviews[id]
	if !exists {
		return perrors.NotFoundf("interview %s", id)
	}
	iv.NoShowRisk = risk
	iv.UpdatedAt = s.clock()
	return nil
}

func (s *MemoryStore) ListDueConfirmations(ctx context.Context, now time.Time) ([]*Interview, error) {
	return s.listInterviews(func(iv *Interview) bool {
		return iv.Status == InterviewInvitationSent &&
			iv.ConfirmationDeadline != nil && !iv.ConfirmationDeadline.After(now)
	})
}

func (s *MemoryStore) ListDueSlotSelections(ctx context.Context, now time.Time) ([]*Interview, error) {
	return s.listInterviews(func(iv *Interview) bool {
		return iv.Status == InterviewSlotPending &&
			iv.SlotSelectionDeadline != nil && !iv.SlotSelectionDeadline.After(now)
	})
}

func (s *MemoryStore) ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*Interview, error) {
	return s.listInterviews(func(iv *Interview) bool {
		return iv.Status == InterviewConfirmed && iv.ScheduledTime != nil &&
			!iv.ScheduledTime.Before(from) && !iv.ScheduledTime.After(to)
	})
}

func (s *MemoryStore) ListConfirmedUpcoming(ctx context.Context, now time.Time) ([]*Interview, error) {
	return s.listInterviews(func(iv *Interview) bool {
		return iv.Status == InterviewConfirmed && iv.ScheduledTime != nil && iv.ScheduledTime.After(now)
	})
}

func (s *MemoryStore) listInterviews(match func(*Interview) bool) ([]*Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Interview
	for _, iv := range s.interviews {
		if match(iv) {
			out = append(out, cloneInterview(iv))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

// ---- Negotiation ----

func (s *MemoryStore) CreateNegotiation(ctx context.Context, sess *NegotiationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = newID("neg")
	}
	if existing, exists := s.negByIv[sess.InterviewID]; exists {
		return perrors.Conflictf("interview %s already has negotiation %s", sess.InterviewID, existing)
	}
	now := s.clock()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	s.negotiations[sess.ID] = cloneNegotiation(sess)
	s.negByIv[sess.InterviewID] = sess.ID
	return nil
}

func (s *MemoryStore) GetNegotiationByInterview(ctx context.Context, interviewID string) (*NegotiationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.negByIv[interviewID]
	if !exists {
		return nil, perrors.NotFoundf("negotiation for interview %s", interviewID)
	}
	return cloneNegotiation(s.negotiations[id]), nil
}

func (s *MemoryStore) UpdateNegotiation(ctx context.Context, sess *NegotiationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.negotiations[sess.ID]; !exists {
		return perrors.NotFoundf("negotiation %s", sess.ID)
	}
	sess.UpdatedAt = s.clock()
	s.negotiations[sess.ID] = cloneNegotiation(sess)
	return nil
}

// ---- FeatureFlag ----

func (s *MemoryStore) GetFlag(ctx context.Context, name string) (*FeatureFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, exists := s.flags[name]
	if !exists {
		return nil, perrors.NotFoundf("feature flag %s", name)
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) ListFlags(ctx context.Context) ([]*FeatureFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*FeatureFlag, 0, len(s.flags))
	for _, f := range s.flags {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

func (s *MemoryStore) UpsertFlag(ctx context.Context, f *FeatureFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *f
	cp.UpdatedAt = s.clock()
	s.flags[f.Name] = &cp
	return nil
}

// ---- AutomationLog ----

func (s *MemoryStore) AppendLog(ctx context.Context, entry *AutomationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = newID("log")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock()
	}
	s.logs = append(s.logs, cloneLog(entry))
	return nil
}

func (s *MemoryStore) ListLogs(ctx context.Context, filter LogFilter, page Pagination) ([]*AutomationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*AutomationLog
	for _, e := range s.logs {
		if matchLog(e, filter) {
			out = append(out, cloneLog(e))
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].ID > out[k].ID
	})
	start := page.Offset
	if start >= len(out) {
		return []*AutomationLog{}, nil
	}
	end := len(out)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	return out[start:end], nil
}

func (s *MemoryStore) CountLogs(ctx context.Context, filter LogFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.logs {
		if matchLog(e, filter) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AggregateLogCounts(ctx context.Context, jobID string) (*LogCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := &LogCounts{
		ByAction:  make(map[string]int64),
		ByTrigger: make(map[string]int64),
	}
	for _, e := range s.logs {
		if jobID != "" && e.JobID != jobID {
			continue
		}
		counts.Total++
		counts.ByAction[e.ActionType]++
		counts.ByTrigger[string(e.TriggerSource)]++
	}
	return counts, nil
}

func (s *MemoryStore) HasLog(ctx context.Context, actionType, interviewID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.logs {
		if e.ActionType != actionType {
			continue
		}
		if id, ok := e.Details["interview_id"].(string); ok && id == interviewID {
			return true, nil
		}
	}
	return false, nil
}

// ---- Lease ----

func (s *MemoryStore) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	l, exists := s.leases[name]
	if exists && l.owner != owner && l.expires.After(now) {
		return false, nil
	}
	s.leases[name] = &memLease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) RenewLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.leases[name]
	if !exists || l.owner != owner {
		return false, nil
	}
	l.expires = s.clock().Add(ttl)
	return true, nil
}

func (s *MemoryStore) ReleaseLease(ctx context.Context, name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, exists := s.leases[name]; exists && l.owner == owner {
		delete(s.leases, name)
	}
	return nil
}

// ---- helpers ----

func cloneJob(j *Job) *Job {
	cp := *j
	return &cp
}

func cloneApp(a *Application) *Application {
	cp := *a
	if a.FitScore != nil {
		v := *a.FitScore
		cp.FitScore = &v
	}
	return &cp
}

func cloneInterview(iv *Interview) *Interview {
	cp := *iv
	cp.ConfirmationDeadline = cloneTime(iv.ConfirmationDeadline)
	cp.SlotSelectionDeadline = cloneTime(iv.SlotSelectionDeadline)
	cp.ScheduledTime = cloneTime(iv.ScheduledTime)
	cp.ScheduledEnd = cloneTime(iv.ScheduledEnd)
	return &cp
}

func cloneNegotiation(n *NegotiationSession) *NegotiationSession {
	cp := *n
	cp.History = make([]NegotiationTurn, len(n.History))
	copy(cp.History, n.History)
	return &cp
}

func cloneLog(e *AutomationLog) *AutomationLog {
	cp := *e
	if e.Details != nil {
		cp.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			cp.Details[k] = v
		}
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func containsStatus(list []ShortlistStatus, st ShortlistStatus) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}

func scoreOf(a *Application) float64 {
	if a.FitScore == nil {
		return -1
	}
	return *a.FitScore
}

// sortByRank 申请排序：有 rank 的按 rank asc 在前，未定级按 id asc 在后
func sortByRank(apps []*Application) {
	sort.Slice(apps, func(i, k int) bool {
		ri, rk := apps[i].Rank, apps[k].Rank
		if (ri == 0) != (rk == 0) {
			return rk == 0
		}
		if ri != rk {
			return ri < rk
		}
		return apps[i].ID < apps[k].ID
	})
}

func applyInterviewUpdate(iv *Interview, upd InterviewUpdate) {
	if upd.ClearConfirmationDeadline {
		iv.ConfirmationDeadline = nil
	}
	if upd.ConfirmationDeadline != nil {
		iv.ConfirmationDeadline = cloneTime(upd.ConfirmationDeadline)
	}
	if upd.SlotSelectionDeadline != nil {
		iv.SlotSelectionDeadline = cloneTime(upd.SlotSelectionDeadline)
	}
	if upd.ScheduledTime != nil {
		iv.ScheduledTime = cloneTime(upd.ScheduledTime)
	}
	if upd.ScheduledEnd != nil {
		iv.ScheduledEnd = cloneTime(upd.ScheduledEnd)
	}
	if upd.NoShowRisk != nil {
		iv.NoShowRisk = *upd.NoShowRisk
	}
	if upd.CalendarEventRef != nil {
		iv.CalendarEventRef = *upd.CalendarEventRef
	}
}

func matchLog(e *AutomationLog, f LogFilter) bool {
	if f.JobID != "" && e.JobID != f.JobID {
		return false
	}
	if len(f.ActionTypes) > 0 {
		found := false
		for _, t := range f.ActionTypes {
			if e.ActionType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	if f.InterviewID != "" {
		id, ok := e.Details["interview_id"].(string)
		if !ok || id != f.InterviewID {
			return false
		}
	}
	if f.CandidateID != "" {
		id, ok := e.Details["candidate_id"].(string)
		if !ok || id != f.CandidateID {
			return false
		}
	}
	return true
}
