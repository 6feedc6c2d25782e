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
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	perrors "hiring-platform/pkg/errors"
)

const interviewColumns = `id, application_id, job_id, recruiter_email, candidate_name, candidate_email, rank_at_time, status, confirmation_deadline, slot_selection_deadline, scheduled_time, scheduled_end, no_show_risk, calendar_event_ref, created_at, updated_at`

func scanInterview(row pgx.Row) (*Interview, error) {
	var iv Interview
	var status string
	var calendarRef *string
	err := row.Scan(&iv.ID, &iv.ApplicationID, &iv.JobID, &iv.RecruiterEmail,
		&iv.CandidateName, &iv.CandidateEmail, &iv.RankAtTime, &status,
		&iv.ConfirmationDeadline, &iv.SlotSelectionDeadline, &iv.ScheduledTime, &iv.ScheduledEnd,
		&iv.NoShowRisk, &calendarRef, &iv.CreatedAt, &iv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	iv.Status = InterviewStatus(status)
	iv.CalendarEventRef = derefStr(calendarRef)
	return &iv, nil
}

func (s *PgStore) CreateInterview(ctx context.Context, iv *Interview) error {
	if iv.ID == "" {
		iv.ID = newID("iv")
	}
	now := time.Now()
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = now
	}
	iv.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interviews (`+interviewColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		iv.ID, iv.ApplicationID, iv.JobID, iv.RecruiterEmail, iv.CandidateName, iv.CandidateEmail,
		iv.RankAtTime, string(iv.Status), nullTimePtr(iv.ConfirmationDeadline),
		nullTimePtr(iv.SlotSelectionDeadline), nullTimePtr(iv.ScheduledTime), nullTimePtr(iv.ScheduledEnd),
		iv.NoShowRisk, nullStr(iv.CalendarEventRef), iv.CreatedAt, iv.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return perrors.Conflictf("application %s already has an interview", iv.ApplicationID)
		}
		return pgFail("create interview", err)
	}
	return nil
}

func (s *PgStore) GetInterview(ctx context.Context, id string) (*Interview, error) {
	iv, err := scanInterview(s.pool.QueryRow(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.NotFoundf("interview %s", id)
		}
		return nil, pgFail("get interview", err)
	}
	return iv, nil
}

func (s *PgStore) GetInterviewByApplication(ctx context.Context, applicationID string) (*Interview, error) {
	iv, err := scanInterview(s.pool.QueryRow(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE application_id = $1`, applicationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.NotFoundf("interview for application %s", applicationID)
		}
		return nil, pgFail("get interview by application", err)
	}
	return iv, nil
}

func (s *PgStore) ListInterviewsByJob(ctx context.Context, jobID string) ([]*Interview, error) {
	return s.listInterviewsQuery(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE job_id = $1 ORDER BY id ASC`, jobID)
}

// TransitionInterview CAS 迁移：status 前置由 WHERE 子句保证，落空时区分
// NotFound 与 Conflict。可写字段用 COALESCE 实现 nil 保持原值。
func (s *PgStore) TransitionInterview(ctx context.Context, id string, from, to InterviewStatus, upd InterviewUpdate) (*Interview, error) {
	var risk interface{}
	if upd.NoShowRisk != nil {
		risk = *upd.NoShowRisk
	}
	var calendarRef interface{}
	if upd.CalendarEventRef != nil {
		calendarRef = *upd.CalendarEventRef
	}
	iv, err := scanInterview(s.pool.QueryRow(ctx,
		`UPDATE interviews SET status = $3,
		   confirmation_deadline = CASE WHEN $10 THEN NULL ELSE COALESCE($4, confirmation_deadline) END,
		   slot_selection_deadline = COALESCE($5, slot_selection_deadline),
		   scheduled_time = COALESCE($6, scheduled_time),
		   scheduled_end = COALESCE($7, scheduled_end),
		   no_show_risk = COALESCE($8, no_show_risk),
		   calendar_event_ref = COALESCE($9, calendar_event_ref),
		   updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+interviewColumns,
		id, string(from), string(to),
		nullTimePtr(upd.ConfirmationDeadline), nullTimePtr(upd.SlotSelectionDeadline),
		nullTimePtr(upd.ScheduledTime), nullTimePtr(upd.ScheduledEnd), risk, calendarRef,
		upd.ClearConfirmationDeadline))
	if err == nil {
		return iv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, pgFail("transition interview", err)
	}

	// 落空：查当前状态以区分 NotFound / Conflict
	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM interviews WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.NotFoundf("interview %s", id)
		}
		return nil, pgFail("transition interview", err)
	}
	return nil, perrors.Conflictf("interview %s status %s, expected %s", id, current, from)
}

func (s *PgStore) UpdateInterviewRisk(ctx context.Context, id string, risk float64) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE interviews SET no_show_risk = $2, updated_at = now() WHERE id = $1`, id, risk)
	if err != nil {
		return pgFail("update interview risk", err)
	}
	if cmd.RowsAffected() == 0 {
		return perrors.NotFoundf("interview %s", id)
	}
	return nil
}

func (s *PgStore) ListDueConfirmations(ctx context.Context, now time.Time) ([]*Interview, error) {
	return s.listInterviewsQuery(ctx,
		`SELECT `+interviewColumns+` FROM interviews
		 WHERE status = $1 AND confirmation_deadline <= $2 ORDER BY id ASC`,
		string(InterviewInvitationSent), now)
}

func (s *PgStore) ListDueSlotSelections(ctx context.Context, now time.Time) ([]*Interview, error) {
	return s.listInterviewsQuery(ctx,
		`SELECT `+interviewColumns+` FROM interviews
		 WHERE status = $1 AND slot_selection_deadline <= $2 ORDER BY id ASC`,
		string(InterviewSlotPending), now)
}

func (s *PgStore) ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*Interview, error) {
	return s.listInterviewsQuery(ctx,
		`SELECT `+interviewColumns+` FROM interviews
		 WHERE status = $1 AND scheduled_time >= $2 AND scheduled_time <= $3 ORDER BY id ASC`,
		string(InterviewConfirmed), from, to)
}

func (s *PgStore) ListConfirmedUpcoming(ctx context.Context, now time.Time) ([]*Interview, error) {
	return s.listInterviewsQuery(ctx,
		`SELECT `+interviewColumns+` FROM interviews
		 WHERE status = $1 AND scheduled_time > $2 ORDER BY id ASC`,
		string(InterviewConfirmed), now)
}

func (s *PgStore) listInterviewsQuery(ctx context.Context, query string, args ...interface{}) ([]*Interview, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgFail("list interviews", err)
	}
	defer rows.Close()
	var list []*Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, pgFail("scan interview", err)
		}
		list = append(list, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, pgFail("list interviews", err)
	}
	return list, nil
}

// ---- Negotiation ----

func (s *PgStore) CreateNegotiation(ctx context.Context, sess *NegotiationSession) error {
	if sess.ID == "" {
		sess.ID = newID("neg")
	}
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	history, err := json.Marshal(sess.History)
	if err != nil {
		return perrors.Wrap(err, "marshal negotiation history")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO negotiation_sessions (id, interview_id, round, max_rounds, state, awaiting_pick, history, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.InterviewID, sess.Round, sess.MaxRounds, string(sess.State), sess.AwaitingPick, history,
		sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return perrors.Conflictf("interview %s already has a negotiation", sess.InterviewID)
		}
		return pgFail("create negotiation", err)
	}
	return nil
}

func (s *PgStore) GetNegotiationByInterview(ctx context.Context, interviewID string) (*NegotiationSession, error) {
	var sess NegotiationSession
	var state string
	var history []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, interview_id, round, max_rounds, state, awaiting_pick, history, created_at, updated_at
		 FROM negotiation_sessions WHERE interview_id = $1`, interviewID).
		Scan(&sess.ID, &sess.InterviewID, &sess.Round, &sess.MaxRounds, &state, &sess.AwaitingPick, &history,
			&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.NotFoundf("negotiation for interview %s", interviewID)
		}
		return nil, pgFail("get negotiation", err)
	}
	sess.State = NegotiationState(state)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &sess.History); err != nil {
			return nil, perrors.Wrap(err, "unmarshal negotiation history")
		}
	}
	return &sess, nil
}

func (s *PgStore) UpdateNegotiation(ctx context.Context, sess *NegotiationSession) error {
	history, err := json.Marshal(sess.History)
	if err != nil {
		return perrors.Wrap(err, "marshal negotiation history")
	}
	cmd, err := s.pool.Exec(ctx,
		`UPDATE negotiation_sessions SET round = $2, max_rounds = $3, state = $4, awaiting_pick = $5, history = $6, updated_at = now()
		 WHERE id = $1`,
		sess.ID, sess.Round, sess.MaxRounds, string(sess.State), sess.AwaitingPick, history)
	if err != nil {
		return pgFail("update negotiation", err)
	}
	if cmd.RowsAffected() == 0 {
		return perrors.NotFoundf("negotiation %s", sess.ID)
	}
	return nil
}
