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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	perrors "hiring-platform/pkg/errors"
)

// ---- FeatureFlag ----

func (s *PgStore) GetFlag(ctx context.Context, name string) (*FeatureFlag, error) {
	var f FeatureFlag
	var description *string
	err := s.pool.QueryRow(ctx,
		`SELECT name, enabled, description, updated_at FROM feature_flags WHERE name = $1`, name).
		Scan(&f.Name, &f.Enabled, &description, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.NotFoundf("feature flag %s", name)
		}
		return nil, pgFail("get flag", err)
	}
	f.Description = derefStr(description)
	return &f, nil
}

func (s *PgStore) ListFlags(ctx context.Context) ([]*FeatureFlag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, enabled, description, updated_at FROM feature_flags ORDER BY name ASC`)
	if err != nil {
		return nil, pgFail("list flags", err)
	}
	defer rows.Close()
	var list []*FeatureFlag
	for rows.Next() {
		var f FeatureFlag
		var description *string
		if err := rows.Scan(&f.Name, &f.Enabled, &description, &f.UpdatedAt); err != nil {
			return nil, pgFail("scan flag", err)
		}
		f.Description = derefStr(description)
		list = append(list, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, pgFail("list flags", err)
	}
	return list, nil
}

func (s *PgStore) UpsertFlag(ctx context.Context, f *FeatureFlag) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feature_flags (name, enabled, description, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled,
		   description = EXCLUDED.description, updated_at = now()`,
		f.Name, f.Enabled, nullStr(f.Description))
	if err != nil {
		return pgFail("upsert flag", err)
	}
	return nil
}

// ---- AutomationLog ----

func (s *PgStore) AppendLog(ctx context.Context, entry *AutomationLog) error {
	if entry.ID == "" {
		entry.ID = newID("log")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return perrors.Wrap(err, "marshal log details")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO automation_logs (id, job_id, action_type, trigger_source, actor, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, nullStr(entry.JobID), entry.ActionType, string(entry.TriggerSource),
		nullStr(entry.Actor), details, entry.CreatedAt)
	if err != nil {
		return pgFail("append log", err)
	}
	return nil
}

// buildLogWhere 拼接日志过滤条件；返回 WHERE 子句与参数
func buildLogWhere(filter LogFilter) (string, []interface{}) {
	where := ` WHERE 1=1`
	var args []interface{}
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		where += fmt.Sprintf(` AND job_id = $%d`, len(args))
	}
	if len(filter.ActionTypes) > 0 {
		args = append(args, filter.ActionTypes)
		where += fmt.Sprintf(` AND action_type = ANY($%d)`, len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}
	if filter.InterviewID != "" {
		args = append(args, filter.InterviewID)
		where += fmt.Sprintf(` AND details->>'interview_id' = $%d`, len(args))
	}
	if filter.CandidateID != "" {
		args = append(args, filter.CandidateID)
		where += fmt.Sprintf(` AND details->>'candidate_id' = $%d`, len(args))
	}
	return where, args
}

func (s *PgStore) ListLogs(ctx context.Context, filter LogFilter, page Pagination) ([]*AutomationLog, error) {
	where, args := buildLogWhere(filter)
	query := `SELECT id, job_id, action_type, trigger_source, actor, details, created_at FROM automation_logs` +
		where + ` ORDER BY created_at DESC, id DESC`
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if page.Offset > 0 {
		args = append(args, page.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgFail("list logs", err)
	}
	defer rows.Close()
	var list []*AutomationLog
	for rows.Next() {
		var e AutomationLog
		var jobID, actor *string
		var trigger string
		var details []byte
		if err := rows.Scan(&e.ID, &jobID, &e.ActionType, &trigger, &actor, &details, &e.CreatedAt); err != nil {
			return nil, pgFail("scan log", err)
		}
		e.JobID = derefStr(jobID)
		e.Actor = derefStr(actor)
		e.TriggerSource = TriggerSource(trigger)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, perrors.Wrap(err, "unmarshal log details")
			}
		}
		list = append(list, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, pgFail("list logs", err)
	}
	return list, nil
}

func (s *PgStore) CountLogs(ctx context.Context, filter LogFilter) (int64, error) {
	where, args := buildLogWhere(filter)
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM automation_logs`+where, args...).Scan(&n)
	if err != nil {
		return 0, pgFail("count logs", err)
	}
	return n, nil
}

func (s *PgStore) AggregateLogCounts(ctx context.Context, jobID string) (*LogCounts, error) {
	counts := &LogCounts{
		ByAction:  make(map[string]int64),
		ByTrigger: make(map[string]int64),
	}
	query := `SELECT action_type, trigger_source, count(*) FROM automation_logs`
	var args []interface{}
	if jobID != "" {
		query += ` WHERE job_id = $1`
		args = append(args, jobID)
	}
	query += ` GROUP BY action_type, trigger_source`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgFail("aggregate logs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action, trigger string
		var n int64
		if err := rows.Scan(&action, &trigger, &n); err != nil {
			return nil, pgFail("aggregate logs", err)
		}
		counts.Total += n
		counts.ByAction[action] += n
		counts.ByTrigger[trigger] += n
	}
	if err := rows.Err(); err != nil {
		return nil, pgFail("aggregate logs", err)
	}
	return counts, nil
}

func (s *PgStore) HasLog(ctx context.Context, actionType, interviewID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM automation_logs WHERE action_type = $1 AND details->>'interview_id' = $2)`,
		actionType, interviewID).Scan(&exists)
	if err != nil {
		return false, pgFail("has log", err)
	}
	return exists, nil
}

// ---- Lease ----

func (s *PgStore) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	expires := time.Now().Add(ttl)
	var got string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO scheduler_leases (name, owner, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
		 WHERE scheduler_leases.owner = EXCLUDED.owner OR scheduler_leases.expires_at <= now()
		 RETURNING owner`,
		name, owner, expires).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, pgFail("acquire lease", err)
	}
	return got == owner, nil
}

func (s *PgStore) RenewLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE scheduler_leases SET expires_at = $3 WHERE name = $1 AND owner = $2`,
		name, owner, time.Now().Add(ttl))
	if err != nil {
		return false, pgFail("renew lease", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *PgStore) ReleaseLease(ctx context.Context, name, owner string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM scheduler_leases WHERE name = $1 AND owner = $2`, name, owner)
	if err != nil {
		return pgFail("release lease", err)
	}
	return nil
}
