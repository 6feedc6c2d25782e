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
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	perrors "hiring-platform/pkg/errors"
)

// PgStore Postgres 存储实现。跨行不变量（入围分区、rank 连续）依赖
// jobs 行锁串行化同职位的写入。
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建基于 PostgreSQL 的存储；dsn 为连接串
func NewPgStore(ctx context.Context, dsn string, poolSize int) (*PgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgStore{pool: pool}, nil
}

// Pool 暴露底层连接池；邮件发件箱与存储共用同一池
func (s *PgStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close 关闭连接池
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// pgFail 将底层存储错误归入 Transient（连接失败、超时、序列化冲突等可重试类）
func pgFail(op string, err error) error {
	if isUniqueViolation(err) {
		return perrors.Conflictf("%s: %v", op, err)
	}
	return perrors.Transientf("%s: %v", op, err)
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullRank(r int) interface{} {
	if r == 0 {
		return nil
	}
	return r
}

func derefRank(r *int) int {
	if r == nil {
		return 0
	}
	return *r
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ---- Job ----

const jobColumns = `id, title, description, posted_by, openings, buffer_target, applications_closed, expired, automation_enabled, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var description, postedBy *string
	err := row.Scan(&j.ID, &j.Title, &description, &postedBy, &j.Openings, &j.BufferTarget,
		&j.ApplicationsClosed, &j.Expired, &j.AutomationEnabled, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Description = derefStr(description)
	j.PostedBy = derefStr(postedBy)
	return &j, nil
}

func (s *PgStore) CreateJob(ctx context.Context, j *Job) error {
	if j.ID == "" {
		j.ID = newID("job")
	}
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		j.ID, j.Title, nullStr(j.Description), nullStr(j.PostedBy), j.Openings, j.BufferTarget,
		j.ApplicationsClosed, j.Expired, j.AutomationEnabled, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return perrors.Conflictf("job %s already exists", j.ID)
		}
		return pgFail("create job", err)
	}
	return nil
}

func (s *PgStore) GetJob(ctx context.Context, id string) (*Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.NotFoundf("job %s", id)
		}
		return nil, pgFail("get job", err)
	}
	return j, nil
}

func (s *PgStore) UpdateJob(ctx context.Context, j *Job) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE jobs SET title = $2, description = $3, posted_by = $4, openings = $5, buffer_target = $6,
		 applications_closed = $7, expired = $8, automation_enabled = $9, updated_at = now()
		 WHERE id = $1`,
		j.ID, j.Title, nullStr(j.Description), nullStr(j.PostedBy), j.Openings, j.BufferTarget,
		j.ApplicationsClosed, j.Expired, j.AutomationEnabled)
	if err != nil {
		return pgFail("update job", err)
	}
	if cmd.RowsAffected() == 0 {
		return perrors.NotFoundf("job %s", j.ID)
	}
	return nil
}

func (s *PgStore) DeleteJob(ctx context.Context, id string) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return pgFail("delete job", err)
	}
	if cmd.RowsAffected() == 0 {
		return perrors.NotFoundf("job %s", id)
	}
	return nil
}

func (s *PgStore) ListOpenJobs(ctx context.Context) ([]*Job, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE expired = false ORDER BY id ASC`)
}

func (s *PgStore) ListActiveJobs(ctx context.Context) ([]*Job, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE applications_closed = true AND expired = false ORDER BY id ASC`)
}

func (s *PgStore) listJobs(ctx context.Context, query string) ([]*Job, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, pgFail("list jobs", err)
	}
	defer rows.Close()
	var list []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, pgFail("scan job", err)
		}
		list = append(list, j)
	}
	if err := rows.Err(); err != nil {
		return nil, pgFail("list jobs", err)
	}
	return list, nil
}

// ---- Application ----

const appColumns = `id, job_id, candidate_name, candidate_email, resume_url, fit_score, ai_summary, rank, shortlist_status, ai_processed, manual_override, created_at, updated_at`

func scanApplication(row pgx.Row) (*Application, error) {
	var a Application
	var resumeURL, aiSummary *string
	var rank *int
	var status string
	err := row.Scan(&a.ID, &a.JobID, &a.CandidateName, &a.CandidateEmail, &resumeURL,
		&a.FitScore, &aiSummary, &rank, &status, &a.AIProcessed, &a.ManualOverride,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ResumeURL = derefStr(resumeURL)
	a.AISummary = derefStr(aiSummary)
	a.Rank = derefRank(rank)
	a.Status = ShortlistStatus(status)
	return &a, nil
}

func (s *PgStore) CreateApplication(ctx context.Context, a *Application) error {
	if a.ID == "" {
		a.ID = newID("app")
	}
	if a.Status == "" {
		a.Status = ShortlistPending
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO applications (`+appColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.JobID, a.CandidateName, a.CandidateEmail, nullStr(a.ResumeURL),
		a.FitScore, nullStr(a.AISummary), nullRank(a.Rank), string(a.Status),
		a.AIProcessed, a.ManualOverride, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return perrors.Conflictf("application %s already exists", a.ID)
		}
		return pgFail("create application", err)
	}
	return nil
}

func (s *PgStore) GetApplication(ctx context.Context, id string) (*Application, error) {
	a, err := scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+appColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.NotFoundf("application %s", id)
		}
		return nil, pgFail("get application", err)
	}
	return a, nil
}

func (s *PgStore) UpdateApplication(ctx context.Context, a *Application) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE applications SET candidate_name = $2, candidate_email = $3, resume_url = $4,
		 fit_score = $5, ai_summary = $6, rank = $7, shortlist_status = $8,
		 ai_processed = $9, manual_override = $10, updated_at = now()
		 WHERE id = $1`,
		a.ID, a.CandidateName, a.CandidateEmail, nullStr(a.ResumeURL), a.FitScore,
		nullStr(a.AISummary), nullRank(a.Rank), string(a.Status), a.AIProcessed, a.ManualOverride)
	if err != nil {
		return pgFail("update application", err)
	}
	if cmd.RowsAffected() == 0 {
		return perrors.NotFoundf("application %s", a.ID)
	}
	return nil
}

func (s *PgStore) ListApplicationsByJob(ctx context.Context, jobID string, filter ApplicationFilter) ([]*Application, error) {
	query := `SELECT ` + appColumns + ` FROM applications WHERE job_id = $1`
	args := []interface{}{jobID}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		query += ` AND shortlist_status = ANY($2)`
		args = append(args, statuses)
	}
	query += ` ORDER BY rank ASC NULLS LAST, id ASC`
	return s.listApplications(ctx, query, args...)
}

func (s *PgStore) ListScoredPending(ctx context.Context, jobID string) ([]*Application, error) {
	return s.listApplications(ctx,
		`SELECT `+appColumns+` FROM applications
		 WHERE job_id = $1 AND ai_processed = true AND shortlist_status = $2
		 ORDER BY fit_score DESC NULLS LAST, id ASC`,
		jobID, string(ShortlistPending))
}

func (s *PgStore) listApplications(ctx context.Context, query string, args ...interface{}) ([]*Application, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgFail("list applications", err)
	}
	defer rows.Close()
	var list []*Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, pgFail("scan application", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, pgFail("list applications", err)
	}
	return list, nil
}

func (s *PgStore) CountApplicationsByStatus(ctx context.Context, jobID string) (map[ShortlistStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT shortlist_status, count(*) FROM applications WHERE job_id = $1 GROUP BY shortlist_status`, jobID)
	if err != nil {
		return nil, pgFail("count applications", err)
	}
	defer rows.Close()
	out := make(map[ShortlistStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, pgFail("count applications", err)
		}
		out[ShortlistStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, pgFail("count applications", err)
	}
	return out, nil
}

// lockJob 在事务内取 jobs 行锁，串行化同职位的分区变更
func lockJob(ctx context.Context, tx pgx.Tx, jobID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return perrors.NotFoundf("job %s", jobID)
		}
		return pgFail("lock job", err)
	}
	return nil
}

func (s *PgStore) ApplyAssignments(ctx context.Context, jobID string, assigns []RankAssignment) error {
	if len(assigns) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return pgFail("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := lockJob(ctx, tx, jobID); err != nil {
		return err
	}
	for _, as := range assigns {
		query := `UPDATE applications SET shortlist_status = $1, rank = $2, updated_at = now()
			 WHERE id = $3 AND job_id = $4`
		args := []interface{}{string(as.Status), nullRank(as.Rank), as.ApplicationID, jobID}
		if as.ExpectStatus != "" {
			query += ` AND shortlist_status = $5`
			args = append(args, string(as.ExpectStatus))
		}
		cmd, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return pgFail("apply assignment", err)
		}
		if cmd.RowsAffected() == 0 {
			return perrors.Conflictf("application %s not in expected state %s", as.ApplicationID, as.ExpectStatus)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return pgFail("commit assignments", err)
	}
	return nil
}

func (s *PgStore) PromoteBufferCandidate(ctx context.Context, jobID string, vacatedRank int) (*Application, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, pgFail("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := lockJob(ctx, tx, jobID); err != nil {
		return nil, err
	}

	promoted, err := scanApplication(tx.QueryRow(ctx,
		`SELECT `+appColumns+` FROM applications
		 WHERE job_id = $1 AND shortlist_status = $2
		 ORDER BY rank ASC, id ASC LIMIT 1`,
		jobID, string(ShortlistBuffer)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.NotFoundf("no buffer candidate for job %s", jobID)
		}
		return nil, pgFail("select buffer candidate", err)
	}

	oldRank := promoted.Rank
	if _, err := tx.Exec(ctx,
		`UPDATE applications SET shortlist_status = $1, rank = $2, updated_at = now() WHERE id = $3`,
		string(ShortlistShortlisted), vacatedRank, promoted.ID); err != nil {
		return nil, pgFail("promote buffer candidate", err)
	}
	// 其余 buffer 前移一位，保持 rank 连续
	if _, err := tx.Exec(ctx,
		`UPDATE applications SET rank = rank - 1, updated_at = now()
		 WHERE job_id = $1 AND shortlist_status = $2 AND rank > $3`,
		jobID, string(ShortlistBuffer), oldRank); err != nil {
		return nil, pgFail("shift buffer ranks", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, pgFail("commit promotion", err)
	}

	promoted.Status = ShortlistShortlisted
	promoted.Rank = vacatedRank
	return promoted, nil
}

func (s *PgStore) RejectApplication(ctx context.Context, id string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE applications SET shortlist_status = $1, rank = NULL, updated_at = now() WHERE id = $2`,
		string(ShortlistRejected), id)
	if err != nil {
		return pgFail("reject application", err)
	}
	if cmd.RowsAffected() == 0 {
		return perrors.NotFoundf("application %s", id)
	}
	return nil
}
