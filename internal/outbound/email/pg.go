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

package email

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	perrors "hiring-platform/pkg/errors"
)

// PgQueue PostgreSQL 发件箱，email_outbox 表；认领走 FOR UPDATE SKIP LOCKED，
// 多个 Dispatcher 并行出队互不相扰
type PgQueue struct {
	pool *pgxpool.Pool
}

// NewPgQueue 创建基于 PostgreSQL 的发件箱；与主存储共用连接池
func NewPgQueue(pool *pgxpool.Pool) *PgQueue {
	return &PgQueue{pool: pool}
}

func (q *PgQueue) Enqueue(ctx context.Context, to, template string, data map[string]any) (string, error) {
	if to == "" || template == "" {
		return "", perrors.Invalidf("email to and template required")
	}
	id := "mail-" + uuid.New().String()
	payload, err := json.Marshal(data)
	if err != nil {
		return "", perrors.Wrap(err, "marshal email data")
	}
	_, err = q.pool.Exec(ctx,
		`INSERT INTO email_outbox (id, recipient, template, data, status) VALUES ($1, $2, $3, $4, 'pending')`,
		id, to, template, payload)
	if err != nil {
		return "", perrors.Transientf("enqueue email: %v", err)
	}
	return id, nil
}

func (q *PgQueue) ClaimOne(ctx context.Context, workerID string) (*Message, error) {
	var m Message
	var data []byte
	err := q.pool.QueryRow(ctx,
		`WITH sel AS (
  SELECT id FROM email_outbox WHERE status = 'pending' ORDER BY created_at, id LIMIT 1 FOR UPDATE SKIP LOCKED
)
UPDATE email_outbox SET status = 'claimed', worker_id = $1, claimed_at = now()
FROM sel WHERE email_outbox.id = sel.id
RETURNING email_outbox.id, email_outbox.recipient, email_outbox.template, email_outbox.data,
  email_outbox.status, email_outbox.attempts, email_outbox.created_at`,
		workerID,
	).Scan(&m.ID, &m.To, &m.Template, &data, &m.Status, &m.Attempts, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, perrors.Transientf("claim email: %v", err)
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &m.Data)
	}
	return &m, nil
}

func (q *PgQueue) MarkSent(ctx context.Context, id string) error {
	cmd, err := q.pool.Exec(ctx,
		`UPDATE email_outbox SET status = 'sent', sent_at = now(), last_error = NULL WHERE id = $1`, id)
	if err != nil {
		return perrors.Transientf("mark email sent: %v", err)
	}
	if cmd.RowsAffected() == 0 {
		return perrors.NotFoundf("email %s", id)
	}
	return nil
}

func (q *PgQueue) MarkFailed(ctx context.Context, id string, errMsg string, requeue bool) error {
	status := "failed"
	if requeue {
		status = "pending"
	}
	cmd, err := q.pool.Exec(ctx,
		`UPDATE email_outbox SET status = $2, attempts = attempts + 1, last_error = $3 WHERE id = $1`,
		id, status, errMsg)
	if err != nil {
		return perrors.Transientf("mark email failed: %v", err)
	}
	if cmd.RowsAffected() == 0 {
		return perrors.NotFoundf("email %s", id)
	}
	return nil
}

func (q *PgQueue) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := q.pool.Query(ctx, `SELECT status, count(*) FROM email_outbox GROUP BY status`)
	if err != nil {
		return nil, perrors.Transientf("count emails: %v", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, perrors.Transientf("count emails: %v", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
