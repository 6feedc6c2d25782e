package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "hiring-platform/pkg/errors"
)

func TestMemoryQueue_EnqueueClaimOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, "a@example.com", TemplateInvitation, map[string]any{"job": "后端工程师"})
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, "b@example.com", TemplateReminder, nil)
	require.NoError(t, err)

	// 先入先出
	m, err := q.ClaimOne(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, id1, m.ID)
	assert.Equal(t, StatusClaimed, m.Status)

	m2, err := q.ClaimOne(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, m2)
	assert.Equal(t, id2, m2.ID)

	// 队列空
	m3, err := q.ClaimOne(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, m3)
}

func TestMemoryQueue_EnqueueValidation(t *testing.T) {
	q := NewMemoryQueue()
	_, err := q.Enqueue(context.Background(), "", TemplateInvitation, nil)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidArg))

	_, err = q.Enqueue(context.Background(), "a@example.com", "", nil)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidArg))
}

func TestMemoryQueue_MarkSent(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "a@example.com", TemplateConfirmation, nil)
	require.NoError(t, err)
	_, err = q.ClaimOne(ctx, "w1")
	require.NoError(t, err)

	require.NoError(t, q.MarkSent(ctx, id))

	sent := q.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, id, sent[0].ID)
	assert.NotNil(t, sent[0].SentAt)

	assert.True(t, perrors.Is(q.MarkSent(ctx, "missing"), perrors.ErrNotFound))
}

func TestMemoryQueue_MarkFailedRequeue(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "a@example.com", TemplateInvitation, nil)
	require.NoError(t, err)
	_, err = q.ClaimOne(ctx, "w1")
	require.NoError(t, err)

	// 退回后可再次被认领，尝试次数累加
	require.NoError(t, q.MarkFailed(ctx, id, "service unavailable", true))
	m, err := q.ClaimOne(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, id, m.ID)
	assert.Equal(t, 1, m.Attempts)
	assert.Equal(t, "service unavailable", m.LastError)

	// 终态 failed 不再出队
	require.NoError(t, q.MarkFailed(ctx, id, "still down", false))
	m2, err := q.ClaimOne(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, m2)

	counts, err := q.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[StatusFailed])
}
