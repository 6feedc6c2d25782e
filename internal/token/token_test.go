package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "hiring-platform/pkg/errors"
)

var testSecret = []byte("test-signing-secret")

func TestGenerateValidate_RoundTrip(t *testing.T) {
	svc := NewService(testSecret, 0, "hiring-platform")

	tok, err := svc.Generate("iv-1", ActionAccept)
	require.NoError(t, err)

	claims, err := svc.Validate("iv-1", tok, ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, "iv-1", claims.InterviewID)
	assert.Equal(t, string(ActionAccept), claims.Action)
	assert.Equal(t, "interview_action", claims.Type)
	assert.NotEmpty(t, claims.Nonce)
}

func TestGenerate_InvalidAction(t *testing.T) {
	svc := NewService(testSecret, 0, "")
	_, err := svc.Generate("iv-1", Action("postpone"))
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidArg))
}

func TestGenerate_UniquePerCall(t *testing.T) {
	svc := NewService(testSecret, 0, "")
	t1, err := svc.Generate("iv-1", ActionAccept)
	require.NoError(t, err)
	t2, err := svc.Generate("iv-1", ActionAccept)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2, "nonce 应保证同参数签发互不相同")
}

func TestValidate_InterviewMismatch(t *testing.T) {
	svc := NewService(testSecret, 0, "")
	tok, err := svc.Generate("iv-1", ActionAccept)
	require.NoError(t, err)

	_, err = svc.Validate("iv-2", tok, ActionAccept)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidToken))
}

func TestValidate_ActionMismatch(t *testing.T) {
	svc := NewService(testSecret, 0, "")
	tok, err := svc.Generate("iv-1", ActionAccept)
	require.NoError(t, err)

	_, err = svc.Validate("iv-1", tok, ActionReject)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidToken))
}

func TestValidate_WrongSecret(t *testing.T) {
	svc := NewService(testSecret, 0, "")
	other := NewService([]byte("another-secret"), 0, "")

	tok, err := svc.Generate("iv-1", ActionReject)
	require.NoError(t, err)

	_, err = other.Validate("iv-1", tok, ActionReject)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidToken))
}

func TestValidate_Expired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(testSecret, time.Hour, "").WithClock(func() time.Time { return issued })

	tok, err := svc.Generate("iv-1", ActionAccept)
	require.NoError(t, err)

	// 时钟拨到过期之后
	svc.WithClock(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = svc.Validate("iv-1", tok, ActionAccept)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidToken))
}

func TestValidate_MissingExpiry(t *testing.T) {
	svc := NewService(testSecret, 0, "")

	// 手工签一枚不带 exp 的令牌
	claims := Claims{InterviewID: "iv-1", Action: string(ActionAccept), Type: "interview_action", Nonce: "n"}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = svc.Validate("iv-1", tok, ActionAccept)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidToken))
}

func TestValidate_Garbage(t *testing.T) {
	svc := NewService(testSecret, 0, "")
	_, err := svc.Validate("iv-1", "not-a-jwt", ActionAccept)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidToken))
}
