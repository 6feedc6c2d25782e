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

// Package token 候选人操作令牌：HS256 签名、7 天有效、单一用途
// （accept 或 reject 某一场面试）。令牌无状态自证，服务端只持签名密钥；
// 一次性语义由面试状态机前置保证，非令牌本身。
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	perrors "hiring-platform/pkg/errors"
	"hiring-platform/pkg/metrics"
)

// Action 令牌允许的候选人动作
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// purpose 是令牌的 type 声明；其他用途的令牌一律拒绝
const purpose = "interview_action"

// DefaultTTL 令牌默认有效期
const DefaultTTL = 7 * 24 * time.Hour

// Claims 令牌载荷
type Claims struct {
	InterviewID string `json:"interview_id"`
	Action      string `json:"action"`
	Type        string `json:"type"`
	Nonce       string `json:"nonce"`
	jwt.RegisteredClaims
}

// Service 令牌签发与校验
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	clock  func() time.Time
}

// NewService 创建令牌服务；ttl<=0 时取 DefaultTTL
func NewService(secret []byte, ttl time.Duration, issuer string) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{secret: secret, ttl: ttl, issuer: issuer, clock: time.Now}
}

// WithClock 替换时钟（测试用）
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Generate 为面试签发一枚动作令牌；随机 nonce 保证多次签发互不相同
func (s *Service) Generate(interviewID string, action Action) (string, error) {
	if action != ActionAccept && action != ActionReject {
		return "", perrors.Invalidf("invalid token action %q", action)
	}
	if interviewID == "" {
		return "", perrors.Invalidf("interview id required")
	}
	now := s.clock()
	claims := Claims{
		InterviewID: interviewID,
		Action:      string(action),
		Type:        purpose,
		Nonce:       uuid.New().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", perrors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Validate 校验令牌并核对面试与动作。任何失败只返回 ErrInvalidToken 一类，
// 上层对用户统一呈现"链接无效或已过期"，不泄露具体原因。
func (s *Service) Validate(interviewID, tokenStr string, expected Action) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, perrors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		metrics.TokenValidationTotal.WithLabelValues("invalid").Inc()
		return nil, perrors.Wrap(perrors.ErrInvalidToken, "parse token")
	}
	if !parsed.Valid {
		metrics.TokenValidationTotal.WithLabelValues("invalid").Inc()
		return nil, perrors.Wrap(perrors.ErrInvalidToken, "token not valid")
	}
	// 过期按注入时钟手工校验；exp 缺失视同无效
	if claims.ExpiresAt == nil || !s.clock().Before(claims.ExpiresAt.Time) {
		metrics.TokenValidationTotal.WithLabelValues("expired").Inc()
		return nil, perrors.Wrap(perrors.ErrInvalidToken, "token expired")
	}
	if claims.Type != purpose {
		metrics.TokenValidationTotal.WithLabelValues("wrong_type").Inc()
		return nil, perrors.Wrapf(perrors.ErrInvalidToken, "token type %q", claims.Type)
	}
	if claims.InterviewID != interviewID {
		metrics.TokenValidationTotal.WithLabelValues("invalid").Inc()
		return nil, perrors.Wrap(perrors.ErrInvalidToken, "interview mismatch")
	}
	if claims.Action != string(expected) {
		metrics.TokenValidationTotal.WithLabelValues("invalid").Inc()
		return nil, perrors.Wrap(perrors.ErrInvalidToken, "action mismatch")
	}
	metrics.TokenValidationTotal.WithLabelValues("ok").Inc()
	return claims, nil
}
