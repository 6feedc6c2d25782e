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

package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	"hiring-platform/pkg/auth"
)

// IdentityKey 请求上下文里已验签身份的键
const IdentityKey = "identity"

// NewJWTAuth 招聘方会话校验中间件。会话由外部身份服务签发（同一密钥），
// 这里只做验签与过期检查，不提供登录端点。验签通过后把 sub/role 声明
// 解析为 auth.Identity 放入请求上下文，处理器据此做职位归属判定。
func NewJWTAuth(key []byte, timeout, maxRefresh time.Duration) (*jwt.HertzJWTMiddleware, error) {
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:         "hiring-platform",
		Key:           key,
		Timeout:       timeout,
		MaxRefresh:    maxRefresh,
		TokenLookup:   "header: Authorization, query: token",
		TokenHeadName: "Bearer",
		IdentityKey:   IdentityKey,
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			id := auth.Identity{}
			if sub, ok := claims["sub"].(string); ok {
				id.Subject = sub
			}
			if role, ok := claims["role"].(string); ok {
				id.Role = auth.Role(role)
			}
			return id
		},
		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]any{
				"success": false,
				"message": message,
				"code":    code,
			})
		},
	})
}

// Identity 取出 JWT 中间件解析出的会话身份；未启用认证时返回 false。
func Identity(c *app.RequestContext) (auth.Identity, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
