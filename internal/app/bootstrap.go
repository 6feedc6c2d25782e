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

package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"hiring-platform/internal/storage"
	"hiring-platform/internal/storage/cache"
	"hiring-platform/pkg/config"
	"hiring-platform/pkg/log"
	"hiring-platform/pkg/secrets"
)

// Bootstrap 统一初始化：供 api 与 worker 复用，避免在 cmd 内写装配逻辑
type Bootstrap struct {
	Config  *config.Config
	Logger  *log.Logger
	Store   storage.Store
	Cache   cache.Store
	Secrets secrets.Store

	// pg 仅在主存储为 postgres 时非 nil，供邮件 outbox 等共用连接池
	pg *storage.PgStore
}

// NewBootstrap 根据配置创建 Bootstrap（日志/主存储/缓存/Secrets）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	b := &Bootstrap{Config: cfg, Logger: logger}

	switch cfg.Storage.Primary.Type {
	case "", "memory":
		b.Store = storage.NewMemoryStore()
	case "postgres":
		pg, err := storage.NewPgStore(ctx, cfg.Storage.Primary.DSN, cfg.Storage.Primary.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("初始化主存储failed: %w", err)
		}
		b.Store = pg
		b.pg = pg
	default:
		return nil, fmt.Errorf("未知主存储类型: %s", cfg.Storage.Primary.Type)
	}

	b.Cache, err = cache.NewCache(cfg.Storage.Cache)
	if err != nil {
		b.Store.Close()
		return nil, fmt.Errorf("初始化缓存failed: %w", err)
	}

	b.Secrets, err = secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Type,
		Vault: secrets.VaultConfig{
			Address: cfg.Secrets.Vault.Addr,
			Token:   cfg.Secrets.Vault.Token,
			Mount:   cfg.Secrets.Vault.Mount,
			Path:    cfg.Secrets.Vault.Path,
		},
	})
	if err != nil {
		b.Cache.Close()
		b.Store.Close()
		return nil, fmt.Errorf("初始化 secrets failed: %w", err)
	}

	return b, nil
}

// PgPool 主存储为 postgres 时返回共享连接池，否则返回 nil。
// 邮件发件箱等旁路存储借用同一个池。
func (b *Bootstrap) PgPool() *pgxpool.Pool {
	if b.pg == nil {
		return nil
	}
	return b.pg.Pool()
}

// TokenSecret 解析令牌签名密钥：配置值优先（支持 ${VAR} 占位），
// 为空或占位展开为空时回退 secrets 后端的 token_signing_secret。
func (b *Bootstrap) TokenSecret(ctx context.Context) ([]byte, error) {
	if raw := strings.TrimSpace(b.Config.Token.Secret); raw != "" {
		expanded := os.Expand(raw, os.Getenv)
		if strings.TrimSpace(expanded) != "" {
			return []byte(expanded), nil
		}
	}
	v, err := b.Secrets.Get(ctx, "token_signing_secret")
	if err != nil {
		return nil, fmt.Errorf("解析令牌签名密钥failed: %w", err)
	}
	return []byte(v), nil
}

// Close 释放 Bootstrap 持有的连接资源
func (b *Bootstrap) Close() error {
	var firstErr error
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			firstErr = err
		}
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
