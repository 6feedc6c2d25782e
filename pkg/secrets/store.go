// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
	"fmt"
)

// Store Secret 存储接口。令牌签名密钥等敏感配置通过它解析。
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值（内存后端用于测试种子；vault 写穿）
	Set(ctx context.Context, key string, value string) error
}

// Config Secret Store 配置
type Config struct {
	Provider string      `yaml:"provider"` // env | vault | memory
	Vault    VaultConfig `yaml:"vault"`
}

// NewStore 创建 Secret Store；Provider 为空时默认 env。
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStore(), nil
	case "vault":
		return NewVaultStore(config.Vault)
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", config.Provider)
	}
}
