// Copyright 2026 fanjia1024
// HashiCorp Vault secret store

package secrets

import (
	"context"
	"fmt"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address string `yaml:"address"` // Vault server address (e.g., http://vault:8200)
	Token   string `yaml:"token"`   // Vault token
	Mount   string `yaml:"mount"`   // KV v2 挂载点，默认 "secret"
	Path    string `yaml:"path"`    // KV 路径，默认 "hiring-platform"
}

type vaultStore struct {
	client *vault.Client
	mount  string
	path   string
	mu     sync.RWMutex
	cache  map[string]string // 读缓存；Set 写穿后更新
}

// NewVaultStore 创建 Vault secret store（KV v2，单路径多字段）
func NewVaultStore(config VaultConfig) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if config.Token != "" {
		client.SetToken(config.Token)
	}

	// Try to verify connection
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}

	mount := config.Mount
	if mount == "" {
		mount = "secret"
	}
	path := config.Path
	if path == "" {
		path = "hiring-platform"
	}

	return &vaultStore{
		client: client,
		mount:  mount,
		path:   path,
		cache:  make(map[string]string),
	}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	v.mu.RLock()
	if val, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return val, nil
	}
	v.mu.RUnlock()

	secret, err := v.client.KVv2(v.mount).Get(ctx, v.path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}

	val, ok := secret.Data[key].(string)
	if !ok || val == "" {
		return "", fmt.Errorf("secret field not found: %s", key)
	}

	v.mu.Lock()
	v.cache[key] = val
	v.mu.Unlock()
	return val, nil
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	_, err := v.client.KVv2(v.mount).Patch(ctx, v.path, map[string]interface{}{key: value})
	if err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}

	v.mu.Lock()
	v.cache[key] = value
	v.mu.Unlock()
	return nil
}
