// Package llm 可用性解析与候选人沟通用的 LLM 客户端。
// 协商机器人只在 gemini_parsing / gemini_responses 开关通过且客户端配置
// 存在时调用，失败一律静默回退规则路径。
package llm

import (
	"context"
	"fmt"
	"strings"

	"hiring-platform/pkg/config"
)

// Client LLM 客户端接口
type Client interface {
	// Generate 生成文本
	Generate(prompt string, options GenerateOptions) (string, error)
	// GenerateWithContext 使用上下文生成文本
	GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error)
	// Chat 聊天
	Chat(messages []Message, options GenerateOptions) (string, error)
	// ChatWithContext 使用上下文聊天
	ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop"`
}

// Message 聊天消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// New 创建 LLM 客户端。gemini 走自带 REST 客户端，
// 其余 provider 视为 OpenAI 兼容端点，经 eino ChatModel 接入。
func New(ctx context.Context, provider, model, apiKey, baseURL string) (Client, error) {
	switch provider {
	case "gemini":
		return NewGeminiClient(model, apiKey)
	default:
		return NewEinoClient(ctx, provider, model, apiKey, baseURL)
	}
}

// NewFromConfig 按配置的默认模型构建客户端并套上限流。
// 未配置默认模型时返回 (nil, nil)，调用方按无 LLM 处理。
func NewFromConfig(ctx context.Context, cfg *config.Config) (Client, error) {
	if cfg == nil || cfg.Model.Defaults.LLM == "" {
		return nil, nil
	}
	provider, modelKey, err := parseDefaultKey(cfg.Model.Defaults.LLM)
	if err != nil {
		return nil, err
	}
	pc, ok := cfg.Model.LLM.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("LLM provider %q 未配置", provider)
	}
	mi, ok := pc.Models[modelKey]
	if !ok {
		return nil, fmt.Errorf("LLM 模型 %q 未在 provider %q 下配置", modelKey, provider)
	}
	if pc.APIKey == "" {
		return nil, fmt.Errorf("LLM provider %q 缺少 api_key", provider)
	}

	client, err := New(ctx, provider, mi.Name, pc.APIKey, pc.BaseURL)
	if err != nil {
		return nil, err
	}
	return NewLimited(client, NewLimiter(nil)), nil
}

func parseDefaultKey(key string) (provider, modelKey string, err error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("default key 格式应为 provider.model_key，如 gemini.flash，当前: %q", key)
	}
	return parts[0], parts[1], nil
}
