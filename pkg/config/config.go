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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Automation  AutomationConfig  `mapstructure:"automation"`
	Scheduling  SchedulingConfig  `mapstructure:"scheduling"`
	Shortlist   ShortlistConfig   `mapstructure:"shortlist"`
	Negotiation NegotiationConfig `mapstructure:"negotiation"`
	Token       TokenConfig       `mapstructure:"token"`
	Services    ServicesConfig    `mapstructure:"services"`
	Model       ModelConfig       `mapstructure:"model"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
	Frontend    FrontendConfig    `mapstructure:"frontend"`
	Log         LogConfig         `mapstructure:"log"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	RateLimit     bool   `mapstructure:"rate_limit"`
	RateLimitRPS  int    `mapstructure:"rate_limit_rps"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
}

// StorageConfig 存储配置
type StorageConfig struct {
	Primary PrimaryConfig `mapstructure:"primary"`
	Cache   CacheConfig   `mapstructure:"cache"`
}

// PrimaryConfig 主存储配置（招聘实体 + 自动化日志 + 邮件队列）
type PrimaryConfig struct {
	Type     string `mapstructure:"type"` // memory | postgres
	DSN      string `mapstructure:"dsn"`  // type=postgres 时必填
	PoolSize int    `mapstructure:"pool_size"`
}

// CacheConfig 缓存配置（日历空闲时段 / 看板聚合）
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	TTL      string `mapstructure:"ttl"` // 如 "5m"，空则默认 5m
}

// AutomationConfig 后台自动化循环配置
type AutomationConfig struct {
	// InProcess 为 true 时 API 进程内运行自动化循环（单实例部署）；
	// 生产部署由独立 worker 进程承载。未配置时默认 false。
	InProcess *bool `mapstructure:"in_process"`
	// CyclePeriod 循环周期，如 "5m"；空则默认 5m
	CyclePeriod string `mapstructure:"cycle_period"`
	// Schedule 可选 cron 表达式（如 "*/5 * * * *"），配置后优先于 CyclePeriod
	Schedule string `mapstructure:"schedule"`
	// ErrorAlertThreshold 单轮收集错误数超过该值时发管理员告警；<=0 默认 3
	ErrorAlertThreshold int `mapstructure:"error_alert_threshold"`
	// Lease 多副本互斥租约（仅 postgres 存储生效）
	Lease LeaseConfig `mapstructure:"lease"`
}

// LeaseConfig 循环租约配置
type LeaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Duration string `mapstructure:"duration"` // 如 "2m"，空则默认 2m
}

// SchedulingConfig 面试排期配置
type SchedulingConfig struct {
	ConfirmationDeadline string `mapstructure:"confirmation_deadline"` // 邀约确认时限，默认 48h
	SlotDeadline         string `mapstructure:"slot_deadline"`         // 选中时段确认时限，默认 24h
}

// ShortlistConfig 入围配置
type ShortlistConfig struct {
	BufferTarget  int    `mapstructure:"buffer_target"`  // 候补席位数，<=0 默认 3
	PromotionWait string `mapstructure:"promotion_wait"` // 拒绝后候补转正等待，默认 24h
}

// NegotiationConfig 时间协商配置
type NegotiationConfig struct {
	MaxRounds       int `mapstructure:"max_rounds"`       // <=0 默认 3
	SuggestionLimit int `mapstructure:"suggestion_limit"` // <=0 默认 3
}

// TokenConfig 候选人操作令牌配置
type TokenConfig struct {
	Secret string `mapstructure:"secret"` // 支持 ${VAR} 占位；留空时从 secrets 后端取 token_signing_secret
	TTL    string `mapstructure:"ttl"`    // 如 "168h"（7 天），空则默认 168h
	Issuer string `mapstructure:"issuer"`
}

// ServicesConfig 外部服务端点配置
type ServicesConfig struct {
	Email    EmailServiceConfig    `mapstructure:"email"`
	Calendar CalendarServiceConfig `mapstructure:"calendar"`
	Risk     RiskServiceConfig     `mapstructure:"risk"`
	Scoring  ScoringServiceConfig  `mapstructure:"scoring"`
}

// EmailServiceConfig 邮件服务配置
type EmailServiceConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Timeout     string `mapstructure:"timeout"` // 默认 5s
	From        string `mapstructure:"from"`
	DispatchRPS int    `mapstructure:"dispatch_rps"` // 队列出队速率，<=0 默认 5
}

// CalendarServiceConfig 日历服务配置
type CalendarServiceConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Timeout  string `mapstructure:"timeout"`   // 默认 10s
	CacheTTL string `mapstructure:"cache_ttl"` // 空闲时段缓存，默认 5m
}

// RiskServiceConfig 爽约风险服务配置
type RiskServiceConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Timeout  string `mapstructure:"timeout"` // 默认 5s
}

// ScoringServiceConfig 简历评分服务配置
type ScoringServiceConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Timeout  string `mapstructure:"timeout"` // 默认 5s
}

// ModelConfig 模型配置（可用性文本解析用 LLM）
type ModelConfig struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// LLMConfig LLM 模型配置
type LLMConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	APIKey  string               `mapstructure:"api_key"`
	BaseURL string               `mapstructure:"base_url"`
	Models  map[string]ModelInfo `mapstructure:"models"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// DefaultsConfig 默认模型配置
type DefaultsConfig struct {
	LLM string `mapstructure:"llm"`
}

// SecretsConfig 秘钥后端配置
type SecretsConfig struct {
	Type  string      `mapstructure:"type"` // env | vault，空则默认 env
	Vault VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 后端配置
type VaultConfig struct {
	Addr  string `mapstructure:"addr"`
	Token string `mapstructure:"token"` // 支持 ${VAR} 占位
	Mount string `mapstructure:"mount"` // KV v2 挂载点，默认 "secret"
	Path  string `mapstructure:"path"`  // 默认 "hiring-platform"
}

// FrontendConfig 候选人落地页配置
type FrontendConfig struct {
	// BaseURL 非空时 accept/reject GET 以 302 跳转到结果页；空则直接返回 JSON
	BaseURL string `mapstructure:"base_url"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量
	if err := replaceEnvVars(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// replaceEnvVars 替换配置中的 ${VAR} 占位（API Key、令牌密钥、DSN、服务端点）
func replaceEnvVars(config *Config) error {
	for provider, providerConfig := range config.Model.LLM.Providers {
		if v, ok := expandEnv(providerConfig.APIKey); ok {
			providerConfig.APIKey = v
			config.Model.LLM.Providers[provider] = providerConfig
		}
	}
	if v, ok := expandEnv(config.Token.Secret); ok {
		config.Token.Secret = v
	}
	if v, ok := expandEnv(config.Secrets.Vault.Token); ok {
		config.Secrets.Vault.Token = v
	}
	if v, ok := expandEnv(config.Storage.Primary.DSN); ok {
		config.Storage.Primary.DSN = v
	}
	if v, ok := expandEnv(config.Services.Email.Endpoint); ok {
		config.Services.Email.Endpoint = v
	}
	if v, ok := expandEnv(config.Services.Calendar.Endpoint); ok {
		config.Services.Calendar.Endpoint = v
	}
	if v, ok := expandEnv(config.Services.Risk.Endpoint); ok {
		config.Services.Risk.Endpoint = v
	}
	if v, ok := expandEnv(config.Services.Scoring.Endpoint); ok {
		config.Services.Scoring.Endpoint = v
	}
	if v, ok := expandEnv(config.Frontend.BaseURL); ok {
		config.Frontend.BaseURL = v
	}
	return nil
}

// expandEnv 解析 "${VAR}" 形式的占位；返回 (值, 是否替换)
func expandEnv(s string) (string, bool) {
	if !strings.HasPrefix(s, "$") {
		return s, false
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(s, "}"), "${")
	if val := os.Getenv(envVar); val != "" {
		return val, true
	}
	return s, false
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}

// LoadWorkerConfig 加载 Worker 配置（configs/worker.yaml）
func LoadWorkerConfig() (*Config, error) {
	return LoadConfig("configs/worker.yaml")
}
