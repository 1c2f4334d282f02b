package provider

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/weibaohui/llmchats/config"
)

// ErrNoProviders 没有任何平台可用
var ErrNoProviders = errors.New("no usable providers configured")

// New 按配置创建适配器
// 平台集合是封闭的，新平台在这里登记
func New(cfg config.ProviderConfig, policy RetryPolicy) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", cfg.Platform)
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.Platform
	}

	switch cfg.Platform {
	case "openai", "deepseek", "qwen", "doubao", "moonshot", "ollama":
	default:
		return nil, fmt.Errorf("unsupported platform: %s", cfg.Platform)
	}

	if cfg.Driver == "eino" {
		return newEinoProvider(cfg, policy)
	}
	return newChatProvider(cfg, policy), nil
}

// NewAll 为全部启用的平台创建适配器
// 单个平台创建失败只告警，全部失败才返回错误
func NewAll(cfgs []config.ProviderConfig, policy RetryPolicy) ([]Provider, error) {
	var providers []Provider
	for _, pc := range cfgs {
		p, err := New(pc, policy)
		if err != nil {
			klog.Errorf("创建 %s 适配器失败: %v", pc.Platform, err)
			continue
		}
		klog.V(6).Infof("创建 %s 适配器成功: model=%s", pc.Platform, pc.Model)
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return providers, nil
}
