package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
	Data      DataConfig      `yaml:"data"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

// SessionConfig 讨论会话的默认参数
type SessionConfig struct {
	MaxRounds       int           `yaml:"max_rounds"`       // 默认讨论轮数
	MaxParticipants int           `yaml:"max_participants"` // 单场讨论参与模型上限
	CallTimeout     time.Duration `yaml:"call_timeout"`     // 单次模型调用超时
	SystemPrompt    string        `yaml:"system_prompt"`    // 为空时按主题自动生成
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

// ProviderConfig 单个模型平台的配置
// Platform 由所在字段决定，不从配置文件读取
type ProviderConfig struct {
	Platform        string        `yaml:"-"`
	DisplayName     string        `yaml:"display_name"` // 转录中的默认展示名
	Enabled         bool          `yaml:"enabled"`
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	Temperature     float64       `yaml:"temperature"`
	MaxTokens       int           `yaml:"max_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxContextTurns int           `yaml:"max_context_turns"` // 上下文窗口内保留的历史发言数，0 表示不裁剪
	Driver          string        `yaml:"driver"`            // http / eino
}

// ProvidersConfig 平台集合，字段顺序即默认的发言顺序
type ProvidersConfig struct {
	OpenAI   ProviderConfig `yaml:"openai"`
	DeepSeek ProviderConfig `yaml:"deepseek"`
	Qwen     ProviderConfig `yaml:"qwen"`
	Doubao   ProviderConfig `yaml:"doubao"`
	Moonshot ProviderConfig `yaml:"moonshot"`
	Ollama   ProviderConfig `yaml:"ollama"`
}

// All 按固定顺序返回全部平台配置
func (p *ProvidersConfig) All() []ProviderConfig {
	return []ProviderConfig{p.OpenAI, p.DeepSeek, p.Qwen, p.Doubao, p.Moonshot, p.Ollama}
}

// Enabled 返回已启用的平台配置
func (p *ProvidersConfig) Enabled() []ProviderConfig {
	var out []ProviderConfig
	for _, pc := range p.All() {
		if pc.Enabled {
			out = append(out, pc)
		}
	}
	return out
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

func loadConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/app.db",
		},
		Session: SessionConfig{
			MaxRounds:       3,
			MaxParticipants: 4,
			CallTimeout:     60 * time.Second,
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				Platform:    "openai",
				DisplayName: "OpenAI",
				BaseURL:     "https://api.openai.com/v1",
				Model:       "gpt-4o",
				Driver:      "eino",
			},
			DeepSeek: ProviderConfig{
				Platform:    "deepseek",
				DisplayName: "DeepSeek",
				BaseURL:     "https://api.deepseek.com/v1",
				Model:       "deepseek-reasoner",
			},
			Qwen: ProviderConfig{
				Platform:    "qwen",
				DisplayName: "阿里云百炼",
				BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
				Model:       "qwen-max-2024-09-19",
			},
			Doubao: ProviderConfig{
				Platform:    "doubao",
				DisplayName: "火山豆包",
				BaseURL:     "https://ark.cn-beijing.volces.com/api/v3",
				Model:       "ep-m-20250629223026-prr94", // 接入点 ID，不是模型名
			},
			Moonshot: ProviderConfig{
				Platform:    "moonshot",
				DisplayName: "月之暗面",
				BaseURL:     "https://api.moonshot.cn/v1",
				Model:       "moonshot-v1-128k",
			},
			Ollama: ProviderConfig{
				Platform:    "ollama",
				DisplayName: "Ollama",
				BaseURL:     "http://localhost:11434/v1",
				Model:       "deepseek-r1:8b",
				APIKey:      "ollama", // Ollama 不校验，占位即可
			},
		},
		Data: DataConfig{
			Dir: "./data",
		},
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		yaml.Unmarshal(data, config)
	}

	// 环境变量优先级高于配置文件
	applyProviderEnv(&config.Providers.OpenAI, "OPENAI")
	applyProviderEnv(&config.Providers.DeepSeek, "DEEPSEEK")
	applyProviderEnv(&config.Providers.Qwen, "ALIBABA")
	applyProviderEnv(&config.Providers.Doubao, "DOUBAO")
	applyProviderEnv(&config.Providers.Moonshot, "MOONSHOT")
	applyProviderEnv(&config.Providers.Ollama, "OLLAMA")

	// yaml 解析不会保留 Platform，这里统一回填
	config.Providers.OpenAI.Platform = "openai"
	config.Providers.DeepSeek.Platform = "deepseek"
	config.Providers.Qwen.Platform = "qwen"
	config.Providers.Doubao.Platform = "doubao"
	config.Providers.Moonshot.Platform = "moonshot"
	config.Providers.Ollama.Platform = "ollama"

	// Ollama 走 OpenAI 兼容接口，base_url 需要 /v1 后缀
	if u := config.Providers.Ollama.BaseURL; u != "" && !strings.HasSuffix(u, "/v1") {
		config.Providers.Ollama.BaseURL = strings.TrimRight(u, "/") + "/v1"
	}
	if config.Providers.Ollama.APIKey == "" {
		config.Providers.Ollama.APIKey = "ollama"
	}
	// Ollama 通过 OLLAMA_ENABLED 显式开关，其余平台配了 key 即视为可用
	if os.Getenv("OLLAMA_ENABLED") != "" {
		config.Providers.Ollama.Enabled = strings.EqualFold(os.Getenv("OLLAMA_ENABLED"), "true")
	}

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		config.Data.Dir = dataDir
	}
	if rounds := os.Getenv("MAX_ROUNDS"); rounds != "" {
		if n, err := strconv.Atoi(rounds); err == nil && n > 0 {
			config.Session.MaxRounds = n
		}
	}
	if t := os.Getenv("CALL_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil && d > 0 {
			config.Session.CallTimeout = d
		}
	}

	return config
}

// applyProviderEnv 读取 <PREFIX>_API_KEY 等环境变量覆盖平台配置
// 配置了 API Key 即视为启用，与原始部署方式保持一致
func applyProviderEnv(pc *ProviderConfig, prefix string) {
	if key := os.Getenv(prefix + "_API_KEY"); key != "" {
		pc.APIKey = key
		pc.Enabled = true
	}
	if model := os.Getenv(prefix + "_MODEL"); model != "" {
		pc.Model = model
	}
	if baseURL := os.Getenv(prefix + "_BASE_URL"); baseURL != "" {
		pc.BaseURL = baseURL
	}
	if temp := os.Getenv(prefix + "_TEMPERATURE"); temp != "" {
		if f, err := strconv.ParseFloat(temp, 64); err == nil {
			pc.Temperature = f
		}
	}
	if mt := os.Getenv(prefix + "_MAX_TOKENS"); mt != "" {
		if n, err := strconv.Atoi(mt); err == nil && n > 0 {
			pc.MaxTokens = n
		}
	}
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
