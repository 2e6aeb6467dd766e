package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
)

// Loader 配置加载器
type Loader struct {
	env        string
	configPath string
	// bizConfig 业务方传入的指针，用于填充 biz_config 小节
	bizConfig any
	lookupEnv func(string) (string, bool)
}

func NewLoader(env string, configPath string) *Loader {
	if env == "" {
		env = consts.ENV_DEVELOPMENT
	}
	if configPath == "" {
		configPath = consts.DEFAULT_CONFIG_PATH
	}
	return &Loader{env: env, configPath: configPath, lookupEnv: os.LookupEnv}
}

// SetBizConfig 注入业务配置结构指针（例如 &MyBizConfig{}），需在 LoadConfig 之前调用。
func (l *Loader) SetBizConfig(b any) {
	if b == nil {
		return
	}
	if reflect.TypeOf(b).Kind() != reflect.Ptr {
		panic("SetBizConfig expects a pointer, e.g. &MyBizConfig{}")
	}
	l.bizConfig = b
}

// LoadConfig 先整体解析 AppConfig，再把 biz_config 子树二次反序列化到业务指针。
// yaml.v3 不会填充 interface{} 中预置的指针，只会替换成 map，所以需要二次解码。
func (l *Loader) LoadConfig() (*AppConfig, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(l.configPath))
	return l.parse(ext, data)
}

func (l *Loader) parse(ext string, data []byte) (*AppConfig, error) {
	var cfg AppConfig
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if l.bizConfig != nil {
		if cfg.BizConfig != nil {
			if err := decodeBizSection(ext, cfg.BizConfig, l.bizConfig); err != nil {
				return nil, fmt.Errorf("decode biz_config failed: %w", err)
			}
		}
		// 文件里没有 biz_config 时保留业务方默认值
		cfg.BizConfig = l.bizConfig
	}

	l.mergeEnvVars(&cfg)
	return &cfg, nil
}

func decodeBizSection(ext string, raw any, target any) error {
	switch ext {
	case ".yaml", ".yml":
		b, err := yaml.Marshal(raw)
		if err != nil {
			return fmt.Errorf("re-marshal biz_config failed: %w", err)
		}
		return yaml.Unmarshal(b, target)
	case ".json":
		b, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("re-marshal biz_config failed: %w", err)
		}
		return json.Unmarshal(b, target)
	}
	return fmt.Errorf("unsupported format: %s", ext)
}

// mergeEnvVars 环境变量覆盖：运行环境与部署时常改的监听地址、日志级别、redis 地址
func (l *Loader) mergeEnvVars(cfg *AppConfig) {
	if cfg.APPInfo == nil {
		cfg.APPInfo = &APPInfo{}
	}
	if cfg.APPInfo.ENV == "" {
		cfg.APPInfo.ENV = l.env
	}
	if v, ok := l.override("APP_ENV"); ok {
		cfg.APPInfo.ENV = v
	}
	if v, ok := l.override("LOGGING_LEVEL"); ok && cfg.Logging != nil {
		cfg.Logging.Level = v
	}
	if v, ok := l.override("HTTP_SERVER_ADDRESS"); ok && cfg.HTTPServer != nil {
		cfg.HTTPServer.Address = v
	}
	if v, ok := l.override("GRPC_SERVER_ADDRESS"); ok && cfg.GRPCServer != nil {
		cfg.GRPCServer.Address = v
	}
	if v, ok := l.override("PROMETHEUS_ADDRESS"); ok && cfg.Prometheus != nil {
		cfg.Prometheus.Address = v
	}
	if v, ok := l.override("REDIS_ADDRESSES"); ok && cfg.Redis != nil {
		var addrs []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
		cfg.Redis.Addresses = addrs
	}
}

func (l *Loader) override(key string) (string, bool) {
	v, ok := l.lookupEnv(consts.ENV_KEY_PREFIX + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
