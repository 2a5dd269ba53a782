package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 环境变量覆盖项
const (
	EnvESUsername = "DIRSCRAPER_ES_USERNAME"
	EnvESPassword = "DIRSCRAPER_ES_PASSWORD"
	EnvESAddress  = "DIRSCRAPER_ES_ADDRESS"
	EnvCatalogKey = "DIRSCRAPER_CATALOG_KEY"
	EnvProxy      = "DIRSCRAPER_PROXY"
)

// ParseConfig 解析内嵌的 JSON 默认配置
func ParseConfig(byteConfig []byte) (*Config, error) {
	var cfg Config
	err := json.Unmarshal(byteConfig, &cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.absPaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load 在 base 之上叠加用户配置文件(.yaml/.yml/.json),文件中没有出现的字段保留 base 的值
func Load(base *Config, path string) (*Config, error) {
	cfg := *base
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.absPaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv 读取 .env (不存在时忽略) 并用环境变量覆盖敏感字段
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv(EnvESUsername); v != "" {
		c.Elasticsearch.Username = v
	}
	if v := os.Getenv(EnvESPassword); v != "" {
		c.Elasticsearch.Password = v
	}
	if v := os.Getenv(EnvESAddress); v != "" {
		c.Elasticsearch.Address = v
	}
	if v := os.Getenv(EnvCatalogKey); v != "" {
		c.Catalog.Key = v
	}
	if v := os.Getenv(EnvProxy); v != "" {
		c.Session.Proxy = v
	}
}

func (c *Config) absPaths() error {
	for _, p := range []*string{&c.Rod.UserDataDir, &c.Chromedp.UserDataDir} {
		if *p == "" {
			continue
		}
		absPath, err := filepath.Abs(*p)
		if err != nil {
			return err
		}
		*p = absPath
	}
	return nil
}
