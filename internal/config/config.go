// Package config loads service configuration from a YAML file with
// environment overrides, and can watch the routing rules file for changes.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the full service configuration shared by gateway and worker.
type Config struct {
	Server struct {
		Port        int    `mapstructure:"port"`
		MetricsPort int    `mapstructure:"metrics_port"`
		Stage       string `mapstructure:"stage"`
	} `mapstructure:"server"`

	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`

	KnowledgeBase struct {
		Endpoint        string `mapstructure:"endpoint"`
		KnowledgeBaseID string `mapstructure:"knowledge_base_id"`
		ModelARN        string `mapstructure:"model_arn"`
		TopK            int    `mapstructure:"top_k"`
	} `mapstructure:"knowledge_base"`

	AgentGateway struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"agent_gateway"`

	Auth struct {
		TokenURL     string        `mapstructure:"token_url"`
		ClientID     string        `mapstructure:"client_id"`
		ClientSecret string        `mapstructure:"client_secret"`
		ExpiryMargin time.Duration `mapstructure:"expiry_margin"`
	} `mapstructure:"auth"`

	Push struct {
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"push"`

	Stream struct {
		Deadline time.Duration `mapstructure:"deadline"`
	} `mapstructure:"stream"`

	Queue struct {
		Stream string `mapstructure:"stream"`
		Group  string `mapstructure:"group"`
	} `mapstructure:"queue"`

	Routing struct {
		RulesPath string `mapstructure:"rules_path"`
	} `mapstructure:"routing"`
}

// Load reads configuration from CONFIG_PATH (default
// config/regadvisor.yaml), then applies environment overrides. A missing
// file is not fatal; env and defaults carry a dev setup.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 2112)
	v.SetDefault("server.stage", "dev")
	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("knowledge_base.top_k", 6)
	v.SetDefault("stream.deadline", 5*time.Minute)
	v.SetDefault("auth.expiry_margin", 5*time.Minute)

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/regadvisor.yaml"
	}
	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&c)
	return &c, nil
}

func applyEnvOverrides(c *Config) {
	if s := os.Getenv("STAGE"); s != "" {
		c.Server.Stage = s
	}
	if s := os.Getenv("REDIS_URL"); s != "" {
		c.Redis.URL = s
	}
	if s := os.Getenv("KB_ENDPOINT"); s != "" {
		c.KnowledgeBase.Endpoint = s
	}
	if s := os.Getenv("KNOWLEDGE_BASE_ID"); s != "" {
		c.KnowledgeBase.KnowledgeBaseID = s
	}
	if s := os.Getenv("MODEL_ARN"); s != "" {
		c.KnowledgeBase.ModelARN = s
	}
	if s := os.Getenv("AGENT_GATEWAY_URL"); s != "" {
		c.AgentGateway.URL = s
	}
	if s := os.Getenv("OAUTH_TOKEN_URL"); s != "" {
		c.Auth.TokenURL = s
	}
	if s := os.Getenv("OAUTH_CLIENT_ID"); s != "" {
		c.Auth.ClientID = s
	}
	if s := os.Getenv("OAUTH_CLIENT_SECRET"); s != "" {
		c.Auth.ClientSecret = s
	}
	if s := os.Getenv("PUSH_ENDPOINT"); s != "" {
		c.Push.Endpoint = s
	}
	if s := os.Getenv("ROUTING_RULES_PATH"); s != "" {
		c.Routing.RulesPath = s
	}
}

// WatchFile invokes onChange whenever path is written or recreated, until
// stop is closed. Used to hot-reload the routing rules table.
func WatchFile(path string, logger *zap.Logger, stop <-chan struct{}, onChange func()) error {
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					logger.Info("Config file changed, reloading", zap.String("path", path))
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
