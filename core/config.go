package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultMaxRetries   = 5
	DefaultRetryDelay   = 5 * time.Second
	DefaultWindowName   = "pos-system"
	DefaultOpenerMarker = "/pos"

	envPrefix = "RFIDBRIDGE"
)

// Config 是桥接程序配置（与 YAML 文件结构对应）
type Config struct {
	Debug bool `mapstructure:"debug"`

	System struct {
		ClientID string `mapstructure:"client_id"`
	} `mapstructure:"system"`

	Peer PeerConfig `mapstructure:"peer"`

	Retry RetryConfig `mapstructure:"retry"`

	Notify struct {
		Backend string `mapstructure:"backend"`
	} `mapstructure:"notify"`

	Reader struct {
		Source string `mapstructure:"source"`
		Serial struct {
			Port     string `mapstructure:"port"`
			BaudRate int    `mapstructure:"baud_rate"`
		} `mapstructure:"serial"`
	} `mapstructure:"reader"`

	Logging struct {
		Level   string   `mapstructure:"level"`
		Format  string   `mapstructure:"format"`
		Outputs []string `mapstructure:"outputs"`
	} `mapstructure:"logging"`
}

// PeerConfig 描述如何找到 POS
type PeerConfig struct {
	// OpenerURL 由启动本程序的 POS 传入
	OpenerURL    string            `mapstructure:"opener_url"`
	OpenerMarker string            `mapstructure:"opener_marker"`
	WindowName   string            `mapstructure:"window_name"`
	Windows      map[string]string `mapstructure:"windows"`
	DialTimeout  time.Duration     `mapstructure:"dial_timeout"`
	AccessToken  string            `mapstructure:"access_token"`
}

type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Delay      time.Duration `mapstructure:"delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Strategy   string        `mapstructure:"strategy"`
	// RevalidateOnSendFailure 为 true 时，投递失败会让连接回到 Disconnected 并重新查找
	RevalidateOnSendFailure bool `mapstructure:"revalidate_on_send_failure"`
}

// DefaultRetryConfig 返回默认的重试参数：5 次，固定间隔 5 秒
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: DefaultMaxRetries,
		Delay:      DefaultRetryDelay,
		MaxDelay:   30 * time.Second,
		Strategy:   "fixed",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("peer.opener_url", "")
	v.SetDefault("peer.opener_marker", DefaultOpenerMarker)
	v.SetDefault("peer.window_name", DefaultWindowName)
	v.SetDefault("peer.windows", map[string]string{
		DefaultWindowName: "ws://127.0.0.1:8080/pos",
	})
	v.SetDefault("peer.dial_timeout", 3*time.Second)
	v.SetDefault("retry.max_retries", DefaultMaxRetries)
	v.SetDefault("retry.delay", DefaultRetryDelay)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.strategy", "fixed")
	v.SetDefault("retry.revalidate_on_send_failure", false)
	v.SetDefault("notify.backend", "console")
	v.SetDefault("reader.source", "stdin")
	v.SetDefault("reader.serial.baud_rate", 9600)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputs", []string{"stdout"})
}

// LoadConfig 加载配置文件；configPath 为空时按默认路径搜索，找不到文件则只使用默认值和环境变量
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		// 使用命令行指定的路径
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		// 默认多路径搜索
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/rfidbridge")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative: %d", c.Retry.MaxRetries)
	}
	if c.Retry.Delay <= 0 {
		return fmt.Errorf("retry.delay must be positive: %s", c.Retry.Delay)
	}
	switch c.Notify.Backend {
	case "console", "desktop":
	default:
		return fmt.Errorf("unsupported notify backend: %s", c.Notify.Backend)
	}
	switch c.Reader.Source {
	case "stdin":
	case "serial":
		if c.Reader.Serial.Port == "" {
			return errors.New("reader.serial.port is required for serial source")
		}
	default:
		return fmt.Errorf("unsupported reader source: %s", c.Reader.Source)
	}
	return nil
}
