package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Signaller struct {
	URL        string        `mapstructure:"url"`
	URI        string        `mapstructure:"uri"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

// Downstream selects what the endpoints of each kind accept: raw, encoded or any.
type Downstream struct {
	Audio string `mapstructure:"audio"`
	Video string `mapstructure:"video"`
}

type Filter struct {
	Enabled bool `mapstructure:"enabled"`
}

type Config struct {
	Mode        string         `mapstructure:"mode"`
	Port        int            `mapstructure:"port"`
	LogLevel    string         `mapstructure:"log_level"`
	STUNServer  string         `mapstructure:"stun_server"`
	TURNServers []string       `mapstructure:"turn_servers"`
	AudioCodecs []string       `mapstructure:"audio_codecs"`
	VideoCodecs []string       `mapstructure:"video_codecs"`
	Meta        map[string]any `mapstructure:"meta"`
	ProducerID  string         `mapstructure:"producer_id"`
	Signaller   Signaller      `mapstructure:"signaller"`
	Downstream  Downstream     `mapstructure:"downstream"`
	RecordDir   string         `mapstructure:"record_dir"`
	Filter      Filter         `mapstructure:"filter"`
}

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName over the defaults. A missing file is not an error.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RTCSUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("stun_server", "stun:stun.l.google.com:19302")
	v.SetDefault("turn_servers", []string{})
	v.SetDefault("audio_codecs", []string{})
	v.SetDefault("video_codecs", []string{})
	v.SetDefault("producer_id", "")
	v.SetDefault("signaller.url", "ws://127.0.0.1:8443/ws")
	v.SetDefault("signaller.uri", "")
	v.SetDefault("signaller.ping_period", "20s")
	v.SetDefault("downstream.audio", "raw")
	v.SetDefault("downstream.video", "raw")
	v.SetDefault("record_dir", "")
	v.SetDefault("filter.enabled", false)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Signaller: %s\n", cfg.Mode, cfg.Port, cfg.Signaller.URL)
	return &cfg, nil
}

func (c *Config) validate() error {
	for _, m := range []string{c.Downstream.Audio, c.Downstream.Video} {
		switch m {
		case "", "raw", "encoded", "any":
		default:
			return fmt.Errorf("invalid downstream mode %q", m)
		}
	}
	if c.Signaller.URL == "" {
		return fmt.Errorf("signaller.url is required")
	}
	return nil
}
