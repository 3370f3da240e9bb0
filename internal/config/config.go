package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	App struct {
		Port     int    `mapstructure:"port"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"app"`
	MQTT struct {
		Broker             string        `mapstructure:"broker"`
		ClientID           string        `mapstructure:"client_id"`
		Username           string        `mapstructure:"username"`
		Password           string        `mapstructure:"password"`
		TLS                bool          `mapstructure:"tls"`
		InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
		QoS                int           `mapstructure:"qos"`
		ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"mqtt"`
	Storage struct {
		Backend string `mapstructure:"backend"` // memory, bolt or redis
		Path    string `mapstructure:"path"`
		Secret  string `mapstructure:"secret"` // seals stored values when set
	} `mapstructure:"storage"`
	Redis struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"redis"`
	Database struct {
		URL string `mapstructure:"url"` // Postgres device registry when set
	} `mapstructure:"database"`
	Sync struct {
		RefreshDelay     time.Duration `mapstructure:"refresh_delay"`
		StaleAfter       time.Duration `mapstructure:"stale_after"`
		NextRunTimeout   time.Duration `mapstructure:"next_run_timeout"`
		SchedulesTimeout time.Duration `mapstructure:"schedules_timeout"`
		PollSpec         string        `mapstructure:"poll_spec"`
	} `mapstructure:"sync"`
	Notify struct {
		Backend string        `mapstructure:"backend"` // log or bark
		Queue   bool          `mapstructure:"queue"`   // deliver through the Redis task queue
		Timeout time.Duration `mapstructure:"timeout"`
		Bark    struct {
			URL       string `mapstructure:"url"`
			DeviceKey string `mapstructure:"device_key"`
			Group     string `mapstructure:"group"`
		} `mapstructure:"bark"`
	} `mapstructure:"notify"`
	JWT struct {
		Enabled      bool   `mapstructure:"enabled"`
		Secret       string `mapstructure:"secret"`
		Username     string `mapstructure:"username"`
		PasswordHash string `mapstructure:"password_hash"` // bcrypt, enables POST /auth/login
	} `mapstructure:"jwt"`
	MDNS struct {
		Enabled   bool   `mapstructure:"enabled"`
		LocalName string `mapstructure:"local_name"`
	} `mapstructure:"mdns"`
}

// LoadConfig reads configuration from file, .env, or env vars. An empty
// path looks for config.yaml in the working directory.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("CONFIG: Error loading .env file: %v", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix("beegreen")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MQTT.Broker == "" {
		return errors.New("config: mqtt.broker is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	switch c.Storage.Backend {
	case "memory", "bolt", "redis":
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Notify.Backend {
	case "log", "bark":
	default:
		return fmt.Errorf("config: unknown notify.backend %q", c.Notify.Backend)
	}
	if c.JWT.Enabled && c.JWT.Secret == "" {
		return errors.New("config: jwt.secret is required when jwt is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "info")

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.tls", false)
	v.SetDefault("mqtt.insecure_skip_verify", false)
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.connect_timeout", "10s")

	v.SetDefault("storage.backend", "bolt")
	v.SetDefault("storage.path", "./data/beegreen.db")
	v.SetDefault("storage.secret", "")

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("database.url", "")

	v.SetDefault("sync.refresh_delay", "1s")
	v.SetDefault("sync.stale_after", "60s")
	v.SetDefault("sync.next_run_timeout", "3s")
	v.SetDefault("sync.schedules_timeout", "5s")
	v.SetDefault("sync.poll_spec", "@every 15m")

	v.SetDefault("notify.backend", "log")
	v.SetDefault("notify.queue", false)
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.bark.url", "https://api.day.app")
	v.SetDefault("notify.bark.device_key", "")
	v.SetDefault("notify.bark.group", "BeeGreen")

	v.SetDefault("jwt.enabled", false)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.username", "admin")
	v.SetDefault("jwt.password_hash", "")

	v.SetDefault("mdns.enabled", false)
	v.SetDefault("mdns.local_name", "beegreen.local")
}
